// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the zerolog loggers used across the agent and the
// sinks that feed recent activity back to the status api.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cloudzero/fit-uploader/app/build"
)

// OpField is the key of the operation attribute attached by components.
const OpField = "op"

type loggerConfig struct {
	level   zerolog.Level
	version string
	sinks   []io.Writer
	attrs   []func(zerolog.Context) zerolog.Context
}

// LoggerOpt configures NewLogger.
type LoggerOpt func(*loggerConfig) error

// WithLevel parses a level name such as "debug" or "warn".
func WithLevel(level string) LoggerOpt {
	return func(c *loggerConfig) error {
		if level == "" {
			return nil
		}
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return err
		}
		c.level = lvl
		return nil
	}
}

// WithVersion overrides the version attribute.
func WithVersion(version string) LoggerOpt {
	return func(c *loggerConfig) error {
		c.version = version
		return nil
	}
}

// WithSink adds an output. When no sink is given, stdout is used.
func WithSink(w io.Writer) LoggerOpt {
	return func(c *loggerConfig) error {
		if w != nil {
			c.sinks = append(c.sinks, w)
		}
		return nil
	}
}

// WithAttrs adds global attributes to every log line.
func WithAttrs(fn func(zerolog.Context) zerolog.Context) LoggerOpt {
	return func(c *loggerConfig) error {
		if fn != nil {
			c.attrs = append(c.attrs, fn)
		}
		return nil
	}
}

// NewLogger creates a json logger writing to every configured sink.
func NewLogger(opts ...LoggerOpt) (*zerolog.Logger, error) {
	cfg := &loggerConfig{
		level:   zerolog.InfoLevel,
		version: build.GetVersion(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	var out io.Writer
	switch len(cfg.sinks) {
	case 0:
		out = os.Stdout
	case 1:
		out = cfg.sinks[0]
	default:
		out = zerolog.MultiLevelWriter(cfg.sinks...)
	}

	ctx := zerolog.New(out).Level(cfg.level).With().Timestamp().Str("version", cfg.version)
	for _, fn := range cfg.attrs {
		ctx = fn(ctx)
	}
	logger := ctx.Logger()
	return &logger, nil
}
