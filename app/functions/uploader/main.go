// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package main is the fit-uploader command: a background agent that uploads
// new Wahoo and MyWhoosh activity files to the fitness service, plus the
// one-shot commands used to set it up and inspect it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cloudzero/fit-uploader/app/build"
	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/logging"
	"github.com/cloudzero/fit-uploader/app/types"
)

const logFileBackups = 3

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   build.AppName,
	Short: "Upload new Wahoo and MyWhoosh rides automatically",
	Long: `fit-uploader watches the Wahoo and MyWhoosh export folders, uploads every new
.fit file to the fitness service once it has finished writing, and moves it
into an "uploaded" subfolder. Uploads are recorded in a local ledger so a file
is never sent twice, even across restarts.

Run 'fit-uploader login' once to store your account, then 'fit-uploader run'.`,
	SilenceUsage: true,
	Version:      build.GetVersion(),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(runCmd, syncCmd, loginCmd, statusCmd, configCmd)
}

// env is what every command starts from.
type env struct {
	ctx      context.Context
	settings *config.Settings
	// events holds engine events and warning log lines for the status api.
	events *logging.EventRing
}

// setup loads the settings and installs the logger on the returned context.
func setup(cmd *cobra.Command) (*env, error) {
	settings, err := config.NewSettings(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.Logging.Level = logLevel
	}

	events := logging.NewEventRing(settings.Logging.RecentEvents)
	logger, err := newLogger(cmd.Context(), cmd.Name(), settings, cmd.ErrOrStderr(), events)
	if err != nil {
		return nil, err
	}
	zerolog.DefaultContextLogger = logger
	return &env{
		ctx:      logger.WithContext(cmd.Context()),
		settings: settings,
		events:   events,
	}, nil
}

func newLogger(ctx context.Context, op string, settings *config.Settings, console io.Writer, events types.EventSink) (*zerolog.Logger, error) {
	opts := []logging.LoggerOpt{
		logging.WithLevel(settings.Logging.Level),
		logging.WithAttrs(func(c zerolog.Context) zerolog.Context {
			return c.Str(logging.OpField, op)
		}),
		logging.WithSink(logging.NewFieldFilterWriter(console, logging.SensitiveFields)),
		logging.WithSink(logging.NewFieldFilterWriter(logging.EventWriter(ctx, events, zerolog.WarnLevel), logging.SensitiveFields)),
	}
	if settings.Logging.File != "" {
		opts = append(opts, logging.WithSink(logging.NewFieldFilterWriter(&lumberjack.Logger{
			Filename:   settings.Logging.File,
			MaxSize:    settings.Logging.MaxSizeMB,
			MaxBackups: logFileBackups,
			Compress:   true,
		}, logging.SensitiveFields)))
	}
	return logging.NewLogger(opts...)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
