// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudzero/fit-uploader/app/types"
)

// LogEventKind marks events that originate from plain log lines.
const LogEventKind types.EventKind = "log"

type eventWriter struct {
	ctx      context.Context
	sink     types.EventSink
	minLevel zerolog.Level
}

// EventWriter turns json log lines at or above minLevel into events. Lines
// already produced from an engine event are not emitted twice.
func EventWriter(ctx context.Context, sink types.EventSink, minLevel zerolog.Level) io.Writer {
	return &eventWriter{ctx: ctx, sink: sink, minLevel: minLevel}
}

func (w *eventWriter) Write(p []byte) (int, error) {
	var entry map[string]interface{}
	if err := json.Unmarshal(p, &entry); err != nil {
		return len(p), nil // consume the line even if it is not json
	}

	if _, fromEvent := entry["event"]; fromEvent {
		return len(p), nil
	}

	levelName, _ := entry[zerolog.LevelFieldName].(string)
	lvl, err := zerolog.ParseLevel(levelName)
	if err != nil || lvl < w.minLevel {
		return len(p), nil
	}

	var msg string
	if m, exists := entry[zerolog.MessageFieldName]; exists {
		if mStr, ok := m.(string); ok {
			msg = mStr
		} else {
			msg = fmt.Sprintf("%v", m)
		}
	}

	ts := time.Now().UTC()
	if t, ok := entry[zerolog.TimestampFieldName].(string); ok {
		if parsed, err := time.Parse(zerolog.TimeFieldFormat, t); err == nil {
			ts = parsed
		}
	}

	fields := make(map[string]any, len(entry))
	for key, value := range entry {
		switch key {
		case zerolog.MessageFieldName, zerolog.TimestampFieldName, zerolog.LevelFieldName, "version":
			continue
		}
		fields[key] = value
	}

	w.sink.Emit(w.ctx, types.Event{
		Kind:    LogEventKind,
		Time:    ts,
		Level:   lvl.String(),
		Message: msg,
		Fields:  fields,
	})
	return len(p), nil
}
