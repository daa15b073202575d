// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"time"
)

// EventKind classifies a notification emitted by the sync engine.
type EventKind string

const (
	EventCycleStart         EventKind = "cycle_start"
	EventCycleEnd           EventKind = "cycle_end"
	EventFileOutcome        EventKind = "file_outcome"
	EventAuthFailure        EventKind = "auth_failure"
	EventPersistenceFailure EventKind = "persistence_failure"
	EventConfigError        EventKind = "config_error"
)

// Event is a structured notification for whatever renders or stores engine
// activity.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// EventSink receives engine events. Implementations must be safe for
// concurrent use and must not block.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(ctx context.Context, ev Event)

func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}
