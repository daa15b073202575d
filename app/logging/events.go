// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cloudzero/fit-uploader/app/types"
)

// EventRing keeps the most recent engine events in memory.
type EventRing struct {
	mu     sync.RWMutex
	events []types.Event
	next   int
	full   bool
}

// NewEventRing creates a ring holding at most size events.
func NewEventRing(size int) *EventRing {
	if size <= 0 {
		size = 1
	}
	return &EventRing{events: make([]types.Event, size)}
}

func (r *EventRing) Emit(_ context.Context, ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the stored events, newest first.
func (r *EventRing) Recent() []types.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.events)
	}
	out := make([]types.Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}

// EventLogger writes engine events through the context logger.
type EventLogger struct{}

func (EventLogger) Emit(ctx context.Context, ev types.Event) {
	lvl, err := zerolog.ParseLevel(ev.Level)
	if err != nil || ev.Level == "" {
		lvl = zerolog.InfoLevel
	}
	log.Ctx(ctx).WithLevel(lvl).
		Str("event", string(ev.Kind)).
		Fields(ev.Fields).
		Msg(ev.Message)
}
