// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs sync cycles on a fixed interval and on demand, never
// more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/types"
)

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context) types.CycleSummary
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(ctx context.Context) types.CycleSummary

func (f RunnerFunc) Run(ctx context.Context) types.CycleSummary { return f(ctx) }

// Observer receives every cycle summary. It is called on the goroutine that
// ran the cycle and must not block.
type Observer func(types.CycleSummary)

type Scheduler struct {
	runner   Runner
	clock    clockwork.Clock
	interval atomic.Int64

	// guard is held for the whole of a cycle.
	guard sync.Mutex

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	reset     chan struct{}
	observers []Observer
	last      *types.CycleSummary
}

// New creates a stopped scheduler. The interval is clamped to the allowed
// range.
func New(runner Runner, interval time.Duration, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Scheduler{
		runner: runner,
		clock:  clock,
		reset:  make(chan struct{}, 1),
	}
	s.interval.Store(int64(config.ClampInterval(interval)))
	return s
}

// Start begins periodic cycles, running the first one right away. Cycles run
// with ctx, so cancelling it ends an in-flight cycle between files; Stop does
// not. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	log.Ctx(ctx).Info().Dur("interval", s.Interval()).Msg("Scheduler starting ...")
	go s.loop(ctx, loopCtx, done)
}

// Stop cancels future cycles and waits for the loop to exit, which includes
// any cycle it is running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether periodic cycles are scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Busy reports whether a cycle is executing right now.
func (s *Scheduler) Busy() bool {
	if s.guard.TryLock() {
		s.guard.Unlock()
		return false
	}
	return true
}

func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetInterval changes the period, clamped to the allowed range. It takes
// effect from the next tick.
func (s *Scheduler) SetInterval(d time.Duration) time.Duration {
	d = config.ClampInterval(d)
	if time.Duration(s.interval.Swap(int64(d))) != d {
		select {
		case s.reset <- struct{}{}:
		default:
		}
	}
	return d
}

// Subscribe adds an observer.
func (s *Scheduler) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// LastSummary returns the summary of the most recent cycle.
func (s *Scheduler) LastSummary() (types.CycleSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return types.CycleSummary{}, false
	}
	return *s.last, true
}

// RunOnce runs a cycle now. If one is already running the call does nothing
// and returns types.ErrCycleInProgress.
func (s *Scheduler) RunOnce(ctx context.Context) (types.CycleSummary, error) {
	if !s.guard.TryLock() {
		return types.CycleSummary{}, types.ErrCycleInProgress
	}
	defer s.guard.Unlock()

	summary := s.runner.Run(ctx)

	s.mu.Lock()
	s.last = &summary
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(summary)
	}
	return summary, nil
}

func (s *Scheduler) loop(ctx, loopCtx context.Context, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.Interval())
	defer ticker.Stop()

	// run at the start
	s.tick(ctx)

	for {
		select {
		case <-loopCtx.Done():
			log.Ctx(ctx).Info().Msg("Scheduler stopping")
			return
		case <-s.reset:
			ticker.Reset(s.Interval())
			log.Ctx(ctx).Info().Dur("interval", s.Interval()).Msg("Sync interval changed")
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); errors.Is(err, types.ErrCycleInProgress) {
		log.Ctx(ctx).Debug().Msg("cycle already running, skipping tick")
	}
}
