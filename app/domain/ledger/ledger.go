// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the authoritative record of which activity files have
// already reached the remote service.
//
// Records are appended to a durable store before the in-memory index is
// touched, so a file is never archived on the strength of an entry that a
// crash could lose. On startup the index is rebuilt from whatever the store
// can still read.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/cloudzero/fit-uploader/app/types"
)

// Ledger indexes upload records by content key.
type Ledger struct {
	store types.LedgerStore
	clock clockwork.Clock

	mu      sync.RWMutex
	latest  map[string]types.UploadRecord
	records []types.UploadRecord
}

// Open rebuilds the index from store.
func Open(ctx context.Context, store types.LedgerStore, clock clockwork.Clock) (*Ledger, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	recs, err := store.Load(ctx)
	if err != nil {
		return nil, errors.Join(types.ErrPersistence, fmt.Errorf("failed to load the ledger: %w", err))
	}

	l := &Ledger{
		store:   store,
		clock:   clock,
		latest:  make(map[string]types.UploadRecord, len(recs)),
		records: recs,
	}
	for _, rec := range recs {
		l.latest[rec.Key] = rec
	}

	log.Ctx(ctx).Debug().Int("records", len(recs)).Int("keys", len(l.latest)).Msg("ledger loaded")
	return l, nil
}

// HasSucceeded reports whether the newest record for key says the remote
// service holds the file.
func (l *Ledger) HasSucceeded(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.latest[key]
	return ok && rec.Outcome.Done()
}

// Lookup returns the newest record for key.
func (l *Ledger) Lookup(key string) (types.UploadRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.latest[key]
	return rec, ok
}

// Record persists rec and then indexes it. The index is left untouched when
// the store fails, and the returned error wraps types.ErrPersistence.
func (l *Ledger) Record(ctx context.Context, rec types.UploadRecord) error {
	if rec.Key == "" {
		return errors.Join(types.ErrPersistence, errors.New("record has no key"))
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.clock.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Append(ctx, rec); err != nil {
		return errors.Join(types.ErrPersistence, fmt.Errorf("failed to append ledger record for %s: %w", rec.Filename, err))
	}
	l.latest[rec.Key] = rec
	l.records = append(l.records, rec)
	return nil
}

// Records returns a copy of every record in append order.
func (l *Ledger) Records() []types.UploadRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.UploadRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Recent returns up to n records, newest first.
func (l *Ledger) Recent(n int) []types.UploadRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]types.UploadRecord, 0, n)
	for i := len(l.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Ledger) LoadStats(ctx context.Context) (*types.SyncStats, error) {
	stats, err := l.store.LoadStats(ctx)
	if err != nil {
		return nil, errors.Join(types.ErrPersistence, fmt.Errorf("failed to load stats: %w", err))
	}
	return stats, nil
}

func (l *Ledger) SaveStats(ctx context.Context, stats types.SyncStats) error {
	if err := l.store.SaveStats(ctx, stats); err != nil {
		return errors.Join(types.ErrPersistence, fmt.Errorf("failed to save stats: %w", err))
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.store.Close()
}
