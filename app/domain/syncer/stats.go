// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"sync"

	"github.com/ccoveille/go-safecast"

	"github.com/cloudzero/fit-uploader/app/types"
)

// StatsHolder owns the SyncStats value. Only a Cycle writes it; everything
// else reads copies through Snapshot.
type StatsHolder struct {
	mu    sync.RWMutex
	stats types.SyncStats
}

// NewStatsHolder starts from the persisted snapshot, if any.
func NewStatsHolder(initial *types.SyncStats) *StatsHolder {
	h := &StatsHolder{}
	if initial != nil {
		h.stats = *initial
	}
	return h
}

func (h *StatsHolder) Snapshot() types.SyncStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

func (h *StatsHolder) apply(summary types.CycleSummary) types.SyncStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.LastRunAt = summary.FinishedAt
	h.stats.LastOutcome = summary.State
	h.stats.LastError = summary.Error
	h.stats.Succeeded = summary.Succeeded
	h.stats.Skipped = summary.Skipped
	h.stats.Failed = summary.Failed
	h.stats.TotalUploaded += safecast.MustConvert[uint64](summary.Uploaded())
	return h.stats
}
