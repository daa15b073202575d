// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import "context"

//go:generate mockgen -destination=mocks/ports_mock.go -package=mocks . LedgerStore,Uploader

// LedgerStore persists ledger records and the last cycle statistics.
type LedgerStore interface {
	// Load returns every readable record in append order. Entries that
	// cannot be decoded are skipped, never returned as an error.
	Load(ctx context.Context) ([]UploadRecord, error)
	// Append durably stores a record before returning.
	Append(ctx context.Context, rec UploadRecord) error
	// LoadStats returns the persisted statistics, or nil if none exist.
	LoadStats(ctx context.Context) (*SyncStats, error)
	// SaveStats replaces the persisted statistics.
	SaveStats(ctx context.Context, stats SyncStats) error
	// Close releases the underlying resources.
	Close() error
}

// Uploader is the remote side of a sync cycle.
type Uploader interface {
	// EnsureSession returns a usable session, authenticating if required.
	EnsureSession(ctx context.Context) (*Session, error)
	// Upload submits one file and classifies the response.
	Upload(ctx context.Context, sess *Session, file ActivityFile) (UploadResult, error)
}
