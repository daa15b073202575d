// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package types holds the data model shared by the sync engine: activity
// files discovered on disk, the ledger records describing what has been
// uploaded, the remote session, and the statistics of the last cycle.
package types

import (
	"path/filepath"
	"time"
)

// SourceKind identifies which producing application wrote an activity file.
type SourceKind string

const (
	SourceWahoo    SourceKind = "wahoo"
	SourceMyWhoosh SourceKind = "mywhoosh"
)

// SourceKinds lists the known sources in processing order.
var SourceKinds = []SourceKind{SourceWahoo, SourceMyWhoosh}

// ActivityFile is a candidate file found by a folder scan. It is rebuilt on
// every scan and never persisted.
type ActivityFile struct {
	Path         string     `json:"path"`
	Source       SourceKind `json:"source"`
	Size         int64      `json:"size"`
	ModTime      time.Time  `json:"modTime"`
	DiscoveredAt time.Time  `json:"discoveredAt"`

	// Key is the content identity, set once the file has been admitted.
	Key string `json:"key,omitempty"`
}

// Name returns the base filename.
func (a ActivityFile) Name() string {
	return filepath.Base(a.Path)
}

// Folder returns the directory holding the file.
func (a ActivityFile) Folder() string {
	return filepath.Dir(a.Path)
}

// UploadOutcome is the terminal classification of a single upload attempt.
type UploadOutcome string

const (
	OutcomeSucceeded UploadOutcome = "succeeded"
	OutcomeDuplicate UploadOutcome = "duplicate"
	OutcomeFailed    UploadOutcome = "failed"
)

// Done reports whether the remote service holds the file, either because it
// was just created or because it already existed.
func (o UploadOutcome) Done() bool {
	return o == OutcomeSucceeded || o == OutcomeDuplicate
}

// UploadResult is what the remote client returns for one file.
type UploadResult struct {
	Outcome   UploadOutcome `json:"outcome"`
	RemoteID  string        `json:"remoteId,omitempty"`
	Transient bool          `json:"transient,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// UploadRecord is one ledger entry.
type UploadRecord struct {
	Key        string        `json:"key"`
	Filename   string        `json:"filename"`
	Source     SourceKind    `json:"source"`
	Outcome    UploadOutcome `json:"outcome"`
	Transient  bool          `json:"transient,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	RemoteID   string        `json:"remoteId,omitempty"`
	RecordedAt time.Time     `json:"recordedAt"`
}

// Session is an authenticated handle to the remote service.
type Session struct {
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session can still be used at the given time. A
// zero expiry never expires.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt)
}
