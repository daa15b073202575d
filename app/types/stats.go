// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// CycleState is the terminal state of one sync cycle.
type CycleState string

const (
	CycleCompleted           CycleState = "completed"
	CycleCompletedWithErrors CycleState = "completed_with_errors"
	CycleAborted             CycleState = "aborted"
)

// SyncStats describes the most recent cycle. It survives restarts.
type SyncStats struct {
	LastRunAt     time.Time  `json:"lastRunAt" yaml:"lastRunAt"`
	LastOutcome   CycleState `json:"lastOutcome" yaml:"lastOutcome"`
	LastError     string     `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	Succeeded     int        `json:"succeeded" yaml:"succeeded"`
	Skipped       int        `json:"skipped" yaml:"skipped"`
	Failed        int        `json:"failed" yaml:"failed"`
	TotalUploaded uint64     `json:"totalUploaded" yaml:"totalUploaded"`
}

// FileResult is the outcome of one file within a cycle.
type FileResult struct {
	File   ActivityFile  `json:"file"`
	Result UploadResult  `json:"result"`
	Err    error         `json:"-"`
	Error  string        `json:"error,omitempty"`
	Took   time.Duration `json:"took"`
}

// CycleSummary is returned by every sync cycle and delivered to observers.
type CycleSummary struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	State      CycleState   `json:"state"`
	Err        error        `json:"-"`
	Error      string       `json:"error,omitempty"`
	Results    []FileResult `json:"results,omitempty"`
	Succeeded  int          `json:"succeeded"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
}

// Uploaded counts the files that went over the wire and were created
// remotely, excluding duplicates.
func (c CycleSummary) Uploaded() int {
	n := 0
	for _, r := range c.Results {
		if r.Result.Outcome == OutcomeSucceeded && r.Err == nil {
			n++
		}
	}
	return n
}
