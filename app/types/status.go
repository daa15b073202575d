// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// SchedulerStatus describes the periodic trigger.
type SchedulerStatus struct {
	Running  bool          `json:"running" yaml:"running"`
	Busy     bool          `json:"busy" yaml:"busy"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// FolderStatus describes one configured source folder.
type FolderStatus struct {
	Source SourceKind `json:"source" yaml:"source"`
	Path   string     `json:"path" yaml:"path"`
	Exists bool       `json:"exists" yaml:"exists"`
}

// AgentStatus is the read-only view rendered by the status api and the
// status command.
type AgentStatus struct {
	Version       string          `json:"version" yaml:"version"`
	SignedIn      bool            `json:"signedIn" yaml:"signedIn"`
	Scheduler     SchedulerStatus `json:"scheduler" yaml:"scheduler"`
	Folders       []FolderStatus  `json:"folders" yaml:"folders"`
	Stats         SyncStats       `json:"stats" yaml:"stats"`
	LastCycle     *CycleSummary   `json:"lastCycle,omitempty" yaml:"lastCycle,omitempty"`
	RecentEvents  []Event         `json:"recentEvents" yaml:"recentEvents"`
	RecentUploads []UploadRecord  `json:"recentUploads" yaml:"recentUploads"`
}
