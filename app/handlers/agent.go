// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package handlers exposes the running agent over a small local HTTP api:
// status, manual sync, scheduler control, health and prometheus metrics.
// The api binds to localhost by default and is meant for the tray client
// and for scripts, not for remote access.
package handlers

import (
	"context"
	"time"

	"github.com/cloudzero/fit-uploader/app/types"
)

//go:generate mockgen -destination=mocks/agent_mock.go -package=mocks . Agent

// Agent is the part of the running agent driven over HTTP.
type Agent interface {
	Status(ctx context.Context) types.AgentStatus
	SyncNow(ctx context.Context) (types.CycleSummary, error)
	StartScheduler(ctx context.Context) error
	StopScheduler(ctx context.Context) error
	SetInterval(ctx context.Context, d time.Duration) (time.Duration, error)
}
