// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cloudzero/fit-uploader/app/types"
)

func (c *Cycle) emit(ctx context.Context, kind types.EventKind, level zerolog.Level, msg string, fields map[string]any) {
	c.events.Emit(ctx, types.Event{
		Kind:    kind,
		Time:    c.clock.Now(),
		Level:   level.String(),
		Message: msg,
		Fields:  fields,
	})
}

func (c *Cycle) emitAuthFailure(ctx context.Context, err error) {
	c.emit(ctx, types.EventAuthFailure, zerolog.ErrorLevel, "sign-in failed", map[string]any{
		"kind":  types.ErrorKind(err),
		"error": err.Error(),
	})
}

func (c *Cycle) emitPersistenceFailure(ctx context.Context, f types.ActivityFile, err error) {
	c.emit(ctx, types.EventPersistenceFailure, zerolog.ErrorLevel, "failed to record upload in the ledger", map[string]any{
		"file":  f.Name(),
		"error": err.Error(),
	})
}

func (c *Cycle) emitFileOutcome(ctx context.Context, res types.FileResult) {
	level := zerolog.InfoLevel
	if !res.Result.Outcome.Done() || res.Err != nil {
		level = zerolog.WarnLevel
	}
	fields := map[string]any{
		"file":    res.File.Name(),
		"source":  string(res.File.Source),
		"outcome": string(res.Result.Outcome),
	}
	if res.Result.RemoteID != "" {
		fields["remoteId"] = res.Result.RemoteID
	}
	if res.Result.Reason != "" {
		fields["reason"] = res.Result.Reason
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
		fields["kind"] = types.ErrorKind(res.Err)
	}
	c.emit(ctx, types.EventFileOutcome, level, res.File.Name()+": "+string(res.Result.Outcome), fields)
}
