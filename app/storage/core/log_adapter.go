// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold promotes a query trace to warn level.
const SlowQueryThreshold = 200 * time.Millisecond

// ZeroLogAdapter sends gorm logs to the logger found in the query context.
type ZeroLogAdapter struct{}

var _ gormlogger.Interface = ZeroLogAdapter{}

func (a ZeroLogAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return a
}

func (ZeroLogAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	log.Ctx(ctx).Info().Msg(fmt.Sprintf(msg, args...))
}

func (ZeroLogAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	log.Ctx(ctx).Warn().Msg(fmt.Sprintf(msg, args...))
}

func (ZeroLogAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	log.Ctx(ctx).Error().Msg(fmt.Sprintf(msg, args...))
}

func (ZeroLogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	logger := log.Ctx(ctx)
	elapsed := time.Since(begin)

	var event *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		event = logger.Error().Err(err)
	case elapsed > SlowQueryThreshold:
		event = logger.Warn()
	default:
		event = logger.Debug()
	}

	sql, rows := fc()
	event.
		Dur("elapsed", elapsed).
		Str("sql", sql).
		Int64("rows", rows).
		Msg("query")
}
