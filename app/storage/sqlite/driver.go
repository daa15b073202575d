// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite opens sqlite databases with the core driver defaults.
package sqlite

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cloudzero/fit-uploader/app/storage/core"
)

const (
	// InMemoryDSN is a private in-memory database.
	InMemoryDSN = ":memory:"
	// MemorySharedCached is an in-memory database shared by every
	// connection of the process.
	MemorySharedCached = "file:memory?mode=memory&cache=shared"
)

// NewSQLiteDriver opens dsn. Writes go through a single connection so that
// in-memory databases behave like files and commits are serialized.
func NewSQLiteDriver(dsn string) (*gorm.DB, error) {
	db, err := core.NewDriver(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get the sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// commits must reach the disk before returning
	if err := db.Exec("PRAGMA synchronous = FULL").Error; err != nil {
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	return db, nil
}

// DSN returns the file dsn for path with a busy timeout so concurrent
// readers such as the status command wait instead of failing.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000", path)
}
