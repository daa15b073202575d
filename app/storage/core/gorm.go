// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package core provides the gorm plumbing shared by every sql backed
// repository: driver defaults, a zerolog query logger, error translation
// and context carried transactions.
package core

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// NewDriver opens a database with the agent defaults: singular table names,
// UTC millisecond timestamps, zerolog query logging and translated errors.
func NewDriver(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		NowFunc:        DatabaseNow,
		Logger:         &ZeroLogAdapter{},
		TranslateError: true,
	})
}

// DatabaseNow is the clock used for created_at and updated_at columns.
func DatabaseNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
