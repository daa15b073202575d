// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cloudzero/fit-uploader/app/storage/core"
)

type entryRecorder struct {
	entries []map[string]interface{}
}

func (m *entryRecorder) Write(p []byte) (int, error) {
	entry := map[string]interface{}{}
	if err := json.Unmarshal(p, &entry); err != nil {
		return 0, err
	}
	m.entries = append(m.entries, entry)
	return len(p), nil
}

func TestUnit_Storage_Core_LogAdapter(t *testing.T) {
	rec := &entryRecorder{}
	z := zerolog.New(rec)

	now := time.Now()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{NowFunc: func() time.Time { return now }, Logger: core.ZeroLogAdapter{}})
	require.NoError(t, err)
	db = db.WithContext(z.WithContext(context.Background()))

	type Ride struct {
		Name      string
		CreatedAt time.Time
	}
	require.NoError(t, db.AutoMigrate(&Ride{}))

	cases := []struct {
		name       string
		run        func() error
		sqlPattern string
		level      string
		errOk      bool
	}{
		{
			name:       "insert",
			run:        func() error { return db.Create(&Ride{Name: "ride1"}).Error },
			sqlPattern: "INSERT INTO `rides`",
			level:      "debug",
		},
		{
			name:       "select",
			run:        func() error { return db.Model(&Ride{}).Find(&[]*Ride{}).Error },
			sqlPattern: "SELECT \\* FROM `rides`",
			level:      "debug",
		},
		{
			name:       "not found is not an error",
			run:        func() error { return db.Where(&Ride{Name: "missing"}).First(&Ride{}).Error },
			sqlPattern: "WHERE `rides`\\.`name` = \"missing\"",
			level:      "debug",
			errOk:      true,
		},
		{
			name:       "invalid sql",
			run:        func() error { return db.Raw("THIS is,not REAL sql").Scan(&Ride{}).Error },
			sqlPattern: "THIS is,not REAL sql",
			level:      "error",
			errOk:      true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec.entries = nil
			err := c.run()
			if !c.errOk {
				require.NoError(t, err)
			}
			require.Len(t, rec.entries, 1)
			assert.Regexp(t, regexp.MustCompile(c.sqlPattern), rec.entries[0]["sql"])
			assert.Equal(t, c.level, rec.entries[0]["level"])
		})
	}
}
