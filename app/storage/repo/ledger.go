// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package repo implements the ledger store on top of a gorm database.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cloudzero/fit-uploader/app/storage/core"
	"github.com/cloudzero/fit-uploader/app/types"
)

// UploadRecordModel is the row layout of the upload_record table.
type UploadRecordModel struct {
	ID         uint   `gorm:"primarykey"`
	Key        string `gorm:"index;not null"`
	Filename   string
	Source     string
	Outcome    string `gorm:"not null"`
	Transient  bool
	Reason     string
	RemoteID   string
	RecordedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

func (UploadRecordModel) TableName() string { return "upload_record" }

// SyncStatsModel is the single row of the sync_stats table.
type SyncStatsModel struct {
	ID            uint `gorm:"primarykey"`
	LastRunAt     time.Time
	LastOutcome   string
	LastError     string
	Succeeded     int
	Skipped       int
	Failed        int
	TotalUploaded uint64
	UpdatedAt     time.Time
}

func (SyncStatsModel) TableName() string { return "sync_stats" }

const statsRowID = 1

// LedgerRepo is a types.LedgerStore backed by sql tables.
type LedgerRepo struct {
	core.BaseRepoImpl
	db *gorm.DB
}

var (
	_ types.LedgerStore   = (*LedgerRepo)(nil)
	_ types.StorageCommon = (*LedgerRepo)(nil)
)

// NewLedgerRepo migrates the schema and returns the repository.
func NewLedgerRepo(db *gorm.DB) (*LedgerRepo, error) {
	if err := db.AutoMigrate(&UploadRecordModel{}, &SyncStatsModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate the ledger schema: %w", core.TranslateError(err))
	}
	return &LedgerRepo{
		BaseRepoImpl: core.NewBaseRepoImpl(db, &UploadRecordModel{}),
		db:           db,
	}, nil
}

func (r *LedgerRepo) Load(ctx context.Context) ([]types.UploadRecord, error) {
	var rows []UploadRecordModel
	if err := r.DB(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, core.TranslateError(err)
	}

	out := make([]types.UploadRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Uint("id", row.ID).Msg("skipping unreadable ledger row")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *LedgerRepo) Append(ctx context.Context, rec types.UploadRecord) error {
	row := fromRecord(rec)
	return r.Tx(ctx, func(ctxTx context.Context) error {
		return core.TranslateError(r.DB(ctxTx).Create(&row).Error)
	})
}

func (r *LedgerRepo) LoadStats(ctx context.Context) (*types.SyncStats, error) {
	var row SyncStatsModel
	err := core.TranslateError(r.DB(ctx).First(&row, statsRowID).Error)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.SyncStats{
		LastRunAt:     row.LastRunAt,
		LastOutcome:   types.CycleState(row.LastOutcome),
		LastError:     row.LastError,
		Succeeded:     row.Succeeded,
		Skipped:       row.Skipped,
		Failed:        row.Failed,
		TotalUploaded: row.TotalUploaded,
	}, nil
}

func (r *LedgerRepo) SaveStats(ctx context.Context, stats types.SyncStats) error {
	row := SyncStatsModel{
		ID:            statsRowID,
		LastRunAt:     stats.LastRunAt,
		LastOutcome:   string(stats.LastOutcome),
		LastError:     stats.LastError,
		Succeeded:     stats.Succeeded,
		Skipped:       stats.Skipped,
		Failed:        stats.Failed,
		TotalUploaded: stats.TotalUploaded,
	}
	return core.TranslateError(r.DB(ctx).Save(&row).Error)
}

func (r *LedgerRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromRecord(rec types.UploadRecord) UploadRecordModel {
	return UploadRecordModel{
		Key:        rec.Key,
		Filename:   rec.Filename,
		Source:     string(rec.Source),
		Outcome:    string(rec.Outcome),
		Transient:  rec.Transient,
		Reason:     rec.Reason,
		RemoteID:   rec.RemoteID,
		RecordedAt: rec.RecordedAt.UTC(),
	}
}

func (m UploadRecordModel) toRecord() (types.UploadRecord, error) {
	outcome := types.UploadOutcome(m.Outcome)
	switch outcome {
	case types.OutcomeSucceeded, types.OutcomeDuplicate, types.OutcomeFailed:
	default:
		return types.UploadRecord{}, fmt.Errorf("unknown outcome %q", m.Outcome)
	}
	if m.Key == "" {
		return types.UploadRecord{}, errors.New("empty key")
	}
	return types.UploadRecord{
		Key:        m.Key,
		Filename:   m.Filename,
		Source:     types.SourceKind(m.Source),
		Outcome:    outcome,
		Transient:  m.Transient,
		Reason:     m.Reason,
		RemoteID:   m.RemoteID,
		RecordedAt: m.RecordedAt,
	}, nil
}
