// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package syncer runs one sync cycle: scan the configured folders, hold back
// files that are still being written, skip files the ledger already knows,
// upload the rest oldest first, record each result and archive what the
// remote service now holds.
//
// The ledger is written before a file is moved. If the process dies between
// the two, the next cycle finds the file, sees the ledger entry and only
// finishes the move. Per-file failures never stop a cycle; only a missing
// configuration or a failed sign-in do, and both before any file is touched.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/archive"
	"github.com/cloudzero/fit-uploader/app/domain/ledger"
	"github.com/cloudzero/fit-uploader/app/domain/readiness"
	"github.com/cloudzero/fit-uploader/app/domain/scanner"
	"github.com/cloudzero/fit-uploader/app/types"
)

//go:generate mockgen -destination=mocks/syncer_mock.go -package=mocks . Archiver,Mirror

// Archiver moves a processed file out of its source folder and returns the
// new path.
type Archiver interface {
	Archive(file types.ActivityFile) (string, error)
}

// Mirror keeps an extra copy of archived files. Failures are logged and
// never change a file's outcome.
type Mirror interface {
	Mirror(ctx context.Context, file types.ActivityFile, archivedPath string) error
}

// Cycle is the SyncCycle. Run must not be called concurrently; the scheduler
// guarantees that.
type Cycle struct {
	settings atomic.Pointer[config.Settings]
	fs       afero.Fs
	clock    clockwork.Clock
	scanner  *scanner.Scanner
	ledger   *ledger.Ledger
	uploader types.Uploader
	archiver Archiver
	mirror   Mirror
	events   types.EventSink
	stats    *StatsHolder
}

type Option func(*Cycle)

func WithFs(fs afero.Fs) Option {
	return func(c *Cycle) { c.fs = fs }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cycle) { c.clock = clock }
}

// WithArchiver replaces the archive mover built from the settings.
func WithArchiver(a Archiver) Option {
	return func(c *Cycle) { c.archiver = a }
}

func WithMirror(m Mirror) Option {
	return func(c *Cycle) { c.mirror = m }
}

func WithEvents(sink types.EventSink) Option {
	return func(c *Cycle) { c.events = sink }
}

func WithStats(stats *StatsHolder) Option {
	return func(c *Cycle) { c.stats = stats }
}

func New(s *config.Settings, led *ledger.Ledger, uploader types.Uploader, opts ...Option) *Cycle {
	c := &Cycle{
		ledger:   led,
		uploader: uploader,
	}
	c.settings.Store(s)
	for _, opt := range opts {
		opt(c)
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.events == nil {
		c.events = types.NopSink{}
	}
	if c.stats == nil {
		c.stats = NewStatsHolder(nil)
	}
	c.scanner = scanner.New(c.fs, c.clock)

	registerMetrics()
	metricLedgerRecords.Set(float64(led.Len()))
	return c
}

// SetSettings swaps in a new settings snapshot for the next run.
func (c *Cycle) SetSettings(s *config.Settings) {
	c.settings.Store(s)
}

func (c *Cycle) Settings() *config.Settings {
	return c.settings.Load()
}

func (c *Cycle) Stats() *StatsHolder {
	return c.stats
}

// disposition is what a file contributed to the cycle counts.
type disposition int

const (
	dispSucceeded disposition = iota
	dispSkipped
	dispFailed
)

// Run executes one cycle and returns its summary. It never panics and never
// returns without updating the stats.
func (c *Cycle) Run(ctx context.Context) (summary types.CycleSummary) {
	s := c.settings.Load()
	summary = types.CycleSummary{ID: uuid.NewString(), StartedAt: c.clock.Now()}

	logger := log.Ctx(ctx).With().Str("cycleId", summary.ID).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Msg("Recovered from a panic")
			summary.Err = errors.Join(summary.Err, fmt.Errorf("panic in sync cycle: %v", r))
		}
		c.finish(ctx, &summary)
	}()

	logger.Debug().Msg("Running sync cycle ...")
	c.emit(ctx, types.EventCycleStart, zerolog.InfoLevel, "sync started", nil)

	folders := s.Folders()
	if len(folders) == 0 {
		summary.Err = types.ErrNoFoldersConfigured
		summary.State = types.CycleAborted
		c.emit(ctx, types.EventConfigError, zerolog.ErrorLevel, "no source folders configured", nil)
		return summary
	}

	if _, err := c.uploader.EnsureSession(ctx); err != nil {
		summary.Err = err
		summary.State = types.CycleAborted
		c.emitAuthFailure(ctx, err)
		return summary
	}

	gate := readiness.New(c.fs, c.clock, s.Sync.SettleWindow)
	archiver := c.archiver
	if archiver == nil {
		archiver = archive.NewMover(c.fs, s.Sync.ArchiveDir)
	}

	halted := false
	for _, folder := range folders {
		files, err := c.scanner.Scan(folder.Source, folder.Path, s.Sync.Extension)
		if err != nil {
			logger.Err(err).Str("folder", folder.Path).Msg("failed to scan folder")
			countError(err)
			summary.Err = errors.Join(summary.Err, err)
			continue
		}
		if len(files) == 0 {
			logger.Debug().Str("folder", folder.Path).Msg("no activity files found")
			continue
		}

		scanner.SortOldestFirst(files)
		admitted, deferred := gate.Admit(ctx, files)
		for _, f := range deferred {
			logger.Info().Str("file", f.Path).Msg("file not ready, deferring to the next cycle")
			metricFilesTotal.WithLabelValues(string(f.Source), "deferred").Inc()
		}
		summary.Skipped += len(deferred)

		for _, f := range admitted {
			if halted || ctx.Err() != nil {
				summary.Skipped++
				continue
			}

			res, disp, stop := c.processFile(ctx, archiver, f)
			switch disp {
			case dispSucceeded:
				summary.Succeeded++
				summary.Results = append(summary.Results, res)
			case dispFailed:
				summary.Failed++
				summary.Results = append(summary.Results, res)
			case dispSkipped:
				summary.Skipped++
			}
			halted = stop
		}
	}

	return summary
}

// processFile takes one admitted file through hash, ledger, upload, record and
// archive. stop is set when the session is gone and further uploads would
// fail the same way.
func (c *Cycle) processFile(ctx context.Context, archiver Archiver, f types.ActivityFile) (res types.FileResult, disp disposition, stop bool) {
	start := c.clock.Now()
	logger := log.Ctx(ctx).With().Str("file", f.Path).Str("source", string(f.Source)).Logger()
	defer func() {
		res.Took = c.clock.Since(start)
		if res.Err != nil {
			res.Error = res.Err.Error()
			countError(res.Err)
		}
		outcome := string(res.Result.Outcome)
		if disp == dispSkipped {
			outcome = "skipped"
		}
		metricFilesTotal.WithLabelValues(string(f.Source), outcome).Inc()
	}()

	key, err := ledger.HashFile(c.fs, f.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("file vanished before upload")
		return types.FileResult{File: f}, dispSkipped, false
	}
	f.Key = key
	res.File = f

	if c.ledger.HasSucceeded(key) {
		// a previous run recorded the upload but did not finish the move
		if dst, err := archiver.Archive(f); err != nil {
			logger.Err(err).Msg("failed to archive an already uploaded file")
			countError(err)
		} else {
			logger.Info().Str("archived", dst).Msg("file already uploaded, archived")
		}
		return res, dispSkipped, false
	}
	if rec, ok := c.ledger.Lookup(key); ok && rec.Outcome == types.OutcomeFailed && !rec.Transient {
		logger.Debug().Str("reason", rec.Reason).Msg("file was rejected before, needs manual attention")
		return res, dispSkipped, false
	}

	sess, err := c.uploader.EnsureSession(ctx)
	if err != nil {
		res.Result = types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: "not signed in"}
		res.Err = err
		c.emitAuthFailure(ctx, err)
		return res, dispFailed, true
	}

	// an in-flight upload is never cut short; it ends on its own timeout
	res.Result, res.Err = c.uploader.Upload(context.WithoutCancel(ctx), sess, f)
	if res.Result.Outcome == "" {
		res.Result.Outcome = types.OutcomeFailed
		res.Result.Transient = true
	}

	if !res.Result.Outcome.Done() {
		logger.Warn().Err(res.Err).
			Bool("transient", res.Result.Transient).
			Str("reason", res.Result.Reason).
			Msg("upload failed")
		if types.IsAuthError(res.Err) {
			c.emitAuthFailure(ctx, res.Err)
			stop = true
		}
		if errors.Is(res.Err, types.ErrUploadRejected) {
			// kept for audit; also stops the file from being retried
			if err := c.ledger.Record(ctx, c.record(f, res.Result)); err != nil {
				c.emitPersistenceFailure(ctx, f, err)
			}
		}
		c.emitFileOutcome(ctx, res)
		return res, dispFailed, stop
	}

	// durability of the ledger entry comes before the move
	if err := c.ledger.Record(ctx, c.record(f, res.Result)); err != nil {
		res.Err = err
		c.emitPersistenceFailure(ctx, f, err)
		c.emitFileOutcome(ctx, res)
		return res, dispFailed, false
	}
	metricLedgerRecords.Set(float64(c.ledger.Len()))

	dst, err := archiver.Archive(f)
	if err != nil {
		// the ledger entry still prevents a second upload
		logger.Err(err).Msg("uploaded but failed to archive, will retry the move next cycle")
		countError(err)
	} else if c.mirror != nil {
		if err := c.mirror.Mirror(ctx, f, dst); err != nil {
			logger.Warn().Err(err).Msg("failed to mirror the archived file")
		}
	}

	logger.Info().
		Str("outcome", string(res.Result.Outcome)).
		Str("remoteId", res.Result.RemoteID).
		Msg("file uploaded")
	c.emitFileOutcome(ctx, res)
	return res, dispSucceeded, false
}

func (c *Cycle) record(f types.ActivityFile, r types.UploadResult) types.UploadRecord {
	return types.UploadRecord{
		Key:        f.Key,
		Filename:   f.Name(),
		Source:     f.Source,
		Outcome:    r.Outcome,
		Transient:  r.Transient,
		Reason:     r.Reason,
		RemoteID:   r.RemoteID,
		RecordedAt: c.clock.Now().UTC(),
	}
}

// finish settles the terminal state, updates and persists the stats and
// reports the end of the cycle.
func (c *Cycle) finish(ctx context.Context, summary *types.CycleSummary) {
	summary.FinishedAt = c.clock.Now()
	switch {
	case summary.State == types.CycleAborted:
	case summary.Failed > 0 || summary.Err != nil:
		summary.State = types.CycleCompletedWithErrors
	default:
		summary.State = types.CycleCompleted
	}
	if summary.Err != nil {
		summary.Error = summary.Err.Error()
		countError(summary.Err)
	}

	stats := c.stats.apply(*summary)
	if err := c.ledger.SaveStats(ctx, stats); err != nil {
		log.Ctx(ctx).Err(err).Msg("failed to persist sync stats")
		countError(err)
		c.emit(ctx, types.EventPersistenceFailure, zerolog.ErrorLevel, "failed to persist sync stats", map[string]any{"error": err.Error()})
	}

	metricCyclesTotal.WithLabelValues(string(summary.State)).Inc()
	metricCycleDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	metricLastCycleTimestamp.Set(float64(summary.FinishedAt.Unix()))

	level := zerolog.InfoLevel
	if summary.State != types.CycleCompleted {
		level = zerolog.WarnLevel
	}
	fields := map[string]any{
		"state":     string(summary.State),
		"uploaded":  summary.Uploaded(),
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}
	if summary.Error != "" {
		fields["error"] = summary.Error
	}

	log.Ctx(ctx).WithLevel(level).Fields(fields).Msg("sync completed")
	c.emit(ctx, types.EventCycleEnd, level, fmt.Sprintf("sync completed, %d file(s) uploaded", summary.Uploaded()), fields)
}
