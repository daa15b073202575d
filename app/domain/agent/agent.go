// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package agent assembles the sync engine from the settings and runs it: the
// scheduler, the optional folder watcher and the SIGHUP reload loop. It is
// also what the local HTTP api drives.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/cloudzero/fit-uploader/app/build"
	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/credentials"
	"github.com/cloudzero/fit-uploader/app/domain/healthz"
	"github.com/cloudzero/fit-uploader/app/domain/ledger"
	"github.com/cloudzero/fit-uploader/app/domain/remote"
	"github.com/cloudzero/fit-uploader/app/domain/scheduler"
	"github.com/cloudzero/fit-uploader/app/domain/syncer"
	"github.com/cloudzero/fit-uploader/app/domain/watcher"
	"github.com/cloudzero/fit-uploader/app/logging"
	"github.com/cloudzero/fit-uploader/app/storage/minio"
	"github.com/cloudzero/fit-uploader/app/types"
	"github.com/cloudzero/fit-uploader/app/utils/lock"
)

const (
	// LockFileName guards the ledger directory against a second agent.
	LockFileName = "agent.lock"
	// RecentUploads is the number of ledger records shown by status.
	RecentUploads = 10
)

var _ types.Runnable = (*Agent)(nil)

type Agent struct {
	settings    atomic.Pointer[config.Settings]
	configFiles []string
	fs          afero.Fs
	clock       clockwork.Clock
	provider    credentials.Provider
	useLock     bool
	remoteOpts  []remote.Option

	lock      *lock.InstanceLock
	ledger    *ledger.Ledger
	client    *remote.Client
	cycle     *syncer.Cycle
	scheduler *scheduler.Scheduler
	events    *logging.EventRing
	sink      types.EventSink

	// mu guards baseCtx and serializes settings updates.
	mu      sync.Mutex
	baseCtx context.Context
	reload  chan struct{}
}

type Option func(*Agent)

func WithFs(fs afero.Fs) Option {
	return func(a *Agent) { a.fs = fs }
}

func WithClock(clock clockwork.Clock) Option {
	return func(a *Agent) { a.clock = clock }
}

// WithProvider replaces the environment and credentials file chain.
func WithProvider(p credentials.Provider) Option {
	return func(a *Agent) { a.provider = p }
}

// WithConfigFiles sets the files re-read on reload.
func WithConfigFiles(files ...string) Option {
	return func(a *Agent) { a.configFiles = files }
}

// WithRemoteOptions passes options through to the remote client.
func WithRemoteOptions(opts ...remote.Option) Option {
	return func(a *Agent) { a.remoteOpts = append(a.remoteOpts, opts...) }
}

// WithEventRing shares a ring that other sinks, such as the logger, also
// write to.
func WithEventRing(ring *logging.EventRing) Option {
	return func(a *Agent) { a.events = ring }
}

// WithoutLock skips the single instance lock.
func WithoutLock() Option {
	return func(a *Agent) { a.useLock = false }
}

// New builds the engine. The returned agent holds the instance lock and the
// open ledger until Close.
func New(ctx context.Context, s *config.Settings, opts ...Option) (*Agent, error) {
	a := &Agent{
		useLock: true,
		reload:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	if a.provider == nil {
		a.provider = credentials.Chain{
			credentials.EnvProvider{},
			credentials.NewFileProvider(a.fs, s.Credentials.File),
		}
	}
	a.settings.Store(s)

	if a.useLock {
		a.lock = lock.NewInstanceLock(filepath.Join(s.Ledger.Path, LockFileName))
		if err := a.lock.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	if err := a.build(ctx, s); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Agent) build(ctx context.Context, s *config.Settings) error {
	store, err := OpenStore(ctx, a.fs, s.Ledger)
	if err != nil {
		return errors.Join(types.ErrPersistence, err)
	}
	a.ledger, err = ledger.Open(ctx, store, a.clock)
	if err != nil {
		_ = store.Close()
		return err
	}

	remoteOpts := append([]remote.Option{remote.WithClock(a.clock), remote.WithFs(a.fs)}, a.remoteOpts...)
	a.client, err = remote.NewClient(ctx, s, a.provider, remoteOpts...)
	if err != nil {
		return err
	}

	if a.events == nil {
		a.events = logging.NewEventRing(s.Logging.RecentEvents)
	}
	a.sink = types.MultiSink{a.events, logging.EventLogger{}}

	stats, err := a.ledger.LoadStats(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("cannot restore the last sync stats")
	}

	cycleOpts := []syncer.Option{
		syncer.WithFs(a.fs),
		syncer.WithClock(a.clock),
		syncer.WithEvents(a.sink),
		syncer.WithStats(syncer.NewStatsHolder(stats)),
	}
	if s.Backup.Enabled {
		mirror, err := minio.NewClient(minio.Config{
			Endpoint:        s.Backup.Endpoint,
			AccessKeyID:     s.Backup.AccessKey,
			SecretAccessKey: s.Backup.SecretKey,
			BucketName:      s.Backup.Bucket,
			UseSSL:          s.Backup.UseSSL,
		}, a.fs)
		if err != nil {
			return err
		}
		cycleOpts = append(cycleOpts, syncer.WithMirror(mirror))
	}

	a.cycle = syncer.New(s, a.ledger, a.client, cycleOpts...)
	a.scheduler = scheduler.New(a.cycle, s.Sync.Interval, a.clock)

	healthz.Register("folders", func() error {
		if len(a.Settings().Folders()) == 0 {
			return types.ErrNoFoldersConfigured
		}
		return nil
	})
	healthz.Register("last-cycle", func() error {
		if snap := a.cycle.Stats().Snapshot(); snap.LastOutcome == types.CycleAborted {
			return errors.New(snap.LastError)
		}
		return nil
	})
	return nil
}

func (a *Agent) Settings() *config.Settings {
	return a.settings.Load()
}

// Scheduler exposes the scheduler for observers.
func (a *Agent) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Client exposes the remote client, used by the login command.
func (a *Agent) Client() *remote.Client {
	return a.client
}

// Run starts the scheduler and blocks until ctx is cancelled. SIGHUP reloads
// the settings between cycles.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	s := a.Settings()
	log.Ctx(ctx).Info().
		Dur("interval", a.scheduler.Interval()).
		Int("folders", len(s.Folders())).
		Str("ledger", s.Ledger.Path).
		Msg("starting fit uploader")

	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.handleSignals(gctx)
	})
	g.Go(func() error {
		return a.runWatcher(gctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Agent) handleSignals(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := a.Reload(ctx); err != nil {
				log.Ctx(ctx).Err(err).Msg("failed to reload settings, keeping the current ones")
			}
		}
	}
}

// runWatcher restarts the folder watcher whenever the settings change.
func (a *Agent) runWatcher(ctx context.Context) error {
	for {
		s := a.Settings()
		wctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)

		if s.Watch.Enabled {
			folders := make([]string, 0, 2)
			for _, f := range s.Folders() {
				folders = append(folders, f.Path)
			}
			w, err := watcher.New(ctx, folders, s.Sync.Extension, s.Watch.Debounce, a.clock, a.nudge)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("file watching disabled")
				close(done)
			} else {
				go func() { done <- w.Run(wctx) }()
			}
		} else {
			close(done)
		}

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-a.reload:
			cancel()
			<-done
		}
	}
}

// nudge runs a cycle on behalf of the watcher. A busy scheduler already
// covers the new file, and a stopped one means syncing is paused.
func (a *Agent) nudge(ctx context.Context) {
	if !a.scheduler.Running() {
		log.Ctx(ctx).Debug().Msg("scheduler stopped, watcher trigger ignored")
		return
	}
	if _, err := a.scheduler.RunOnce(ctx); err != nil {
		if errors.Is(err, types.ErrCycleInProgress) {
			log.Ctx(ctx).Debug().Msg("cycle already running, watcher trigger coalesced")
			return
		}
		log.Ctx(ctx).Err(err).Msg("watcher triggered cycle failed")
	}
}

// Reload re-reads the configuration files. Folders, the interval and sync
// options apply to the next cycle; ledger and remote changes need a restart.
func (a *Agent) Reload(ctx context.Context) error {
	if len(a.configFiles) == 0 {
		return fmt.Errorf("%w: no configuration file to reload", types.ErrInvalidSettings)
	}
	next, err := config.NewSettings(a.configFiles...)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.Settings()
	if next.Ledger != prev.Ledger || next.Remote != prev.Remote || next.Credentials != prev.Credentials {
		log.Ctx(ctx).Warn().Msg("ledger, remote and credentials changes apply after a restart")
		next.Ledger = prev.Ledger
		next.Remote = prev.Remote
		next.Credentials = prev.Credentials
	}

	a.settings.Store(next)
	a.cycle.SetSettings(next)
	applied := a.scheduler.SetInterval(next.Sync.Interval)

	select {
	case a.reload <- struct{}{}:
	default:
	}

	log.Ctx(ctx).Info().
		Dur("interval", applied).
		Int("folders", len(next.Folders())).
		Msg("settings reloaded")
	return nil
}

// SyncNow runs one cycle unless one is already running.
func (a *Agent) SyncNow(ctx context.Context) (types.CycleSummary, error) {
	return a.scheduler.RunOnce(ctx)
}

// StartScheduler resumes periodic cycles under the context given to Run.
func (a *Agent) StartScheduler(ctx context.Context) error {
	a.mu.Lock()
	base := a.baseCtx
	a.mu.Unlock()
	if base == nil {
		base = context.WithoutCancel(ctx)
	}
	a.scheduler.Start(base)
	log.Ctx(ctx).Info().Msg("scheduler started")
	return nil
}

// StopScheduler halts periodic cycles. A running cycle finishes.
func (a *Agent) StopScheduler(ctx context.Context) error {
	a.scheduler.Stop()
	log.Ctx(ctx).Info().Msg("scheduler stopped")
	return nil
}

func (a *Agent) SetInterval(ctx context.Context, d time.Duration) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := a.scheduler.SetInterval(d)

	next := *a.Settings()
	next.Sync.Interval = applied
	a.settings.Store(&next)
	a.cycle.SetSettings(&next)

	log.Ctx(ctx).Info().Dur("interval", applied).Msg("sync interval changed")
	return applied, nil
}

// Status gathers the read-only view of the agent.
func (a *Agent) Status(_ context.Context) types.AgentStatus {
	st := types.AgentStatus{
		Version:  build.GetVersion(),
		SignedIn: a.client.Session().Valid(a.clock.Now()),
		Scheduler: types.SchedulerStatus{
			Running:  a.scheduler.Running(),
			Busy:     a.scheduler.Busy(),
			Interval: a.scheduler.Interval(),
		},
		Folders:       folderStatus(a.fs, a.Settings()),
		Stats:         a.cycle.Stats().Snapshot(),
		RecentEvents:  a.events.Recent(),
		RecentUploads: a.ledger.Recent(RecentUploads),
	}
	if last, ok := a.scheduler.LastSummary(); ok {
		st.LastCycle = &last
	}
	return st
}

// Close stops the scheduler and releases the ledger and the lock.
func (a *Agent) Close() error {
	var errs []error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.lock != nil && a.lock.Held() {
		if err := a.lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	healthz.Unregister("folders")
	healthz.Unregister("last-cycle")
	return errors.Join(errs...)
}

// Inspect reads the persisted state without starting an agent or taking the
// lock. It backs the status command.
func Inspect(ctx context.Context, fs afero.Fs, s *config.Settings) (types.AgentStatus, error) {
	store, err := OpenStore(ctx, fs, s.Ledger)
	if err != nil {
		return types.AgentStatus{}, err
	}
	led, err := ledger.Open(ctx, store, clockwork.NewRealClock())
	if err != nil {
		_ = store.Close()
		return types.AgentStatus{}, err
	}
	defer led.Close()

	st := types.AgentStatus{
		Version:       build.GetVersion(),
		Scheduler:     types.SchedulerStatus{Interval: s.Sync.Interval},
		Folders:       folderStatus(fs, s),
		RecentUploads: led.Recent(RecentUploads),
	}
	stats, err := led.LoadStats(ctx)
	if err != nil {
		return st, err
	}
	if stats != nil {
		st.Stats = *stats
	}
	return st, nil
}

func folderStatus(fs afero.Fs, s *config.Settings) []types.FolderStatus {
	folders := s.Folders()
	out := make([]types.FolderStatus, 0, len(folders))
	for _, f := range folders {
		exists, _ := afero.DirExists(fs, f.Path)
		out = append(out, types.FolderStatus{Source: f.Source, Path: f.Path, Exists: exists})
	}
	return out
}
