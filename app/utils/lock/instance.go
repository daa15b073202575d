// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package lock keeps two agents from syncing the same ledger at once.
//
// The lock is an advisory OS file lock (flock on unix, LockFileEx on
// windows) held for the lifetime of the process. The kernel drops it when the
// process exits, so there is no stale lock to clean up after a crash. The
// owner's pid and hostname are written into the file for diagnostics only.
//
//	l := lock.NewInstanceLock(filepath.Join(dir, "agent.lock"))
//	if err := l.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer l.Release()
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockFilePermissions = 0o600

var (
	ErrLockExists           = errors.New("another agent holds the lock")
	ErrLockAcquire          = errors.New("failed to acquire lock")
	ErrLockContextCancelled = errors.New("context was cancelled while obtaining the lock")
	ErrNotHeld              = errors.New("lock is not held")

	DefaultRetryInterval = 500 * time.Millisecond
	DefaultMaxRetry      = 0
)

// Owner is written into the lock file.
type Owner struct {
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
}

type InstanceLock struct {
	path          string
	retryInterval time.Duration
	maxRetry      int

	mu   sync.Mutex
	lock *flock.Flock
	held bool
}

type InstanceLockOption func(l *InstanceLock)

// WithRetryInterval sets the wait between attempts.
func WithRetryInterval(interval time.Duration) InstanceLockOption {
	return func(l *InstanceLock) {
		l.retryInterval = interval
	}
}

// WithMaxRetry sets how many extra attempts Acquire makes. Zero fails fast.
func WithMaxRetry(retry int) InstanceLockOption {
	return func(l *InstanceLock) {
		l.maxRetry = retry
	}
}

func NewInstanceLock(path string, opts ...InstanceLockOption) *InstanceLock {
	l := &InstanceLock{
		path:          path,
		retryInterval: DefaultRetryInterval,
		maxRetry:      DefaultMaxRetry,
		lock:          flock.New(path, flock.SetPermissions(lockFilePermissions)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file location.
func (l *InstanceLock) Path() string {
	return l.path
}

// Acquire takes the lock or returns ErrLockExists once retries run out.
func (l *InstanceLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return errors.Join(ErrLockAcquire, err)
	}

	for attempt := 0; ; attempt++ {
		ok, err := l.lock.TryLock()
		if err != nil {
			return errors.Join(ErrLockAcquire, err)
		}
		if ok {
			l.held = true
			l.writeOwner()
			return nil
		}
		if attempt >= l.maxRetry {
			return fmt.Errorf("%w: %s", ErrLockExists, l.describeOwner())
		}

		select {
		case <-ctx.Done():
			return ErrLockContextCancelled
		case <-time.After(l.retryInterval):
		}
	}
}

// Release drops the lock. Releasing a lock that is not held is an error.
func (l *InstanceLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return ErrNotHeld
	}
	l.held = false
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Held reports whether this process holds the lock.
func (l *InstanceLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// the owner record is best effort, the flock is what matters
func (l *InstanceLock) writeOwner() {
	hostname, _ := os.Hostname()
	raw, err := json.Marshal(Owner{Hostname: hostname, PID: os.Getpid(), Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_TRUNC, lockFilePermissions)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(raw)
}

func (l *InstanceLock) describeOwner() string {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return l.path
	}
	var owner Owner
	if err := json.Unmarshal(raw, &owner); err != nil || owner.PID == 0 {
		return l.path
	}
	return fmt.Sprintf("%s (pid %d on %s)", l.path, owner.PID, owner.Hostname)
}
