// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package watcher nudges the scheduler when activity files show up, so a new
// ride does not wait for the next interval. It only ever triggers a normal
// cycle; the interval remains the safety net for missed events.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Trigger is called once the folders have been quiet for the debounce
// period.
type Trigger func(ctx context.Context)

type Watcher struct {
	watcher  *fsnotify.Watcher
	ext      string
	debounce time.Duration
	clock    clockwork.Clock
	trigger  Trigger
	folders  []string
}

// New watches the given folders. Folders that do not exist are skipped.
func New(ctx context.Context, folders []string, ext string, debounce time.Duration, clock clockwork.Clock, trigger Trigger) (*Watcher, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		ext:      ext,
		debounce: debounce,
		clock:    clock,
		trigger:  trigger,
	}
	for _, folder := range folders {
		if err := fw.Add(folder); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("folder", folder).Msg("cannot watch folder, relying on the interval")
			continue
		}
		w.folders = append(w.folders, folder)
	}
	return w, nil
}

// Folders returns the folders actually being watched.
func (w *Watcher) Folders() []string {
	return w.folders
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer clockwork.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !Relevant(ev, w.ext) {
				continue
			}
			log.Ctx(ctx).Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("activity file changed")
			if timer == nil {
				timer = w.clock.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.Chan()

		case <-fire:
			fire = nil
			w.trigger(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Ctx(ctx).Warn().Err(err).Msg("file watcher error")
		}
	}
}

// Relevant reports whether ev may have produced a new activity file.
func Relevant(ev fsnotify.Event, ext string) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ext)
}
