// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package readiness keeps files that are still being written away from the
// uploader.
//
// The producing applications write activity files in place, so a scan can see
// a file that is only partly flushed. A file whose modification time is older
// than the settle window is treated as stable. Every other file is observed
// twice, one settle window apart, and admitted only if its size and
// modification time held still and it can be opened for reading. Deferred
// files are not an error; the next cycle looks at them again.
package readiness

import (
	"context"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/cloudzero/fit-uploader/app/types"
)

// Gate decides which scanned files are safe to upload.
type Gate struct {
	fs     afero.Fs
	clock  clockwork.Clock
	settle time.Duration
}

func New(fs afero.Fs, clock clockwork.Clock, settle time.Duration) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{fs: fs, clock: clock, settle: settle}
}

type observation struct {
	size    int64
	modTime time.Time
}

// Admit splits files into those ready for upload and those to retry later.
// Both slices keep the input order. At most one settle window is spent
// waiting, however many files are pending.
func (g *Gate) Admit(ctx context.Context, files []types.ActivityFile) (admitted, deferred []types.ActivityFile) {
	if len(files) == 0 {
		return nil, nil
	}

	ready := make([]bool, len(files))
	first := make(map[int]observation)
	now := g.clock.Now()

	for i := range files {
		obs, ok := g.observe(ctx, files[i].Path)
		if !ok {
			continue
		}
		files[i].Size = obs.size
		files[i].ModTime = obs.modTime
		if now.Sub(obs.modTime) >= g.settle {
			ready[i] = true
			continue
		}
		first[i] = obs
	}

	if len(first) > 0 {
		log.Ctx(ctx).Debug().Int("pending", len(first)).Dur("settle", g.settle).Msg("waiting for files to settle")
		select {
		case <-ctx.Done():
			first = nil
		case <-g.clock.After(g.settle):
		}
		for i, before := range first {
			after, ok := g.observe(ctx, files[i].Path)
			if !ok {
				continue
			}
			if after.size != before.size || !after.modTime.Equal(before.modTime) {
				log.Ctx(ctx).Debug().Str("file", files[i].Path).
					Int64("sizeBefore", before.size).Int64("sizeAfter", after.size).
					Msg("file still changing, deferring")
				continue
			}
			ready[i] = true
		}
	}

	for i, f := range files {
		if ready[i] {
			admitted = append(admitted, f)
		} else {
			deferred = append(deferred, f)
		}
	}
	return admitted, deferred
}

// observe stats the file and checks that it can be opened for reading.
func (g *Gate) observe(ctx context.Context, path string) (observation, bool) {
	info, err := g.fs.Stat(path)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("file", path).Msg("cannot stat file, deferring")
		return observation{}, false
	}
	f, err := g.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("file", path).Msg("cannot open file, deferring")
		return observation{}, false
	}
	_ = f.Close()
	return observation{size: info.Size(), modTime: info.ModTime()}, true
}
