// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package readiness_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudzero/fit-uploader/app/domain/readiness"
	"github.com/cloudzero/fit-uploader/app/types"
)

const settle = 5 * time.Second

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func put(t *testing.T, fs afero.Fs, path, body string, mod time.Time) types.ActivityFile {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	require.NoError(t, fs.Chtimes(path, mod, mod))
	return types.ActivityFile{Path: path, Size: int64(len(body)), ModTime: mod}
}

func names(files []types.ActivityFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name())
	}
	return out
}

func TestUnit_Readiness_StableFilesAdmittedWithoutWaiting(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(now)
	files := []types.ActivityFile{
		put(t, fs, "/w/a.fit", "aaaa", now.Add(-time.Minute)),
		put(t, fs, "/w/b.fit", "bb", now.Add(-settle)),
	}

	admitted, deferred := readiness.New(fs, clock, settle).Admit(context.Background(), files)
	assert.Equal(t, []string{"a.fit", "b.fit"}, names(admitted))
	assert.Empty(t, deferred)
}

func TestUnit_Readiness_GrowingFileDeferred(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(now)
	files := []types.ActivityFile{
		put(t, fs, "/w/old.fit", "done", now.Add(-time.Hour)),
		put(t, fs, "/w/growing.fit", "par", now.Add(-time.Second)),
		put(t, fs, "/w/quiet.fit", "quiet", now.Add(-time.Second)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct{ admitted, deferred []types.ActivityFile }
	done := make(chan result, 1)
	go func() {
		a, d := readiness.New(fs, clock, settle).Admit(ctx, files)
		done <- result{a, d}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	// the producer keeps writing while the gate waits
	later := now.Add(2 * time.Second)
	put(t, fs, "/w/growing.fit", "partial-and-more", later)
	clock.Advance(settle)

	res := <-done
	assert.Equal(t, []string{"old.fit", "quiet.fit"}, names(res.admitted))
	assert.Equal(t, []string{"growing.fit"}, names(res.deferred))
}

func TestUnit_Readiness_MissingFileDeferred(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []types.ActivityFile{{Path: "/w/gone.fit"}}

	admitted, deferred := readiness.New(fs, clockwork.NewFakeClockAt(now), settle).Admit(context.Background(), files)
	assert.Empty(t, admitted)
	assert.Equal(t, []string{"gone.fit"}, names(deferred))
}

func TestUnit_Readiness_CancelledWhileWaiting(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []types.ActivityFile{put(t, fs, "/w/fresh.fit", "x", now)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	admitted, deferred := readiness.New(fs, clockwork.NewFakeClockAt(now), settle).Admit(ctx, files)
	assert.Empty(t, admitted)
	assert.Len(t, deferred, 1)
}

func TestUnit_Readiness_Empty(t *testing.T) {
	admitted, deferred := readiness.New(afero.NewMemMapFs(), nil, settle).Admit(context.Background(), nil)
	assert.Nil(t, admitted)
	assert.Nil(t, deferred)
}
