// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package disk_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudzero/fit-uploader/app/storage/disk"
	"github.com/cloudzero/fit-uploader/app/types"
)

func record(key string, outcome types.UploadOutcome) types.UploadRecord {
	return types.UploadRecord{
		Key:        key,
		Filename:   key + ".fit",
		Source:     types.SourceWahoo,
		Outcome:    outcome,
		RecordedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestUnit_Storage_Disk_AppendAndReload(t *testing.T) {
	for name, fs := range map[string]afero.Fs{
		"memory": afero.NewMemMapFs(),
		"os":     afero.NewOsFs(),
	} {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "ledger")
			ctx := context.Background()

			store, err := disk.NewJSONLStore(fs, dir)
			require.NoError(t, err)

			recs, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, recs)

			require.NoError(t, store.Append(ctx, record("a", types.OutcomeSucceeded)))
			require.NoError(t, store.Append(ctx, record("b", types.OutcomeDuplicate)))
			require.NoError(t, store.Close())
			require.Error(t, store.Append(ctx, record("c", types.OutcomeFailed)))

			store, err = disk.NewJSONLStore(fs, dir)
			require.NoError(t, err)
			defer store.Close()

			recs, err = store.Load(ctx)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, record("a", types.OutcomeSucceeded), recs[0])
			assert.Equal(t, record("b", types.OutcomeDuplicate), recs[1])
		})
	}
}

func TestUnit_Storage_Disk_SkipsCorruptLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/state"
	require.NoError(t, fs.MkdirAll(dir, 0o700))

	content := `{"key":"good1","outcome":"succeeded","recordedAt":"2025-03-01T10:00:00Z"}
this is not json
{"key":"","outcome":"succeeded"}
{"key":"odd","outcome":"vanished"}

{"key":"good2","outcome":"duplicate","recordedAt":"2025-03-01T10:01:00Z"}
{"key":"partial","outc`
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, disk.LedgerFileName), []byte(content), 0o600))

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	store, err := disk.NewJSONLStore(fs, dir)
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "good1", recs[0].Key)
	assert.Equal(t, "good2", recs[1].Key)
	assert.Contains(t, logs.String(), "skipping corrupt ledger entry")

	// the torn tail was terminated, so a new record lands on its own line
	require.NoError(t, store.Append(ctx, record("fresh", types.OutcomeSucceeded)))
	recs, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "fresh", recs[2].Key)
}

func TestUnit_Storage_Disk_SkipsOversizedLine(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/state"
	require.NoError(t, fs.MkdirAll(dir, 0o700))

	var content bytes.Buffer
	content.WriteString(`{"key":"good1","outcome":"succeeded","recordedAt":"2025-03-01T10:00:00Z"}` + "\n")
	content.Write(bytes.Repeat([]byte("x"), 2<<20))
	content.WriteString("\n")
	content.WriteString(`{"key":"good2","outcome":"duplicate","recordedAt":"2025-03-01T10:01:00Z"}` + "\n")
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, disk.LedgerFileName), content.Bytes(), 0o600))

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	store, err := disk.NewJSONLStore(fs, dir)
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "good1", recs[0].Key)
	assert.Equal(t, "good2", recs[1].Key)
	assert.Contains(t, logs.String(), "skipping oversized ledger entry")
}

func TestUnit_Storage_Disk_Stats(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	store, err := disk.NewJSONLStore(fs, "/state")
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.LoadStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats)

	want := types.SyncStats{
		LastRunAt:     time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
		LastOutcome:   types.CycleCompleted,
		Succeeded:     2,
		TotalUploaded: 7,
	}
	require.NoError(t, store.SaveStats(ctx, want))

	stats, err = store.LoadStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, want, *stats)

	exists, err := afero.Exists(fs, "/state/"+disk.StatsFileName+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	// a corrupt snapshot is ignored rather than failing startup
	require.NoError(t, afero.WriteFile(fs, "/state/"+disk.StatsFileName, []byte("{"), 0o600))
	stats, err = store.LoadStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, stats)
}
