// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cloudzero/fit-uploader/app/domain/ledger"
	"github.com/cloudzero/fit-uploader/app/storage/disk"
	"github.com/cloudzero/fit-uploader/app/types"
	"github.com/cloudzero/fit-uploader/app/types/mocks"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUnit_Ledger_RecordAndReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)

	store, err := disk.NewJSONLStore(fs, "/state")
	require.NoError(t, err)
	l, err := ledger.Open(ctx, store, clock)
	require.NoError(t, err)

	assert.False(t, l.HasSucceeded("k1"))
	require.NoError(t, l.Record(ctx, types.UploadRecord{Key: "k1", Filename: "ride1.fit", Outcome: types.OutcomeSucceeded, RemoteID: "42"}))
	require.NoError(t, l.Record(ctx, types.UploadRecord{Key: "k2", Filename: "ride2.fit", Outcome: types.OutcomeDuplicate}))
	require.NoError(t, l.Record(ctx, types.UploadRecord{Key: "k3", Filename: "bad.fit", Outcome: types.OutcomeFailed, Reason: "rejected"}))

	assert.True(t, l.HasSucceeded("k1"))
	assert.True(t, l.HasSucceeded("k2"))
	assert.False(t, l.HasSucceeded("k3"))
	assert.Equal(t, 3, l.Len())

	rec, ok := l.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, now, rec.RecordedAt)
	assert.Equal(t, "42", rec.RemoteID)

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "k3", recent[0].Key)
	assert.Equal(t, "k2", recent[1].Key)
	assert.Len(t, l.Recent(0), 3)
	require.NoError(t, l.Close())

	// the index is rebuilt from the store after a restart
	store, err = disk.NewJSONLStore(fs, "/state")
	require.NoError(t, err)
	l, err = ledger.Open(ctx, store, clock)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 3, l.Len())
	assert.True(t, l.HasSucceeded("k1"))
	assert.True(t, l.HasSucceeded("k2"))
	assert.False(t, l.HasSucceeded("k3"))
}

func TestUnit_Ledger_LatestRecordWins(t *testing.T) {
	ctx := context.Background()
	store, err := disk.NewJSONLStore(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	l, err := ledger.Open(ctx, store, nil)
	require.NoError(t, err)

	require.NoError(t, l.Record(ctx, types.UploadRecord{Key: "k", Outcome: types.OutcomeFailed}))
	assert.False(t, l.HasSucceeded("k"))
	require.NoError(t, l.Record(ctx, types.UploadRecord{Key: "k", Outcome: types.OutcomeSucceeded}))
	assert.True(t, l.HasSucceeded("k"))
}

func TestUnit_Ledger_AppendFailureLeavesIndexUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockLedgerStore(ctrl)
	ctx := context.Background()

	store.EXPECT().Load(gomock.Any()).Return(nil, nil)
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	l, err := ledger.Open(ctx, store, clockwork.NewFakeClockAt(now))
	require.NoError(t, err)

	err = l.Record(ctx, types.UploadRecord{Key: "k", Filename: "a.fit", Outcome: types.OutcomeSucceeded})
	require.ErrorIs(t, err, types.ErrPersistence)
	assert.Equal(t, "persistence", types.ErrorKind(err))
	assert.False(t, l.HasSucceeded("k"))
	assert.Zero(t, l.Len())

	require.ErrorIs(t, l.Record(ctx, types.UploadRecord{}), types.ErrPersistence)
}

func TestUnit_Ledger_OpenFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockLedgerStore(ctrl)
	store.EXPECT().Load(gomock.Any()).Return(nil, errors.New("boom"))

	_, err := ledger.Open(context.Background(), store, nil)
	require.ErrorIs(t, err, types.ErrPersistence)
}

func TestUnit_Ledger_Stats(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockLedgerStore(ctrl)
	ctx := context.Background()

	stats := types.SyncStats{LastRunAt: now, LastOutcome: types.CycleCompleted, Succeeded: 2}
	store.EXPECT().Load(gomock.Any()).Return(nil, nil)
	store.EXPECT().SaveStats(gomock.Any(), stats).Return(nil)
	store.EXPECT().LoadStats(gomock.Any()).Return(&stats, nil)
	store.EXPECT().SaveStats(gomock.Any(), gomock.Any()).Return(errors.New("read-only"))

	l, err := ledger.Open(ctx, store, nil)
	require.NoError(t, err)
	require.NoError(t, l.SaveStats(ctx, stats))

	got, err := l.LoadStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats, *got)

	require.ErrorIs(t, l.SaveStats(ctx, stats), types.ErrPersistence)
}

func TestUnit_Ledger_HashFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a/one.fit", []byte("same bytes"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b/two.fit", []byte("same bytes"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b/other.fit", []byte("other bytes"), 0o644))

	h1, err := ledger.HashFile(fs, "/a/one.fit")
	require.NoError(t, err)
	h2, err := ledger.HashFile(fs, "/b/two.fit")
	require.NoError(t, err)
	h3, err := ledger.HashFile(fs, "/b/other.fit")
	require.NoError(t, err)

	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)

	_, err = ledger.HashFile(fs, "/missing.fit")
	require.Error(t, err)
}
