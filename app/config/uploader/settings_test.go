// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestUnit_Config_NewSettings_Defaults(t *testing.T) {
	ledgerDir := t.TempDir()
	path := writeConfig(t, `
wahoo:
  folder: /data/wahoo
ledger:
  path: `+ledgerDir+`
`)

	settings, err := config.NewSettings(path)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultSyncInterval, settings.Sync.Interval)
	assert.Equal(t, config.DefaultSettleWindow, settings.Sync.SettleWindow)
	assert.Equal(t, ".fit", settings.Sync.Extension)
	assert.Equal(t, "uploaded", settings.Sync.ArchiveDir)
	assert.Equal(t, config.LedgerBackendJSONL, settings.Ledger.Backend)
	assert.Equal(t, filepath.Join(ledgerDir, "credentials.yaml"), settings.Credentials.File)
	assert.Equal(t, config.DefaultRecentEvents, settings.Logging.RecentEvents)
	assert.Equal(t, config.DefaultRemoteTimeout, settings.Remote.Timeout)
	assert.Equal(t, 0, settings.Remote.RetryMax)

	folders := settings.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, types.SourceWahoo, folders[0].Source)
	assert.Equal(t, "/data/wahoo", folders[0].Path)
}

func TestUnit_Config_NewSettings_Errors(t *testing.T) {
	_, err := config.NewSettings()
	require.Error(t, err)

	_, err = config.NewSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeConfig(t, `
ledger:
  path: /tmp/x
  backend: postgres
`)
	_, err = config.NewSettings(path)
	require.ErrorIs(t, err, types.ErrInvalidSettings)

	path = writeConfig(t, `
ledger:
  path: /tmp/x
sync:
  archiveDir: ../elsewhere
`)
	_, err = config.NewSettings(path)
	require.ErrorIs(t, err, types.ErrInvalidSettings)
}

func TestUnit_Config_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
sync:
  interval: 10m
ledger:
  path: /tmp/ledger
`)
	t.Setenv("FIT_UPLOADER_SYNC_INTERVAL", "15m")

	settings, err := config.NewSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, settings.Sync.Interval)
}

func TestUnit_Config_ClampInterval(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, config.DefaultSyncInterval},
		{-time.Second, config.DefaultSyncInterval},
		{10 * time.Second, config.MinSyncInterval},
		{time.Minute, time.Minute},
		{7 * time.Minute, 7 * time.Minute},
		{2 * time.Hour, config.MaxSyncInterval},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, config.ClampInterval(tt.in), "in=%s", tt.in)
	}
}

func TestUnit_Config_FoldersHonorToggle(t *testing.T) {
	disabled := false
	s := &config.Settings{
		Wahoo:    config.Source{Folder: "/a", Enabled: &disabled},
		MyWhoosh: config.Source{Folder: "/b"},
	}
	folders := s.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, types.SourceMyWhoosh, folders[0].Source)

	s.MyWhoosh.Folder = ""
	assert.Empty(t, s.Folders())
}

func TestUnit_Config_URLs(t *testing.T) {
	s := &config.Settings{Remote: config.Remote{BaseURL: "https://example.com/", LoginPath: "login", UploadPath: "/up"}}
	require.NoError(t, s.Remote.Validate())
	assert.Equal(t, "https://example.com/login", s.LoginURL())
	assert.Equal(t, "https://example.com/up", s.UploadURL())

	bad := config.Remote{BaseURL: "not a url"}
	require.ErrorIs(t, bad.Validate(), types.ErrInvalidSettings)
}

func TestUnit_Config_SaveAndToYAML(t *testing.T) {
	s := &config.Settings{
		Wahoo:  config.Source{Folder: "/a"},
		Ledger: config.Ledger{Path: t.TempDir()},
		Backup: config.Backup{Enabled: true, Endpoint: "localhost:9000", SecretKey: "s3cr3t"},
	}
	require.NoError(t, s.Validate())

	raw, err := s.ToYAML()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cr3t")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, s.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := config.NewSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", loaded.Backup.SecretKey)
	assert.Equal(t, "/a", loaded.Wahoo.Folder)
}
