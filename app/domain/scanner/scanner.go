// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package scanner lists candidate activity files in a source folder.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/cloudzero/fit-uploader/app/types"
)

// Scanner finds activity files directly inside a folder. It never looks into
// subfolders, so the archive folder is excluded without special casing.
type Scanner struct {
	fs    afero.Fs
	clock clockwork.Clock
}

func New(fs afero.Fs, clock clockwork.Clock) *Scanner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scanner{fs: fs, clock: clock}
}

// Scan returns the files in folder whose extension matches ext, ignoring
// case. A missing folder yields an empty result.
func (s *Scanner) Scan(source types.SourceKind, folder, ext string) ([]types.ActivityFile, error) {
	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read folder %s: %w", folder, err)
	}

	now := s.clock.Now()
	ext = strings.ToLower(ext)
	files := make([]types.ActivityFile, 0, len(entries))
	for _, info := range entries {
		if !info.Mode().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(info.Name()), ext) {
			continue
		}
		files = append(files, types.ActivityFile{
			Path:         filepath.Join(folder, info.Name()),
			Source:       source,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			DiscoveredAt: now,
		})
	}
	return files, nil
}

// SortOldestFirst orders files by modification time, then name, so a backlog
// uploads in the order the activities were recorded.
func SortOldestFirst(files []types.ActivityFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.Before(files[j].ModTime)
		}
		return files[i].Name() < files[j].Name()
	})
}
