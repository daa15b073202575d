// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package disk implements the default ledger store: an append-only json
// lines file plus a small stats snapshot, both kept in one directory.
package disk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/cloudzero/fit-uploader/app/types"
)

const (
	LedgerFileName = "ledger.jsonl"
	StatsFileName  = "stats.json"

	filePermissions = 0o600
	dirPermissions  = 0o700
	maxLineSize     = 1 << 20
)

// JSONLStore is a types.LedgerStore writing one json record per line.
// Every append is synced before it returns.
type JSONLStore struct {
	fs  afero.Fs
	dir string

	mu     sync.Mutex
	file   afero.File
	closed bool
}

var _ types.LedgerStore = (*JSONLStore)(nil)

// NewJSONLStore opens, creating if needed, the ledger in dir.
func NewJSONLStore(fs afero.Fs, dir string) (*JSONLStore, error) {
	if err := fs.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create the ledger directory: %w", err)
	}

	path := filepath.Join(dir, LedgerFileName)
	if err := terminateLastLine(fs, path); err != nil {
		return nil, err
	}

	file, err := fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open the ledger: %w", err)
	}

	return &JSONLStore{fs: fs, dir: dir, file: file}, nil
}

// LedgerPath returns the location of the ledger file.
func (s *JSONLStore) LedgerPath() string {
	return filepath.Join(s.dir, LedgerFileName)
}

func (s *JSONLStore) Load(ctx context.Context) ([]types.UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.Open(s.LedgerPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open the ledger: %w", err)
	}
	defer f.Close()

	var out []types.UploadRecord
	reader := bufio.NewReaderSize(f, 64*1024)
	line := 0
	for {
		raw, tooLong, err := readLine(reader)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Ctx(ctx).Warn().Err(err).Str("path", s.LedgerPath()).Int("line", line+1).Msg("stopped reading ledger")
			break
		}
		if errors.Is(err, io.EOF) && len(raw) == 0 && !tooLong {
			break
		}
		line++

		switch {
		case tooLong:
			log.Ctx(ctx).Warn().
				Str("path", s.LedgerPath()).
				Int("line", line).
				Msg("skipping oversized ledger entry")
		case len(raw) > 0:
			rec, decodeErr := decodeRecord(raw)
			if decodeErr != nil {
				log.Ctx(ctx).Warn().Err(decodeErr).
					Str("path", s.LedgerPath()).
					Int("line", line).
					Msg("skipping corrupt ledger entry")
			} else {
				out = append(out, rec)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}
	return out, nil
}

func (s *JSONLStore) Append(_ context.Context, rec types.UploadRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode the ledger record: %w", err)
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("ledger is closed: %w", os.ErrClosed)
	}

	if _, err := s.file.Write(raw); err != nil {
		return fmt.Errorf("failed to write the ledger record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync the ledger: %w", err)
	}
	return nil
}

func (s *JSONLStore) LoadStats(ctx context.Context) (*types.SyncStats, error) {
	raw, err := afero.ReadFile(s.fs, filepath.Join(s.dir, StatsFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read the stats: %w", err)
	}

	var stats types.SyncStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("ignoring corrupt stats snapshot")
		return nil, nil
	}
	return &stats, nil
}

// SaveStats replaces the snapshot through a synced temporary file so a
// crash leaves either the old or the new version.
func (s *JSONLStore) SaveStats(_ context.Context, stats types.SyncStats) error {
	raw, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode the stats: %w", err)
	}

	final := filepath.Join(s.dir, StatsFileName)
	tmp := final + ".tmp"

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create the stats file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("failed to write the stats file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync the stats file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close the stats file: %w", err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to replace the stats file: %w", err)
	}
	return nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// readLine returns the next line without its terminator. A line longer than
// maxLineSize is consumed and reported as tooLong with no content.
func readLine(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineSize {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, err
	}
}

func decodeRecord(raw []byte) (types.UploadRecord, error) {
	var rec types.UploadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	if rec.Key == "" {
		return rec, errors.New("record has no key")
	}
	switch rec.Outcome {
	case types.OutcomeSucceeded, types.OutcomeDuplicate, types.OutcomeFailed:
	default:
		return rec, fmt.Errorf("unknown outcome %q", rec.Outcome)
	}
	return rec, nil
}

// terminateLastLine appends a newline when a previous run died in the middle
// of a write, so the next record starts on its own line.
func terminateLastLine(fs afero.Fs, path string) error {
	f, err := fs.OpenFile(path, os.O_RDWR, filePermissions)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open the ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat the ledger: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read the ledger tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.WriteAt([]byte{'\n'}, info.Size()); err != nil {
		return fmt.Errorf("failed to repair the ledger tail: %w", err)
	}
	return f.Sync()
}
