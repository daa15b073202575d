// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package archive moves processed activity files into the archive subfolder
// of their source folder.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/cloudzero/fit-uploader/app/types"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	// maxCollisions bounds the -<n> suffix search.
	maxCollisions = 1000
)

// Mover archives files below <folder>/<dir>.
type Mover struct {
	fs  afero.Fs
	dir string
}

func NewMover(fs afero.Fs, dir string) *Mover {
	return &Mover{fs: fs, dir: dir}
}

// Dir returns the archive folder for a source folder.
func (m *Mover) Dir(folder string) string {
	return filepath.Join(folder, m.dir)
}

// Archive moves file into the archive folder and returns its new location. An
// archived file with the same name and content means the move already
// happened once, so the source is simply removed. A different file with the
// same name gets a numbered suffix.
func (m *Mover) Archive(file types.ActivityFile) (string, error) {
	// already archived
	if filepath.Base(file.Folder()) == m.dir {
		return file.Path, nil
	}

	dir := m.Dir(file.Folder())
	if err := m.fs.MkdirAll(dir, dirPermissions); err != nil {
		return "", errors.Join(types.ErrArchive, fmt.Errorf("failed to create the archive directory: %w", err))
	}

	target, same, err := m.target(file.Path, dir)
	if err != nil {
		return "", errors.Join(types.ErrArchive, err)
	}
	if same {
		if err := m.fs.Remove(file.Path); err != nil {
			return "", errors.Join(types.ErrArchive, fmt.Errorf("failed to remove the already archived source: %w", err))
		}
		return target, nil
	}

	if err := m.fs.Rename(file.Path, target); err != nil {
		// renames fail across devices and on some locked files; a copy
		// still gets the file out of the scanned folder
		if cerr := m.copyAndRemove(file.Path, target); cerr != nil {
			return "", errors.Join(types.ErrArchive, fmt.Errorf("failed to move the file to the archive directory: %w", err), cerr)
		}
	}
	return target, nil
}

// target picks the destination name. same reports that an identical file is
// already there.
func (m *Mover) target(src, dir string) (string, bool, error) {
	name := filepath.Base(src)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 0; n < maxCollisions; n++ {
		candidate := filepath.Join(dir, name)
		if n > 0 {
			candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		}
		exists, err := afero.Exists(m.fs, candidate)
		if err != nil {
			return "", false, fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		if !exists {
			return candidate, false, nil
		}
		same, err := m.sameContent(src, candidate)
		if err != nil {
			return "", false, err
		}
		if same {
			return candidate, true, nil
		}
	}
	return "", false, fmt.Errorf("no free archive name for %s", name)
}

func (m *Mover) sameContent(a, b string) (bool, error) {
	ia, err := m.fs.Stat(a)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", a, err)
	}
	ib, err := m.fs.Stat(b)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", b, err)
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	da, err := afero.ReadFile(m.fs, a)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", a, err)
	}
	db, err := afero.ReadFile(m.fs, b)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", b, err)
	}
	return bytes.Equal(da, db), nil
}

func (m *Mover) copyAndRemove(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open the source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat the source: %w", err)
	}

	out, err := m.fs.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create the archive copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = m.fs.Remove(dst)
		return fmt.Errorf("failed to copy into the archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = m.fs.Remove(dst)
		return fmt.Errorf("failed to sync the archive copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close the archive copy: %w", err)
	}
	_ = m.fs.Chtimes(dst, info.ModTime(), info.ModTime())

	in.Close()
	if err := m.fs.Remove(src); err != nil {
		return fmt.Errorf("copied into the archive but failed to remove the source: %w", err)
	}
	return nil
}
