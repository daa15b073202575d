// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/storage/disk"
	"github.com/cloudzero/fit-uploader/app/storage/repo"
	"github.com/cloudzero/fit-uploader/app/storage/sqlite"
	"github.com/cloudzero/fit-uploader/app/types"
)

// SQLiteFileName is the ledger database used by the sqlite backend.
const SQLiteFileName = "ledger.db"

// OpenStore opens the ledger backend selected in the settings. The sqlite
// backend always lives on the OS filesystem.
func OpenStore(ctx context.Context, fs afero.Fs, l config.Ledger) (types.LedgerStore, error) {
	switch l.Backend {
	case config.LedgerBackendSQLite:
		if err := os.MkdirAll(l.Path, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create the ledger directory: %w", err)
		}
		path := filepath.Join(l.Path, SQLiteFileName)
		db, err := sqlite.NewSQLiteDriver(sqlite.DSN(path))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		store, err := repo.NewLedgerRepo(db)
		if err != nil {
			return nil, err
		}
		log.Ctx(ctx).Debug().Str("path", path).Msg("opened sqlite ledger")
		return store, nil

	case config.LedgerBackendJSONL, "":
		store, err := disk.NewJSONLStore(fs, l.Path)
		if err != nil {
			return nil, err
		}
		log.Ctx(ctx).Debug().Str("path", store.LedgerPath()).Msg("opened jsonl ledger")
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown ledger backend %q", types.ErrInvalidSettings, l.Backend)
}
