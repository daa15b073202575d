// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
)

// StorageCommon is implemented by every gorm backed repository.
type StorageCommon interface {
	// Tx runs block inside a transaction. Repository calls made with ctxTx
	// participate in that transaction.
	Tx(ctx context.Context, block func(ctxTx context.Context) error) error

	// Count returns the number of rows of the repository model.
	Count(ctx context.Context) (int, error)

	// DeleteAll removes every row of the repository model.
	DeleteAll(ctx context.Context) error
}
