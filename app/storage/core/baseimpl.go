// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"

	"gorm.io/gorm"
)

// RawBaseRepoImpl gives repositories a context aware handle on the database.
// When the context carries a transaction started by Tx, that transaction is
// used instead of the root connection.
type RawBaseRepoImpl struct {
	db *gorm.DB
}

func NewRawBaseRepoImpl(db *gorm.DB) RawBaseRepoImpl {
	return RawBaseRepoImpl{db: db}
}

// DB returns the transaction in ctx if there is one, the root handle
// otherwise. The context is always attached so logging and cancellation
// follow the caller.
func (b *RawBaseRepoImpl) DB(ctx context.Context) *gorm.DB {
	if tx, found := FromContext(ctx); found {
		return tx.WithContext(ctx)
	}
	return b.db.WithContext(ctx)
}

// Tx runs block in a transaction. Nested calls join the outer transaction
// through gorm savepoints.
func (b *RawBaseRepoImpl) Tx(ctx context.Context, block func(ctxTx context.Context) error) error {
	return b.DB(ctx).Transaction(func(tx *gorm.DB) error {
		return block(NewContext(ctx, tx))
	})
}

// BaseRepoImpl adds model level helpers on top of RawBaseRepoImpl.
type BaseRepoImpl struct {
	RawBaseRepoImpl
	model interface{}
}

func NewBaseRepoImpl(db *gorm.DB, model interface{}) BaseRepoImpl {
	return BaseRepoImpl{
		RawBaseRepoImpl: NewRawBaseRepoImpl(db),
		model:           model,
	}
}

func (b *BaseRepoImpl) Count(ctx context.Context) (int, error) {
	var count int64
	err := b.DB(ctx).Model(b.model).Count(&count).Error
	return int(count), TranslateError(err)
}

func (b *BaseRepoImpl) DeleteAll(ctx context.Context) error {
	return TranslateError(b.DB(ctx).Where("1 = 1").Delete(b.model).Error)
}

type key int

var dbKey key

// NewContext stores a transaction handle in ctx.
func NewContext(ctx context.Context, db *gorm.DB) context.Context {
	return context.WithValue(ctx, dbKey, db)
}

// FromContext returns the transaction handle stored by NewContext.
func FromContext(ctx context.Context) (*gorm.DB, bool) {
	db, ok := ctx.Value(dbKey).(*gorm.DB)
	return db, ok
}
