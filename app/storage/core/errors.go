// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"

	"gorm.io/gorm"

	"github.com/cloudzero/fit-uploader/app/types"
)

// TranslateError maps gorm errors onto the storage errors of the types
// package. Unknown errors are returned unchanged and nil stays nil.
func TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return types.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return types.ErrDuplicateKey
	case errors.Is(err, gorm.ErrInvalidTransaction):
		return types.ErrInvalidTransaction
	case errors.Is(err, gorm.ErrNotImplemented):
		return types.ErrNotImplemented
	case errors.Is(err, gorm.ErrMissingWhereClause):
		return types.ErrMissingWhereClause
	case errors.Is(err, gorm.ErrPrimaryKeyRequired):
		return types.ErrPrimaryKeyRequired
	case errors.Is(err, gorm.ErrModelValueRequired):
		return types.ErrModelValueRequired
	case errors.Is(err, gorm.ErrModelAccessibleFieldsRequired):
		return types.ErrModelAccessibleFieldsRequired
	case errors.Is(err, gorm.ErrInvalidData):
		return types.ErrInvalidData
	case errors.Is(err, gorm.ErrUnsupportedDriver):
		return types.ErrUnsupportedDriver
	case errors.Is(err, gorm.ErrInvalidField):
		return types.ErrInvalidField
	case errors.Is(err, gorm.ErrEmptySlice):
		return types.ErrEmptySlice
	case errors.Is(err, gorm.ErrInvalidDB):
		return types.ErrInvalidDB
	case errors.Is(err, gorm.ErrInvalidValue):
		return types.ErrInvalidValue
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return types.ErrCheckConstraintViolated
	}
	return err
}
