// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import "errors"

// Configuration errors.
var (
	ErrNoFoldersConfigured = errors.New("no source folders configured")
	ErrInvalidSettings     = errors.New("invalid settings")
)

// Authentication errors.
var (
	ErrNoCredentials      = errors.New("no credentials available")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTransientAuth      = errors.New("transient authentication failure")
)

// Upload errors.
var (
	ErrSessionExpired  = errors.New("session expired")
	ErrUploadDuplicate = errors.New("activity already exists remotely")
	ErrUploadRejected  = errors.New("upload rejected")
	ErrUploadTransient = errors.New("transient upload failure")
)

// Persistence and scheduling errors.
var (
	ErrPersistence     = errors.New("ledger persistence failure")
	ErrCycleInProgress = errors.New("sync cycle already in progress")
	ErrArchive         = errors.New("failed to archive file")
)

// Storage errors returned by repository implementations.
var (
	ErrNotFound                      = errors.New("record not found")
	ErrDuplicateKey                  = errors.New("duplicate key")
	ErrInvalidTransaction            = errors.New("invalid transaction")
	ErrNotImplemented                = errors.New("not implemented")
	ErrMissingWhereClause            = errors.New("missing where clause")
	ErrPrimaryKeyRequired            = errors.New("primary key required")
	ErrModelValueRequired            = errors.New("model value required")
	ErrModelAccessibleFieldsRequired = errors.New("model accessible fields required")
	ErrInvalidData                   = errors.New("unsupported data")
	ErrUnsupportedDriver             = errors.New("unsupported driver")
	ErrInvalidField                  = errors.New("invalid field")
	ErrEmptySlice                    = errors.New("empty slice found")
	ErrInvalidDB                     = errors.New("invalid db")
	ErrInvalidValue                  = errors.New("invalid value")
	ErrCheckConstraintViolated       = errors.New("check constraint violated")
)

// ErrorKind maps an error onto a short, stable label used in metrics and
// events.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNoFoldersConfigured), errors.Is(err, ErrInvalidSettings):
		return "configuration"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrTransientAuth):
		return "auth_transient"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrUploadDuplicate):
		return "duplicate"
	case errors.Is(err, ErrUploadRejected):
		return "rejected"
	case errors.Is(err, ErrUploadTransient):
		return "upload_transient"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrArchive):
		return "archive"
	case errors.Is(err, ErrCycleInProgress):
		return "in_progress"
	default:
		return "unknown"
	}
}

// IsAuthError reports whether err aborts a cycle before scanning.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTransientAuth)
}
