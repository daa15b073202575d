// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package build carries the version information stamped in at link time.
package build

import (
	"fmt"

	"github.com/go-obvious/server"
)

const (
	AuthorName  = "CloudZero"
	AuthorEmail = "support@cloudzero.com"
	Copyright   = "© 2025 CloudZero, Inc."
	AppName     = "fit-uploader"
)

// Set with -ldflags "-X github.com/cloudzero/fit-uploader/app/build.Rev=..."
var (
	Rev  = "local"
	Tag  = "dev"
	Time = "unknown"
)

// GetVersion returns a short printable version string.
func GetVersion() string {
	return fmt.Sprintf("%s-%s", Tag, Rev)
}

// UserAgent is sent on every request to the remote service.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", AppName, GetVersion())
}

// Version returns the version block used by the local HTTP server.
func Version() *server.ServerVersion {
	return &server.ServerVersion{
		Revision: Rev,
		Tag:      Tag,
		Time:     Time,
	}
}
