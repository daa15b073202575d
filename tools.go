// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build tools

// tools.go pins the Go tools used during development: mockgen regenerates the
// mocks/ packages, staticcheck and gofumpt lint and format, and gojq is handy
// for trying out remote.activityIDQuery against a saved upload response.
//
// Usage: go install $(grep -o '"[^"]*"' tools.go | tr -d '"')
package tools

import (
	_ "github.com/itchyny/gojq/cmd/gojq"
	_ "go.uber.org/mock/mockgen"
	_ "honnef.co/go/tools/cmd/staticcheck"
	_ "mvdan.cc/gofumpt"
)
