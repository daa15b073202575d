// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/microcosm-cc/bluemonday"

	"github.com/cloudzero/fit-uploader/app/types"
)

const maxReasonLength = 200

var (
	reasonPolicy = bluemonday.StrictPolicy()

	duplicateMarkers = [][]byte{[]byte("conflict"), []byte("duplicate")}
)

// CompileActivityIDQuery compiles the jq expression that selects the remote
// activity id from an upload response.
func CompileActivityIDQuery(src string) (*gojq.Code, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: activity id query: %w", types.ErrInvalidSettings, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("%w: activity id query: %w", types.ErrInvalidSettings, err)
	}
	return code, nil
}

// ExtractActivityID runs code over a JSON body and returns the first scalar
// it yields. Bodies that are not JSON, or do not contain the id, give "".
func ExtractActivityID(code *gojq.Code, raw []byte) string {
	if code == nil || len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}

	out, ok := code.Run(v).Next()
	if !ok {
		return ""
	}
	switch id := out.(type) {
	case error, nil:
		return ""
	case string:
		return id
	case int:
		return strconv.Itoa(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// SanitizeReason turns a response body into a short plain-text line fit for
// logs and the status page.
func SanitizeReason(raw []byte) string {
	text := html.UnescapeString(string(reasonPolicy.SanitizeBytes(raw)))
	return truncate(strings.Join(strings.Fields(text), " "), maxReasonLength)
}

func mentionsDuplicate(raw []byte) bool {
	lower := bytes.ToLower(raw)
	for _, m := range duplicateMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
