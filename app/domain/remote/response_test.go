// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package remote_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/remote"
	"github.com/cloudzero/fit-uploader/app/types"
)

func TestUnit_Remote_ExtractActivityID(t *testing.T) {
	code, err := remote.CompileActivityIDQuery(config.DefaultActivityIDQuery)
	require.NoError(t, err)

	tests := map[string]string{
		`{"detailedImportResult":{"successes":[{"internalId":123}]}}`: "123",
		`{"activityId":"abc-1"}`:                                      "abc-1",
		`{"id":9007199254740}`:                                        "9007199254740",
		`{"detailedImportResult":{"successes":[]},"id":5}`:            "5",
		`{"nothing":"here"}`:                                          "",
		`not json`:                                                    "",
		``:                                                            "",
		`[]`:                                                          "",
	}
	for body, want := range tests {
		assert.Equal(t, want, remote.ExtractActivityID(code, []byte(body)), body)
	}
	assert.Empty(t, remote.ExtractActivityID(nil, []byte(`{"id":1}`)))
}

func TestUnit_Remote_CompileActivityIDQueryInvalid(t *testing.T) {
	_, err := remote.CompileActivityIDQuery(".[")
	require.ErrorIs(t, err, types.ErrInvalidSettings)

	_, err = remote.CompileActivityIDQuery("$undefined")
	require.ErrorIs(t, err, types.ErrInvalidSettings)
}

func TestUnit_Remote_SanitizeReason(t *testing.T) {
	got := remote.SanitizeReason([]byte("<html><body><h1>Bad   Request</h1>\n<script>alert(1)</script><p>file \"x\" invalid</p></body></html>"))
	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "alert")
	assert.Contains(t, got, "Bad Request")
	assert.Contains(t, got, `file "x" invalid`)

	long := remote.SanitizeReason([]byte(strings.Repeat("é", 500)))
	assert.True(t, strings.HasSuffix(long, "..."))
	assert.Equal(t, 203, len([]rune(long)))
}
