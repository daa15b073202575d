// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudzero/fit-uploader/app/http/middleware"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestUnit_Middleware_PromHTTP(t *testing.T) {
	wrapped := middleware.PromHTTPMiddleware(okHandler)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "fit_uploader_http_requests_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUnit_Middleware_Logging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	wrapped := middleware.LoggingMiddlewareWrapper(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req = req.WithContext(logger.WithContext(req.Context()))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"route":"/sync"`)
	assert.Contains(t, buf.String(), `"statusCode":418`)

	buf.Reset()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req = req.WithContext(logger.WithContext(req.Context()))
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, buf.String())
}

func TestUnit_Middleware_LoopbackOnly(t *testing.T) {
	wrapped := middleware.LoopbackOnly(okHandler)

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:5555", http.StatusTeapot},
		{"[::1]:5555", http.StatusTeapot},
		{"192.168.1.20:5555", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = tt.remote
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.remote)
	}
}
