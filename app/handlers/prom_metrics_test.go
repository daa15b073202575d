// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package handlers_test

import (
	"testing"

	"github.com/go-obvious/server/test"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudzero/fit-uploader/app/handlers"
)

func TestUnit_Handlers_PromMetrics(t *testing.T) {
	promMetrics := handlers.NewPromMetricsAPI("/")

	tests := []struct {
		name               string
		path               string
		expectedStatusCode int
	}{
		{
			name:               "QueryIndex",
			path:               "/",
			expectedStatusCode: 200,
		},
		{
			name:               "QueryErr",
			path:               "/does/not/exist",
			expectedStatusCode: 404,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest("GET", tc.path, nil)
			resp, err := test.InvokeService(promMetrics.Service, tc.path, *req)
			assert.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.expectedStatusCode, resp.StatusCode)
		})
	}
}

func TestUnit_Handlers_PromMetricsCustomGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fit_uploader_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	promMetrics := handlers.NewPromMetricsAPI("/", reg)
	resp, err := test.InvokeService(promMetrics.Service, "/", *createRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "fit_uploader_test_total 1")
}
