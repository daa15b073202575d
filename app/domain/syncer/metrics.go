// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudzero/fit-uploader/app/types"
)

var (
	metricsOnce sync.Once

	metricCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: types.UploaderMetric("cycles_total"),
			Help: "Sync cycles by terminal state",
		},
		[]string{"state"},
	)
	metricFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: types.UploaderMetric("files_total"),
			Help: "Activity files handled by source and outcome",
		},
		[]string{"source", "outcome"},
	)
	metricErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: types.UploaderMetric("errors_total"),
			Help: "Sync errors by kind",
		},
		[]string{"kind"},
	)
	metricCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    types.UploaderMetric("cycle_duration_seconds"),
			Help:    "Duration of a sync cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)
	metricLastCycleTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: types.UploaderMetric("last_cycle_timestamp_seconds"),
			Help: "Unix time the last sync cycle finished",
		},
	)
	metricLedgerRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: types.UploaderMetric("ledger_records"),
			Help: "Number of records in the upload ledger",
		},
	)
)

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			metricCyclesTotal,
			metricFilesTotal,
			metricErrorsTotal,
			metricCycleDuration,
			metricLastCycleTimestamp,
			metricLedgerRecords,
		)
	})
}

func countError(err error) {
	if err != nil {
		metricErrorsTotal.WithLabelValues(types.ErrorKind(err)).Inc()
	}
}
