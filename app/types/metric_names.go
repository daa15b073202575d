// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package types

import "strings"

// MetricNamespace prefixes every metric exported by the uploader.
const MetricNamespace = "fit_uploader"

// UploaderMetric returns the metric name prefixed with the uploader
// namespace, e.g. "cycles_total" becomes "fit_uploader_cycles_total".
//
// The input must not be empty and must not already carry the namespace or
// start with an underscore. Violations panic, since metric names are
// compile-time constants.
func UploaderMetric(metricName string) string {
	parts := strings.SplitN(metricName, "_", 2)
	if len(parts) == 0 {
		panic("metricName is invalid: no parts found after splitting")
	}
	if parts[0] == "" || strings.HasPrefix(metricName, MetricNamespace) {
		panic("metricName contains a forbidden prefix or is empty")
	}
	return MetricNamespace + "_" + metricName
}
