// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-obvious/server"
	"github.com/go-obvious/server/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetricsAPI exposes the uploader metrics in the prometheus text format.
type PromMetricsAPI struct {
	api.Service
	gatherer prometheus.Gatherer
}

// NewPromMetricsAPI serves the default registry unless gatherers are given.
func NewPromMetricsAPI(base string, gatherers ...prometheus.Gatherer) *PromMetricsAPI {
	a := &PromMetricsAPI{
		Service: api.Service{
			APIName: "metrics",
			Mounts:  map[string]*chi.Mux{},
		},
		gatherer: prometheus.DefaultGatherer,
	}
	if len(gatherers) > 0 {
		a.gatherer = prometheus.Gatherers(gatherers)
	}
	a.Service.Mounts[base] = a.Routes()
	return a
}

func (a *PromMetricsAPI) Register(app server.Server) error {
	if err := a.Service.Register(app); err != nil {
		return err
	}
	return nil
}

func (a *PromMetricsAPI) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	return r
}
