// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-obvious/server"
	"github.com/go-obvious/server/api"
	"github.com/go-obvious/server/request"
)

// StatusAPI serves the read-only agent status.
type StatusAPI struct {
	api.Service
	agent Agent
}

func NewStatusAPI(base string, agent Agent) *StatusAPI {
	a := &StatusAPI{
		Service: api.Service{
			APIName: "status",
			Mounts:  map[string]*chi.Mux{},
		},
		agent: agent,
	}
	a.Service.Mounts[base] = a.Routes()
	return a
}

func (a *StatusAPI) Register(app server.Server) error {
	if err := a.Service.Register(app); err != nil {
		return err
	}
	return nil
}

func (a *StatusAPI) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/", a.GetStatus)
	return r
}

func (a *StatusAPI) GetStatus(w http.ResponseWriter, r *http.Request) {
	request.Reply(r, w, a.agent.Status(r.Context()), http.StatusOK)
}
