// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-obvious/server"
	"github.com/go-obvious/server/api"
	"github.com/go-obvious/server/request"
	"github.com/rs/zerolog/log"

	"github.com/cloudzero/fit-uploader/app/types"
)

// ControlAPI triggers cycles and drives the scheduler.
//
//	POST /sync                  run one cycle now, 409 while one is running
//	POST /scheduler/start       start periodic syncing
//	POST /scheduler/stop        stop periodic syncing
//	PUT  /scheduler/interval    ?value=10m, replies with the clamped interval
type ControlAPI struct {
	api.Service
	agent Agent
}

type intervalReply struct {
	Interval string `json:"interval"`
}

type messageReply struct {
	Message string `json:"message"`
}

func NewControlAPI(base string, agent Agent) *ControlAPI {
	a := &ControlAPI{
		Service: api.Service{
			APIName: "control",
			Mounts:  map[string]*chi.Mux{},
		},
		agent: agent,
	}
	a.Service.Mounts[base] = a.Routes()
	return a
}

func (a *ControlAPI) Register(app server.Server) error {
	if err := a.Service.Register(app); err != nil {
		return err
	}
	return nil
}

func (a *ControlAPI) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Post("/sync", a.PostSync)
	r.Route("/scheduler", func(r chi.Router) {
		r.Post("/start", a.PostStart)
		r.Post("/stop", a.PostStop)
		r.Put("/interval", a.PutInterval)
	})
	return r
}

func logErrorReply(r *http.Request, w http.ResponseWriter, err error, statusCode int) {
	log.Ctx(r.Context()).Error().Err(err).Int("statusCode", statusCode).Msg("control request failed")
	request.Reply(r, w, messageReply{Message: err.Error()}, statusCode)
}

func (a *ControlAPI) PostSync(w http.ResponseWriter, r *http.Request) {
	summary, err := a.agent.SyncNow(r.Context())
	if err != nil {
		if errors.Is(err, types.ErrCycleInProgress) {
			request.Reply(r, w, messageReply{Message: err.Error()}, http.StatusConflict)
			return
		}
		logErrorReply(r, w, err, http.StatusInternalServerError)
		return
	}
	request.Reply(r, w, summary, http.StatusOK)
}

func (a *ControlAPI) PostStart(w http.ResponseWriter, r *http.Request) {
	if err := a.agent.StartScheduler(r.Context()); err != nil {
		logErrorReply(r, w, err, http.StatusInternalServerError)
		return
	}
	request.Reply(r, w, messageReply{Message: "scheduler started"}, http.StatusOK)
}

func (a *ControlAPI) PostStop(w http.ResponseWriter, r *http.Request) {
	if err := a.agent.StopScheduler(r.Context()); err != nil {
		logErrorReply(r, w, err, http.StatusInternalServerError)
		return
	}
	request.Reply(r, w, messageReply{Message: "scheduler stopped"}, http.StatusOK)
}

func (a *ControlAPI) PutInterval(w http.ResponseWriter, r *http.Request) {
	d, err := time.ParseDuration(r.URL.Query().Get("value"))
	if err != nil {
		request.Reply(r, w, messageReply{Message: "value must be a duration such as 10m"}, http.StatusBadRequest)
		return
	}
	applied, err := a.agent.SetInterval(r.Context(), d)
	if err != nil {
		logErrorReply(r, w, err, http.StatusInternalServerError)
		return
	}
	request.Reply(r, w, intervalReply{Interval: applied.String()}, http.StatusOK)
}
