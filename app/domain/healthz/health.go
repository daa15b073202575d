// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package healthz keeps a process wide registry of named health checks and
// serves them as a single endpoint.
//
//	healthz.Register("ledger", func() error {
//	    return ledger.Ping()
//	})
//
// GET /healthz returns 200 "ok" when every check passes, otherwise 500 with
// the first failing check in name order.
package healthz

import (
	"net/http"
	"sort"
	"sync"
)

// HealthCheck returns nil when the component is healthy. Checks must be fast
// and free of side effects.
type HealthCheck func() error

// HealthChecker serves the registered checks.
type HealthChecker interface {
	EndpointHandler() http.HandlerFunc
	// Check runs every check and returns the name and error of the first
	// failure.
	Check() (string, error)
}

// Register adds or replaces a named check in the global registry.
func Register(name string, fn HealthCheck) {
	chkr, success := NewHealthz().(*checker)
	if !success {
		panic("unexpected type mismatch")
	}
	chkr.add(name, fn)
}

// Unregister removes a named check.
func Unregister(name string) {
	chkr, success := NewHealthz().(*checker)
	if !success {
		panic("unexpected type mismatch")
	}
	chkr.mu.Lock()
	defer chkr.mu.Unlock()
	delete(chkr.checks, name)
}

var (
	h    *checker
	once sync.Once
)

type checker struct {
	mu     sync.Mutex
	checks map[string]HealthCheck
}

// NewHealthz returns the singleton HealthChecker instance.
func NewHealthz() HealthChecker {
	once.Do(func() {
		h = &checker{}
	})
	return h
}

func (x *checker) add(name string, fn HealthCheck) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.checks == nil {
		x.checks = make(map[string]HealthCheck)
	}
	x.checks[name] = fn
}

func (x *checker) Check() (string, error) {
	x.mu.Lock()
	names := make([]string, 0, len(x.checks))
	for name := range x.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(x.checks))
	for k, v := range x.checks {
		checks[k] = v
	}
	x.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := checks[name](); err != nil {
			return name, err
		}
	}
	return "", nil
}

func (x *checker) EndpointHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if name, err := x.Check(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(name + " failed: " + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok")) // ignore return values
	}
}
