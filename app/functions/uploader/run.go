// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-obvious/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudzero/fit-uploader/app/build"
	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/agent"
	"github.com/cloudzero/fit-uploader/app/domain/healthz"
	"github.com/cloudzero/fit-uploader/app/handlers"
	"github.com/cloudzero/fit-uploader/app/http/middleware"
	"github.com/cloudzero/fit-uploader/app/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground",
	Long: `Run syncs immediately and then on the configured interval until interrupted.
SIGHUP re-reads the configuration file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(e.ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		e.ctx = ctx
		return runAgent(e)
	},
}

func runAgent(e *env) error {
	ctx, settings := e.ctx, e.settings
	logger := log.Ctx(ctx)

	a, err := agent.New(ctx, settings, agent.WithConfigFiles(configFile), agent.WithEventRing(e.events))
	if err != nil {
		return fmt.Errorf("failed to start the agent: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Err(err).Msg("failed to shut down the agent")
		}
	}()

	a.Scheduler().Subscribe(func(summary types.CycleSummary) {
		if summary.State == types.CycleAborted {
			logger.Warn().Str("error", summary.Error).Msg("sync aborted")
		}
	})

	runnables := []types.Runnable{a}
	if settings.Server.Enabled {
		runnables = append(runnables, types.RunnableFunc(func(ctx context.Context) error {
			serve(ctx, settings, a)
			return nil
		}))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runnables {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info().Msg("fit uploader stopped")
	return err
}

func serve(ctx context.Context, settings *config.Settings, a *agent.Agent) {
	mw := []server.Middleware{
		middleware.LoopbackOnly,
		middleware.LoggingMiddlewareWrapper,
		middleware.PromHTTPMiddleware,
	}

	apis := []server.API{
		handlers.NewControlAPI("/", a),
		handlers.NewStatusAPI("/status", a),
		handlers.NewHealthzAPI("/healthz", healthz.NewHealthz()),
		handlers.NewPromMetricsAPI("/metrics"),
	}
	if log.Ctx(ctx).GetLevel() <= zerolog.DebugLevel {
		apis = append(apis, handlers.NewProfilingAPI("/debug/pprof"))
	}

	log.Ctx(ctx).Info().Uint("port", settings.Server.Port).Msg("Starting local api")
	server.New(build.Version()).
		WithAddress(fmt.Sprintf("127.0.0.1:%d", settings.Server.Port)).
		WithMiddleware(mw...).
		WithAPIs(apis...).
		WithListener(server.HTTPListener()).
		Run(ctx)
	log.Ctx(ctx).Info().Msg("Local api stopping")
}
