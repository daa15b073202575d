// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
)

const (
	HTTPRetryWaitMax = time.Second * 30

	// maxResponseBody bounds how much of a response is read into memory.
	maxResponseBody = 64 * 1024
)

// ZerologRetryableHTTPAdapter adapts zerolog.Logger to retryablehttp.Logger
type ZerologRetryableHTTPAdapter struct {
	logger *zerolog.Logger
}

func NewZerologRetryableHTTPAdapter(logger *zerolog.Logger) *ZerologRetryableHTTPAdapter {
	if logger == nil {
		defaultLogger := log.Logger
		logger = &defaultLogger
	}
	return &ZerologRetryableHTTPAdapter{logger: logger}
}

func (a *ZerologRetryableHTTPAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error().Fields(kvsToMap(keysAndValues...)).Msg(msg)
}

func (a *ZerologRetryableHTTPAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info().Fields(kvsToMap(keysAndValues...)).Msg(msg)
}

// Debug is where retryablehttp reports every request, so it is logged at
// trace to keep debug output readable.
func (a *ZerologRetryableHTTPAdapter) Debug(msg string, keysAndValues ...interface{}) {
	a.logger.Trace().Fields(kvsToMap(keysAndValues...)).Msg(msg)
}

func (a *ZerologRetryableHTTPAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn().Fields(kvsToMap(keysAndValues...)).Msg(msg)
}

func kvsToMap(keysAndValues ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			m[key] = keysAndValues[i+1]
		}
	}
	return m
}

var _ retryablehttp.LeveledLogger = (*ZerologRetryableHTTPAdapter)(nil)

// NewHTTPClient builds the client used for both the login and the upload
// call. Retries default to zero: the sync interval is the retry mechanism.
func NewHTTPClient(ctx context.Context, s *config.Settings) *retryablehttp.Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = NewZerologRetryableHTTPAdapter(log.Ctx(ctx))
	httpClient.HTTPClient = &http.Client{
		Timeout: s.Remote.Timeout,
	}
	httpClient.RetryMax = s.Remote.RetryMax
	httpClient.RetryWaitMax = HTTPRetryWaitMax

	// Called once retries are exhausted, or when the policy gives up on a
	// transport error. Either way the caller sees a transient failure.
	httpClient.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		if resp == nil {
			return nil, fmt.Errorf("giving up after %d attempt(s): %w", numTries, err)
		}

		defer resp.Body.Close()
		if _, err2 := io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)); err2 != nil {
			log.Ctx(ctx).Err(err2).Msg("error reading response body")
		}

		if err != nil {
			return nil, fmt.Errorf("giving up after %d attempt(s) with status %d: %w", numTries, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("giving up after %d attempt(s) with status %d", numTries, resp.StatusCode)
	}

	return httpClient
}
