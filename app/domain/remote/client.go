// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package remote talks to the fitness service: it signs in, keeps the session
// and uploads activity files, mapping every response onto the upload outcome
// taxonomy used by the sync cycle.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/itchyny/gojq"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/cloudzero/fit-uploader/app/build"
	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/credentials"
	"github.com/cloudzero/fit-uploader/app/types"
)

const uploadFormField = "file"

// Client is the UploadClient. It is safe for concurrent use, although the
// sync cycle only ever drives it from one goroutine.
type Client struct {
	settings *config.Settings
	provider credentials.Provider
	http     *retryablehttp.Client
	clock    clockwork.Clock
	fs       afero.Fs
	idQuery  *gojq.Code

	// login serializes sign ins; mu only guards session.
	login   sync.Mutex
	mu      sync.Mutex
	session *types.Session
}

type Option func(*Client)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithFs(fs afero.Fs) Option {
	return func(c *Client) { c.fs = fs }
}

func WithHTTPClient(h *retryablehttp.Client) Option {
	return func(c *Client) { c.http = h }
}

var _ types.Uploader = (*Client)(nil)

// NewClient builds a client for the remote service described by s.
func NewClient(ctx context.Context, s *config.Settings, provider credentials.Provider, opts ...Option) (*Client, error) {
	query, err := CompileActivityIDQuery(s.Remote.ActivityIDQuery)
	if err != nil {
		return nil, err
	}

	c := &Client{
		settings: s,
		provider: provider,
		idQuery:  query,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(ctx, s)
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}
	return c, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticate signs in with creds. Rejected credentials return
// types.ErrInvalidCredentials; anything the next cycle might get past returns
// types.ErrTransientAuth.
func (c *Client) Authenticate(ctx context.Context, creds credentials.Credentials) (*types.Session, error) {
	if creds.Empty() {
		return nil, types.ErrNoCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, c.settings.Remote.Timeout)
	defer cancel()

	body, err := json.Marshal(loginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode the login request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.settings.LoginURL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create the login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", build.UserAgent())

	log.Ctx(ctx).Debug().Object("account", creds).Msg("authenticating")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Join(types.ErrTransientAuth, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	switch code := resp.StatusCode; {
	case code == http.StatusBadRequest, code == http.StatusUnauthorized, code == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrInvalidCredentials, code, SanitizeReason(raw))
	case code < 200 || code > 299:
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrTransientAuth, code, SanitizeReason(raw))
	}

	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, errors.Join(types.ErrTransientAuth, fmt.Errorf("failed to decode the login response: %w", err))
	}
	token := lr.AccessToken
	if token == "" {
		token = lr.Token
	}
	if token == "" {
		return nil, fmt.Errorf("%w: login response carried no token", types.ErrTransientAuth)
	}

	now := c.clock.Now()
	sess := &types.Session{Token: token, IssuedAt: now}
	switch exp, ok := tokenExpiry(token); {
	case lr.ExpiresIn > 0:
		sess.ExpiresAt = now.Add(time.Duration(lr.ExpiresIn) * time.Second)
	case ok:
		sess.ExpiresAt = exp
	default:
		sess.ExpiresAt = now.Add(c.settings.Remote.SessionTTL)
	}

	log.Ctx(ctx).Info().Time("expiresAt", sess.ExpiresAt).Msg("authenticated")
	return sess, nil
}

// EnsureSession returns the cached session while it is valid and signs in
// again otherwise.
func (c *Client) EnsureSession(ctx context.Context) (*types.Session, error) {
	c.login.Lock()
	defer c.login.Unlock()

	if sess := c.Session(); sess.Valid(c.clock.Now()) {
		return sess, nil
	}
	c.Invalidate()

	if c.provider == nil {
		return nil, types.ErrNoCredentials
	}
	creds, err := c.provider.Credentials(ctx)
	if err != nil {
		if errors.Is(err, types.ErrNoCredentials) {
			return nil, err
		}
		return nil, errors.Join(types.ErrNoCredentials, err)
	}

	sess, err := c.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess, nil
}

// Invalidate drops the cached session.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// Session returns the cached session, or nil.
func (c *Client) Session() *types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Upload submits file. An expired session is renewed once and the upload
// retried once; every other failure is returned for the next cycle to deal
// with.
func (c *Client) Upload(ctx context.Context, sess *types.Session, file types.ActivityFile) (types.UploadResult, error) {
	res, err := c.upload(ctx, sess, file)
	if !errors.Is(err, types.ErrSessionExpired) {
		return res, err
	}

	log.Ctx(ctx).Info().Str("file", file.Name()).Msg("session rejected, signing in again")
	c.Invalidate()
	sess, aerr := c.EnsureSession(ctx)
	if aerr != nil {
		return types.UploadResult{
			Outcome:   types.OutcomeFailed,
			Transient: true,
			Reason:    "re-authentication failed",
		}, errors.Join(err, aerr)
	}

	res, err = c.upload(ctx, sess, file)
	if errors.Is(err, types.ErrSessionExpired) {
		c.Invalidate()
		res.Transient = true
	}
	return res, err
}

func (c *Client) upload(ctx context.Context, sess *types.Session, file types.ActivityFile) (types.UploadResult, error) {
	if !sess.Valid(c.clock.Now()) {
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: "session expired"}, types.ErrSessionExpired
	}

	// Create a unique context with a timeout for the upload
	ctx, cancel := context.WithTimeout(ctx, c.settings.Remote.Timeout)
	defer cancel()

	body, contentType, err := c.multipartBody(file)
	if err != nil {
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: "file unreadable"},
			errors.Join(types.ErrUploadTransient, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.settings.UploadURL(), body)
	if err != nil {
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: "bad request"},
			errors.Join(types.ErrUploadTransient, fmt.Errorf("failed to create upload HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	req.Header.Set("User-Agent", build.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: "network failure"},
			errors.Join(types.ErrUploadTransient, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	return c.classify(resp.StatusCode, raw)
}

// classify maps an upload response onto an outcome.
func (c *Client) classify(code int, raw []byte) (types.UploadResult, error) {
	switch {
	case code == http.StatusConflict:
		return types.UploadResult{Outcome: types.OutcomeDuplicate, Reason: SanitizeReason(raw)}, nil

	case code >= 200 && code <= 299:
		id := ExtractActivityID(c.idQuery, raw)
		if id == "" && mentionsDuplicate(raw) {
			return types.UploadResult{Outcome: types.OutcomeDuplicate, Reason: SanitizeReason(raw)}, nil
		}
		return types.UploadResult{Outcome: types.OutcomeSucceeded, RemoteID: id}, nil

	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: "session rejected"},
			fmt.Errorf("%w: status %d", types.ErrSessionExpired, code)

	case code == http.StatusTooManyRequests, code >= 500:
		reason := SanitizeReason(raw)
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: reason},
			fmt.Errorf("%w: status %d: %s", types.ErrUploadTransient, code, reason)

	case code >= 400:
		if mentionsDuplicate(raw) {
			return types.UploadResult{Outcome: types.OutcomeDuplicate, Reason: SanitizeReason(raw)}, nil
		}
		reason := SanitizeReason(raw)
		return types.UploadResult{Outcome: types.OutcomeFailed, Reason: reason},
			fmt.Errorf("%w: status %d: %s", types.ErrUploadRejected, code, reason)

	default:
		return types.UploadResult{Outcome: types.OutcomeFailed, Transient: true, Reason: fmt.Sprintf("unexpected status %d", code)},
			fmt.Errorf("%w: unexpected status %d", types.ErrUploadTransient, code)
	}
}

func (c *Client) multipartBody(file types.ActivityFile) ([]byte, string, error) {
	f, err := c.fs.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(uploadFormField, file.Name())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Opaque
// tokens report false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
