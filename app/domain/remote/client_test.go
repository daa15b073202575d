// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/credentials"
	"github.com/cloudzero/fit-uploader/app/domain/remote"
	"github.com/cloudzero/fit-uploader/app/types"
)

var (
	now     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	account = credentials.Static{Email: "rider@example.com", Password: "hunter2"}
)

// fakeService is a minimal stand-in for the fitness service.
type fakeService struct {
	logins  atomic.Int32
	uploads atomic.Int32

	login  func(w http.ResponseWriter, r *http.Request)
	upload func(w http.ResponseWriter, r *http.Request, n int32)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case config.DefaultRemoteLoginPath:
		f.logins.Add(1)
		if f.login != nil {
			f.login(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "opaque-token"})
	case config.DefaultRemoteUploadPath:
		n := f.uploads.Add(1)
		if f.upload != nil {
			f.upload(w, r, n)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"activityId": 1001})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type fixture struct {
	svc    *fakeService
	server *httptest.Server
	clock  *clockwork.FakeClock
	fs     afero.Fs
	client *remote.Client
	file   types.ActivityFile
}

func newFixture(t *testing.T, svc *fakeService, provider credentials.Provider) *fixture {
	t.Helper()
	server := httptest.NewServer(svc)
	t.Cleanup(server.Close)

	s := &config.Settings{Remote: config.Remote{BaseURL: server.URL, Timeout: 5 * time.Second}}
	require.NoError(t, s.Remote.Validate())

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/wahoo/ride1.fit", []byte("FIT-DATA"), 0o644))

	clock := clockwork.NewFakeClockAt(now)
	client, err := remote.NewClient(context.Background(), s, provider, remote.WithClock(clock), remote.WithFs(fs))
	require.NoError(t, err)

	return &fixture{
		svc:    svc,
		server: server,
		clock:  clock,
		fs:     fs,
		client: client,
		file:   types.ActivityFile{Path: "/wahoo/ride1.fit", Source: types.SourceWahoo},
	}
}

func TestUnit_Remote_AuthenticateJWTExpiry(t *testing.T) {
	exp := now.Add(2 * time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	svc := &fakeService{login: func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "rider@example.com", body["email"])
		assert.Equal(t, "hunter2", body["password"])
		writeJSON(w, http.StatusOK, map[string]any{"token": token})
	}}
	f := newFixture(t, svc, account)

	sess, err := f.client.Authenticate(context.Background(), credentials.Credentials(account))
	require.NoError(t, err)
	assert.Equal(t, token, sess.Token)
	assert.True(t, exp.Equal(sess.ExpiresAt))
	assert.Equal(t, now, sess.IssuedAt)
}

func TestUnit_Remote_AuthenticateExpiresIn(t *testing.T) {
	svc := &fakeService{login: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "expires_in": 600})
	}}
	f := newFixture(t, svc, account)

	sess, err := f.client.Authenticate(context.Background(), credentials.Credentials(account))
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), sess.ExpiresAt)
}

func TestUnit_Remote_AuthenticateOpaqueTokenUsesTTL(t *testing.T) {
	f := newFixture(t, &fakeService{}, account)

	sess, err := f.client.Authenticate(context.Background(), credentials.Credentials(account))
	require.NoError(t, err)
	assert.Equal(t, now.Add(config.DefaultSessionTTL), sess.ExpiresAt)
}

func TestUnit_Remote_AuthenticateClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request", http.StatusBadRequest, `{"error":"bad"}`, types.ErrInvalidCredentials},
		{"unauthorized", http.StatusUnauthorized, `{"error":"nope"}`, types.ErrInvalidCredentials},
		{"forbidden", http.StatusForbidden, ``, types.ErrInvalidCredentials},
		{"unavailable", http.StatusServiceUnavailable, `down`, types.ErrTransientAuth},
		{"throttled", http.StatusTooManyRequests, ``, types.ErrTransientAuth},
		{"no token", http.StatusOK, `{}`, types.ErrTransientAuth},
		{"not json", http.StatusOK, `<html>`, types.ErrTransientAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{login: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}}
			f := newFixture(t, svc, account)

			_, err := f.client.Authenticate(context.Background(), credentials.Credentials(account))
			require.ErrorIs(t, err, tt.want)
			assert.True(t, types.IsAuthError(err))
		})
	}
}

func TestUnit_Remote_AuthenticateNetworkFailure(t *testing.T) {
	f := newFixture(t, &fakeService{}, account)
	f.server.Close()

	_, err := f.client.EnsureSession(context.Background())
	require.ErrorIs(t, err, types.ErrTransientAuth)
}

func TestUnit_Remote_EnsureSessionCaches(t *testing.T) {
	svc := &fakeService{login: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "expires_in": 3600})
	}}
	f := newFixture(t, svc, account)
	ctx := context.Background()

	s1, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	s2, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), svc.logins.Load())

	f.clock.Advance(time.Hour)
	_, err = f.client.EnsureSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.logins.Load())

	f.client.Invalidate()
	assert.Nil(t, f.client.Session())
	_, err = f.client.EnsureSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), svc.logins.Load())
}

func TestUnit_Remote_SessionReadableDuringLogin(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{login: func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "expires_in": 3600})
	}}
	f := newFixture(t, svc, account)

	done := make(chan error, 1)
	go func() {
		_, err := f.client.EnsureSession(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return svc.logins.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	read := make(chan *types.Session, 1)
	go func() { read <- f.client.Session() }()
	select {
	case sess := <-read:
		assert.Nil(t, sess)
	case <-time.After(time.Second):
		t.Fatal("Session blocked behind an in-flight login")
	}

	close(release)
	require.NoError(t, <-done)
	assert.NotNil(t, f.client.Session())
}

func TestUnit_Remote_EnsureSessionWithoutCredentials(t *testing.T) {
	svc := &fakeService{}
	f := newFixture(t, svc, nil)
	_, err := f.client.EnsureSession(context.Background())
	require.ErrorIs(t, err, types.ErrNoCredentials)

	f = newFixture(t, svc, credentials.Static{})
	_, err = f.client.EnsureSession(context.Background())
	require.ErrorIs(t, err, types.ErrNoCredentials)
	assert.Zero(t, svc.logins.Load())
}

func TestUnit_Remote_UploadSendsMultipart(t *testing.T) {
	svc := &fakeService{upload: func(w http.ResponseWriter, r *http.Request, _ int32) {
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "fit-uploader/")

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "ride1.fit", header.Filename)
		assert.Equal(t, "FIT-DATA", string(data))

		writeJSON(w, http.StatusAccepted, map[string]any{
			"detailedImportResult": map[string]any{
				"successes": []any{map[string]any{"internalId": 987654321}},
			},
		})
	}}
	f := newFixture(t, svc, account)
	ctx := context.Background()

	sess, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	res, err := f.client.Upload(ctx, sess, f.file)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "987654321", res.RemoteID)
}

func TestUnit_Remote_UploadClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		outcome   types.UploadOutcome
		transient bool
		remoteID  string
		err       error
	}{
		{"created", http.StatusCreated, `{"activityId":1001}`, types.OutcomeSucceeded, false, "1001", nil},
		{"created without id", http.StatusOK, `{"unexpected":"shape"}`, types.OutcomeSucceeded, false, "", nil},
		{"conflict", http.StatusConflict, `{"message":"Conflict"}`, types.OutcomeDuplicate, false, "", nil},
		{"accepted duplicate", http.StatusAccepted, `{"failures":[{"messages":[{"content":"Duplicate Activity."}]}]}`, types.OutcomeDuplicate, false, "", nil},
		{"rejected duplicate", http.StatusUnprocessableEntity, `Duplicate activity`, types.OutcomeDuplicate, false, "", nil},
		{"rejected", http.StatusBadRequest, `<h1>Bad file</h1>`, types.OutcomeFailed, false, "", types.ErrUploadRejected},
		{"server error", http.StatusInternalServerError, `oops`, types.OutcomeFailed, true, "", types.ErrUploadTransient},
		{"throttled", http.StatusTooManyRequests, ``, types.OutcomeFailed, true, "", types.ErrUploadTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{upload: func(w http.ResponseWriter, _ *http.Request, _ int32) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}}
			f := newFixture(t, svc, account)
			ctx := context.Background()

			sess, err := f.client.EnsureSession(ctx)
			require.NoError(t, err)
			res, err := f.client.Upload(ctx, sess, f.file)
			if tt.err == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.transient, res.Transient)
			assert.Equal(t, tt.remoteID, res.RemoteID)
			assert.Equal(t, int32(1), svc.uploads.Load(), "no in-cycle retry")
		})
	}
}

func TestUnit_Remote_UploadReauthenticatesOnce(t *testing.T) {
	svc := &fakeService{upload: func(w http.ResponseWriter, _ *http.Request, n int32) {
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"activityId": "77"})
	}}
	f := newFixture(t, svc, account)
	ctx := context.Background()

	sess, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	res, err := f.client.Upload(ctx, sess, f.file)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "77", res.RemoteID)
	assert.Equal(t, int32(2), svc.logins.Load())
	assert.Equal(t, int32(2), svc.uploads.Load())
}

func TestUnit_Remote_UploadGivesUpAfterSecondAuthFailure(t *testing.T) {
	svc := &fakeService{upload: func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusForbidden)
	}}
	f := newFixture(t, svc, account)
	ctx := context.Background()

	sess, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	res, err := f.client.Upload(ctx, sess, f.file)
	require.ErrorIs(t, err, types.ErrSessionExpired)
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.True(t, res.Transient)
	assert.Equal(t, int32(2), svc.uploads.Load())
	assert.Nil(t, f.client.Session())
}

func TestUnit_Remote_UploadNetworkFailure(t *testing.T) {
	f := newFixture(t, &fakeService{}, account)
	ctx := context.Background()

	sess, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	f.server.Close()

	res, err := f.client.Upload(ctx, sess, f.file)
	require.ErrorIs(t, err, types.ErrUploadTransient)
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.True(t, res.Transient)
}

func TestUnit_Remote_UploadMissingFile(t *testing.T) {
	f := newFixture(t, &fakeService{}, account)
	ctx := context.Background()

	sess, err := f.client.EnsureSession(ctx)
	require.NoError(t, err)
	res, err := f.client.Upload(ctx, sess, types.ActivityFile{Path: "/wahoo/gone.fit"})
	require.ErrorIs(t, err, types.ErrUploadTransient)
	assert.True(t, res.Transient)
	assert.Zero(t, f.svc.uploads.Load())
}
