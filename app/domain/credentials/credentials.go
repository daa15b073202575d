// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package credentials supplies the account used to sign in to the fitness
// service. The engine only ever asks for credentials on demand and never
// stores or logs the plaintext password itself.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/cloudzero/fit-uploader/app/types"
)

const (
	EnvEmail    = "FIT_UPLOADER_EMAIL"
	EnvPassword = "FIT_UPLOADER_PASSWORD" //nolint:gosec // variable name, not a secret

	fileMode = 0o600
	dirMode  = 0o700
)

//go:generate mockgen -destination=mocks/provider_mock.go -package=mocks . Provider

// Provider returns credentials on demand. It returns types.ErrNoCredentials
// when it has nothing to offer.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Credentials is an email and password pair.
type Credentials struct {
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"-"`
}

// Empty reports whether either half is missing.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Email) == "" || c.Password == ""
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s:<redacted>", c.Email)
}

func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("email", c.Email).Bool("hasPassword", c.Password != "")
}

// Static always returns the same credentials.
type Static Credentials

func (s Static) Credentials(context.Context) (Credentials, error) {
	c := Credentials(s)
	if c.Empty() {
		return Credentials{}, types.ErrNoCredentials
	}
	return c, nil
}

// EnvProvider reads FIT_UPLOADER_EMAIL and FIT_UPLOADER_PASSWORD.
type EnvProvider struct{}

func (EnvProvider) Credentials(context.Context) (Credentials, error) {
	c := Credentials{Email: os.Getenv(EnvEmail), Password: os.Getenv(EnvPassword)}
	if c.Empty() {
		return Credentials{}, types.ErrNoCredentials
	}
	return c, nil
}

// FileProvider reads credentials from a YAML file readable only by its owner.
type FileProvider struct {
	fs   afero.Fs
	path string
}

func NewFileProvider(fs afero.Fs, path string) *FileProvider {
	return &FileProvider{fs: fs, path: path}
}

func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Credentials(context.Context) (Credentials, error) {
	raw, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, types.ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var c Credentials
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Credentials{}, errors.Join(types.ErrNoCredentials, fmt.Errorf("failed to decode credentials file: %w", err))
	}
	if c.Empty() {
		return Credentials{}, types.ErrNoCredentials
	}
	return c, nil
}

// Save writes c, replacing any previous file.
func (p *FileProvider) Save(c Credentials) error {
	if c.Empty() {
		return types.ErrNoCredentials
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := p.fs.MkdirAll(filepath.Dir(p.path), dirMode); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, raw, fileMode); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := p.fs.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return p.fs.Chmod(p.path, fileMode)
}

// Chain asks each provider in turn and returns the first credentials found.
// Only types.ErrNoCredentials moves on to the next provider.
type Chain []Provider

func (c Chain) Credentials(ctx context.Context) (Credentials, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		creds, err := p.Credentials(ctx)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, types.ErrNoCredentials) {
			return Credentials{}, err
		}
	}
	return Credentials{}, types.ErrNoCredentials
}
