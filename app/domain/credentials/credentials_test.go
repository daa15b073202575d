// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package credentials_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cloudzero/fit-uploader/app/domain/credentials"
	"github.com/cloudzero/fit-uploader/app/domain/credentials/mocks"
	"github.com/cloudzero/fit-uploader/app/types"
)

var account = credentials.Credentials{Email: "rider@example.com", Password: "hunter2"}

func TestUnit_Credentials_Redaction(t *testing.T) {
	assert.NotContains(t, account.String(), "hunter2")
	assert.Contains(t, account.String(), "rider@example.com")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Object("account", account).Msg("login")
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), `"hasPassword":true`)
}

func TestUnit_Credentials_Static(t *testing.T) {
	c, err := credentials.Static(account).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, account, c)

	_, err = credentials.Static{Email: "x@example.com"}.Credentials(context.Background())
	require.ErrorIs(t, err, types.ErrNoCredentials)
}

func TestUnit_Credentials_Env(t *testing.T) {
	t.Setenv(credentials.EnvEmail, "")
	t.Setenv(credentials.EnvPassword, "")
	_, err := credentials.EnvProvider{}.Credentials(context.Background())
	require.ErrorIs(t, err, types.ErrNoCredentials)

	t.Setenv(credentials.EnvEmail, account.Email)
	t.Setenv(credentials.EnvPassword, account.Password)
	c, err := credentials.EnvProvider{}.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, account, c)
}

func TestUnit_Credentials_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := credentials.NewFileProvider(fs, "/cfg/credentials.yaml")
	ctx := context.Background()

	_, err := p.Credentials(ctx)
	require.ErrorIs(t, err, types.ErrNoCredentials)

	require.ErrorIs(t, p.Save(credentials.Credentials{}), types.ErrNoCredentials)
	require.NoError(t, p.Save(account))

	info, err := fs.Stat(p.Path())
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())

	c, err := p.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, account, c)

	require.NoError(t, afero.WriteFile(fs, p.Path(), []byte("::: not yaml"), 0o600))
	_, err = p.Credentials(ctx)
	require.ErrorIs(t, err, types.ErrNoCredentials)
}

func TestUnit_Credentials_Chain(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	empty := mocks.NewMockProvider(ctrl)
	empty.EXPECT().Credentials(gomock.Any()).Return(credentials.Credentials{}, types.ErrNoCredentials).Times(2)
	full := mocks.NewMockProvider(ctrl)
	full.EXPECT().Credentials(gomock.Any()).Return(account, nil)

	c, err := credentials.Chain{empty, nil, full}.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, account, c)

	_, err = credentials.Chain{empty}.Credentials(ctx)
	require.ErrorIs(t, err, types.ErrNoCredentials)

	broken := mocks.NewMockProvider(ctrl)
	broken.EXPECT().Credentials(gomock.Any()).Return(credentials.Credentials{}, errors.New("keyring locked"))
	_, err = credentials.Chain{broken, full}.Credentials(ctx)
	require.EqualError(t, err, "keyring locked")
}
