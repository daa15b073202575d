// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package minio mirrors archived activity files to S3 compatible object
// storage. The mirror is a backup only; the local archive folder stays the
// source of truth.
package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/cloudzero/fit-uploader/app/types"
)

const fitContentType = "application/vnd.ant.fit"

// objectAPI is the subset of *minio.Client used by the mirror.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Client mirrors files into a single bucket.
type Client struct {
	client     objectAPI
	bucketName string
	fs         afero.Fs

	mu          sync.Mutex
	bucketReady bool
}

// Config holds MinIO client configuration
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// NewClient creates a new MinIO client
func NewClient(cfg Config, fs afero.Fs) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newClient(client, cfg.BucketName, fs), nil
}

func newClient(api objectAPI, bucket string, fs afero.Fs) *Client {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Client{client: api, bucketName: bucket, fs: fs}
}

// BuildKey places a file under its source and the month it was last
// modified, e.g. wahoo/2025/03/ride.fit.
func (c *Client) BuildKey(file types.ActivityFile) string {
	mod := file.ModTime.UTC()
	return path.Join(
		string(file.Source),
		fmt.Sprintf("%04d", mod.Year()),
		fmt.Sprintf("%02d", int(mod.Month())),
		file.Name(),
	)
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = c.client.MakeBucket(ctx, c.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucketName, err)
		}
	}

	return nil
}

// Mirror copies the archived file into the bucket. The bucket is checked
// once per client; a failed check is retried on the next call.
func (c *Client) Mirror(ctx context.Context, file types.ActivityFile, archivedPath string) error {
	if err := c.ensureBucketOnce(ctx); err != nil {
		return err
	}

	f, err := c.fs.Open(archivedPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", archivedPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", archivedPath, err)
	}

	key := c.BuildKey(file)
	uploaded, err := c.client.PutObject(ctx, c.bucketName, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: fitContentType,
		UserMetadata: map[string]string{
			"source":      string(file.Source),
			"content-key": file.Key,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	log.Ctx(ctx).Debug().
		Str("bucket", c.bucketName).
		Str("key", key).
		Int64("size", uploaded.Size).
		Msg("mirrored activity file")
	return nil
}

func (c *Client) ensureBucketOnce(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bucketReady {
		return nil
	}
	if err := c.EnsureBucket(ctx); err != nil {
		return err
	}
	c.bucketReady = true
	return nil
}
