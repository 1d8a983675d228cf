/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage keeps rendered exports in a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/friendsincode/timedimension/internal/config"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns where a stored object can be fetched, or "" when the store
	// has no public address.
	URL(key string) string
}

// New selects S3 when a bucket is configured and the local export directory
// otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ObjectStore, error) {
	logger = logger.With().Str("component", "storage").Logger()
	if cfg.UsesS3() {
		store, err := NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("exports stored in s3")
		return store, nil
	}

	baseURL := ""
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/") + "/exports"
	}
	store, err := NewFSStore(cfg.ExportRoot, baseURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("root", cfg.ExportRoot).Msg("exports stored on local filesystem")
	return store, nil
}

// cleanKey normalises an object key and rejects keys escaping the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}
