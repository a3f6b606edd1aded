// Package blobstore mirrors tenant artifacts (uploaded documents, lexical
// index snapshots) to durable object storage, locally or on S3.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/askdoc/askdoc/internal/config"
)

// Store is a flat key/value blob store.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// New builds a Store from configuration.
func New(ctx context.Context, cfg config.BlobstoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "local", "":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported blobstore type: %s", cfg.Type)
	}
}
