// Package gcs stores HTML snapshots in Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// CacheControl is set on new objects; snapshots never change once written.
	CacheControl string
}

// objectWriterFunc opens a writer that only creates bucket/path.
type objectWriterFunc func(ctx context.Context, bucket, path string, attrs storage.ObjectAttrs) io.WriteCloser

// BlobStore writes snapshots to a bucket. Paths embed the content hash, so
// uploads are create-only and an existing object counts as success.
type BlobStore struct {
	cfg       Config
	newWriter objectWriterFunc
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	return newBlobStore(cfg, func(ctx context.Context, bucket, path string, attrs storage.ObjectAttrs) io.WriteCloser {
		obj := client.Bucket(bucket).Object(path).If(storage.Conditions{DoesNotExist: true})
		w := obj.NewWriter(ctx)
		w.ContentType = attrs.ContentType
		w.CacheControl = attrs.CacheControl
		return w
	})
}

func newBlobStore(cfg Config, fn objectWriterFunc) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "private, max-age=31536000, immutable"
	}
	return &BlobStore{cfg: cfg, newWriter: fn}, nil
}

// PutObject uploads data and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("path is required")
	}
	uri := fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, path)
	w := s.newWriter(ctx, s.cfg.Bucket, path, storage.ObjectAttrs{
		ContentType:  contentType,
		CacheControl: s.cfg.CacheControl,
	})
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		if alreadyExists(err) {
			return uri, nil
		}
		return "", fmt.Errorf("finalize %s: %w", uri, err)
	}
	return uri, nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
