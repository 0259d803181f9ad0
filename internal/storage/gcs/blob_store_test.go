package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeWriter struct {
	buf      bytes.Buffer
	closed   bool
	closeErr error
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	var gotBucket, gotPath string
	var gotAttrs storage.ObjectAttrs
	store, err := newBlobStore(Config{Bucket: "leads"}, func(_ context.Context, bucket, path string, attrs storage.ObjectAttrs) io.WriteCloser {
		gotBucket, gotPath, gotAttrs = bucket, path, attrs
		return writer
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "/snapshots/job/abc.html", "text/html", []byte("<html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://leads/snapshots/job/abc.html", uri)
	require.Equal(t, "leads", gotBucket)
	require.Equal(t, "snapshots/job/abc.html", gotPath)
	require.Equal(t, "text/html", gotAttrs.ContentType)
	require.Contains(t, gotAttrs.CacheControl, "immutable")
	require.Equal(t, "<html>", writer.buf.String())
	require.True(t, writer.closed)
}

func TestPutObjectExistingSnapshot(t *testing.T) {
	t.Parallel()

	precondition := fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})
	store, err := newBlobStore(Config{Bucket: "leads"}, func(context.Context, string, string, storage.ObjectAttrs) io.WriteCloser {
		return &fakeWriter{closeErr: precondition}
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "snapshots/job/abc.html", "text/html", []byte("<html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://leads/snapshots/job/abc.html", uri)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	_, err := newBlobStore(Config{}, nil)
	require.Error(t, err)
	_, err = New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	store, err := newBlobStore(Config{Bucket: "b"}, func(context.Context, string, string, storage.ObjectAttrs) io.WriteCloser {
		return &fakeWriter{closeErr: errors.New("quota")}
	})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "x.html", "", []byte("data"))
	require.ErrorContains(t, err, "finalize gs://b/x.html")

	_, err = store.PutObject(context.Background(), "  ", "", nil)
	require.Error(t, err)
}
