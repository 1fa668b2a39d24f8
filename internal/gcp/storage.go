package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"

	"github.com/pagelift/pagelift/internal/apperr"
)

const perAttemptTimeout = 50 * time.Second

// BlobStore is the GCS-backed content store for raw uploads and page images.
// Blob refs are object names within the configured bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// NewBlobStore creates the process-wide blob store client.
func NewBlobStore(ctx context.Context, bucket string) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a blob store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &BlobStore{client: client, bucket: bucket}, nil
}

// Put writes content to an object only if it doesn't already exist, retrying
// transient failures with exponential backoff. It returns the blob ref.
func (b *BlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	attempt := func() error {
		writeCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		defer cancel()

		obj := b.client.Bucket(b.bucket).Object(key)
		writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
		writer.ContentType = contentType

		if _, err := writer.Write(data); err != nil {
			_ = writer.Close()
			return fmt.Errorf("write to gs://%s/%s failed: %w", b.bucket, key, err)
		}
		if err := writer.Close(); err != nil {
			if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
				slog.Info("Object already exists, skipping write.", "gcsObject", key)
				return nil // Not a failure in an idempotent workflow.
			}
			return fmt.Errorf("finalize gs://%s/%s failed: %w", b.bucket, key, err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.RetryNotify(attempt, policy, func(err error, next time.Duration) {
		slog.Warn("Upload failed, will retry.", "gcsObject", key, "backoff", next.String(), "error", err)
	}); err != nil {
		slog.Error("Upload failed after all retries.", "gcsObject", key, "error", err)
		return "", apperr.Wrap(err, apperr.ErrStorage, "failed to store file")
	}
	return key, nil
}

// Read fetches the full content of a blob. A missing object is a not-found
// condition; anything else is an upstream outage.
func (b *BlobStore) Read(ctx context.Context, ref string) ([]byte, string, error) {
	reader, err := b.client.Bucket(b.bucket).Object(ref).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, "", apperr.Wrap(err, apperr.ErrNotFound, "file not found")
		}
		return nil, "", apperr.Wrap(err, apperr.ErrUpstream, "file store unavailable")
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrUpstream, "file store unavailable")
	}
	return data, reader.Attrs.ContentType, nil
}

// SignedURL resolves a blob ref to a short-lived fetch URL.
func (b *BlobStore) SignedURL(ref string, expiry time.Duration) (string, error) {
	url, err := b.client.Bucket(b.bucket).SignedURL(ref, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.ErrUpstream, "failed to resolve file URL")
	}
	return url, nil
}

// URI returns the gs:// form of a ref, the shape Vertex AI file parts expect.
func (b *BlobStore) URI(ref string) string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, ref)
}

// Close releases the underlying client.
func (b *BlobStore) Close() error {
	return b.client.Close()
}
