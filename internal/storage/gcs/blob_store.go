// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/andybalholm/brotli"
)

// CompressedSuffix is appended to the name of the brotli copy of each object.
const CompressedSuffix = ".br"

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket   string
	Prefix   string
	Compress bool
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client   *storage.Client
	bucket   string
	prefix   string
	compress bool
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		compress: cfg.Compress,
	}, nil
}

// PutObject uploads data under the prefix and returns a gs:// URI. With
// compression enabled a brotli copy is written next to it.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	objectName := path.Join(s.prefix, name)
	if err := s.write(ctx, objectName, contentType, "", data); err != nil {
		return "", err
	}
	if s.compress {
		packed, err := compress(data)
		if err != nil {
			return "", err
		}
		if err := s.write(ctx, objectName+CompressedSuffix, contentType, "br", packed); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

func (s *BlobStore) write(ctx context.Context, objectName, contentType, encoding string, data []byte) error {
	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if encoding != "" {
		writer.ContentEncoding = encoding
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object %s: %w (close writer: %v)", objectName, err, closeErr)
		}
		return fmt.Errorf("copy object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", objectName, err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}
