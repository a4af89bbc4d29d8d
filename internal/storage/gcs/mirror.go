// Package gcs mirrors archived artifacts to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/spf13/afero"

	"github.com/JakeFAU/paper-archiver/internal/hash/sha256"
)

// ContentType is set on every uploaded artifact.
const ContentType = "application/pdf"

// MetadataChecksum is the object metadata key holding the hex SHA-256.
const MetadataChecksum = "sha256"

// Config captures the parameters required to mirror into GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object key. Empty means the bucket root.
	Prefix string
}

// Mirror uploads local artifacts to a configured GCS bucket.
type Mirror struct {
	client *storage.Client
	fs     afero.Fs
	bucket string
	prefix string
}

// New creates a GCS-backed mirror that reads artifacts from fs.
func New(client *storage.Client, fs afero.Fs, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		fs:     fs,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object key used for key under the configured prefix.
func (m *Mirror) ObjectName(key string) string {
	return path.Join(m.prefix, strings.TrimLeft(key, "/"))
}

// Mirror uploads the artifact at artifactPath under key and returns its
// gs:// URI. The object carries the artifact's SHA-256 in its "sha256"
// metadata entry.
func (m *Mirror) Mirror(ctx context.Context, artifactPath, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	digest, err := sha256.File(m.fs, artifactPath)
	if err != nil {
		return "", fmt.Errorf("checksum artifact: %w", err)
	}
	src, err := m.fs.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	name := m.ObjectName(key)
	writer := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = ContentType
	writer.Metadata = map[string]string{MetadataChecksum: digest}
	if _, err := io.Copy(writer, src); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, name), nil
}
