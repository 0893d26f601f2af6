// Package evidence stores dispute evidence attachments as immutable blobs.
// Disputes keep only the object key; the attachment bytes live in one of the
// pluggable backends below.
package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Driver identifies a concrete evidence storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // small, flat key-value user metadata
}

// Info describes a stored evidence object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Checksum     string            `json:"checksum,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store provides a thin object-store abstraction for evidence attachments.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ObjectKey derives the content-addressed key for a dispute attachment:
// disputes/<project id>/<sha256 of content>.
func ObjectKey(projectID string, content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("disputes/%s/%s", projectID, hex.EncodeToString(sum[:]))
}

// Archive stores raw evidence content under its content-addressed key and
// returns the key. Storing identical content twice for the same project
// yields the same key and is treated as success.
func Archive(ctx context.Context, store Store, projectID string, content []byte, contentType string) (string, error) {
	key := ObjectKey(projectID, content)
	if _, err := store.Head(ctx, key); err == nil {
		return key, nil
	}
	sum := sha256.Sum256(content)
	_, err := store.Put(ctx, key, bytes.NewReader(content), PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"sha256": hex.EncodeToString(sum[:])},
	})
	if err != nil {
		return "", fmt.Errorf("archive evidence: %w", err)
	}
	return key, nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
