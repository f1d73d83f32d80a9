// Package storage provides object storage for organization uploads.
//
// Implementations:
//   - LocalStorage: filesystem storage for development
//   - S3Storage: S3-compatible storage (Cloudflare R2 by default) for production
//
// Keys are namespaced per organization so the bytes an organization holds
// can be summed with Usage for storage ledger reconciliation.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for file storage operations.
type Storage interface {
	// Put stores data at key and returns the stored object's metadata,
	// including the number of bytes written. Returns ErrKeyExists if the key
	// exists and opts.Overwrite is false, ErrTooLarge if data exceeds
	// opts.MaxSize.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) (ObjectInfo, error)

	// Get retrieves the data at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for the object, presigned for expires when the
	// backend supports it.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Usage returns the total bytes stored under prefix.
	Usage(ctx context.Context, prefix string) (int64, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type. Detected from the key when empty.
	ContentType string

	// MaxSize is the maximum allowed size in bytes. 0 means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	BasePath string

	// BaseURL is the public URL prefix for accessing files.
	// Example: "http://localhost:8080/files"
	BaseURL string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	// AccountID is the Cloudflare account ID. Used to build the R2
	// endpoint when Endpoint is empty.
	AccountID string

	// Endpoint overrides the R2 endpoint, e.g. for MinIO.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the AWS SDK. Default: "auto"
	Region string

	// UsePathStyle addresses the bucket in the path instead of the host.
	UsePathStyle bool
}

// endpoint returns the resolved endpoint URL.
func (c S3Config) endpoint() string {
	if c.Endpoint != "" {
		return strings.TrimSuffix(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the S3-compatible storage provider.
	ProviderR2 = "r2"
)

// BytesPerMB converts byte counts to the storage ledger unit.
const BytesPerMB = 1024 * 1024

// =============================================================================
// Key Generation Helpers
// =============================================================================

// OrganizationPrefix is the key prefix for everything an organization stores.
func OrganizationPrefix(orgID string) string {
	return fmt.Sprintf("organizations/%s/", orgID)
}

// FileKey generates a storage key for an uploaded file.
// Format: organizations/{orgID}/files/{uuid}{ext}
func FileKey(orgID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%sfiles/%s%s", OrganizationPrefix(orgID), uuid.New(), ext)
}

// BytesToMB converts a byte count to megabytes for the storage ledger.
func BytesToMB(n int64) float64 {
	return float64(n) / BytesPerMB
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
