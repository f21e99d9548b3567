package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested locator does not exist in the
	// storage backend.
	ErrNotFound = errors.New("content not found")

	// ErrVersionNotFound is returned when a specific version of a locator does
	// not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrPermissionDenied is returned when the backend rejects the operation
	// for authorization reasons.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTransient is returned for network and I/O failures that the caller may
	// retry. The underlying error is always attached for diagnostics.
	ErrTransient = errors.New("transient storage error")

	// ErrContentTooLarge is returned when content exceeds a backend's size limit.
	ErrContentTooLarge = errors.New("content too large")

	// ErrInvalidVersion is returned when a version identifier is malformed or
	// cannot be used with the target backend.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrPartialFailure is returned by multi-tier operations where some but not
	// all tiers failed, or where every tier failed. The wrapping error names
	// the tiers involved so operators can tell which backend is unhealthy.
	ErrPartialFailure = errors.New("partial storage failure")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible. This could be due to network issues, authentication failures,
	// or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or unsupported. URIs must follow the format:
	// [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// Envelope describes one stored object. It is returned from every write and
// stat call and is the only metadata callers ever see; they must not branch on
// which physical backend produced it.
type Envelope struct {
	Locator   string    `json:"locator_id"`
	Size      int64     `json:"size"`
	StoredAt  time.Time `json:"stored_at"`
	Backend   string    `json:"backend"`
	VersionID string    `json:"version_id,omitempty"`
	ETag      string    `json:"etag,omitempty"`

	// Backend-specific address fields. Disk fills Path, the object store
	// fills Bucket and Key.
	Path   string `json:"path,omitempty"`
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
}

// VersionRecord describes one stored version of a locator. Version IDs are
// unique within (locator, backend).
type VersionRecord struct {
	VersionID     string    `json:"version_id"`
	CreatedAt     time.Time `json:"created_at"`
	Size          int64     `json:"size"`
	CommitMessage string    `json:"commit_message,omitempty"`
	Backend       string    `json:"backend"`
	ETag          string    `json:"etag,omitempty"`
	IsLatest      bool      `json:"is_latest,omitempty"`
}

// Backend provides locator-addressed blob storage. Implementations must be
// safe for concurrent use; a backend's own write must be visible to its own
// subsequent read.
type Backend interface {
	// Write stores content at the locator, overwriting any existing content.
	Write(ctx context.Context, locator string, content []byte) (*Envelope, error)

	// Read returns the content stored at the locator, or ErrNotFound.
	Read(ctx context.Context, locator string) ([]byte, error)

	// Delete removes the locator. Deleting an absent locator is success.
	Delete(ctx context.Context, locator string) error

	// Exists reports whether the locator holds content. It never fails;
	// ambiguous or transient errors report false.
	Exists(ctx context.Context, locator string) bool

	// Stat returns metadata for the locator without transferring content.
	Stat(ctx context.Context, locator string) (*Envelope, error)

	// CreateVersion stores content as a new version of the locator and
	// returns the new version ID with its record.
	CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *VersionRecord, error)

	// ListVersions returns all versions of the locator, newest first.
	ListVersions(ctx context.Context, locator string) ([]VersionRecord, error)

	// GetVersion returns the content of a specific version, or
	// ErrVersionNotFound.
	GetVersion(ctx context.Context, locator, versionID string) ([]byte, error)

	// Copy duplicates the content at src under dst within this backend.
	Copy(ctx context.Context, src, dst string) (*Envelope, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging and stats.
	Name() string

	// LocationURI returns a URI identifying this backend.
	LocationURI() string
}

// Presigner is implemented by backends that can issue time-bounded URLs for
// direct client access without routing bytes through this service.
type Presigner interface {
	// GeneratePresignedURL issues a URL valid for expiresIn granting method
	// ("GET" or "PUT") access to the locator.
	GeneratePresignedURL(ctx context.Context, locator, method string, expiresIn time.Duration) (string, error)
}

// BackendFactory creates storage backends.
type BackendFactory interface {
	// BackendFor creates a backend from a URI.
	// Supports memory://, file://, redis://, s3://
	BackendFor(location BackendLocation) (Backend, error)
}
