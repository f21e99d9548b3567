package interfaces

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// BackendKind identifies a backend implementation. It exists for configuration
// selection and reporting only; storage logic never branches on it.
type BackendKind int

const (
	// KindMemory is the in-process volatile backend.
	KindMemory BackendKind = iota
	// KindDisk is the local filesystem backend.
	KindDisk
	// KindRedis is the Redis-backed backend.
	KindRedis
	// KindS3 is the remote object store backend.
	KindS3
	// KindHybrid is the tiering orchestrator composed of the above.
	KindHybrid
)

// String returns the kind name.
func (k BackendKind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindDisk:
		return "disk"
	case KindRedis:
		return "redis"
	case KindS3:
		return "s3"
	case KindHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// OpKind labels one tracked storage operation.
type OpKind string

const (
	OpWrite      OpKind = "write"
	OpReadHot    OpKind = "read_hot"
	OpReadCold   OpKind = "read_cold"
	OpReadBackup OpKind = "read_backup"
	OpDelete     OpKind = "delete"
	OpVersion    OpKind = "version"
)

// BackendLocation represents a URI for a storage backend.
type BackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewBackendLocation creates a storage location from a URI string with
// validation.
func NewBackendLocation(uri string) (BackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return BackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "memory", "file", "redis", "rediss", "s3":
		// Valid scheme
	default:
		return BackendLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return BackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc BackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value. Unrecognized parameters are
// ignored by backend constructors, never treated as errors.
func (loc BackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc BackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// TierFailure records the outcome of one tier during a multi-tier operation.
type TierFailure struct {
	Tier    string
	Backend string
	Err     error
}

// PartialFailureError carries per-tier failures from a hybrid operation. It
// wraps ErrPartialFailure so callers can match it with errors.Is.
type PartialFailureError struct {
	Op       string
	Failures []TierFailure
}

// Error lists the failed tiers so operators can tell which backend is
// unhealthy.
func (e *PartialFailureError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, fmt.Sprintf("%s(%s): %v", f.Tier, f.Backend, f.Err))
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s failed on %s", ErrPartialFailure, e.Op, strings.Join(names, "; "))
}

// Unwrap makes errors.Is(err, ErrPartialFailure) succeed.
func (e *PartialFailureError) Unwrap() error {
	return ErrPartialFailure
}

// FailedTiers returns the names of the tiers that failed.
func (e *PartialFailureError) FailedTiers() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Tier)
	}
	sort.Strings(names)
	return names
}
