// Package interfaces defines the core contracts and data types shared across
// the tiered content store.
//
// The central abstraction is the Backend interface, which every storage
// implementation (in-process memory, local disk, Redis, S3-compatible object
// store, and the hybrid tiering orchestrator) satisfies. Callers address
// content by an opaque locator ID and receive back an Envelope describing the
// stored object; they never see which physical backend served a request.
//
// # Locators
//
// A locator is an opaque string naming one logical content item. It is stable
// across all backends and is never interpreted beyond serving as a map key or
// a backend-specific path/key fragment.
//
// # Error taxonomy
//
// All expected failure conditions are typed sentinel errors matched with
// errors.Is:
//
//   - ErrNotFound          - the locator holds no content
//   - ErrVersionNotFound   - the requested version does not exist
//   - ErrPermissionDenied  - the backend rejected the operation
//   - ErrTransient         - retryable network or I/O failure
//   - ErrContentTooLarge   - content exceeds a backend limit
//   - ErrInvalidVersion    - malformed or unusable version identifier
//   - ErrPartialFailure    - some or all tiers of a hybrid operation failed
//
// Backends attach the underlying cause with %w wrapping so diagnostics are
// never lost. No operation panics for an expected condition such as missing
// content or a missing version.
//
// # Versioning
//
// Each backend maintains a per-locator version history. Version IDs are
// unique within (locator, backend), and ListVersions always returns records
// newest first.
//
// # Storage URIs
//
// Backends are addressed by URI:
//
//	memory://
//	file:///var/lib/tierstore/blobs
//	redis://localhost:6379/0
//	s3://bucket-name/prefix/?region=us-west-2
//
// BackendLocation parses and validates these URIs for the storage factory.
package interfaces
