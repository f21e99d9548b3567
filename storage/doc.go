// Package storage provides locator-addressed blob storage with pluggable
// backends and a hybrid tiering orchestrator.
//
// The package offers a unified interface for storing and retrieving opaque
// byte blobs identified by an opaque locator ID across multiple storage
// backends:
//
//   - In-process memory storage for the default hot tier
//   - File system storage for local durability and backups
//   - Redis storage for a shared out-of-process hot tier
//   - S3-compatible object storage for cloud deployments
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - memory://
//   - file:///var/lib/tierstore/blobs
//   - redis://localhost:6379/0?ttl=1h
//   - s3://bucket-name/prefix/?region=us-west-2&endpoint=http://localhost:9000
//
// # Hybrid Tiering
//
// The Hybrid backend composes a hot, a cold, and an optional backup backend.
// Writes go through all tiers (hot and cold must succeed, backup is
// best-effort). Reads walk the chain hot, cold, backup; a cold hit that
// crosses the access threshold triggers an asynchronous promotion into the
// hot tier, and a backup hit triggers an asynchronous repair of both primary
// tiers. Access frequency and recency per locator are kept by an injected
// tracker.Tracker and reaped on deletes and periodic expiry sweeps.
//
// # Versioning
//
// Every backend keeps a per-locator version history. Disk emulates versions
// with JSON sidecar files, the object store uses native bucket versioning,
// and the hybrid orchestrator treats the cold tier as authoritative for
// version operations.
package storage
