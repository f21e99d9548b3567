package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tierstore/tierstore/interfaces"
)

// MemoryBackend implements a volatile in-process storage backend. It is the
// default hot tier: fast, byte-for-byte transparent, and lost on restart.
type MemoryBackend struct {
	mu       sync.RWMutex
	blobs    map[string]memBlob
	versions map[string][]memVersion
}

type memBlob struct {
	content  []byte
	storedAt time.Time
}

type memVersion struct {
	record  interfaces.VersionRecord
	content []byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		blobs:    make(map[string]memBlob),
		versions: make(map[string][]memVersion),
	}
}

func (b *MemoryBackend) envelope(locator string, blob memBlob) *interfaces.Envelope {
	return &interfaces.Envelope{
		Locator:  locator,
		Size:     int64(len(blob.content)),
		StoredAt: blob.storedAt,
		Backend:  b.Name(),
	}
}

// Write stores a copy of content under the locator, overwriting any previous
// content.
func (b *MemoryBackend) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	stored := memBlob{content: append([]byte(nil), content...), storedAt: time.Now()}

	b.mu.Lock()
	b.blobs[locator] = stored
	b.mu.Unlock()

	return b.envelope(locator, stored), nil
}

// Read returns a copy of the content stored at the locator.
func (b *MemoryBackend) Read(ctx context.Context, locator string) ([]byte, error) {
	b.mu.RLock()
	blob, ok := b.blobs[locator]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("memory: %s: %w", locator, interfaces.ErrNotFound)
	}
	return append([]byte(nil), blob.content...), nil
}

// Delete removes the locator and its version history. Absent locators are
// success.
func (b *MemoryBackend) Delete(ctx context.Context, locator string) error {
	b.mu.Lock()
	delete(b.blobs, locator)
	delete(b.versions, locator)
	b.mu.Unlock()
	return nil
}

// Exists reports whether the locator holds content.
func (b *MemoryBackend) Exists(ctx context.Context, locator string) bool {
	b.mu.RLock()
	_, ok := b.blobs[locator]
	b.mu.RUnlock()
	return ok
}

// Stat returns metadata for the locator without copying content.
func (b *MemoryBackend) Stat(ctx context.Context, locator string) (*interfaces.Envelope, error) {
	b.mu.RLock()
	blob, ok := b.blobs[locator]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("memory: %s: %w", locator, interfaces.ErrNotFound)
	}
	return b.envelope(locator, blob), nil
}

// CreateVersion stores content as a new version and refreshes the current
// content.
func (b *MemoryBackend) CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *interfaces.VersionRecord, error) {
	record := interfaces.VersionRecord{
		VersionID:     uuid.NewString(),
		CreatedAt:     time.Now(),
		Size:          int64(len(content)),
		CommitMessage: message,
		Backend:       b.Name(),
		IsLatest:      true,
	}
	stored := append([]byte(nil), content...)

	b.mu.Lock()
	for i := range b.versions[locator] {
		b.versions[locator][i].record.IsLatest = false
	}
	b.versions[locator] = append(b.versions[locator], memVersion{record: record, content: stored})
	b.blobs[locator] = memBlob{content: stored, storedAt: record.CreatedAt}
	b.mu.Unlock()

	return record.VersionID, &record, nil
}

// ListVersions returns the locator's versions newest first.
func (b *MemoryBackend) ListVersions(ctx context.Context, locator string) ([]interfaces.VersionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	versions := b.versions[locator]
	out := make([]interfaces.VersionRecord, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, versions[i].record)
	}
	return out, nil
}

// GetVersion returns the content of a specific version.
func (b *MemoryBackend) GetVersion(ctx context.Context, locator, versionID string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, v := range b.versions[locator] {
		if v.record.VersionID == versionID {
			return append([]byte(nil), v.content...), nil
		}
	}
	return nil, fmt.Errorf("memory: %s@%s: %w", locator, versionID, interfaces.ErrVersionNotFound)
}

// Copy duplicates src's content under dst.
func (b *MemoryBackend) Copy(ctx context.Context, src, dst string) (*interfaces.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	blob, ok := b.blobs[src]
	if !ok {
		return nil, fmt.Errorf("memory: %s: %w", src, interfaces.ErrNotFound)
	}
	stored := memBlob{content: append([]byte(nil), blob.content...), storedAt: time.Now()}
	b.blobs[dst] = stored
	return b.envelope(dst, stored), nil
}

// Available always reports true for the in-process backend.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns the backend identifier.
func (b *MemoryBackend) Name() string {
	return interfaces.KindMemory.String()
}

// LocationURI returns the URI of this backend.
func (b *MemoryBackend) LocationURI() string {
	return "memory://"
}

// Len returns the number of stored locators, for stats.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
