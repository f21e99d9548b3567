package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tierstore/tierstore/interfaces"
)

const versionDirName = ".versions"

// DiskBackend implements a storage backend using the local file system.
// Blobs live under a configured root directory; version history is emulated
// with per-version content files and JSON ".meta" sidecars, since the file
// system has no native versioning.
type DiskBackend struct {
	rootDir     string
	log         *slog.Logger
	locationURI string
}

// diskVersionMeta is the sidecar schema written next to each version file.
type diskVersionMeta struct {
	VersionID     string    `json:"version_id"`
	Locator       string    `json:"locator_id"`
	CommitMessage string    `json:"commit_message"`
	CreatedAt     time.Time `json:"created_at"`
	Size          int64     `json:"size"`
}

// NewDiskBackend creates a disk storage backend rooted at rootDir, creating
// the directory if needed.
func NewDiskBackend(rootDir string, log *slog.Logger) (*DiskBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &DiskBackend{
		rootDir:     rootDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", rootDir),
	}, nil
}

// resolveUnder maps a locator to a path under base. Locators that would
// escape base are rejected.
func resolveUnder(base, locator string) (string, error) {
	path := filepath.Join(base, filepath.FromSlash(locator))
	if !strings.HasPrefix(path, filepath.Clean(base)+string(os.PathSeparator)) {
		return "", fmt.Errorf("locator %q escapes storage root: %w", locator, interfaces.ErrPermissionDenied)
	}
	return path, nil
}

// blobPath maps a locator to its on-disk path.
func (b *DiskBackend) blobPath(locator string) (string, error) {
	return resolveUnder(b.rootDir, locator)
}

// versionDir maps a locator to its version directory, with the same escape
// guard as blobPath.
func (b *DiskBackend) versionDir(locator string) (string, error) {
	return resolveUnder(filepath.Join(b.rootDir, versionDirName), locator)
}

// mapOSError translates file system failures into the storage error taxonomy,
// keeping the underlying message for diagnostics.
func mapOSError(locator string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("disk: %s: %w", locator, interfaces.ErrNotFound)
	case os.IsPermission(err):
		return fmt.Errorf("disk: %s: %w: %v", locator, interfaces.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("disk: %s: %w: %v", locator, interfaces.ErrTransient, err)
	}
}

// writeAtomic writes data via a temp file and rename so readers never observe
// a partial blob.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Write stores content at the locator, creating parent directories as needed.
func (b *DiskBackend) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	path, err := b.blobPath(locator)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(path, content); err != nil {
		return nil, mapOSError(locator, err)
	}

	b.log.Debug("Stored blob on disk",
		slog.String("locator", locator),
		slog.Int("size", len(content)))

	return &interfaces.Envelope{
		Locator:  locator,
		Size:     int64(len(content)),
		StoredAt: time.Now(),
		Backend:  b.Name(),
		Path:     path,
	}, nil
}

// Read returns the content stored at the locator.
func (b *DiskBackend) Read(ctx context.Context, locator string) ([]byte, error) {
	path, err := b.blobPath(locator)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mapOSError(locator, err)
	}
	return data, nil
}

// Delete removes the locator's blob and version directory. A missing blob is
// success.
func (b *DiskBackend) Delete(ctx context.Context, locator string) error {
	path, err := b.blobPath(locator)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return mapOSError(locator, err)
	}
	dir, err := b.versionDir(locator)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		b.log.Warn("Failed to remove version directory",
			slog.String("locator", locator), "err", err)
	}
	return nil
}

// Exists reports whether the locator's blob is present. Errors report false.
func (b *DiskBackend) Exists(ctx context.Context, locator string) bool {
	path, err := b.blobPath(locator)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Stat reads file system metadata without touching the content.
func (b *DiskBackend) Stat(ctx context.Context, locator string) (*interfaces.Envelope, error) {
	path, err := b.blobPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, mapOSError(locator, err)
	}

	return &interfaces.Envelope{
		Locator:  locator,
		Size:     info.Size(),
		StoredAt: info.ModTime(),
		Backend:  b.Name(),
		Path:     path,
	}, nil
}

// CreateVersion writes the version content plus its sidecar under the
// version directory, then refreshes the current blob.
func (b *DiskBackend) CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *interfaces.VersionRecord, error) {
	dir, err := b.versionDir(locator)
	if err != nil {
		return "", nil, err
	}
	versionID := uuid.NewString()

	meta := diskVersionMeta{
		VersionID:     versionID,
		Locator:       locator,
		CommitMessage: message,
		CreatedAt:     time.Now(),
		Size:          int64(len(content)),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", nil, fmt.Errorf("disk: marshal version meta: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, versionID), content); err != nil {
		return "", nil, mapOSError(locator, err)
	}
	if err := writeAtomic(filepath.Join(dir, versionID+".meta"), metaBytes); err != nil {
		return "", nil, mapOSError(locator, err)
	}
	if _, err := b.Write(ctx, locator, content); err != nil {
		return "", nil, err
	}

	record := &interfaces.VersionRecord{
		VersionID:     versionID,
		CreatedAt:     meta.CreatedAt,
		Size:          meta.Size,
		CommitMessage: message,
		Backend:       b.Name(),
		IsLatest:      true,
	}
	return versionID, record, nil
}

// ListVersions enumerates the ".meta" sidecars and sorts by embedded
// created_at, newest first. A locator with no versions yields an empty slice.
func (b *DiskBackend) ListVersions(ctx context.Context, locator string) ([]interfaces.VersionRecord, error) {
	dir, err := b.versionDir(locator)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []interfaces.VersionRecord{}, nil
		}
		return nil, mapOSError(locator, err)
	}

	records := make([]interfaces.VersionRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			b.log.Warn("Failed to read version sidecar",
				slog.String("locator", locator),
				slog.String("file", entry.Name()), "err", err)
			continue
		}
		var meta diskVersionMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			b.log.Warn("Skipping malformed version sidecar",
				slog.String("locator", locator),
				slog.String("file", entry.Name()), "err", err)
			continue
		}
		records = append(records, interfaces.VersionRecord{
			VersionID:     meta.VersionID,
			CreatedAt:     meta.CreatedAt,
			Size:          meta.Size,
			CommitMessage: meta.CommitMessage,
			Backend:       b.Name(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > 0 {
		records[0].IsLatest = true
	}
	return records, nil
}

// GetVersion returns the content of a specific version.
func (b *DiskBackend) GetVersion(ctx context.Context, locator, versionID string) ([]byte, error) {
	if versionID == "" || strings.ContainsAny(versionID, `/\`) {
		return nil, fmt.Errorf("disk: %s: version id %q: %w", locator, versionID, interfaces.ErrInvalidVersion)
	}
	dir, err := b.versionDir(locator)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, versionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("disk: %s@%s: %w", locator, versionID, interfaces.ErrVersionNotFound)
		}
		return nil, mapOSError(locator, err)
	}
	return data, nil
}

// Copy duplicates src's blob under dst.
func (b *DiskBackend) Copy(ctx context.Context, src, dst string) (*interfaces.Envelope, error) {
	content, err := b.Read(ctx, src)
	if err != nil {
		return nil, err
	}
	return b.Write(ctx, dst, content)
}

// Available reports whether the root directory is accessible.
func (b *DiskBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.rootDir)
	return err == nil
}

// Name returns the backend identifier.
func (b *DiskBackend) Name() string {
	return interfaces.KindDisk.String()
}

// LocationURI returns the URI of this backend.
func (b *DiskBackend) LocationURI() string {
	return b.locationURI
}
