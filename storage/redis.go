package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tierstore/tierstore/interfaces"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// URL is a standard connection string:
	// redis://<user>:<password>@<host>:<port>/<db>
	URL string
	// TTL, when positive, expires blobs after the given idle period. A hot
	// tier is allowed to forget; the hybrid orchestrator repairs it from the
	// durable tiers.
	TTL time.Duration
	// KeyPrefix namespaces all keys. Defaults to "tierstore".
	KeyPrefix string
}

// RedisBackend implements a storage backend on a Redis server, intended as a
// shared out-of-process hot tier.
type RedisBackend struct {
	client      *redis.Client
	ttl         time.Duration
	prefix      string
	log         *slog.Logger
	locationURI string
}

// redisMeta mirrors the envelope fields that Redis cannot derive on its own.
type redisMeta struct {
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// NewRedisBackend connects to Redis and verifies the connection before
// returning.
func NewRedisBackend(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*RedisBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w: %v", interfaces.ErrBackendUnavailable, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tierstore"
	}

	return &RedisBackend{
		client:      client,
		ttl:         cfg.TTL,
		prefix:      prefix,
		log:         log,
		locationURI: fmt.Sprintf("redis://%s/%d", opts.Addr, opts.DB),
	}, nil
}

func (b *RedisBackend) blobKey(locator string) string {
	return b.prefix + ":blob:" + locator
}

func (b *RedisBackend) metaKey(locator string) string {
	return b.prefix + ":meta:" + locator
}

func (b *RedisBackend) versionsKey(locator string) string {
	return b.prefix + ":vers:" + locator
}

func (b *RedisBackend) versionContentKey(locator, versionID string) string {
	return b.prefix + ":ver:" + locator + ":" + versionID
}

func mapRedisError(locator string, err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: %s: %w", locator, interfaces.ErrNotFound)
	}
	return fmt.Errorf("redis: %s: %w: %v", locator, interfaces.ErrTransient, err)
}

// Write stores content and its metadata, both subject to the configured TTL.
func (b *RedisBackend) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	meta := redisMeta{Size: int64(len(content)), StoredAt: time.Now()}
	metaBytes, _ := json.Marshal(meta)

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.blobKey(locator), content, b.ttl)
	pipe.Set(ctx, b.metaKey(locator), metaBytes, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, mapRedisError(locator, err)
	}

	return &interfaces.Envelope{
		Locator:  locator,
		Size:     meta.Size,
		StoredAt: meta.StoredAt,
		Backend:  b.Name(),
		Key:      b.blobKey(locator),
	}, nil
}

// Read returns the content stored at the locator.
func (b *RedisBackend) Read(ctx context.Context, locator string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.blobKey(locator)).Bytes()
	if err != nil {
		return nil, mapRedisError(locator, err)
	}
	return data, nil
}

// Delete removes the blob, its metadata, and all version keys. Absent
// locators are success.
func (b *RedisBackend) Delete(ctx context.Context, locator string) error {
	fields, err := b.client.HKeys(ctx, b.versionsKey(locator)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return mapRedisError(locator, err)
	}

	keys := []string{b.blobKey(locator), b.metaKey(locator), b.versionsKey(locator)}
	for _, versionID := range fields {
		keys = append(keys, b.versionContentKey(locator, versionID))
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return mapRedisError(locator, err)
	}
	return nil
}

// Exists reports whether the locator holds content. Connection errors report
// false.
func (b *RedisBackend) Exists(ctx context.Context, locator string) bool {
	n, err := b.client.Exists(ctx, b.blobKey(locator)).Result()
	if err != nil {
		b.log.Warn("Redis existence check failed",
			slog.String("locator", locator), "err", err)
		return false
	}
	return n > 0
}

// Stat returns metadata without transferring the blob.
func (b *RedisBackend) Stat(ctx context.Context, locator string) (*interfaces.Envelope, error) {
	raw, err := b.client.Get(ctx, b.metaKey(locator)).Bytes()
	if err != nil {
		return nil, mapRedisError(locator, err)
	}
	var meta redisMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("redis: %s: %w: corrupt metadata: %v", locator, interfaces.ErrTransient, err)
	}

	return &interfaces.Envelope{
		Locator:  locator,
		Size:     meta.Size,
		StoredAt: meta.StoredAt,
		Backend:  b.Name(),
		Key:      b.blobKey(locator),
	}, nil
}

// CreateVersion stores the content under a fresh version ID and refreshes the
// current blob.
func (b *RedisBackend) CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *interfaces.VersionRecord, error) {
	record := interfaces.VersionRecord{
		VersionID:     uuid.NewString(),
		CreatedAt:     time.Now(),
		Size:          int64(len(content)),
		CommitMessage: message,
		Backend:       b.Name(),
		IsLatest:      true,
	}
	recordBytes, _ := json.Marshal(record)

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.versionContentKey(locator, record.VersionID), content, b.ttl)
	pipe.HSet(ctx, b.versionsKey(locator), record.VersionID, recordBytes)
	if b.ttl > 0 {
		pipe.Expire(ctx, b.versionsKey(locator), b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", nil, mapRedisError(locator, err)
	}

	if _, err := b.Write(ctx, locator, content); err != nil {
		return "", nil, err
	}
	return record.VersionID, &record, nil
}

// ListVersions returns the locator's versions newest first.
func (b *RedisBackend) ListVersions(ctx context.Context, locator string) ([]interfaces.VersionRecord, error) {
	fields, err := b.client.HGetAll(ctx, b.versionsKey(locator)).Result()
	if err != nil {
		return nil, mapRedisError(locator, err)
	}

	records := make([]interfaces.VersionRecord, 0, len(fields))
	for versionID, raw := range fields {
		var record interfaces.VersionRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			b.log.Warn("Skipping malformed version record",
				slog.String("locator", locator),
				slog.String("version_id", versionID), "err", err)
			continue
		}
		record.IsLatest = false
		records = append(records, record)
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
func (b *RedisBackend) GetVersion(ctx context.Context, locator, versionID string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.versionContentKey(locator, versionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: %s@%s: %w", locator, versionID, interfaces.ErrVersionNotFound)
		}
		return nil, mapRedisError(locator, err)
	}
	return data, nil
}

// Copy duplicates src's content under dst.
func (b *RedisBackend) Copy(ctx context.Context, src, dst string) (*interfaces.Envelope, error) {
	content, err := b.Read(ctx, src)
	if err != nil {
		return nil, err
	}
	return b.Write(ctx, dst, content)
}

// Available reports whether the Redis server answers a ping.
func (b *RedisBackend) Available(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.client.Ping(pingCtx).Err() == nil
}

// Name returns the backend identifier.
func (b *RedisBackend) Name() string {
	return interfaces.KindRedis.String()
}

// LocationURI returns the URI of this backend.
func (b *RedisBackend) LocationURI() string {
	return b.locationURI
}

// Close releases the client's connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
