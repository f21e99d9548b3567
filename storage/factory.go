package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tierstore/tierstore/interfaces"
)

// Factory creates storage backends from URI strings and assembles the hybrid
// tiering backend.
type Factory struct {
	log *slog.Logger
}

var _ interfaces.BackendFactory = (*Factory)(nil)

// NewFactory creates a factory instance. A nil logger falls back to the
// default slog logger.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{log: logger}
}

// BackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - In-process volatile storage
//   - file:// - Local filesystem storage
//   - redis:// - Redis server storage
//   - s3:// - Amazon S3 or compatible object storage
//
// Unrecognized query parameters are ignored. Returns an error if the URI is
// invalid or the scheme is unsupported.
func (f *Factory) BackendFor(location interfaces.BackendLocation) (interfaces.Backend, error) {
	switch location.Scheme {
	case "memory":
		return NewMemoryBackend(), nil
	case "file":
		return f.createDiskBackend(location)
	case "redis", "rediss":
		return f.createRedisBackend(location)
	case "s3":
		return f.createS3Backend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// BackendForURI parses the URI and creates the backend in one step.
func (f *Factory) BackendForURI(uri string) (interfaces.Backend, error) {
	location, err := interfaces.NewBackendLocation(uri)
	if err != nil {
		return nil, err
	}
	return f.BackendFor(location)
}

func (f *Factory) createDiskBackend(location interfaces.BackendLocation) (interfaces.Backend, error) {
	rootDir := location.Path
	if location.Host != "" {
		// file://relative/path parses the first segment as host
		rootDir = location.Host + location.Path
	}
	if rootDir == "" {
		return nil, fmt.Errorf("%w: file URI requires a path", interfaces.ErrInvalidLocationURI)
	}
	return NewDiskBackend(rootDir, f.log)
}

func (f *Factory) createRedisBackend(location interfaces.BackendLocation) (interfaces.Backend, error) {
	cfg := RedisConfig{
		KeyPrefix: location.GetParam("prefix"),
	}
	if raw := location.GetParam("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid redis ttl %q", interfaces.ErrInvalidLocationURI, raw)
		}
		cfg.TTL = ttl
	}

	// Strip our own parameters; go-redis rejects options it does not know.
	parsed, err := url.Parse(location.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}
	query := parsed.Query()
	query.Del("ttl")
	query.Del("prefix")
	parsed.RawQuery = query.Encode()
	cfg.URL = parsed.String()

	return NewRedisBackend(context.Background(), cfg, f.log)
}

func (f *Factory) createS3Backend(location interfaces.BackendLocation) (interfaces.Backend, error) {
	cfg := S3Config{
		Bucket:         location.Host,
		KeyPrefix:      location.Path,
		Region:         location.GetParam("region"),
		Endpoint:       location.GetParam("endpoint"),
		AccessKey:      location.GetParam("access_key"),
		SecretKey:      location.GetParam("secret_key"),
		ForcePathStyle: location.GetParamBool("path_style"),
		StorageClass:   location.GetParam("storage_class"),
	}
	if location.Auth != "" {
		// s3://ACCESS:SECRET@bucket/prefix
		if user, pass, ok := splitAuth(location.Auth); ok {
			cfg.AccessKey = user
			cfg.SecretKey = pass
		}
	}
	if raw := location.GetParam("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid s3 timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		cfg.RequestTimeout = timeout
	}

	return NewS3Backend(cfg, f.log)
}

func splitAuth(auth string) (user, pass string, ok bool) {
	parsed, err := url.Parse("scheme://" + auth + "@host")
	if err != nil || parsed.User == nil {
		return "", "", false
	}
	pass, _ = parsed.User.Password()
	return parsed.User.Username(), pass, true
}

// BuildHybrid creates the hot, cold, and optional backup backends from their
// URIs and assembles the tiering orchestrator around them. An empty hot URI
// defaults to memory://; an empty backup URI means the cold tier doubles as
// backup.
func (f *Factory) BuildHybrid(hotURI, coldURI, backupURI string, cfg HybridConfig) (*Hybrid, error) {
	if coldURI == "" {
		return nil, fmt.Errorf("%w: hybrid requires a cold tier URI", interfaces.ErrInvalidLocationURI)
	}

	if hotURI == "" {
		hotURI = "memory://"
	}
	hot, err := f.BackendForURI(hotURI)
	if err != nil {
		return nil, fmt.Errorf("hot tier: %w", err)
	}

	cold, err := f.BackendForURI(coldURI)
	if err != nil {
		return nil, fmt.Errorf("cold tier: %w", err)
	}

	var backup interfaces.Backend
	if backupURI != "" && backupURI != coldURI {
		backup, err = f.BackendForURI(backupURI)
		if err != nil {
			f.log.Warn("Failed to create backup tier, continuing without it",
				slog.String("uri", backupURI), "err", err)
		}
	}

	cfg.Hot = hot
	cfg.Cold = cold
	cfg.Backup = backup
	cfg.Log = f.log
	return NewHybrid(cfg)
}
