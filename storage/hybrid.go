package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tierstore/tierstore/interfaces"
	"github.com/tierstore/tierstore/metrics"
	"github.com/tierstore/tierstore/tracker"
)

func isNotFound(err error) bool {
	return errors.Is(err, interfaces.ErrNotFound)
}

// Tier role names used in logs, stats and partial-failure reports.
const (
	TierHot    = "hot"
	TierCold   = "cold"
	TierBackup = "backup"
)

// HybridConfig configures the tiering orchestrator.
type HybridConfig struct {
	// Hot favors latency. Defaults to an in-process memory backend.
	Hot interfaces.Backend
	// Cold favors durability and is authoritative for version history.
	// Required.
	Cold interfaces.Backend
	// Backup is a last-resort redundant copy. Optional; when it is the same
	// handle as Cold, backup writes are skipped as a no-op success.
	Backup interfaces.Backend

	// AccessThreshold is the access count at which a cold hit promotes the
	// content into the hot tier. Defaults to 3.
	AccessThreshold uint64
	// HotTTL drives maintenance: access-pattern entries idle for 2x HotTTL
	// are swept, and content idle past HotTTL becomes a demotion candidate.
	// Defaults to 1h.
	HotTTL time.Duration
	// BackgroundTimeout bounds each asynchronous promotion or repair write.
	// Defaults to 30s.
	BackgroundTimeout time.Duration
	// BatchWorkers caps in-flight operations during batch calls. Defaults
	// to 8.
	BatchWorkers int
	// BatchTimeout bounds an entire batch call. Defaults to 5m.
	BatchTimeout time.Duration

	Tracker *tracker.Tracker
	Metrics *metrics.StorageMetrics
	Log     *slog.Logger
}

// Hybrid composes a hot, a cold, and an optional backup backend behind the
// uniform Backend interface. It adds write-through across tiers, a read
// fallback chain, access-driven promotion into the hot tier, and repair of
// primary tiers after backup hits.
type Hybrid struct {
	hot    interfaces.Backend
	cold   interfaces.Backend
	backup interfaces.Backend

	accessThreshold uint64
	hotTTL          time.Duration
	bgTimeout       time.Duration
	batchWorkers    int
	batchTimeout    time.Duration

	tracker *tracker.Tracker
	metrics *metrics.StorageMetrics
	log     *slog.Logger

	bg sync.WaitGroup
}

// NewHybrid creates the orchestrator, applying defaults for any unset
// configuration.
func NewHybrid(cfg HybridConfig) (*Hybrid, error) {
	if cfg.Cold == nil {
		return nil, fmt.Errorf("hybrid backend requires a cold tier")
	}
	if cfg.Hot == nil {
		cfg.Hot = NewMemoryBackend()
	}
	if cfg.AccessThreshold == 0 {
		cfg.AccessThreshold = 3
	}
	if cfg.HotTTL <= 0 {
		cfg.HotTTL = time.Hour
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = 30 * time.Second
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 8
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Minute
	}
	if cfg.Tracker == nil {
		cfg.Tracker = tracker.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Hybrid{
		hot:             cfg.Hot,
		cold:            cfg.Cold,
		backup:          cfg.Backup,
		accessThreshold: cfg.AccessThreshold,
		hotTTL:          cfg.HotTTL,
		bgTimeout:       cfg.BackgroundTimeout,
		batchWorkers:    cfg.BatchWorkers,
		batchTimeout:    cfg.BatchTimeout,
		tracker:         cfg.Tracker,
		metrics:         cfg.Metrics,
		log:             cfg.Log,
	}, nil
}

// backupDistinct reports whether a backup tier is configured and is not the
// same handle as the cold tier.
func (h *Hybrid) backupDistinct() bool {
	return h.backup != nil && h.backup != h.cold
}

// Tracker exposes the injected access tracker.
func (h *Hybrid) Tracker() *tracker.Tracker {
	return h.tracker
}

// Presigner returns the first tier able to issue presigned URLs, walking
// cold then backup, or nil when none can.
func (h *Hybrid) Presigner() interfaces.Presigner {
	if p, ok := h.cold.(interfaces.Presigner); ok {
		return p
	}
	if h.backupDistinct() {
		if p, ok := h.backup.(interfaces.Presigner); ok {
			return p
		}
	}
	return nil
}

// Wait blocks until in-flight background promotion and repair writes finish.
// Used by graceful shutdown and by tests that inspect tier contents.
func (h *Hybrid) Wait() {
	h.bg.Wait()
}

// Write stores content through all tiers: hot first, then cold, then backup
// when it is distinct from cold. The write succeeds only if hot and cold both
// succeed; a backup failure is logged and tolerated. When hot or cold fail
// the returned error names the failed tiers, but content written to any
// surviving tier stays persisted.
func (h *Hybrid) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	started := time.Now()
	h.tracker.Track(locator, interfaces.OpWrite)

	var failures []interfaces.TierFailure
	var envelope *interfaces.Envelope

	hotEnv, hotErr := h.hot.Write(ctx, locator, content)
	if hotErr != nil {
		failures = append(failures, interfaces.TierFailure{Tier: TierHot, Backend: h.hot.Name(), Err: hotErr})
	} else {
		envelope = hotEnv
	}

	coldEnv, coldErr := h.cold.Write(ctx, locator, content)
	if coldErr != nil {
		failures = append(failures, interfaces.TierFailure{Tier: TierCold, Backend: h.cold.Name(), Err: coldErr})
	} else {
		envelope = coldEnv
	}

	if h.backupDistinct() {
		if _, err := h.backup.Write(ctx, locator, content); err != nil {
			h.log.Warn("Backup tier write failed",
				slog.String("locator", locator),
				slog.String("backend", h.backup.Name()), "err", err)
		}
	}

	if hotErr != nil || coldErr != nil {
		err := &interfaces.PartialFailureError{Op: "write", Failures: failures}
		h.log.Error("Tiered write failed",
			slog.String("locator", locator),
			slog.Any("tiers", err.FailedTiers()))
		h.metrics.RecordOp(h.Name(), "write", err, started)
		return envelope, err
	}

	envelope.Backend = h.Name()
	h.metrics.RecordOp(h.Name(), "write", nil, started)
	h.metrics.RecordBytes(h.Name(), "in", len(content))
	h.log.Debug("Stored content across tiers",
		slog.String("locator", locator),
		slog.Int("size", len(content)),
		slog.Duration("duration", time.Since(started)))
	return envelope, nil
}

// Read walks the tier chain. A hot hit returns immediately. A cold hit may
// trigger an asynchronous promotion into the hot tier once the locator's
// access count crosses the threshold. A backup hit triggers an asynchronous
// repair of both primary tiers. Any hot-tier error falls through to cold so a
// degraded hot tier never blocks reads; a non-NotFound cold or backup error
// surfaces immediately.
func (h *Hybrid) Read(ctx context.Context, locator string) ([]byte, error) {
	started := time.Now()

	content, err := h.hot.Read(ctx, locator)
	if err == nil {
		h.tracker.Track(locator, interfaces.OpReadHot)
		h.metrics.RecordOp(h.Name(), "read", nil, started)
		h.metrics.RecordBytes(h.Name(), "out", len(content))
		return content, nil
	}
	if !isNotFound(err) {
		h.log.Warn("Hot tier read degraded, falling through",
			slog.String("locator", locator),
			slog.String("backend", h.hot.Name()), "err", err)
	}

	content, err = h.cold.Read(ctx, locator)
	if err == nil {
		h.tracker.Track(locator, interfaces.OpReadCold)
		if h.tracker.Count(locator) >= h.accessThreshold {
			h.promote(locator, content)
		}
		h.metrics.RecordOp(h.Name(), "read", nil, started)
		h.metrics.RecordBytes(h.Name(), "out", len(content))
		return content, nil
	}
	if !isNotFound(err) {
		h.metrics.RecordOp(h.Name(), "read", err, started)
		return nil, err
	}

	if h.backupDistinct() {
		content, err = h.backup.Read(ctx, locator)
		if err == nil {
			h.tracker.Track(locator, interfaces.OpReadBackup)
			h.repair(locator, content)
			h.metrics.RecordOp(h.Name(), "read", nil, started)
			h.metrics.RecordBytes(h.Name(), "out", len(content))
			return content, nil
		}
		if !isNotFound(err) {
			h.metrics.RecordOp(h.Name(), "read", err, started)
			return nil, err
		}
	}

	notFound := fmt.Errorf("hybrid: %s: %w", locator, interfaces.ErrNotFound)
	h.metrics.RecordOp(h.Name(), "read", notFound, started)
	return nil, notFound
}

// promote copies hot-worthy content into the hot tier without blocking the
// read that triggered it.
func (h *Hybrid) promote(locator string, content []byte) {
	h.bg.Add(1)
	go func() {
		defer h.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.bgTimeout)
		defer cancel()

		if _, err := h.hot.Write(ctx, locator, content); err != nil {
			h.log.Warn("Promotion to hot tier failed",
				slog.String("locator", locator),
				slog.String("backend", h.hot.Name()), "err", err)
			return
		}
		if h.metrics != nil {
			h.metrics.Promotions.Inc()
		}
		h.log.Info("Promoted content to hot tier",
			slog.String("locator", locator),
			slog.Uint64("access_count", h.tracker.Count(locator)))
	}()
}

// repair re-populates the primary tiers after content was only found in the
// backup tier. Best-effort; failures are logged, never surfaced to the read.
func (h *Hybrid) repair(locator string, content []byte) {
	h.bg.Add(1)
	go func() {
		defer h.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.bgTimeout)
		defer cancel()

		_, hotErr := h.hot.Write(ctx, locator, content)
		if hotErr != nil {
			h.log.Warn("Repair of hot tier failed",
				slog.String("locator", locator),
				slog.String("backend", h.hot.Name()), "err", hotErr)
		}
		_, coldErr := h.cold.Write(ctx, locator, content)
		if coldErr != nil {
			h.log.Warn("Repair of cold tier failed",
				slog.String("locator", locator),
				slog.String("backend", h.cold.Name()), "err", coldErr)
		}
		if hotErr != nil && coldErr != nil {
			return
		}
		if h.metrics != nil {
			h.metrics.Repairs.Inc()
		}
		h.log.Info("Repaired primary tiers from backup",
			slog.String("locator", locator))
	}()
}

// Delete attempts the delete on every distinct tier independently and drops
// the locator's access-pattern entry. It succeeds if at least one tier
// succeeded and fails only when every tier failed.
func (h *Hybrid) Delete(ctx context.Context, locator string) error {
	started := time.Now()
	h.tracker.Track(locator, interfaces.OpDelete)

	tiers := []struct {
		role    string
		backend interfaces.Backend
	}{
		{TierHot, h.hot},
		{TierCold, h.cold},
	}
	if h.backupDistinct() {
		tiers = append(tiers, struct {
			role    string
			backend interfaces.Backend
		}{TierBackup, h.backup})
	}

	var failures []interfaces.TierFailure
	for _, tier := range tiers {
		if err := tier.backend.Delete(ctx, locator); err != nil {
			failures = append(failures, interfaces.TierFailure{Tier: tier.role, Backend: tier.backend.Name(), Err: err})
			h.log.Warn("Tier delete failed",
				slog.String("locator", locator),
				slog.String("tier", tier.role),
				slog.String("backend", tier.backend.Name()), "err", err)
		}
	}

	h.tracker.Forget(locator)

	if len(failures) == len(tiers) {
		err := &interfaces.PartialFailureError{Op: "delete", Failures: failures}
		h.metrics.RecordOp(h.Name(), "delete", err, started)
		return err
	}
	h.metrics.RecordOp(h.Name(), "delete", nil, started)
	return nil
}

// Exists reports whether any tier holds the locator.
func (h *Hybrid) Exists(ctx context.Context, locator string) bool {
	if h.hot.Exists(ctx, locator) || h.cold.Exists(ctx, locator) {
		return true
	}
	return h.backupDistinct() && h.backup.Exists(ctx, locator)
}

// Stat walks the tier chain and reports the first hit, stamped with the
// hybrid backend identity so callers never see tier selection.
func (h *Hybrid) Stat(ctx context.Context, locator string) (*interfaces.Envelope, error) {
	backends := []interfaces.Backend{h.hot, h.cold}
	if h.backupDistinct() {
		backends = append(backends, h.backup)
	}

	for _, backend := range backends {
		env, err := backend.Stat(ctx, locator)
		if err == nil {
			env.Backend = h.Name()
			return env, nil
		}
		if !isNotFound(err) {
			h.log.Debug("Stat failed on tier, falling through",
				slog.String("locator", locator),
				slog.String("backend", backend.Name()), "err", err)
		}
	}
	return nil, fmt.Errorf("hybrid: %s: %w", locator, interfaces.ErrNotFound)
}

// CreateVersion writes the version to the cold tier, which is authoritative
// for version history, then refreshes the hot tier with the new content so
// reads stay current.
func (h *Hybrid) CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *interfaces.VersionRecord, error) {
	started := time.Now()
	h.tracker.Track(locator, interfaces.OpVersion)

	versionID, record, err := h.cold.CreateVersion(ctx, locator, content, message)
	if err != nil {
		h.metrics.RecordOp(h.Name(), "create_version", err, started)
		return "", nil, err
	}

	if _, err := h.hot.Write(ctx, locator, content); err != nil {
		h.log.Warn("Hot tier refresh after version create failed",
			slog.String("locator", locator),
			slog.String("backend", h.hot.Name()), "err", err)
	}

	h.metrics.RecordOp(h.Name(), "create_version", nil, started)
	return versionID, record, nil
}

// ListVersions delegates to the cold tier.
func (h *Hybrid) ListVersions(ctx context.Context, locator string) ([]interfaces.VersionRecord, error) {
	return h.cold.ListVersions(ctx, locator)
}

// GetVersion delegates to the cold tier.
func (h *Hybrid) GetVersion(ctx context.Context, locator, versionID string) ([]byte, error) {
	return h.cold.GetVersion(ctx, locator, versionID)
}

// Copy reads src through the tier chain and writes it to dst with full write
// semantics, so the copy has the same durability as a direct write.
func (h *Hybrid) Copy(ctx context.Context, src, dst string) (*interfaces.Envelope, error) {
	content, err := h.Read(ctx, src)
	if err != nil {
		return nil, err
	}
	return h.Write(ctx, dst, content)
}

// Available reports whether any tier is reachable.
func (h *Hybrid) Available(ctx context.Context) bool {
	if h.hot.Available(ctx) || h.cold.Available(ctx) {
		return true
	}
	return h.backupDistinct() && h.backup.Available(ctx)
}

// Name returns the backend identifier.
func (h *Hybrid) Name() string {
	return interfaces.KindHybrid.String()
}

// LocationURI returns a combined URI naming each tier.
func (h *Hybrid) LocationURI() string {
	uri := fmt.Sprintf("hybrid:[hot=%s,cold=%s", h.hot.LocationURI(), h.cold.LocationURI())
	if h.backupDistinct() {
		uri += fmt.Sprintf(",backup=%s", h.backup.LocationURI())
	}
	return uri + "]"
}
