package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tierstore/tierstore/interfaces"
	"github.com/tierstore/tierstore/tracker"
)

// TierInfo identifies one tier of the hybrid backend for stats reporting.
type TierInfo struct {
	Tier      string `json:"tier"`
	Backend   string `json:"backend"`
	Location  string `json:"location"`
	Available bool   `json:"available"`
}

// StorageStats is an observability snapshot of the hybrid backend: per-tier
// identity and health, the configured thresholds, and the current access
// patterns.
type StorageStats struct {
	Tiers           []TierInfo                 `json:"tiers"`
	AccessThreshold uint64                     `json:"access_threshold"`
	HotTTL          time.Duration              `json:"hot_ttl"`
	TrackedLocators int                        `json:"tracked_locators"`
	TotalTracked    uint64                     `json:"total_tracked_ops"`
	TotalSwept      uint64                     `json:"total_swept"`
	Patterns        map[string]tracker.Pattern `json:"access_patterns"`
}

// StorageStats reports per-tier backend identity and health plus a snapshot
// of current access patterns and configured thresholds.
func (h *Hybrid) StorageStats(ctx context.Context) StorageStats {
	tiers := []TierInfo{
		{Tier: TierHot, Backend: h.hot.Name(), Location: h.hot.LocationURI(), Available: h.hot.Available(ctx)},
		{Tier: TierCold, Backend: h.cold.Name(), Location: h.cold.LocationURI(), Available: h.cold.Available(ctx)},
	}
	if h.backupDistinct() {
		tiers = append(tiers, TierInfo{
			Tier: TierBackup, Backend: h.backup.Name(), Location: h.backup.LocationURI(), Available: h.backup.Available(ctx),
		})
	}

	return StorageStats{
		Tiers:           tiers,
		AccessThreshold: h.accessThreshold,
		HotTTL:          h.hotTTL,
		TrackedLocators: h.tracker.Len(),
		TotalTracked:    h.tracker.TotalTracked(),
		TotalSwept:      h.tracker.TotalSwept(),
		Patterns:        h.tracker.Snapshot(),
	}
}

// TriggerTiering runs one maintenance pass: access-pattern entries idle past
// 2x HotTTL are swept, and hot-tier content that has gone idle is scanned and
// reported as demotion candidates. Candidates are logged only; the mover that
// will push them back to cold-only storage plugs in here.
func (h *Hybrid) TriggerTiering(ctx context.Context) {
	started := time.Now()

	removed := h.tracker.SweepExpired(2 * h.hotTTL)
	if h.metrics != nil {
		h.metrics.Sweeps.Add(float64(removed))
	}

	candidates := 0
	cutoff := time.Now().Add(-h.hotTTL)
	for locator, pattern := range h.tracker.Snapshot() {
		if pattern.Count < h.accessThreshold && pattern.LastAccess.Before(cutoff) && h.hot.Exists(ctx, locator) {
			candidates++
			h.log.Debug("Demotion candidate",
				slog.String("locator", locator),
				slog.Uint64("access_count", pattern.Count),
				slog.Time("last_access", pattern.LastAccess))
		}
	}

	h.log.Info("Tiering maintenance pass completed",
		slog.Int("swept_patterns", removed),
		slog.Int("demotion_candidates", candidates),
		slog.Duration("duration", time.Since(started)))
}

// WriteBatch writes many locators with a bounded number of in-flight writes
// and an overall timeout. It returns the envelopes of the successful writes
// and a per-locator error map for the failures.
func (h *Hybrid) WriteBatch(ctx context.Context, items map[string][]byte) (map[string]*interfaces.Envelope, map[string]error) {
	ctx, cancel := context.WithTimeout(ctx, h.batchTimeout)
	defer cancel()

	var mu sync.Mutex
	envelopes := make(map[string]*interfaces.Envelope, len(items))
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.batchWorkers)
	for locator, content := range items {
		locator, content := locator, content
		g.Go(func() error {
			env, err := h.Write(gctx, locator, content)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[locator] = err
				return nil
			}
			envelopes[locator] = env
			return nil
		})
	}
	g.Wait()

	return envelopes, failures
}

// DeleteBatch deletes many locators with bounded concurrency and returns a
// per-locator error map for the failures.
func (h *Hybrid) DeleteBatch(ctx context.Context, locators []string) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, h.batchTimeout)
	defer cancel()

	var mu sync.Mutex
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.batchWorkers)
	for _, locator := range locators {
		locator := locator
		g.Go(func() error {
			if err := h.Delete(gctx, locator); err != nil {
				mu.Lock()
				failures[locator] = err
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return failures
}
