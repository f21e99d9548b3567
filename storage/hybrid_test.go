package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierstore/tierstore/interfaces"
	"github.com/tierstore/tierstore/metrics"
	"github.com/tierstore/tierstore/tracker"
)

// faultBackend fails every operation with a fixed error, for exercising the
// orchestrator's failure paths.
type faultBackend struct {
	err error
}

func (f *faultBackend) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	return nil, f.err
}

func (f *faultBackend) Read(ctx context.Context, locator string) ([]byte, error) {
	return nil, f.err
}

func (f *faultBackend) Delete(ctx context.Context, locator string) error {
	return f.err
}

func (f *faultBackend) Exists(ctx context.Context, locator string) bool {
	return false
}

func (f *faultBackend) Stat(ctx context.Context, locator string) (*interfaces.Envelope, error) {
	return nil, f.err
}

func (f *faultBackend) CreateVersion(ctx context.Context, locator string, content []byte, message string) (string, *interfaces.VersionRecord, error) {
	return "", nil, f.err
}

func (f *faultBackend) ListVersions(ctx context.Context, locator string) ([]interfaces.VersionRecord, error) {
	return nil, f.err
}

func (f *faultBackend) GetVersion(ctx context.Context, locator, versionID string) ([]byte, error) {
	return nil, f.err
}

func (f *faultBackend) Copy(ctx context.Context, src, dst string) (*interfaces.Envelope, error) {
	return nil, f.err
}

func (f *faultBackend) Available(ctx context.Context) bool { return false }
func (f *faultBackend) Name() string                       { return "fault" }
func (f *faultBackend) LocationURI() string                { return "fault://" }

func transientErr() error {
	return fmt.Errorf("fault: %w: connection refused", interfaces.ErrTransient)
}

// writeFailBackend reads like an empty memory backend but refuses writes, so
// a read can fall through to backup while the repair writes fail.
type writeFailBackend struct {
	*MemoryBackend
}

func (f *writeFailBackend) Write(ctx context.Context, locator string, content []byte) (*interfaces.Envelope, error) {
	return nil, transientErr()
}

type testTiers struct {
	hot    *MemoryBackend
	cold   *MemoryBackend
	backup *MemoryBackend
}

func newTestHybrid(t *testing.T, mutate func(cfg *HybridConfig)) (*Hybrid, testTiers) {
	t.Helper()
	tiers := testTiers{
		hot:    NewMemoryBackend(),
		cold:   NewMemoryBackend(),
		backup: NewMemoryBackend(),
	}
	cfg := HybridConfig{
		Hot:             tiers.hot,
		Cold:            tiers.cold,
		Backup:          tiers.backup,
		AccessThreshold: 3,
		HotTTL:          time.Hour,
		Tracker:         tracker.New(),
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewHybrid(cfg)
	require.NoError(t, err)
	return h, tiers
}

func TestHybridWriteThroughAllTiers(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	env, err := h.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hybrid", env.Backend)
	assert.Equal(t, int64(5), env.Size)

	for name, backend := range map[string]*MemoryBackend{"hot": tiers.hot, "cold": tiers.cold, "backup": tiers.backup} {
		content, err := backend.Read(ctx, "doc1")
		require.NoError(t, err, name)
		assert.Equal(t, []byte("hello"), content, name)
	}
}

func TestHybridRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, nil)

	_, err := h.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)

	content, err := h.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	env, err := h.Stat(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "hybrid", env.Backend)
}

func TestHybridWritePartialFailure(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *HybridConfig)
		failedTiers []string
		persistedIn string
	}{
		{
			name:        "hot fails",
			mutate:      func(cfg *HybridConfig) { cfg.Hot = &faultBackend{err: transientErr()} },
			failedTiers: []string{"hot"},
			persistedIn: "cold",
		},
		{
			name:        "cold fails",
			mutate:      func(cfg *HybridConfig) { cfg.Cold = &faultBackend{err: transientErr()} },
			failedTiers: []string{"cold"},
			persistedIn: "hot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h, tiers := newTestHybrid(t, tt.mutate)

			_, err := h.Write(ctx, "doc1", []byte("hello"))
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrPartialFailure)

			var pf *interfaces.PartialFailureError
			require.ErrorAs(t, err, &pf)
			assert.Equal(t, tt.failedTiers, pf.FailedTiers())

			// Content written to the surviving tier stays persisted.
			surviving := map[string]*MemoryBackend{"hot": tiers.hot, "cold": tiers.cold}[tt.persistedIn]
			content, err := surviving.Read(ctx, "doc1")
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), content)
		})
	}
}

func TestHybridWriteBothPrimariesFail(t *testing.T) {
	h, _ := newTestHybrid(t, func(cfg *HybridConfig) {
		cfg.Hot = &faultBackend{err: transientErr()}
		cfg.Cold = &faultBackend{err: transientErr()}
	})

	_, err := h.Write(context.Background(), "doc1", []byte("hello"))
	require.Error(t, err)

	var pf *interfaces.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, []string{"cold", "hot"}, pf.FailedTiers())
}

func TestHybridWriteBackupFailureTolerated(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, func(cfg *HybridConfig) {
		cfg.Backup = &faultBackend{err: transientErr()}
	})

	_, err := h.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)

	content, err := tiers.cold.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)
}

func TestHybridPromotionExactlyOncePerThreshold(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	// Content lives only in the cold tier; the hot tier starts empty.
	_, err := tiers.cold.Write(ctx, "doc2", []byte("cold data"))
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		content, err := h.Read(ctx, "doc2")
		require.NoError(t, err)
		assert.Equal(t, []byte("cold data"), content)
		h.Wait()
		assert.False(t, tiers.hot.Exists(ctx, "doc2"), "read %d must not promote", i)
	}

	// Third read crosses the threshold and promotes.
	_, err = h.Read(ctx, "doc2")
	require.NoError(t, err)
	h.Wait()
	assert.True(t, tiers.hot.Exists(ctx, "doc2"))

	// Fourth read is served from hot and does not re-promote.
	_, err = h.Read(ctx, "doc2")
	require.NoError(t, err)
	h.Wait()

	pattern, ok := h.Tracker().Pattern("doc2")
	require.True(t, ok)
	assert.Equal(t, interfaces.OpReadHot, pattern.RecentOps[len(pattern.RecentOps)-1])
}

func TestHybridBackupFallbackRepairsPrimaries(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	// Only the backup tier holds the content.
	_, err := tiers.backup.Write(ctx, "doc5", []byte("last copy"))
	require.NoError(t, err)

	content, err := h.Read(ctx, "doc5")
	require.NoError(t, err)
	assert.Equal(t, []byte("last copy"), content)

	// The repair re-populates both primary tiers.
	h.Wait()
	hotContent, err := tiers.hot.Read(ctx, "doc5")
	require.NoError(t, err)
	assert.Equal(t, []byte("last copy"), hotContent)
	coldContent, err := tiers.cold.Read(ctx, "doc5")
	require.NoError(t, err)
	assert.Equal(t, []byte("last copy"), coldContent)
}

func TestHybridRepairCountsOnlySuccessfulRepairs(t *testing.T) {
	ctx := context.Background()
	m := metrics.NewStorageMetrics("test", prometheus.NewRegistry())
	h, tiers := newTestHybrid(t, func(cfg *HybridConfig) {
		cfg.Hot = &writeFailBackend{NewMemoryBackend()}
		cfg.Cold = &writeFailBackend{NewMemoryBackend()}
		cfg.Metrics = m
	})

	_, err := tiers.backup.Write(ctx, "doc5", []byte("last copy"))
	require.NoError(t, err)

	// The read succeeds from backup, but the repair cannot land anywhere.
	content, err := h.Read(ctx, "doc5")
	require.NoError(t, err)
	assert.Equal(t, []byte("last copy"), content)
	h.Wait()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Repairs))

	// With writable primaries the same read counts one repair.
	m2 := metrics.NewStorageMetrics("test", prometheus.NewRegistry())
	h2, tiers2 := newTestHybrid(t, func(cfg *HybridConfig) { cfg.Metrics = m2 })
	_, err = tiers2.backup.Write(ctx, "doc5", []byte("last copy"))
	require.NoError(t, err)
	_, err = h2.Read(ctx, "doc5")
	require.NoError(t, err)
	h2.Wait()
	assert.Equal(t, float64(1), testutil.ToFloat64(m2.Repairs))
}

func TestHybridReadAllTiersMiss(t *testing.T) {
	h, _ := newTestHybrid(t, nil)

	_, err := h.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestHybridColdTransientErrorSurfaces(t *testing.T) {
	h, tiers := newTestHybrid(t, func(cfg *HybridConfig) {
		cfg.Cold = &faultBackend{err: transientErr()}
	})

	// Backup holds the content, but a transient cold error must surface
	// instead of being treated as a miss.
	_, err := tiers.backup.Write(context.Background(), "doc1", []byte("x"))
	require.NoError(t, err)

	_, err = h.Read(context.Background(), "doc1")
	assert.ErrorIs(t, err, interfaces.ErrTransient)
}

func TestHybridHotErrorFallsThroughToCold(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, func(cfg *HybridConfig) {
		cfg.Hot = &faultBackend{err: transientErr()}
	})

	_, err := tiers.cold.Write(ctx, "doc1", []byte("still here"))
	require.NoError(t, err)

	content, err := h.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("still here"), content)
}

func TestHybridDeleteSucceedsWithPartialPresence(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	// Present only in cold; hot and backup deletes are no-op successes.
	_, err := tiers.cold.Write(ctx, "doc3", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, h.Delete(ctx, "doc3"))
	assert.False(t, tiers.cold.Exists(ctx, "doc3"))
}

func TestHybridDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, nil)

	assert.NoError(t, h.Delete(ctx, "never-written"))
	assert.NoError(t, h.Delete(ctx, "never-written"))
}

func TestHybridDeleteRemovesAccessPattern(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, nil)

	_, err := h.Write(ctx, "doc1", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, h.Delete(ctx, "doc1"))

	assert.Equal(t, uint64(0), h.Tracker().Count("doc1"))
}

func TestHybridDeleteAllTiersFail(t *testing.T) {
	h, _ := newTestHybrid(t, func(cfg *HybridConfig) {
		cfg.Hot = &faultBackend{err: transientErr()}
		cfg.Cold = &faultBackend{err: transientErr()}
		cfg.Backup = &faultBackend{err: transientErr()}
	})

	err := h.Delete(context.Background(), "doc1")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrPartialFailure)
}

func TestHybridVersioningIsAuthoritativeOnCold(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	ids := make([]string, 0, 3)
	for _, msg := range []string{"v1", "v2", "v3"} {
		id, record, err := h.CreateVersion(ctx, "doc4", []byte(msg), msg)
		require.NoError(t, err)
		require.NotNil(t, record)
		ids = append(ids, id)
	}

	records, err := h.ListVersions(ctx, "doc4")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ids[2], records[0].VersionID)
	assert.Equal(t, "v3", records[0].CommitMessage)
	assert.Equal(t, ids[0], records[2].VersionID)

	// Versions live on cold only; hot just has the refreshed content.
	coldRecords, err := tiers.cold.ListVersions(ctx, "doc4")
	require.NoError(t, err)
	assert.Len(t, coldRecords, 3)
	hotContent, err := tiers.hot.Read(ctx, "doc4")
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), hotContent)

	content, err := h.GetVersion(ctx, "doc4", ids[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), content)
}

func TestHybridCopy(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	// Source exists only in cold; the copy still lands in all tiers.
	_, err := tiers.cold.Write(ctx, "src", []byte("payload"))
	require.NoError(t, err)

	env, err := h.Copy(ctx, "src", "dst")
	require.NoError(t, err)
	assert.Equal(t, "hybrid", env.Backend)

	content, err := tiers.cold.Read(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)
	assert.True(t, tiers.hot.Exists(ctx, "dst"))
}

func TestHybridConcurrentLocatorIsolation(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, nil)

	const locators = 32
	var wg sync.WaitGroup
	for i := 0; i < locators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locator := fmt.Sprintf("doc-%d", i)
			_, err := h.Write(ctx, locator, []byte(locator))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < locators; i++ {
		locator := fmt.Sprintf("doc-%d", i)
		content, err := h.Read(ctx, locator)
		require.NoError(t, err)
		assert.Equal(t, []byte(locator), content)
	}
}

func TestHybridWriteBatch(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, func(cfg *HybridConfig) { cfg.BatchWorkers = 4 })

	items := make(map[string][]byte)
	for i := 0; i < 20; i++ {
		items[fmt.Sprintf("batch-%d", i)] = []byte(fmt.Sprintf("content-%d", i))
	}

	envelopes, failures := h.WriteBatch(ctx, items)
	assert.Empty(t, failures)
	assert.Len(t, envelopes, 20)

	for locator, content := range items {
		got, err := h.Read(ctx, locator)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}
}

func TestHybridDeleteBatch(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, nil)

	locators := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		locator := fmt.Sprintf("batch-%d", i)
		_, err := h.Write(ctx, locator, []byte("x"))
		require.NoError(t, err)
		locators = append(locators, locator)
	}

	failures := h.DeleteBatch(ctx, locators)
	assert.Empty(t, failures)
	for _, locator := range locators {
		assert.False(t, h.Exists(ctx, locator))
	}
}

func TestHybridTriggerTieringSweepsIdlePatterns(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, func(cfg *HybridConfig) { cfg.HotTTL = 5 * time.Millisecond })

	_, err := h.Write(ctx, "stale", []byte("x"))
	require.NoError(t, err)
	time.Sleep(25 * time.Millisecond)

	h.TriggerTiering(ctx)

	assert.Equal(t, uint64(0), h.Tracker().Count("stale"))
}

func TestHybridStorageStats(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHybrid(t, nil)

	_, err := h.Write(ctx, "doc1", []byte("x"))
	require.NoError(t, err)

	stats := h.StorageStats(ctx)

	require.Len(t, stats.Tiers, 3)
	assert.Equal(t, "hot", stats.Tiers[0].Tier)
	assert.Equal(t, "memory", stats.Tiers[0].Backend)
	assert.True(t, stats.Tiers[0].Available)
	assert.Equal(t, uint64(3), stats.AccessThreshold)
	assert.Equal(t, 1, stats.TrackedLocators)
	assert.Contains(t, stats.Patterns, "doc1")
}

func TestHybridExists(t *testing.T) {
	ctx := context.Background()
	h, tiers := newTestHybrid(t, nil)

	assert.False(t, h.Exists(ctx, "doc1"))

	_, err := tiers.backup.Write(ctx, "doc1", []byte("x"))
	require.NoError(t, err)
	assert.True(t, h.Exists(ctx, "doc1"))
}
