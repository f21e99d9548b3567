package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierstore/tierstore/interfaces"
)

func newTestFactory() *Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFactorySatisfiesBackendFactory(t *testing.T) {
	var f interfaces.BackendFactory = newTestFactory()

	loc, err := interfaces.NewBackendLocation("memory://")
	require.NoError(t, err)
	backend, err := f.BackendFor(loc)
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())
}

func TestFactoryMemoryScheme(t *testing.T) {
	backend, err := newTestFactory().BackendForURI("memory://")
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Name())
	assert.IsType(t, &MemoryBackend{}, backend)
}

func TestFactoryFileScheme(t *testing.T) {
	dir := t.TempDir()

	backend, err := newTestFactory().BackendForURI("file://" + dir)
	require.NoError(t, err)
	assert.Equal(t, "disk", backend.Name())

	ctx := context.Background()
	_, err = backend.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)
	content, err := backend.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)
}

func TestFactoryFileSchemeRequiresPath(t *testing.T) {
	_, err := newTestFactory().BackendForURI("file://")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryS3Scheme(t *testing.T) {
	backend, err := newTestFactory().BackendForURI("s3://my-bucket/blobs?region=us-east-1&path_style=true")
	require.NoError(t, err)
	assert.Equal(t, "s3", backend.Name())
	assert.Contains(t, backend.LocationURI(), "s3://my-bucket")
}

func TestFactoryS3SchemeRequiresBucket(t *testing.T) {
	_, err := newTestFactory().BackendForURI("s3://?region=us-east-1")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryRedisSchemeRejectsBadTTL(t *testing.T) {
	_, err := newTestFactory().BackendForURI("redis://localhost:6379/0?ttl=bogus")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryUnsupportedScheme(t *testing.T) {
	for _, uri := range []string{"http://example.com", "ftp://host/path", "notauri"} {
		_, err := newTestFactory().BackendForURI(uri)
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, uri)
	}
}

func TestFactoryBuildHybrid(t *testing.T) {
	dir := t.TempDir()

	h, err := newTestFactory().BuildHybrid("memory://", "file://"+dir, "", HybridConfig{})
	require.NoError(t, err)
	assert.Equal(t, "hybrid", h.Name())

	ctx := context.Background()
	_, err = h.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)
	content, err := h.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	stats := h.StorageStats(ctx)
	require.Len(t, stats.Tiers, 2)
	assert.Equal(t, "memory", stats.Tiers[0].Backend)
	assert.Equal(t, "disk", stats.Tiers[1].Backend)
}

func TestFactoryBuildHybridDefaultsHotToMemory(t *testing.T) {
	h, err := newTestFactory().BuildHybrid("", "memory://", "", HybridConfig{})
	require.NoError(t, err)

	stats := h.StorageStats(context.Background())
	require.Len(t, stats.Tiers, 2)
	assert.Equal(t, "memory", stats.Tiers[0].Backend)
}

func TestFactoryBuildHybridRequiresColdURI(t *testing.T) {
	_, err := newTestFactory().BuildHybrid("memory://", "", "", HybridConfig{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestFactoryBuildHybridWithDistinctBackup(t *testing.T) {
	h, err := newTestFactory().BuildHybrid("memory://", "memory://", "file://"+t.TempDir(), HybridConfig{})
	require.NoError(t, err)

	stats := h.StorageStats(context.Background())
	require.Len(t, stats.Tiers, 3)
	assert.Equal(t, "backup", stats.Tiers[2].Tier)
	assert.Equal(t, "disk", stats.Tiers[2].Backend)
}

func TestFactoryBuildHybridToleratesBadBackupURI(t *testing.T) {
	h, err := newTestFactory().BuildHybrid("memory://", "memory://", "redis://localhost:6379/0?ttl=bogus", HybridConfig{})
	require.NoError(t, err)

	// The hybrid runs with just the primary tiers.
	assert.Len(t, h.StorageStats(context.Background()).Tiers, 2)
}

func TestSplitAuth(t *testing.T) {
	user, pass, ok := splitAuth("AKIAEXAMPLE:s3cr3t")
	require.True(t, ok)
	assert.Equal(t, "AKIAEXAMPLE", user)
	assert.Equal(t, "s3cr3t", pass)
}
