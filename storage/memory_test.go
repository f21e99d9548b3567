package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierstore/tierstore/interfaces"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	env, err := backend.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "doc1", env.Locator)
	assert.Equal(t, int64(5), env.Size)
	assert.Equal(t, "memory", env.Backend)

	content, err := backend.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	// The stored copy must not alias caller memory.
	content[0] = 'X'
	again, err := backend.Read(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again)
}

func TestMemoryReadMissing(t *testing.T) {
	backend := NewMemoryBackend()

	_, err := backend.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	assert.NoError(t, backend.Delete(ctx, "never-written"))

	_, err := backend.Write(ctx, "doc1", []byte("data"))
	require.NoError(t, err)
	assert.NoError(t, backend.Delete(ctx, "doc1"))
	assert.NoError(t, backend.Delete(ctx, "doc1"))
	assert.False(t, backend.Exists(ctx, "doc1"))
}

func TestMemoryStat(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	_, err := backend.Write(ctx, "doc1", []byte("hello"))
	require.NoError(t, err)

	env, err := backend.Stat(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), env.Size)
	assert.False(t, env.StoredAt.IsZero())

	_, err = backend.Stat(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestMemoryVersionOrdering(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	v1, _, err := backend.CreateVersion(ctx, "doc4", []byte("one"), "v1")
	require.NoError(t, err)
	v2, _, err := backend.CreateVersion(ctx, "doc4", []byte("two"), "v2")
	require.NoError(t, err)
	v3, _, err := backend.CreateVersion(ctx, "doc4", []byte("three"), "v3")
	require.NoError(t, err)

	records, err := backend.ListVersions(ctx, "doc4")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{v3, v2, v1}, []string{records[0].VersionID, records[1].VersionID, records[2].VersionID})
	assert.Equal(t, "v3", records[0].CommitMessage)
	assert.True(t, records[0].IsLatest)
	assert.False(t, records[1].IsLatest)

	// Current content tracks the newest version.
	content, err := backend.Read(ctx, "doc4")
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), content)

	content, err = backend.GetVersion(ctx, "doc4", v1)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), content)

	_, err = backend.GetVersion(ctx, "doc4", "bogus")
	assert.ErrorIs(t, err, interfaces.ErrVersionNotFound)
}

func TestMemoryCopy(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	_, err := backend.Write(ctx, "src", []byte("payload"))
	require.NoError(t, err)

	env, err := backend.Copy(ctx, "src", "dst")
	require.NoError(t, err)
	assert.Equal(t, "dst", env.Locator)

	content, err := backend.Read(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)

	_, err = backend.Copy(ctx, "missing", "dst2")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
