package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/toolchain"
)

const kind = toolchain.CacheKindCargoMetadata

func TestGetMiss(t *testing.T) {
	s := createTestStore(t)

	data, ok, err := s.Get(context.Background(), kind, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestPutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, kind, "k1", []byte(`{"packages":[]}`)))

	data, ok, err := s.Get(ctx, kind, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"packages":[]}`, string(data))

	_, ok, err = s.Get(ctx, "other/v1", "k1")
	require.NoError(t, err)
	assert.False(t, ok, "kinds are separate namespaces")
}

func TestPutReplaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, kind, "k1", []byte("old")))
	require.NoError(t, s.Put(ctx, kind, "k1", []byte("new")))

	data, _, err := s.Get(ctx, kind, "k1")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	n, err := s.Count(ctx, kind)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPutEmptyData(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, kind, "k1", nil))
	data, ok, err := s.Get(ctx, kind, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, data)
}

func TestPutEvictsOldest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxEntriesPerKind+3; i++ {
		require.NoError(t, s.Put(ctx, kind, fmt.Sprintf("k%d", i), []byte{byte(i)}))
	}
	require.NoError(t, s.Put(ctx, "other/v1", "k0", []byte("kept")))

	n, err := s.Count(ctx, kind)
	require.NoError(t, err)
	assert.Equal(t, MaxEntriesPerKind, n)

	for i := 0; i < 3; i++ {
		_, ok, err := s.Get(ctx, kind, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.False(t, ok, "k%d should be evicted", i)
	}
	_, ok, err := s.Get(ctx, kind, fmt.Sprintf("k%d", MaxEntriesPerKind+2))
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = s.Count(ctx, "other/v1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, MaxEntriesPerKind+1, n)
}

func TestPurge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, kind, "a", []byte("1")))
	require.NoError(t, s.Put(ctx, kind, "b", []byte("2")))
	require.NoError(t, s.Put(ctx, "other/v1", "a", []byte("3")))

	n, err := s.Purge(ctx, kind)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Purge(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEntriesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, kind, "k1", []byte("data")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	data, ok, err := s.Get(ctx, kind, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "data", string(data))
}

func TestConcurrentPuts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, kind, fmt.Sprintf("k%d", i), []byte("x")))
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx, kind)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestGetCanceledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Get(ctx, kind, "k1")
	assert.Error(t, err)
}
