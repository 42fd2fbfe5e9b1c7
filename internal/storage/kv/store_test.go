package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "AssetA")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "AssetA", []byte("USDC")))
	require.NoError(t, s.Set(ctx, "AssetB", []byte("EURC")))
	require.NoError(t, s.Set(ctx, "AssetB", []byte("XLM")))

	v, err := s.Get(ctx, "AssetA")
	require.NoError(t, err)
	assert.Equal(t, "USDC", string(v))

	v, err = s.Get(ctx, "AssetB")
	require.NoError(t, err)
	assert.Equal(t, "XLM", string(v))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestWALStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")

	s, err := NewWALStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(context.Background(), "AssetB")
	require.NoError(t, err)
	assert.Equal(t, "XLM", string(v), "last write should win after replay")
}

func TestWALStore_KeepsKeysAcrossSegmentRollover(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")
	ctx := context.Background()
	const segmentLimit = 4

	s, err := openWALStore(dir, segmentLimit)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "AssetA", []byte("USDC")))
	require.NoError(t, s.Set(ctx, "nonce/0xabc/1", []byte{1}))
	for i := 2; i < 500; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("nonce/0xabc/%d", i), []byte{1}))
	}
	require.NoError(t, s.Close())

	segments, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Greater(t, len(segments), 100, "writes should span many segments")

	reopened, err := openWALStore(dir, segmentLimit)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, "AssetA")
	require.NoError(t, err)
	assert.Equal(t, "USDC", string(v))
	_, err = reopened.Get(ctx, "nonce/0xabc/1")
	require.NoError(t, err)
	_, err = reopened.Get(ctx, "nonce/0xabc/499")
	require.NoError(t, err)
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")

	s, err := NewBadgerStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(context.Background(), "AssetA")
	require.NoError(t, err)
	assert.Equal(t, "USDC", string(v))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, Namespace: "simpleswap_test_" + uuid.NewString()})
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}
