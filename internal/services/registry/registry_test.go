package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/storage/kv"
)

func TestRegistry_ReadBeforeConstruction(t *testing.T) {
	r := New(kv.NewMemoryStore())
	ctx := context.Background()

	_, err := r.AssetA(ctx)
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
	_, err = r.AssetB(ctx)
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)

	constructed, err := r.IsConstructed(ctx)
	require.NoError(t, err)
	assert.False(t, constructed)
}

func TestRegistry_ConstructOnce(t *testing.T) {
	r := New(kv.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, r.SetAssets(ctx, "USDC", "EURC"))

	err := r.SetAssets(ctx, "XLM", "BTC")
	require.ErrorIs(t, err, domain.ErrAlreadyConstructed)

	pair, err := r.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetPair{A: "USDC", B: "EURC"}, pair)
}

func TestRegistry_InvalidAssets(t *testing.T) {
	r := New(kv.NewMemoryStore())
	ctx := context.Background()

	require.ErrorIs(t, r.SetAssets(ctx, "USDC", "USDC"), domain.ErrInvalidAssets)
	require.ErrorIs(t, r.SetAssets(ctx, "", "USDC"), domain.ErrInvalidAssets)

	constructed, err := r.IsConstructed(ctx)
	require.NoError(t, err)
	assert.False(t, constructed)
}

func TestRegistry_PartialConstructionCanBeRetried(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx := context.Background()
	// construction stopped after writing B
	require.NoError(t, store.Set(ctx, keyAssetB, []byte("EURC")))

	r := New(store)
	err := r.SetAssets(ctx, "USDC", "XLM")
	require.ErrorIs(t, err, domain.ErrAlreadyConstructed)
	constructed, err := r.IsConstructed(ctx)
	require.NoError(t, err)
	assert.False(t, constructed)

	require.NoError(t, r.SetAssets(ctx, "USDC", "EURC"))
	pair, err := r.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetPair{A: "USDC", B: "EURC"}, pair)
}

func TestRegistry_SurvivesRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")
	ctx := context.Background()

	store, err := kv.NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, New(store).SetAssets(ctx, "USDC", "EURC"))
	require.NoError(t, store.Close())

	store, err = kv.NewWALStore(dir)
	require.NoError(t, err)
	defer store.Close()

	r := New(store)
	require.ErrorIs(t, r.SetAssets(ctx, "USDC", "EURC"), domain.ErrAlreadyConstructed)
	a, err := r.AssetA(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetID("USDC"), a)
}
