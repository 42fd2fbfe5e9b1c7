package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/config"
	"github.com/vadiminshakov/simpleswap/internal/domain"
)

func testConfig(t *testing.T, dir string, ledgerBackend string) config.Config {
	t.Helper()
	cfg, err := config.Parse(config.ConfigTmp{
		AssetA: "USDC",
		AssetB: "EURC",
		Storage: config.StorageTmp{
			Backend: config.StorageWAL,
			Dir:     filepath.Join(dir, "instance"),
		},
		Ledger: config.LedgerTmp{
			Backend: ledgerBackend,
			Path:    filepath.Join(dir, "ledger", "state"),
			Faucet:  true,
			Seed:    []config.SeedTmp{{Asset: "EURC", Holder: "CSWAP", Amount: "1000"}},
		},
		JournalDir: filepath.Join(dir, "swaps"),
	})
	require.NoError(t, err)
	return cfg
}

func TestOpen_ConstructsAndSeedsOnce(t *testing.T) {
	for _, backend := range []string{config.LedgerMemory, config.LedgerSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			cfg := testConfig(t, dir, backend)

			a, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			assets, err := a.Contract.Assets(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.AssetPair{A: "USDC", B: "EURC"}, assets)
			assert.NotNil(t, a.Server.Faucet)
			require.NoError(t, a.Close())

			// second start keeps the seeded reserve as is
			a, err = Open(ctx, cfg, nil)
			require.NoError(t, err)
			defer a.Close()
			snap, err := a.Contract.Reserves(ctx)
			require.NoError(t, err)
			assert.True(t, snap.ReserveB.Equal(domain.AmountFromInt64(1000)))
		})
	}
}

func TestOpen_RejectsDifferentAssets(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := testConfig(t, dir, config.LedgerMemory)

	a, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	cfg.Assets = domain.AssetPair{A: "USDC", B: "XLM"}
	_, err = Open(ctx, cfg, nil)
	require.ErrorIs(t, err, ErrAssetsMismatch)

	// omitting the pair reuses the constructed one
	cfg.Assets = domain.AssetPair{}
	a, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestOpen_FirstStartNeedsAssets(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), config.LedgerMemory)
	cfg.Assets = domain.AssetPair{}

	_, err := Open(context.Background(), cfg, nil)
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
}
