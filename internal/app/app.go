// Package app wires storage, ledger, contract and HTTP server from a config.
package app

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/simpleswap/config"
	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/metrics"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/services/ledger"
	"github.com/vadiminshakov/simpleswap/internal/services/registry"
	"github.com/vadiminshakov/simpleswap/internal/services/swap"
	"github.com/vadiminshakov/simpleswap/internal/storage/kv"
	"github.com/vadiminshakov/simpleswap/internal/storage/ledgerstate"
	"github.com/vadiminshakov/simpleswap/internal/storage/swapjournal"
	"github.com/vadiminshakov/simpleswap/internal/web"
)

const reserveRefreshInterval = 30 * time.Second

var ErrAssetsMismatch = errors.New("configured assets differ from the constructed instance")

// App is a running swap instance.
type App struct {
	Contract *swap.Contract
	Ledger   ledger.Ledger
	Server   *web.Server

	cfg     config.Config
	store   kv.Store
	journal *swapjournal.WALStore
	closers []io.Closer
	l       *zap.Logger
}

// Open builds every component, constructs the contract on first start and reconciles
// swaps interrupted by a previous run.
func Open(ctx context.Context, cfg config.Config, l *zap.Logger) (_ *App, err error) {
	if l == nil {
		l = zap.NewNop()
	}
	a := &App{cfg: cfg, l: l}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.store, err = openStore(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	if a.Ledger, err = openLedger(ctx, cfg.Ledger, l); err != nil {
		return nil, err
	}
	if c, ok := a.Ledger.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	if a.journal, err = swapjournal.NewWALStore(cfg.JournalDir); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.journal)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a.Contract, err = swap.New(
		cfg.Contract,
		registry.New(a.store),
		auth.NewSignatureAuthorizer(cfg.Network, a.store, l.Named("auth")),
		a.Ledger,
		a.journal,
		swap.WithLogger(l.Named("swap")),
		swap.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	if err := a.ensureConstructed(ctx); err != nil {
		return nil, err
	}
	if err := a.Contract.Recover(ctx); err != nil {
		return nil, errors.Wrap(err, "reconcile swaps")
	}

	a.Server = web.NewServer(cfg.HTTP.Addr, cfg.Network, a.Contract, a.Ledger, a.journal, l.Named("http"))
	a.Server.Metrics = m
	if cfg.Ledger.Faucet {
		minter, ok := a.Ledger.(ledger.Minter)
		if !ok {
			return nil, errors.New("faucet needs a ledger that can mint")
		}
		a.Server.Faucet = minter
		l.Warn("faucet enabled, anyone can mint through POST /v1/fund")
	}

	return a, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if len(a.cfg.HTTP.AutocertDomains) > 0 {
			return a.Server.StartWithAutoTLS(ctx, a.cfg.HTTP.AutocertDomains, a.cfg.HTTP.AutocertCacheDir)
		}
		return a.Server.Start(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(reserveRefreshInterval)
		defer ticker.Stop()
		for {
			if _, err := a.Contract.Reserves(ctx); err != nil {
				a.l.Warn("failed to refresh reserves", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

// Close releases storage in reverse order of opening.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

func (a *App) ensureConstructed(ctx context.Context) error {
	reg := registry.New(a.store)
	constructed, err := reg.IsConstructed(ctx)
	if err != nil {
		return err
	}

	if constructed {
		stored, err := reg.Assets(ctx)
		if err != nil {
			return err
		}
		if a.cfg.Assets != (domain.AssetPair{}) && a.cfg.Assets != stored {
			return errors.Wrapf(ErrAssetsMismatch, "configured %s, constructed %s", a.cfg.Assets, stored)
		}
		return nil
	}

	if a.cfg.Assets == (domain.AssetPair{}) {
		return errors.Wrap(domain.ErrConfigurationMissing, "asset_a and asset_b are required on first start")
	}
	if err := a.Contract.Construct(ctx, a.cfg.Assets.A, a.cfg.Assets.B); err != nil {
		return err
	}

	// seed balances exactly once, together with construction
	if len(a.cfg.Ledger.Seed) == 0 {
		return nil
	}
	minter, ok := a.Ledger.(ledger.Minter)
	if !ok {
		return errors.New("ledger seed needs a ledger that can mint")
	}
	for _, s := range a.cfg.Ledger.Seed {
		if err := minter.Mint(ctx, s.Asset, s.Holder, s.Amount); err != nil {
			return errors.Wrapf(err, "seed %s for %s", s.Asset, s.Holder)
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (kv.Store, error) {
	switch cfg.Backend {
	case config.StorageWAL:
		return kv.NewWALStore(cfg.Dir)
	case config.StorageBadger:
		return kv.NewBadgerStore(cfg.Dir)
	case config.StorageRedis:
		return kv.NewRedisStore(ctx, kv.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.Namespace,
		})
	case config.StorageMemory:
		return kv.NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, l *zap.Logger) (ledger.Ledger, error) {
	switch cfg.Backend {
	case config.LedgerSQLite:
		return ledger.OpenSQLite(ctx, cfg.Path, l.Named("ledger"))
	case config.LedgerMemory:
		stateStore, err := ledgerstate.NewStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return ledger.NewMemoryLedger(l.Named("ledger"), stateStore)
	default:
		return nil, errors.Errorf("unsupported ledger backend %q", cfg.Backend)
	}
}
