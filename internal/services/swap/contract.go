// Package swap exchanges one registered asset for the other at a fixed 1:1 rate.
package swap

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/metrics"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/services/ledger"
	"github.com/vadiminshakov/simpleswap/internal/services/registry"
)

// Journal records swap intents and their transitions.
type Journal interface {
	Prepare(req domain.SwapRequest, assetIn, assetOut domain.AssetID) (domain.SwapRecord, error)
	MarkPulled(id string) (domain.SwapRecord, error)
	MarkDone(id string) (domain.SwapRecord, error)
	MarkFailed(id string, cause error) (domain.SwapRecord, error)
	MarkRefunding(id string, cause error) (domain.SwapRecord, error)
	MarkCompensated(id string) (domain.SwapRecord, error)
	MarkStuck(id string, cause error) (domain.SwapRecord, error)
	Get(id string) (domain.SwapRecord, error)
	Unresolved() []domain.SwapRecord
}

// Contract is a single swap instance bound to one asset pair.
type Contract struct {
	mu         sync.Mutex
	id         domain.Identity
	registry   *registry.Registry
	authorizer auth.Authorizer
	ledger     ledger.Ledger
	journal    Journal
	reserves   *ReserveChecker
	executor   *Executor
	metrics    *metrics.Metrics
	l          *zap.Logger
}

// Option configures a Contract.
type Option func(*Contract)

// WithLogger sets the contract logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Contract) {
		if l != nil {
			c.l = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Contract) {
		c.metrics = m
	}
}

// New creates a contract acting as id.
func New(id domain.Identity, reg *registry.Registry, authorizer auth.Authorizer, led ledger.Ledger, journal Journal, opts ...Option) (*Contract, error) {
	if id.IsZero() {
		return nil, errors.New("contract identity is required")
	}
	if reg == nil || authorizer == nil || led == nil || journal == nil {
		return nil, errors.New("registry, authorizer, ledger and journal are required")
	}

	c := &Contract{
		id:         id,
		registry:   reg,
		authorizer: authorizer,
		ledger:     led,
		journal:    journal,
		reserves:   NewReserveChecker(id),
		executor:   NewExecutor(id),
		l:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID returns the contract identity.
func (c *Contract) ID() domain.Identity {
	return c.id
}

// Construct binds the asset pair. It succeeds once per instance.
func (c *Contract) Construct(ctx context.Context, assetA, assetB domain.AssetID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.registry.SetAssets(ctx, assetA, assetB); err != nil {
		return err
	}

	c.l.Info("contract constructed",
		zap.String("contract", c.id.String()),
		zap.String("asset_a", assetA.String()),
		zap.String("asset_b", assetB.String()))
	return nil
}

// AssetA returns the first registered asset.
func (c *Contract) AssetA(ctx context.Context) (domain.AssetID, error) {
	return c.registry.AssetA(ctx)
}

// AssetB returns the second registered asset.
func (c *Contract) AssetB(ctx context.Context) (domain.AssetID, error) {
	return c.registry.AssetB(ctx)
}

// Assets returns the registered pair.
func (c *Contract) Assets(ctx context.Context) (domain.AssetPair, error) {
	return c.registry.Assets(ctx)
}

// Reserves reads the contract's balance of both assets.
func (c *Contract) Reserves(ctx context.Context) (domain.ReserveSnapshot, error) {
	assets, err := c.registry.Assets(ctx)
	if err != nil {
		return domain.ReserveSnapshot{}, err
	}

	reserveA, err := c.ledger.BalanceOf(ctx, assets.A, c.id)
	if err != nil {
		return domain.ReserveSnapshot{}, errors.Wrapf(err, "read %s reserve", assets.A)
	}
	reserveB, err := c.ledger.BalanceOf(ctx, assets.B, c.id)
	if err != nil {
		return domain.ReserveSnapshot{}, errors.Wrapf(err, "read %s reserve", assets.B)
	}

	c.metrics.SetReserve(assets.A.String(), reserveA.Decimal().InexactFloat64())
	c.metrics.SetReserve(assets.B.String(), reserveB.Decimal().InexactFloat64())

	return domain.ReserveSnapshot{
		Timestamp: time.Now().UTC(),
		Contract:  c.id,
		AssetA:    assets.A,
		AssetB:    assets.B,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
	}, nil
}

// Swap pulls req.Amount of the sold asset from the account and pays out the same amount of
// the other asset. Any error leaves balances as they were.
func (c *Contract) Swap(ctx context.Context, req domain.SwapRequest) (rec domain.SwapRecord, err error) {
	started := time.Now()
	defer func() {
		c.metrics.ObserveSwap(req.Direction.String(), outcome(err), started)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	assets, err := c.registry.Assets(ctx)
	if err != nil {
		return domain.SwapRecord{}, err
	}
	assetIn, assetOut := req.Direction.Resolve(assets)

	inv := auth.SwapInvocation(c.id, assetIn, req)
	if err := c.authorizer.RequireAuth(ctx, req.Account, inv); err != nil {
		if !errors.Is(err, domain.ErrAuthorizationDenied) {
			c.l.Error("authorization check failed",
				zap.String("account", req.Account.String()),
				zap.Error(err))
			return domain.SwapRecord{}, errors.Wrap(err, "check authorization")
		}
		c.l.Warn("swap not authorized",
			zap.String("account", req.Account.String()),
			zap.Error(err))
		return domain.SwapRecord{}, err
	}

	rec, err = c.journal.Prepare(req, assetIn, assetOut)
	if err != nil {
		return domain.SwapRecord{}, errors.Wrap(err, "journal swap intent")
	}

	// the grant covers exactly the pull-in leg and nothing below it
	grant := auth.NewTransferGrant(c.id, assetIn, req.Account, c.id, req.Amount)

	if tx, ok := c.ledger.(ledger.Transactional); ok {
		err = tx.Atomically(ctx, func(ctx context.Context, led ledger.Ledger) error {
			return c.execute(ctx, led, assets, rec, grant)
		})
		if err != nil {
			c.markFailed(rec.ID, err)
			return c.latest(rec), err
		}
	} else {
		if err = c.executeCompensating(ctx, assets, rec, grant); err != nil {
			return c.latest(rec), err
		}
	}

	done, markErr := c.journal.MarkDone(rec.ID)
	if markErr != nil {
		c.l.Error("failed to journal completed swap", zap.String("swap_id", rec.ID), zap.Error(markErr))
		rec.Status = domain.SwapStatusDone
		done = rec
	} else {
		c.forget(ctx, done)
	}

	c.metrics.AddSwapped(assetIn.String(), req.Amount.Decimal().InexactFloat64())
	c.l.Info("swap completed",
		zap.String("swap_id", rec.ID),
		zap.String("account", req.Account.String()),
		zap.String("asset_in", assetIn.String()),
		zap.String("asset_out", assetOut.String()),
		zap.String("amount", req.Amount.String()))
	return done, nil
}

// SwapRecord returns the journaled state of a swap.
func (c *Contract) SwapRecord(id string) (domain.SwapRecord, error) {
	return c.journal.Get(id)
}

// execute runs the reserve check and both legs against led.
func (c *Contract) execute(ctx context.Context, led ledger.Ledger, assets domain.AssetPair, rec domain.SwapRecord, grant *auth.Grant) error {
	if err := c.checkReserve(ctx, led, assets, rec); err != nil {
		return err
	}
	if err := c.executor.PullIn(ctx, led, rec.PullID, rec.AssetIn, rec.Account, rec.Amount, grant); err != nil {
		return err
	}
	return c.executor.PushOut(ctx, led, rec.PushID, rec.AssetOut, rec.Account, rec.Amount)
}

// executeCompensating runs the legs one by one and refunds the input leg if the output leg fails.
func (c *Contract) executeCompensating(ctx context.Context, assets domain.AssetPair, rec domain.SwapRecord, grant *auth.Grant) error {
	if err := c.checkReserve(ctx, c.ledger, assets, rec); err != nil {
		c.markFailed(rec.ID, err)
		return err
	}

	if err := c.executor.PullIn(ctx, c.ledger, rec.PullID, rec.AssetIn, rec.Account, rec.Amount, grant); err != nil {
		c.markFailed(rec.ID, err)
		return err
	}
	if _, err := c.journal.MarkPulled(rec.ID); err != nil {
		c.l.Error("failed to journal pulled leg", zap.String("swap_id", rec.ID), zap.Error(err))
	}

	pushErr := c.executor.PushOut(ctx, c.ledger, rec.PushID, rec.AssetOut, rec.Account, rec.Amount)
	if pushErr == nil {
		return nil
	}

	c.l.Warn("output leg failed, refunding input",
		zap.String("swap_id", rec.ID),
		zap.Error(pushErr))

	if err := c.refund(ctx, rec, pushErr); err != nil {
		return errors.Wrapf(pushErr, "refund failed: %v", err)
	}
	return pushErr
}

func (c *Contract) checkReserve(ctx context.Context, led ledger.Ledger, assets domain.AssetPair, rec domain.SwapRecord) error {
	dir := domain.DirectionSellA
	if rec.AssetIn == assets.B {
		dir = domain.DirectionSellB
	}

	ok, err := c.reserves.Check(ctx, led, assets, dir, rec.Amount)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(domain.ErrInsufficientReserve, "contract holds less than %s %s", rec.Amount, rec.AssetOut)
	}
	return nil
}

// refund returns the pulled amount to the account under a journaled transfer id.
func (c *Contract) refund(ctx context.Context, rec domain.SwapRecord, cause error) error {
	refunding, err := c.journal.MarkRefunding(rec.ID, cause)
	if err != nil {
		return errors.Wrap(err, "journal refund")
	}

	if err := c.executor.PushOut(ctx, c.ledger, refunding.RefundID, rec.AssetIn, rec.Account, rec.Amount); err != nil {
		if _, markErr := c.journal.MarkStuck(rec.ID, err); markErr != nil {
			c.l.Error("failed to journal stuck swap", zap.String("swap_id", rec.ID), zap.Error(markErr))
		}
		c.l.Error("refund failed, swap is stuck",
			zap.String("swap_id", rec.ID),
			zap.String("account", rec.Account.String()),
			zap.Error(err))
		return err
	}

	compensated, err := c.journal.MarkCompensated(rec.ID)
	if err != nil {
		c.l.Error("failed to journal compensated swap", zap.String("swap_id", rec.ID), zap.Error(err))
		return nil
	}
	c.forget(ctx, compensated)
	return nil
}

// forget drops ledger receipts of a swap whose terminal state is already journaled.
func (c *Contract) forget(ctx context.Context, rec domain.SwapRecord) {
	pruner, ok := c.ledger.(ledger.Pruner)
	if !ok {
		return
	}
	ids := make([]string, 0, 3)
	for _, id := range []string{rec.PullID, rec.PushID, rec.RefundID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if err := pruner.Forget(ctx, ids...); err != nil {
		c.l.Warn("failed to prune transfer receipts", zap.String("swap_id", rec.ID), zap.Error(err))
	}
}

func (c *Contract) latest(rec domain.SwapRecord) domain.SwapRecord {
	if stored, err := c.journal.Get(rec.ID); err == nil {
		return stored
	}
	return rec
}

func (c *Contract) markFailed(id string, cause error) {
	if _, err := c.journal.MarkFailed(id, cause); err != nil {
		c.l.Error("failed to journal failed swap", zap.String("swap_id", id), zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return "unauthorized"
	case errors.Is(err, domain.ErrInsufficientReserve):
		return "insufficient_reserve"
	case errors.Is(err, domain.ErrLedgerTransferFailed):
		return "transfer_failed"
	case errors.Is(err, domain.ErrConfigurationMissing):
		return "not_constructed"
	default:
		return "error"
	}
}
