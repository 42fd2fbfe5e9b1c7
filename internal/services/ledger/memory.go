package ledger

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/storage/ledgerstate"
)

// MemoryLedger is an in-process ledger with optional on-disk snapshots.
type MemoryLedger struct {
	mu         sync.Mutex
	logger     *zap.Logger
	balances   map[domain.AssetID]map[domain.Identity]domain.Amount
	frozen     map[domain.AssetID]map[domain.Identity]bool
	applied    map[string]struct{}
	stateStore *ledgerstate.Store
}

// NewMemoryLedger creates a ledger; when stateStore is set, state is restored from and saved to it.
func NewMemoryLedger(logger *zap.Logger, stateStore *ledgerstate.Store) (*MemoryLedger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &MemoryLedger{
		logger:     logger,
		balances:   make(map[domain.AssetID]map[domain.Identity]domain.Amount),
		frozen:     make(map[domain.AssetID]map[domain.Identity]bool),
		applied:    make(map[string]struct{}),
		stateStore: stateStore,
	}
	if err := l.restoreState(); err != nil {
		return nil, errors.Wrap(err, "restore ledger state")
	}
	return l, nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Identity) (domain.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(asset, holder), nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, t Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.snapshot()
	if err := l.transfer(t); err != nil {
		return err
	}
	if err := l.persist(); err != nil {
		l.restore(snapshot)
		return err
	}
	return nil
}

// Atomically runs fn holding the ledger lock; any error restores the state fn started from.
func (l *MemoryLedger) Atomically(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.snapshot()
	if err := fn(ctx, &memoryTx{l: l}); err != nil {
		l.restore(snapshot)
		return err
	}
	if err := l.persist(); err != nil {
		l.restore(snapshot)
		return err
	}
	return nil
}

func (l *MemoryLedger) Applied(ctx context.Context, transferID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.applied[transferID]
	return ok, nil
}

// Forget drops receipts of transfers that will never be reconciled again.
func (l *MemoryLedger) Forget(ctx context.Context, transferIDs ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.snapshot()
	removed := false
	for _, id := range transferIDs {
		if _, ok := l.applied[id]; ok {
			delete(l.applied, id)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	if err := l.persist(); err != nil {
		l.restore(snapshot)
		return err
	}
	return nil
}

// Mint credits amount of asset to holder.
func (l *MemoryLedger) Mint(ctx context.Context, asset domain.AssetID, to domain.Identity, amount domain.Amount) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.balanceOf(asset, to)
	next, err := previous.Add(amount)
	if err != nil {
		return err
	}
	l.setBalance(asset, to, next)
	if err := l.persist(); err != nil {
		l.setBalance(asset, to, previous)
		return err
	}

	l.logger.Info("minted",
		zap.String("asset", asset.String()),
		zap.String("to", to.String()),
		zap.String("amount", amount.String()))
	return nil
}

// Freeze blocks (or unblocks) transfers from and to holder for asset.
func (l *MemoryLedger) Freeze(ctx context.Context, asset domain.AssetID, holder domain.Identity, frozen bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen[asset] == nil {
		l.frozen[asset] = make(map[domain.Identity]bool)
	}
	was := l.frozen[asset][holder]
	set := func(v bool) {
		if v {
			l.frozen[asset][holder] = true
		} else {
			delete(l.frozen[asset], holder)
		}
	}
	set(frozen)
	if err := l.persist(); err != nil {
		set(was)
		return err
	}
	return nil
}

func (l *MemoryLedger) balanceOf(asset domain.AssetID, holder domain.Identity) domain.Amount {
	return l.balances[asset][holder]
}

func (l *MemoryLedger) setBalance(asset domain.AssetID, holder domain.Identity, amount domain.Amount) {
	if l.balances[asset] == nil {
		l.balances[asset] = make(map[domain.Identity]domain.Amount)
	}
	l.balances[asset][holder] = amount
}

// transfer must be called with mu held.
func (l *MemoryLedger) transfer(t Transfer) error {
	if err := validate(t); err != nil {
		return err
	}
	if t.ID != "" {
		if _, ok := l.applied[t.ID]; ok {
			return nil
		}
	}
	if err := authorize(t); err != nil {
		return err
	}
	if l.frozen[t.Asset][t.From] {
		return errors.Wrapf(ErrFrozen, "%s on %s", t.From, t.Asset)
	}
	if l.frozen[t.Asset][t.To] {
		return errors.Wrapf(ErrFrozen, "%s on %s", t.To, t.Asset)
	}

	fromBalance := l.balanceOf(t.Asset, t.From)
	if fromBalance.LessThan(t.Amount) {
		return errors.Wrapf(ErrInsufficientBalance, "%s has %s %s, needs %s", t.From, fromBalance, t.Asset, t.Amount)
	}

	if t.From != t.To {
		debited, err := fromBalance.Sub(t.Amount)
		if err != nil {
			return err
		}
		credited, err := l.balanceOf(t.Asset, t.To).Add(t.Amount)
		if err != nil {
			return err
		}
		l.setBalance(t.Asset, t.From, debited)
		l.setBalance(t.Asset, t.To, credited)
	}
	if t.ID != "" {
		l.applied[t.ID] = struct{}{}
	}

	l.logger.Debug("transfer applied",
		zap.String("id", t.ID),
		zap.String("asset", t.Asset.String()),
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
		zap.String("amount", t.Amount.String()))
	return nil
}

type memorySnapshot struct {
	balances map[domain.AssetID]map[domain.Identity]domain.Amount
	applied  map[string]struct{}
}

func (l *MemoryLedger) snapshot() memorySnapshot {
	balances := make(map[domain.AssetID]map[domain.Identity]domain.Amount, len(l.balances))
	for asset, holders := range l.balances {
		copied := make(map[domain.Identity]domain.Amount, len(holders))
		for holder, amount := range holders {
			copied[holder] = amount
		}
		balances[asset] = copied
	}
	applied := make(map[string]struct{}, len(l.applied))
	for id := range l.applied {
		applied[id] = struct{}{}
	}
	return memorySnapshot{balances: balances, applied: applied}
}

func (l *MemoryLedger) restore(s memorySnapshot) {
	l.balances = s.balances
	l.applied = s.applied
}

func (l *MemoryLedger) restoreState() error {
	if l.stateStore == nil {
		return nil
	}
	state, err := l.stateStore.Load()
	if err != nil || state == nil {
		return err
	}

	for asset, holders := range state.Balances {
		for holder, raw := range holders {
			amount, err := domain.ParseAmount(raw)
			if err != nil {
				return errors.Wrapf(err, "decode %s balance of %s", asset, holder)
			}
			l.setBalance(domain.AssetID(asset), domain.Identity(holder), amount)
		}
	}
	for asset, holders := range state.Frozen {
		l.frozen[domain.AssetID(asset)] = make(map[domain.Identity]bool, len(holders))
		for _, holder := range holders {
			l.frozen[domain.AssetID(asset)][domain.Identity(holder)] = true
		}
	}
	for _, id := range state.Applied {
		l.applied[id] = struct{}{}
	}
	return nil
}

// persist must be called with mu held. A failed save leaves the caller to roll back.
func (l *MemoryLedger) persist() error {
	if l.stateStore == nil {
		return nil
	}

	state := ledgerstate.State{
		Balances: make(map[string]map[string]string, len(l.balances)),
		Frozen:   make(map[string][]string, len(l.frozen)),
		Applied:  make([]string, 0, len(l.applied)),
	}
	for asset, holders := range l.balances {
		encoded := make(map[string]string, len(holders))
		for holder, amount := range holders {
			encoded[holder.String()] = amount.String()
		}
		state.Balances[asset.String()] = encoded
	}
	for asset, holders := range l.frozen {
		for holder := range holders {
			state.Frozen[asset.String()] = append(state.Frozen[asset.String()], holder.String())
		}
	}
	for id := range l.applied {
		state.Applied = append(state.Applied, id)
	}

	if err := l.stateStore.Save(state); err != nil {
		l.logger.Error("failed to persist ledger state", zap.Error(err))
		return errors.Wrap(err, "persist ledger state")
	}
	return nil
}

// memoryTx is the view handed to Atomically callbacks; the ledger lock is already held.
type memoryTx struct {
	l *MemoryLedger
}

func (tx *memoryTx) BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Identity) (domain.Amount, error) {
	return tx.l.balanceOf(asset, holder), nil
}

func (tx *memoryTx) Transfer(ctx context.Context, t Transfer) error {
	return tx.l.transfer(t)
}
