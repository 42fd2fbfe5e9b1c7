// Package ledger moves and reports asset balances. It stands in for the per-asset token
// contracts the swap contract calls into.
package ledger

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
)

var (
	ErrNegativeAmount      = errors.New("negative amount is not allowed")
	ErrInsufficientBalance = errors.New("balance is not sufficient to spend")
	ErrFrozen              = errors.New("holder is frozen")
	ErrUnauthorized        = errors.New("transfer not authorized")
)

// Transfer a single movement of funds.
type Transfer struct {
	// ID makes the transfer idempotent; a repeated ID is a no-op. Empty means untracked.
	ID     string
	Asset  domain.AssetID
	From   domain.Identity
	To     domain.Identity
	Amount domain.Amount
	// Invoker issues the call. Moving the invoker's own funds needs no grant.
	Invoker domain.Identity
	// Grant authorizes Invoker to move From's funds.
	Grant *auth.Grant
}

// Invocation describes the transfer as the call a grant must cover.
func (t Transfer) Invocation() auth.Invocation {
	return auth.TransferInvocation(t.Asset, t.From, t.To, t.Amount)
}

// Ledger reports balances and applies transfers, all-or-nothing per call.
type Ledger interface {
	BalanceOf(ctx context.Context, asset domain.AssetID, holder domain.Identity) (domain.Amount, error)
	Transfer(ctx context.Context, t Transfer) error
}

// Transactional ledgers can run several calls as one all-or-nothing unit.
type Transactional interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, l Ledger) error) error
}

// Receipts ledgers report whether a transfer id was applied.
type Receipts interface {
	Applied(ctx context.Context, transferID string) (bool, error)
}

// Pruner ledgers can drop receipts once the swap that issued them is resolved.
type Pruner interface {
	Forget(ctx context.Context, transferIDs ...string) error
}

// Minter ledgers can credit new funds, used for funding test accounts.
type Minter interface {
	Mint(ctx context.Context, asset domain.AssetID, to domain.Identity, amount domain.Amount) error
}

func authorize(t Transfer) error {
	if t.From == t.Invoker {
		return nil
	}
	if err := t.Grant.Consume(t.Invoker, t.Invocation()); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

func validate(t Transfer) error {
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if t.Asset == "" || t.From.IsZero() || t.To.IsZero() {
		return errors.New("asset, from and to are required")
	}
	return nil
}
