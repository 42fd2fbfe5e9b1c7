package swap

import (
	"context"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/services/ledger"
)

// Executor issues the contract's transfers. The contract is always the invoker.
type Executor struct {
	contract domain.Identity
}

// NewExecutor creates an executor acting as contract.
func NewExecutor(contract domain.Identity) *Executor {
	return &Executor{contract: contract}
}

// PullIn moves amount of asset from payer to the contract under the payer's grant.
func (e *Executor) PullIn(ctx context.Context, led ledger.Ledger, id string, asset domain.AssetID, payer domain.Identity, amount domain.Amount, grant *auth.Grant) error {
	return e.move(ctx, led, ledger.Transfer{
		ID:      id,
		Asset:   asset,
		From:    payer,
		To:      e.contract,
		Amount:  amount,
		Invoker: e.contract,
		Grant:   grant,
	})
}

// PushOut moves amount of asset from the contract to payee.
func (e *Executor) PushOut(ctx context.Context, led ledger.Ledger, id string, asset domain.AssetID, payee domain.Identity, amount domain.Amount) error {
	return e.move(ctx, led, ledger.Transfer{
		ID:      id,
		Asset:   asset,
		From:    e.contract,
		To:      payee,
		Amount:  amount,
		Invoker: e.contract,
	})
}

func (e *Executor) move(ctx context.Context, led ledger.Ledger, t ledger.Transfer) error {
	if err := led.Transfer(ctx, t); err != nil {
		return &domain.TransferError{
			Asset:  t.Asset,
			From:   t.From,
			To:     t.To,
			Amount: t.Amount,
			Err:    err,
		}
	}
	return nil
}
