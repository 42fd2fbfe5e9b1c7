package swap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/ledger"
)

// ReserveChecker compares the contract's holdings of the output asset with a requested amount.
type ReserveChecker struct {
	contract domain.Identity
}

// NewReserveChecker creates a checker for the given contract identity.
func NewReserveChecker(contract domain.Identity) *ReserveChecker {
	return &ReserveChecker{contract: contract}
}

// Check reports whether the contract holds at least amount of the asset the caller buys.
// The balance is read from led on every call.
func (r *ReserveChecker) Check(ctx context.Context, led ledger.Ledger, assets domain.AssetPair, dir domain.Direction, amount domain.Amount) (bool, error) {
	_, out := dir.Resolve(assets)

	reserve, err := led.BalanceOf(ctx, out, r.contract)
	if err != nil {
		return false, errors.Wrapf(err, "read %s reserve", out)
	}
	return reserve.GreaterThanOrEqual(amount), nil
}
