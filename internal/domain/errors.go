package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfigurationMissing asset ids were read before the contract was constructed.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrAlreadyConstructed construction was attempted on a constructed instance.
	ErrAlreadyConstructed = errors.New("contract already constructed")
	// ErrInvalidAssets construction arguments are empty or equal.
	ErrInvalidAssets = errors.New("invalid assets")
	// ErrAuthorizationDenied the account did not authorize the invocation.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrInsufficientReserve the contract holds less of the output asset than requested.
	ErrInsufficientReserve = errors.New("insufficient reserve")
	// ErrLedgerTransferFailed the ledger rejected a transfer.
	ErrLedgerTransferFailed = errors.New("ledger transfer failed")
	// ErrInvalidAmount the amount is not an integer within the signed 128-bit range.
	ErrInvalidAmount = errors.New("invalid amount")
)

// TransferError describes a transfer the ledger refused.
// It matches ErrLedgerTransferFailed and unwraps to the ledger's own error.
type TransferError struct {
	Asset  AssetID
	From   Identity
	To     Identity
	Amount Amount
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: transfer %s %s from %s to %s: %v",
		ErrLedgerTransferFailed, e.Amount, e.Asset, e.From, e.To, e.Err)
}

// Unwrap returns the ledger error.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLedgerTransferFailed) hold.
func (e *TransferError) Is(target error) bool {
	return target == ErrLedgerTransferFailed
}
