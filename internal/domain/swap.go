package domain

import (
	"fmt"
	"time"
)

// SwapRequest a single swap invocation; never persisted by the contract itself.
type SwapRequest struct {
	// Direction which asset the account sells.
	Direction Direction
	// Account the caller, payer of the input leg and payee of the output leg.
	Account Identity
	// Amount quantity of each leg (rate is 1:1).
	Amount Amount
}

// NewSwapRequest maps the external entry point arguments to a SwapRequest.
func NewSwapRequest(isSellAssetA bool, account Identity, amount Amount) SwapRequest {
	return SwapRequest{
		Direction: DirectionFromBool(isSellAssetA),
		Account:   account,
		Amount:    amount,
	}
}

// String returns a human-readable string representation.
func (r SwapRequest) String() string {
	return fmt.Sprintf("%s account: %s amount: %s", r.Direction, r.Account, r.Amount)
}

// SwapStatus lifecycle state of a journaled swap.
type SwapStatus string

const (
	// SwapStatusPending swap accepted, no leg confirmed yet.
	SwapStatusPending SwapStatus = "pending"
	// SwapStatusPulled input leg confirmed, output leg not yet confirmed.
	SwapStatusPulled SwapStatus = "pulled"
	// SwapStatusDone both legs confirmed.
	SwapStatusDone SwapStatus = "done"
	// SwapStatusFailed swap aborted before any funds moved.
	SwapStatusFailed SwapStatus = "failed"
	// SwapStatusCompensated input leg was refunded after the output leg failed.
	SwapStatusCompensated SwapStatus = "compensated"
	// SwapStatusStuck refund failed; needs operator attention.
	SwapStatusStuck SwapStatus = "stuck"
)

// Terminal reports whether no further transition is expected.
func (s SwapStatus) Terminal() bool {
	switch s {
	case SwapStatusDone, SwapStatusFailed, SwapStatusCompensated:
		return true
	}
	return false
}

// SwapRecord durable trace of a swap and the transfer ids of its legs.
type SwapRecord struct {
	ID        string     `json:"id"`
	Status    SwapStatus `json:"status"`
	Direction string     `json:"direction"`
	Account   Identity   `json:"account"`
	AssetIn   AssetID    `json:"asset_in"`
	AssetOut  AssetID    `json:"asset_out"`
	Amount    Amount     `json:"amount"`
	PullID    string     `json:"pull_id"`
	PushID    string     `json:"push_id"`
	RefundID  string     `json:"refund_id,omitempty"`
	Time      time.Time  `json:"time"`
	Error     string     `json:"error,omitempty"`
}

// SwapRecordEntry bundles a record with its journal index.
type SwapRecordEntry struct {
	Index  uint64
	Record SwapRecord
}

// ReserveSnapshot the contract's holdings of both registered assets.
type ReserveSnapshot struct {
	Timestamp time.Time `json:"ts"`
	Contract  Identity  `json:"contract"`
	AssetA    AssetID   `json:"asset_a"`
	AssetB    AssetID   `json:"asset_b"`
	ReserveA  Amount    `json:"reserve_a"`
	ReserveB  Amount    `json:"reserve_b"`
}
