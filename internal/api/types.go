// Package api holds the JSON bodies exchanged between swapd and its clients.
package api

import (
	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
)

// SwapRequest is the body of POST /v1/swap and the file written by `swapctl sign`.
type SwapRequest struct {
	IsSellAssetA bool            `json:"is_sell_asset_a"`
	Account      domain.Identity `json:"account"`
	Amount       domain.Amount   `json:"amount"`
	Credential   auth.Credential `json:"credential"`
	// Invocation is informational: the server rebuilds the tree it verifies.
	Invocation *auth.Invocation `json:"invocation,omitempty"`
}

// Domain converts the body to a swap request.
func (r SwapRequest) Domain() domain.SwapRequest {
	return domain.NewSwapRequest(r.IsSellAssetA, r.Account, r.Amount)
}

type FundRequest struct {
	Asset  domain.AssetID  `json:"asset"`
	Holder domain.Identity `json:"holder"`
	Amount domain.Amount   `json:"amount"`
}

type BalanceResponse struct {
	Asset   domain.AssetID  `json:"asset"`
	Holder  domain.Identity `json:"holder"`
	Balance domain.Amount   `json:"balance"`
}

type AssetsResponse struct {
	Contract domain.Identity `json:"contract"`
	Network  string          `json:"network"`
	AssetA   domain.AssetID  `json:"asset_a"`
	AssetB   domain.AssetID  `json:"asset_b"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Swap is set when the failure happened after the swap was journaled.
	Swap *domain.SwapRecord `json:"swap,omitempty"`
}
