// Package auth verifies that an account authorized a contract invocation and issues the
// scoped sub-authorizations a contract forwards to the ledger.
package auth

import (
	"strconv"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

const (
	// FnSwap swap entry point of the contract.
	FnSwap = "swap"
	// FnTransfer transfer function of an asset's ledger.
	FnTransfer = "transfer"
)

// Invocation a contract call together with the nested calls an authorization covers.
type Invocation struct {
	Contract       string       `json:"contract"`
	Function       string       `json:"function"`
	Args           []string     `json:"args"`
	SubInvocations []Invocation `json:"sub_invocations,omitempty"`
}

// SwapInvocation is the tree an account signs to swap: the swap call itself and
// the single transfer of the input asset into the contract.
func SwapInvocation(contract domain.Identity, assetIn domain.AssetID, req domain.SwapRequest) Invocation {
	return Invocation{
		Contract: contract.String(),
		Function: FnSwap,
		Args: []string{
			strconv.FormatBool(req.Direction.IsSellAssetA()),
			req.Account.String(),
			req.Amount.String(),
		},
		SubInvocations: []Invocation{
			TransferInvocation(assetIn, req.Account, contract, req.Amount),
		},
	}
}

// TransferInvocation describes transfer(from, to, amount) on asset.
func TransferInvocation(asset domain.AssetID, from, to domain.Identity, amount domain.Amount) Invocation {
	return Invocation{
		Contract: asset.String(),
		Function: FnTransfer,
		Args:     []string{from.String(), to.String(), amount.String()},
	}
}

// Equal reports whether two invocation trees are identical.
func (inv Invocation) Equal(other Invocation) bool {
	if inv.Contract != other.Contract || inv.Function != other.Function {
		return false
	}
	if len(inv.Args) != len(other.Args) || len(inv.SubInvocations) != len(other.SubInvocations) {
		return false
	}
	for i := range inv.Args {
		if inv.Args[i] != other.Args[i] {
			return false
		}
	}
	for i := range inv.SubInvocations {
		if !inv.SubInvocations[i].Equal(other.SubInvocations[i]) {
			return false
		}
	}
	return true
}

// Depth counts nesting levels below the root.
func (inv Invocation) Depth() int {
	depth := 0
	for _, sub := range inv.SubInvocations {
		if d := sub.Depth() + 1; d > depth {
			depth = d
		}
	}
	return depth
}
