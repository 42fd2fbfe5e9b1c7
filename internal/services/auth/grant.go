package auth

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

var (
	ErrGrantMissing  = errors.New("no grant for call")
	ErrGrantMismatch = errors.New("call is not covered by grant")
	ErrGrantSpent    = errors.New("grant already used")
)

// Grant is a one-shot capability letting Grantee perform exactly Call, with no further
// nested invocations, during the current invocation.
type Grant struct {
	Grantee domain.Identity
	Call    Invocation
	used    atomic.Bool
}

// NewTransferGrant lets grantee invoke transfer(from, to, amount) on asset once.
func NewTransferGrant(grantee domain.Identity, asset domain.AssetID, from, to domain.Identity, amount domain.Amount) *Grant {
	return &Grant{
		Grantee: grantee,
		Call:    TransferInvocation(asset, from, to, amount),
	}
}

// Consume checks that invoker may perform call under this grant and spends the grant.
func (g *Grant) Consume(invoker domain.Identity, call Invocation) error {
	if g == nil {
		return ErrGrantMissing
	}
	if invoker != g.Grantee {
		return fmt.Errorf("%w: grant issued to %s, used by %s", ErrGrantMismatch, g.Grantee, invoker)
	}
	if call.Depth() > 0 || !g.Call.Equal(call) {
		return fmt.Errorf("%w: %s.%s%v", ErrGrantMismatch, call.Contract, call.Function, call.Args)
	}
	if !g.used.CompareAndSwap(false, true) {
		return ErrGrantSpent
	}
	return nil
}

// Used reports whether the grant has been consumed.
func (g *Grant) Used() bool {
	return g != nil && g.used.Load()
}
