package auth

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/storage/kv"
)

const testNetwork = "simpleswap-test"

func swapInvocationFor(account domain.Identity, amount int64) Invocation {
	req := domain.NewSwapRequest(true, account, domain.AmountFromInt64(amount))
	return SwapInvocation("CONTRACT", "USDC", req)
}

func TestSignatureAuthorizer_Accepts(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := AddressOf(key)
	inv := swapInvocationFor(account, 500)

	cred, err := Sign(key, testNetwork, inv, 1, time.Now().Add(time.Minute))
	require.NoError(t, err)

	a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
	require.NoError(t, a.RequireAuth(WithCredential(context.Background(), cred), account, inv))
}

func TestSignatureAuthorizer_Rejects(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := AddressOf(key)
	inv := swapInvocationFor(account, 500)
	future := time.Now().Add(time.Minute)

	signedBy := func() Credential {
		cred, err := Sign(key, testNetwork, inv, 7, future)
		require.NoError(t, err)
		return cred
	}

	t.Run("missing credential", func(t *testing.T) {
		a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
		err := a.RequireAuth(context.Background(), account, inv)
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("wrong signer", func(t *testing.T) {
		cred, err := Sign(other, testNetwork, inv, 7, future)
		require.NoError(t, err)
		a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
		err = a.RequireAuth(WithCredential(context.Background(), cred), account, inv)
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("different amount", func(t *testing.T) {
		a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
		err := a.RequireAuth(WithCredential(context.Background(), signedBy()), account, swapInvocationFor(account, 501))
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("different network", func(t *testing.T) {
		a := NewSignatureAuthorizer("mainnet", kv.NewMemoryStore(), nil)
		err := a.RequireAuth(WithCredential(context.Background(), signedBy()), account, inv)
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("expired", func(t *testing.T) {
		a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
		a.now = func() time.Time { return future.Add(time.Second) }
		err := a.RequireAuth(WithCredential(context.Background(), signedBy()), account, inv)
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("replayed nonce", func(t *testing.T) {
		a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
		ctx := WithCredential(context.Background(), signedBy())
		require.NoError(t, a.RequireAuth(ctx, account, inv))
		err := a.RequireAuth(ctx, account, inv)
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})

	t.Run("malformed signature", func(t *testing.T) {
		a := NewSignatureAuthorizer(testNetwork, kv.NewMemoryStore(), nil)
		cred := Credential{Signature: "0x1234", Nonce: 1, ExpiresAt: future.Unix()}
		err := a.RequireAuth(WithCredential(context.Background(), cred), account, inv)
		require.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	})
}

func TestGrant_SingleUse(t *testing.T) {
	amount := domain.AmountFromInt64(500)
	g := NewTransferGrant("CONTRACT", "USDC", "USER", "CONTRACT", amount)
	call := TransferInvocation("USDC", "USER", "CONTRACT", amount)

	require.NoError(t, g.Consume("CONTRACT", call))
	assert.True(t, g.Used())
	require.ErrorIs(t, g.Consume("CONTRACT", call), ErrGrantSpent)
}

func TestGrant_Scope(t *testing.T) {
	amount := domain.AmountFromInt64(500)
	g := NewTransferGrant("CONTRACT", "USDC", "USER", "CONTRACT", amount)

	require.ErrorIs(t, g.Consume("OTHER", TransferInvocation("USDC", "USER", "CONTRACT", amount)), ErrGrantMismatch)
	require.ErrorIs(t, g.Consume("CONTRACT", TransferInvocation("EURC", "USER", "CONTRACT", amount)), ErrGrantMismatch)
	require.ErrorIs(t, g.Consume("CONTRACT", TransferInvocation("USDC", "USER", "THIEF", amount)), ErrGrantMismatch)
	require.ErrorIs(t, g.Consume("CONTRACT", TransferInvocation("USDC", "USER", "CONTRACT", domain.AmountFromInt64(501))), ErrGrantMismatch)

	nested := TransferInvocation("USDC", "USER", "CONTRACT", amount)
	nested.SubInvocations = []Invocation{TransferInvocation("EURC", "USER", "CONTRACT", amount)}
	require.ErrorIs(t, g.Consume("CONTRACT", nested), ErrGrantMismatch)

	assert.False(t, g.Used())

	var missing *Grant
	require.ErrorIs(t, missing.Consume("CONTRACT", TransferInvocation("USDC", "USER", "CONTRACT", amount)), ErrGrantMissing)
}
