package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/internal/domain"
	"github.com/vadiminshakov/simpleswap/internal/services/auth"
	"github.com/vadiminshakov/simpleswap/internal/storage/ledgerstate"
)

const (
	contract = domain.Identity("CONTRACT")
	user     = domain.Identity("USER")
	usdc     = domain.AssetID("USDC")
)

type testLedger interface {
	Ledger
	Transactional
	Receipts
	Minter
	Freeze(ctx context.Context, asset domain.AssetID, holder domain.Identity, frozen bool) error
}

func ledgers(t *testing.T) map[string]func(t *testing.T) testLedger {
	return map[string]func(t *testing.T) testLedger{
		"memory": func(t *testing.T) testLedger {
			l, err := NewMemoryLedger(nil, nil)
			require.NoError(t, err)
			return l
		},
		"sqlite": func(t *testing.T) testLedger {
			l, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
	}
}

func amt(v int64) domain.Amount {
	return domain.AmountFromInt64(v)
}

func balance(t *testing.T, l Ledger, asset domain.AssetID, holder domain.Identity) int64 {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), asset, holder)
	require.NoError(t, err)
	return b.BigInt().Int64()
}

func TestLedger_Transfer(t *testing.T) {
	for name, open := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			require.NoError(t, l.Mint(ctx, usdc, user, amt(1000)))

			t.Run("invoker moves own funds", func(t *testing.T) {
				err := l.Transfer(ctx, Transfer{ID: "t1", Asset: usdc, From: user, To: contract, Amount: amt(100), Invoker: user})
				require.NoError(t, err)
				assert.Equal(t, int64(900), balance(t, l, usdc, user))
				assert.Equal(t, int64(100), balance(t, l, usdc, contract))
			})

			t.Run("third party needs grant", func(t *testing.T) {
				err := l.Transfer(ctx, Transfer{Asset: usdc, From: user, To: contract, Amount: amt(100), Invoker: contract})
				require.ErrorIs(t, err, ErrUnauthorized)
				assert.Equal(t, int64(900), balance(t, l, usdc, user))
			})

			t.Run("grant is consumed", func(t *testing.T) {
				grant := auth.NewTransferGrant(contract, usdc, user, contract, amt(50))
				tr := Transfer{Asset: usdc, From: user, To: contract, Amount: amt(50), Invoker: contract, Grant: grant}
				require.NoError(t, l.Transfer(ctx, tr))
				assert.True(t, grant.Used())

				err := l.Transfer(ctx, tr)
				require.ErrorIs(t, err, ErrUnauthorized)
				assert.Equal(t, int64(850), balance(t, l, usdc, user))
			})

			t.Run("insufficient balance", func(t *testing.T) {
				err := l.Transfer(ctx, Transfer{Asset: usdc, From: user, To: contract, Amount: amt(10_000), Invoker: user})
				require.ErrorIs(t, err, ErrInsufficientBalance)
			})

			t.Run("negative amount", func(t *testing.T) {
				err := l.Transfer(ctx, Transfer{Asset: usdc, From: user, To: contract, Amount: amt(-1), Invoker: user})
				require.ErrorIs(t, err, ErrNegativeAmount)
			})

			t.Run("frozen holder", func(t *testing.T) {
				require.NoError(t, l.Freeze(ctx, usdc, user, true))
				err := l.Transfer(ctx, Transfer{Asset: usdc, From: user, To: contract, Amount: amt(1), Invoker: user})
				require.ErrorIs(t, err, ErrFrozen)
				require.NoError(t, l.Freeze(ctx, usdc, user, false))
			})

			t.Run("idempotent id", func(t *testing.T) {
				applied, err := l.Applied(ctx, "t1")
				require.NoError(t, err)
				assert.True(t, applied)

				err = l.Transfer(ctx, Transfer{ID: "t1", Asset: usdc, From: user, To: contract, Amount: amt(100), Invoker: user})
				require.NoError(t, err)
				assert.Equal(t, int64(850), balance(t, l, usdc, user))

				applied, err = l.Applied(ctx, "unknown")
				require.NoError(t, err)
				assert.False(t, applied)
			})
		})
	}
}

func TestLedger_AtomicallyRollsBack(t *testing.T) {
	for name, open := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			require.NoError(t, l.Mint(ctx, usdc, user, amt(1000)))

			boom := errors.New("boom")
			err := l.Atomically(ctx, func(ctx context.Context, tx Ledger) error {
				if err := tx.Transfer(ctx, Transfer{ID: "rolled", Asset: usdc, From: user, To: contract, Amount: amt(400), Invoker: user}); err != nil {
					return err
				}
				inside, err := tx.BalanceOf(ctx, usdc, contract)
				require.NoError(t, err)
				assert.Equal(t, int64(400), inside.BigInt().Int64())
				return boom
			})
			require.ErrorIs(t, err, boom)

			assert.Equal(t, int64(1000), balance(t, l, usdc, user))
			assert.Equal(t, int64(0), balance(t, l, usdc, contract))
			applied, err := l.Applied(ctx, "rolled")
			require.NoError(t, err)
			assert.False(t, applied)
		})
	}
}

func TestMemoryLedger_PersistsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := ledgerstate.NewStore(path)
	require.NoError(t, err)

	l, err := NewMemoryLedger(nil, store)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, user, amt(1000)))
	require.NoError(t, l.Transfer(ctx, Transfer{ID: "t1", Asset: usdc, From: user, To: contract, Amount: amt(300), Invoker: user}))
	require.NoError(t, l.Freeze(ctx, usdc, "BAD", true))

	restored, err := NewMemoryLedger(nil, store)
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance(t, restored, usdc, user))
	assert.Equal(t, int64(300), balance(t, restored, usdc, contract))

	applied, err := restored.Applied(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, applied)

	err = restored.Transfer(ctx, Transfer{Asset: usdc, From: user, To: "BAD", Amount: amt(1), Invoker: user})
	require.ErrorIs(t, err, ErrFrozen)
}

func TestMemoryLedger_FailedSaveRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := ledgerstate.NewStore(path)
	require.NoError(t, err)

	l, err := NewMemoryLedger(nil, store)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, user, amt(1000)))

	// a directory in place of the state file makes every save fail
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	err = l.Transfer(ctx, Transfer{ID: "t1", Asset: usdc, From: user, To: contract, Amount: amt(300), Invoker: user})
	require.Error(t, err)
	assert.Equal(t, int64(1000), balance(t, l, usdc, user))
	assert.Equal(t, int64(0), balance(t, l, usdc, contract))
	applied, err := l.Applied(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, applied)

	err = l.Atomically(ctx, func(ctx context.Context, tx Ledger) error {
		return tx.Transfer(ctx, Transfer{ID: "t2", Asset: usdc, From: user, To: contract, Amount: amt(200), Invoker: user})
	})
	require.Error(t, err)
	assert.Equal(t, int64(1000), balance(t, l, usdc, user))

	require.Error(t, l.Mint(ctx, usdc, user, amt(5)))
	assert.Equal(t, int64(1000), balance(t, l, usdc, user))

	require.Error(t, l.Freeze(ctx, usdc, user, true))
	require.NoError(t, os.Remove(path))
	require.NoError(t, l.Transfer(ctx, Transfer{ID: "t3", Asset: usdc, From: user, To: contract, Amount: amt(1), Invoker: user}))
}

func TestMemoryLedger_Forget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := ledgerstate.NewStore(path)
	require.NoError(t, err)

	l, err := NewMemoryLedger(nil, store)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.Mint(ctx, usdc, user, amt(1000)))
	require.NoError(t, l.Transfer(ctx, Transfer{ID: "t1", Asset: usdc, From: user, To: contract, Amount: amt(300), Invoker: user}))
	require.NoError(t, l.Transfer(ctx, Transfer{ID: "t2", Asset: usdc, From: user, To: contract, Amount: amt(100), Invoker: user}))

	require.NoError(t, l.Forget(ctx, "t1", "unknown"))

	restored, err := NewMemoryLedger(nil, store)
	require.NoError(t, err)
	applied, err := restored.Applied(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, applied)
	applied, err = restored.Applied(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(600), balance(t, restored, usdc, user))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, state.Applied)
}
