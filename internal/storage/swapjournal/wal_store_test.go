package swapjournal

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

func request() domain.SwapRequest {
	return domain.NewSwapRequest(true, "ALICE", domain.AmountFromInt64(100))
}

func TestWALStore_Lifecycle(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Prepare(request(), "USDC", "EURC")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusPending, rec.Status)
	assert.NotEmpty(t, rec.PullID)
	assert.NotEmpty(t, rec.PushID)
	assert.NotEqual(t, rec.PullID, rec.PushID)
	assert.Equal(t, "sell_a", rec.Direction)

	_, err = store.MarkPulled(rec.ID)
	require.NoError(t, err)
	require.Len(t, store.Unresolved(), 1)

	done, err := store.MarkDone(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusDone, done.Status)
	assert.Empty(t, store.Unresolved())

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusDone, got.Status)
	assert.True(t, got.Amount.Equal(domain.AmountFromInt64(100)))

	entries := store.RecordsAfter(0)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.SwapStatusPending, entries[0].Record.Status)
	assert.Equal(t, domain.SwapStatusDone, entries[2].Record.Status)
	assert.Equal(t, store.CurrentIndex(), entries[2].Index)
	assert.Len(t, store.RecordsAfter(entries[1].Index), 1)
}

func TestWALStore_Refund(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Prepare(request(), "USDC", "EURC")
	require.NoError(t, err)

	refunding, err := store.MarkRefunding(rec.ID, errors.New("push failed"))
	require.NoError(t, err)
	require.NotEmpty(t, refunding.RefundID)
	assert.Equal(t, "push failed", refunding.Error)

	again, err := store.MarkRefunding(rec.ID, errors.New("push failed"))
	require.NoError(t, err)
	assert.Equal(t, refunding.RefundID, again.RefundID)

	stuck, err := store.MarkStuck(rec.ID, errors.New("refund failed"))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusStuck, stuck.Status)
	require.Len(t, store.Unresolved(), 1)

	compensated, err := store.MarkCompensated(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusCompensated, compensated.Status)
	assert.Empty(t, store.Unresolved())
}

func TestWALStore_UnknownSwap(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("missing")
	require.ErrorIs(t, err, ErrUnknownSwap)
	_, err = store.MarkDone("missing")
	require.ErrorIs(t, err, ErrUnknownSwap)
}

func TestWALStore_Replay(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	pending, err := store.Prepare(request(), "USDC", "EURC")
	require.NoError(t, err)
	finished, err := store.Prepare(request(), "USDC", "EURC")
	require.NoError(t, err)
	_, err = store.MarkFailed(finished.ID, errors.New("denied"))
	require.NoError(t, err)
	index := store.CurrentIndex()
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	unresolved := reopened.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, pending.ID, unresolved[0].ID)
	assert.Equal(t, pending.PullID, unresolved[0].PullID)

	failed, err := reopened.Get(finished.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusFailed, failed.Status)
	assert.Equal(t, "denied", failed.Error)

	assert.Equal(t, index, reopened.CurrentIndex())
	entries := reopened.RecordsAfter(0)
	require.Len(t, entries, 3)
	assert.Equal(t, index, entries[2].Index)
}

func TestWALStore_StuckSwapSurvivesRollover(t *testing.T) {
	dir := t.TempDir()
	const (
		segmentLimit = 2
		window       = 5
	)

	store, err := openWALStore(dir, segmentLimit, window)
	require.NoError(t, err)
	stuck, err := store.Prepare(request(), "USDC", "EURC")
	require.NoError(t, err)
	_, err = store.MarkStuck(stuck.ID, errors.New("refund failed"))
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		rec, err := store.Prepare(request(), "USDC", "EURC")
		require.NoError(t, err)
		_, err = store.MarkDone(rec.ID)
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := openWALStore(dir, segmentLimit, window)
	require.NoError(t, err)
	defer reopened.Close()

	unresolved := reopened.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, stuck.ID, unresolved[0].ID)
	assert.Equal(t, domain.SwapStatusStuck, unresolved[0].Status)

	got, err := reopened.Get(stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatusStuck, got.Status)
}

func TestWALStore_RecordsAfterIsBounded(t *testing.T) {
	const window = 4
	store, err := openWALStore(t.TempDir(), segmentLimit, window)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 20; i++ {
		_, err := store.Prepare(request(), "USDC", "EURC")
		require.NoError(t, err)
	}

	all := store.RecordsAfter(0)
	assert.GreaterOrEqual(t, len(all), window)
	assert.Less(t, len(all), 2*window)
	assert.Equal(t, store.CurrentIndex(), all[len(all)-1].Index)
	for i := 1; i < len(all); i++ {
		assert.Equal(t, all[i-1].Index+1, all[i].Index)
	}

	tail := store.RecordsAfter(store.CurrentIndex() - 2)
	require.Len(t, tail, 2)
	assert.Empty(t, store.RecordsAfter(store.CurrentIndex()))
	assert.Len(t, store.Unresolved(), 20)
}
