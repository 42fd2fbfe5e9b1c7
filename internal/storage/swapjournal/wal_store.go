// Package swapjournal records swap intents in a WAL so a swap interrupted between its legs
// can be resolved after a restart.
package swapjournal

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/simpleswap/internal/domain"
)

const (
	DefaultDir   = "./wal/swaps"
	segmentLimit = 1000
	// StreamWindow is how many recent transitions RecordsAfter can serve.
	StreamWindow = 10000

	swapIntentKeyPrefix = "swap_intent_"
)

var ErrUnknownSwap = errors.New("swap is not journaled")

// WALStore keeps the latest state of every swap in memory and appends each transition to the WAL.
type WALStore struct {
	mu     sync.RWMutex
	wal    *gowal.Wal
	latest map[string]*domain.SwapRecord
	// open holds ids of non-terminal swaps, oldest first.
	open []string
	// entries is the tail of the journal, at least the last window transitions, ordered by index.
	entries []domain.SwapRecordEntry
	window  int
	now     func() time.Time
}

// NewWALStore opens the journal under dir and replays it.
func NewWALStore(dir string) (*WALStore, error) {
	return openWALStore(dir, segmentLimit, StreamWindow)
}

func openWALStore(dir string, segmentLimit, window int) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	// no segment may be pruned: an unresolved swap must survive any number of later swaps
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "swap_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      0,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init swap journal WAL")
	}

	s := &WALStore{
		wal:    wal,
		latest: make(map[string]*domain.SwapRecord),
		window: window,
		now:    time.Now,
	}

	var replayed []domain.SwapRecord
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, swapIntentKeyPrefix) {
			continue
		}
		var rec domain.SwapRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode swap intent %s", msg.Key)
		}
		replayed = append(replayed, rec)
	}

	// replayed records are the tail of the WAL, so their indexes end at CurrentIndex
	first := wal.CurrentIndex() + 1 - uint64(len(replayed))
	for i, rec := range replayed {
		s.apply(first+uint64(i), rec)
	}

	return s, nil
}

// Prepare journals a new pending swap and returns it.
func (s *WALStore) Prepare(req domain.SwapRequest, assetIn, assetOut domain.AssetID) (domain.SwapRecord, error) {
	rec := domain.SwapRecord{
		ID:        uuid.New().String(),
		Status:    domain.SwapStatusPending,
		Direction: req.Direction.String(),
		Account:   req.Account,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		Amount:    req.Amount,
		PullID:    uuid.New().String(),
		PushID:    uuid.New().String(),
		Time:      s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(rec); err != nil {
		return domain.SwapRecord{}, err
	}
	return rec, nil
}

// MarkPulled records that the input leg was applied.
func (s *WALStore) MarkPulled(id string) (domain.SwapRecord, error) {
	return s.transition(id, func(rec *domain.SwapRecord) {
		rec.Status = domain.SwapStatusPulled
	})
}

// MarkDone records that both legs were applied.
func (s *WALStore) MarkDone(id string) (domain.SwapRecord, error) {
	return s.transition(id, func(rec *domain.SwapRecord) {
		rec.Status = domain.SwapStatusDone
		rec.Error = ""
	})
}

// MarkFailed records that the swap ended with no funds moved.
func (s *WALStore) MarkFailed(id string, cause error) (domain.SwapRecord, error) {
	return s.transition(id, func(rec *domain.SwapRecord) {
		rec.Status = domain.SwapStatusFailed
		rec.Error = errorText(cause)
	})
}

// MarkRefunding assigns the refund transfer id before the refund is attempted.
func (s *WALStore) MarkRefunding(id string, cause error) (domain.SwapRecord, error) {
	return s.transition(id, func(rec *domain.SwapRecord) {
		if rec.RefundID == "" {
			rec.RefundID = uuid.New().String()
		}
		rec.Error = errorText(cause)
	})
}

// MarkCompensated records that the input leg was refunded.
func (s *WALStore) MarkCompensated(id string) (domain.SwapRecord, error) {
	return s.transition(id, func(rec *domain.SwapRecord) {
		rec.Status = domain.SwapStatusCompensated
	})
}

// MarkStuck records that the refund could not be applied.
func (s *WALStore) MarkStuck(id string, cause error) (domain.SwapRecord, error) {
	return s.transition(id, func(rec *domain.SwapRecord) {
		rec.Status = domain.SwapStatusStuck
		rec.Error = errorText(cause)
	})
}

// Get returns the latest state of a swap.
func (s *WALStore) Get(id string) (domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.latest[id]
	if !ok {
		return domain.SwapRecord{}, errors.Wrap(ErrUnknownSwap, id)
	}
	return *rec, nil
}

// Unresolved returns swaps that are not in a terminal state, oldest first.
func (s *WALStore) Unresolved() []domain.SwapRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SwapRecord, 0, len(s.open))
	for _, id := range s.open {
		out = append(out, *s.latest[id])
	}
	return out
}

// RecordsAfter returns the transitions written after the given journal index. Only the last
// StreamWindow transitions are kept, so a reader further behind resumes from the oldest kept.
func (s *WALStore) RecordsAfter(index uint64) []domain.SwapRecordEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Index > index
	})
	return slices.Clone(s.entries[i:])
}

// CurrentIndex returns the latest journal index.
func (s *WALStore) CurrentIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

func (s *WALStore) transition(id string, mutate func(rec *domain.SwapRecord)) (domain.SwapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.latest[id]
	if !ok {
		return domain.SwapRecord{}, errors.Wrap(ErrUnknownSwap, id)
	}
	next := *current
	mutate(&next)
	next.Time = s.now().UTC()

	if err := s.persist(next); err != nil {
		return domain.SwapRecord{}, err
	}
	return next, nil
}

// persist must be called with mu held.
func (s *WALStore) persist(rec domain.SwapRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal swap intent")
	}
	key := fmt.Sprintf("%s%s", swapIntentKeyPrefix, rec.ID)
	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, data); err != nil {
		return errors.Wrap(err, "write swap intent")
	}
	s.apply(nextIndex, rec)
	return nil
}

func (s *WALStore) apply(index uint64, rec domain.SwapRecord) {
	_, known := s.latest[rec.ID]
	stored := rec
	s.latest[rec.ID] = &stored

	switch {
	case rec.Status.Terminal():
		s.open = slices.DeleteFunc(s.open, func(id string) bool { return id == rec.ID })
	case !known:
		s.open = append(s.open, rec.ID)
	}

	s.entries = append(s.entries, domain.SwapRecordEntry{Index: index, Record: rec})
	// trim in batches so appends stay amortized O(1)
	if s.window > 0 && len(s.entries) >= 2*s.window {
		s.entries = slices.Clone(s.entries[len(s.entries)-s.window:])
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
