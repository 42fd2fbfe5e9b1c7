package kv

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultInstanceDir   = "./wal/instance"
	instanceSegmentLimit = 1000
	instanceKeyPrefix    = "kv_"
)

// WALStore persists key-value pairs in a WAL and serves reads from an in-memory index
// rebuilt on open. The last write of a key wins.
type WALStore struct {
	wal   *gowal.Wal
	mu    sync.RWMutex
	index map[string][]byte
}

// NewWALStore opens (or creates) a WAL-backed store under dir.
func NewWALStore(dir string) (*WALStore, error) {
	return openWALStore(dir, instanceSegmentLimit)
}

func openWALStore(dir string, segmentLimit int) (*WALStore, error) {
	if dir == "" {
		dir = defaultInstanceDir
	}

	// no segment may be pruned: the index is rebuilt from the whole log on open
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "instance_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      0,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init instance WAL")
	}

	index := make(map[string][]byte)
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, instanceKeyPrefix) {
			continue
		}
		index[strings.TrimPrefix(msg.Key, instanceKeyPrefix)] = msg.Value
	}

	return &WALStore{wal: wal, index: index}, nil
}

func (s *WALStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("instance store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.index[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *WALStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.wal == nil {
		return errors.New("instance store is not initialized")
	}
	if key == "" {
		return fmt.Errorf("instance store key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, instanceKeyPrefix+key, value); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	s.index[key] = append([]byte(nil), value...)

	return nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("instance store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
