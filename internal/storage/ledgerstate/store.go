// Package ledgerstate persists the in-memory ledger so restarts keep balances, freezes and
// applied transfer ids.
package ledgerstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const defaultStateFile = "./wal/ledger/state.json"

// Store persists ledger state to a single JSON file.
type Store struct {
	path string
}

// NewStore creates a state store at path, creating its directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		if env := os.Getenv("SIMPLESWAP_LEDGER_STATE"); env != "" {
			path = env
		} else {
			path = defaultStateFile
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger state dir")
	}

	return &Store{path: path}, nil
}

// State represents all persisted ledger data. Amounts are decimal strings.
type State struct {
	Balances map[string]map[string]string `json:"balances"`
	Frozen   map[string][]string          `json:"frozen,omitempty"`
	Applied  []string                     `json:"applied,omitempty"`
}

// Load reads ledger state from disk. A missing file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read ledger state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode ledger state")
	}

	return &state, nil
}

// Save writes ledger state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ledger state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write ledger state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist ledger state")
	}

	return nil
}
