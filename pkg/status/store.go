package status

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/smemoshui/seaport-core/pkg/engine"
	"github.com/smemoshui/seaport-core/pkg/order"
)

// FillStatus is the persisted lifecycle state of one order hash: the
// cumulative fill fraction in lowest terms plus the validated and
// cancelled flags. A missing row means the order has never been touched.
type FillStatus struct {
	Fill      order.Fraction `json:"fill"`
	Validated bool           `json:"validated"`
	Cancelled bool           `json:"cancelled"`
}

// Key prefixes. Fill status, offerer counters and parked probabilistic
// settlements share one Pebble database:
//
//	fill:<orderHash>   → FillStatus (JSON)
//	ctr:<address>      → counter (decimal)
//	lucky:<requestId>  → engine.PendingSettlement (JSON)
const (
	prefixFill    = "fill:"
	prefixCounter = "ctr:"
	prefixPending = "lucky:"
)

// fillKey returns the key for an order's fill status
// Format: "fill:{orderHash}"
func fillKey(hash common.Hash) []byte {
	return []byte(prefixFill + hash.Hex())
}

// counterKey returns the key for an offerer's counter
// Format: "ctr:{address}"
func counterKey(addr common.Address) []byte {
	return []byte(prefixCounter + addr.Hex())
}

// pendingKey returns the key for a parked settlement
// Format: "lucky:{requestId}"
func pendingKey(id uuid.UUID) []byte {
	return []byte(prefixPending + id.String())
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the last byte of the prefix
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Store is the Pebble persistence layer for order lifecycle state
type Store struct {
	db *pebble.DB
}

// NewStore opens (or creates) the Pebble database at path
func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the Pebble database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetFill loads the fill status for an order hash.
// Returns nil if the order has never been touched.
func (s *Store) GetFill(hash common.Hash) (*FillStatus, error) {
	data, closer, err := s.db.Get(fillKey(hash))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fill status: %w", err)
	}
	defer closer.Close()

	var st FillStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fill status: %w", err)
	}
	return &st, nil
}

// PutFill persists the fill status for an order hash
func (s *Store) PutFill(hash common.Hash, st *FillStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal fill status: %w", err)
	}
	if err := s.db.Set(fillKey(hash), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save fill status: %w", err)
	}
	return nil
}

// RawFill returns the stored fill-status bytes without decoding them.
// Returns nil if the order has never been touched.
func (s *Store) RawFill(hash common.Hash) ([]byte, error) {
	data, closer, err := s.db.Get(fillKey(hash))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fill status: %w", err)
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// RestoreFills writes back a set of raw fill-status snapshots in one
// atomic batch. An empty snapshot deletes the row, restoring the
// never-touched state.
func (s *Store) RestoreFills(snapshots map[common.Hash][]byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for hash, snap := range snapshots {
		if len(snap) == 0 {
			if err := batch.Delete(fillKey(hash), nil); err != nil {
				return fmt.Errorf("failed to stage fill delete: %w", err)
			}
			continue
		}
		if err := batch.Set(fillKey(hash), snap, nil); err != nil {
			return fmt.Errorf("failed to stage fill restore: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to restore fill status: %w", err)
	}
	return nil
}

// Counter returns the current counter for an offerer, zero when unset
func (s *Store) Counter(addr common.Address) (uint64, error) {
	data, closer, err := s.db.Get(counterKey(addr))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	defer closer.Close()

	c, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter: %w", err)
	}
	return c, nil
}

// SetCounter persists an offerer's counter
func (s *Store) SetCounter(addr common.Address, c uint64) error {
	val := []byte(strconv.FormatUint(c, 10))
	if err := s.db.Set(counterKey(addr), val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save counter: %w", err)
	}
	return nil
}

// PutPending persists a parked settlement
func (s *Store) PutPending(p *engine.PendingSettlement) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending settlement: %w", err)
	}
	if err := s.db.Set(pendingKey(p.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save pending settlement: %w", err)
	}
	return nil
}

// GetPending loads a parked settlement, nil when unknown
func (s *Store) GetPending(id uuid.UUID) (*engine.PendingSettlement, error) {
	data, closer, err := s.db.Get(pendingKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending settlement: %w", err)
	}
	defer closer.Close()

	var p engine.PendingSettlement
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending settlement: %w", err)
	}
	return &p, nil
}

// DeletePending removes a parked settlement
func (s *Store) DeletePending(id uuid.UUID) error {
	if err := s.db.Delete(pendingKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete pending settlement: %w", err)
	}
	return nil
}

// ListPending returns every parked settlement. Entries that fail to
// decode are skipped.
func (s *Store) ListPending() ([]*engine.PendingSettlement, error) {
	prefix := []byte(prefixPending)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending settlements: %w", err)
	}
	defer iter.Close()

	var out []*engine.PendingSettlement
	for iter.First(); iter.Valid(); iter.Next() {
		var p engine.PendingSettlement
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, iter.Error()
}
