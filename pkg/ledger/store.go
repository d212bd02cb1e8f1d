package ledger

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Store is the Pebble persistence layer under the balance book. The book
// owns all in-memory state; the store only round-trips it to disk.
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

// NewBatch starts a write batch for a journal commit
func (s *Store) NewBatch() *pebble.Batch {
	return s.db.NewBatch()
}

// CommitBatch durably applies a write batch
func (s *Store) CommitBatch(batch *pebble.Batch) error {
	return batch.Commit(pebble.Sync)
}

// LoadAll scans every persisted balance into the book's maps. Called once
// at startup before the book serves reads; invalid entries are skipped.
func (s *Store) LoadAll(b *Book) error {
	if err := s.scan(prefixNative, func(parts []string, value []byte) {
		if len(parts) != 2 || !common.IsHexAddress(parts[1]) {
			return
		}
		bal, err := uint256.FromDecimal(string(value))
		if err != nil {
			return
		}
		b.native[common.HexToAddress(parts[1])] = bal
	}); err != nil {
		return err
	}

	if err := s.scan(prefixFungible, func(parts []string, value []byte) {
		if len(parts) != 3 || !common.IsHexAddress(parts[1]) || !common.IsHexAddress(parts[2]) {
			return
		}
		bal, err := uint256.FromDecimal(string(value))
		if err != nil {
			return
		}
		key := fungibleKey{Token: common.HexToAddress(parts[1]), Owner: common.HexToAddress(parts[2])}
		b.fungible[key] = bal
	}); err != nil {
		return err
	}

	if err := s.scan(prefixOwner, func(parts []string, value []byte) {
		if len(parts) != 3 || !common.IsHexAddress(parts[1]) || len(value) != common.AddressLength {
			return
		}
		key := tokenIDKey{Token: common.HexToAddress(parts[1]), ID: common.HexToHash(parts[2])}
		b.owners[key] = common.BytesToAddress(value)
	}); err != nil {
		return err
	}

	return s.scan(prefixSemi, func(parts []string, value []byte) {
		if len(parts) != 4 || !common.IsHexAddress(parts[1]) || !common.IsHexAddress(parts[3]) {
			return
		}
		bal, err := uint256.FromDecimal(string(value))
		if err != nil {
			return
		}
		key := semiKey{
			Token: common.HexToAddress(parts[1]),
			ID:    common.HexToHash(parts[2]),
			Owner: common.HexToAddress(parts[3]),
		}
		b.semi[key] = bal
	})
}

// scan iterates every key under a prefix, splitting the key on ":" and
// handing the parts plus value to fn
func (s *Store) scan(prefix string, fn func(parts []string, value []byte)) error {
	lower := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: keyUpperBound(lower),
	})
	if err != nil {
		return fmt.Errorf("failed to scan %q: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		parts := strings.Split(string(iter.Key()), ":")
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		fn(parts, value)
	}
	return iter.Error()
}
