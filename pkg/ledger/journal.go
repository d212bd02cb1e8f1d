package ledger

import (
	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journalEntry undoes one balance mutation. Entries are appended before
// each write and replayed in reverse order by RevertToSnapshot; at commit
// time each entry stages the current value of its key into a batch.
type journalEntry interface {
	revert(b *Book)
	persist(b *Book, batch *pebble.Batch) error
}

type nativeChange struct {
	account common.Address
	prev    *uint256.Int
}

func (c nativeChange) revert(b *Book) {
	if c.prev == nil {
		delete(b.native, c.account)
		return
	}
	b.native[c.account] = c.prev
}

func (c nativeChange) persist(b *Book, batch *pebble.Batch) error {
	return batch.Set(nativeKey(c.account), balanceValue(b.native[c.account]), nil)
}

type fungibleChange struct {
	key  fungibleKey
	prev *uint256.Int
}

func (c fungibleChange) revert(b *Book) {
	if c.prev == nil {
		delete(b.fungible, c.key)
		return
	}
	b.fungible[c.key] = c.prev
}

func (c fungibleChange) persist(b *Book, batch *pebble.Batch) error {
	return batch.Set(fungibleBalanceKey(c.key.Token, c.key.Owner), balanceValue(b.fungible[c.key]), nil)
}

type ownerChange struct {
	key  tokenIDKey
	prev common.Address
	had  bool
}

func (c ownerChange) revert(b *Book) {
	if !c.had {
		delete(b.owners, c.key)
		return
	}
	b.owners[c.key] = c.prev
}

func (c ownerChange) persist(b *Book, batch *pebble.Batch) error {
	key := ownerKey(c.key.Token, c.key.ID)
	owner, ok := b.owners[c.key]
	if !ok {
		return batch.Delete(key, nil)
	}
	return batch.Set(key, owner.Bytes(), nil)
}

type semiChange struct {
	key  semiKey
	prev *uint256.Int
}

func (c semiChange) revert(b *Book) {
	if c.prev == nil {
		delete(b.semi, c.key)
		return
	}
	b.semi[c.key] = c.prev
}

func (c semiChange) persist(b *Book, batch *pebble.Batch) error {
	return batch.Set(semiBalanceKey(c.key.Token, c.key.ID, c.key.Owner), balanceValue(b.semi[c.key]), nil)
}

// balanceValue encodes a balance for storage as a decimal string
func balanceValue(v *uint256.Int) []byte {
	if v == nil {
		return []byte("0")
	}
	return []byte(v.Dec())
}
