package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Book tracks asset balances for every account in a thread-safe manner.
// Four asset classes are kept: native currency, fungible token balances,
// non-fungible ownership, and semi-fungible balances per token id.
// Uses an in-memory cache + Pebble persistence for durability; every
// mutation is journaled so an in-flight settlement can be unwound with
// RevertToSnapshot before anything is committed.
type Book struct {
	mu       sync.RWMutex
	native   map[common.Address]*uint256.Int
	fungible map[fungibleKey]*uint256.Int
	owners   map[tokenIDKey]common.Address
	semi     map[semiKey]*uint256.Int
	journal  []journalEntry
	store    *Store
}

// fungibleKey addresses one owner's balance of one token
type fungibleKey struct {
	Token common.Address
	Owner common.Address
}

// tokenIDKey addresses one non-fungible token instance
type tokenIDKey struct {
	Token common.Address
	ID    [32]byte
}

// semiKey addresses one owner's balance of one semi-fungible token id
type semiKey struct {
	Token common.Address
	ID    [32]byte
	Owner common.Address
}

// NewBook opens the balance book backed by a Pebble database at dbPath,
// loading all persisted balances into the cache up front so reads never
// have to touch disk.
func NewBook(dbPath string) (*Book, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger store: %w", err)
	}
	b := &Book{
		native:   make(map[common.Address]*uint256.Int),
		fungible: make(map[fungibleKey]*uint256.Int),
		owners:   make(map[tokenIDKey]common.Address),
		semi:     make(map[semiKey]*uint256.Int),
		store:    store,
	}
	if err := store.LoadAll(b); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return b, nil
}

// Close closes the underlying Pebble database
func (b *Book) Close() error {
	return b.store.Close()
}

// --- reads ---

// NativeBalance returns the native balance of addr, zero when unknown
func (b *Book) NativeBalance(addr common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneOrZero(b.native[addr])
}

// FungibleBalance returns owner's balance of the fungible token
func (b *Book) FungibleBalance(token, owner common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneOrZero(b.fungible[fungibleKey{Token: token, Owner: owner}])
}

// OwnerOf returns the current owner of a non-fungible token instance
func (b *Book) OwnerOf(token common.Address, id *uint256.Int) (common.Address, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	owner, ok := b.owners[tokenIDKey{Token: token, ID: id.Bytes32()}]
	return owner, ok
}

// SemiFungibleBalance returns owner's balance of one semi-fungible token id
func (b *Book) SemiFungibleBalance(token, owner common.Address, id *uint256.Int) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneOrZero(b.semi[semiKey{Token: token, ID: id.Bytes32(), Owner: owner}])
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}

// --- transfers ---

// TransferNative moves native value between accounts. A transfer to self
// still passes the balance check and nets out to a no-op.
func (b *Book) TransferNative(from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("native transfer: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.native[from]
	if fromBal == nil || fromBal.Lt(amount) {
		return fmt.Errorf("native: account %s has %s, needs %s: %w",
			from.Hex(), cloneOrZero(fromBal).Dec(), amount.Dec(), ErrInsufficientBalance)
	}
	b.setNative(from, new(uint256.Int).Sub(fromBal, amount))
	b.setNative(to, new(uint256.Int).Add(cloneOrZero(b.native[to]), amount))
	return nil
}

// TransferFungible moves fungible token balance between accounts
func (b *Book) TransferFungible(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("fungible transfer: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromKey := fungibleKey{Token: token, Owner: from}
	fromBal := b.fungible[fromKey]
	if fromBal == nil || fromBal.Lt(amount) {
		return fmt.Errorf("token %s: account %s has %s, needs %s: %w",
			token.Hex(), from.Hex(), cloneOrZero(fromBal).Dec(), amount.Dec(), ErrInsufficientBalance)
	}
	toKey := fungibleKey{Token: token, Owner: to}
	b.setFungible(fromKey, new(uint256.Int).Sub(fromBal, amount))
	b.setFungible(toKey, new(uint256.Int).Add(cloneOrZero(b.fungible[toKey]), amount))
	return nil
}

// TransferNonFungible moves one token instance from its current owner.
// Fails unless from actually owns the token.
func (b *Book) TransferNonFungible(token common.Address, from, to common.Address, id *uint256.Int) error {
	if id == nil {
		return fmt.Errorf("non-fungible transfer: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := tokenIDKey{Token: token, ID: id.Bytes32()}
	owner, ok := b.owners[key]
	if !ok || owner != from {
		return fmt.Errorf("token %s id %s held by %s, not %s: %w",
			token.Hex(), id.Dec(), owner.Hex(), from.Hex(), ErrNotOwner)
	}
	b.setOwner(key, to)
	return nil
}

// TransferSemiFungible moves semi-fungible balance of one token id
func (b *Book) TransferSemiFungible(token common.Address, from, to common.Address, id, amount *uint256.Int) error {
	if id == nil || amount == nil {
		return fmt.Errorf("semi-fungible transfer: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromKey := semiKey{Token: token, ID: id.Bytes32(), Owner: from}
	fromBal := b.semi[fromKey]
	if fromBal == nil || fromBal.Lt(amount) {
		return fmt.Errorf("token %s id %s: account %s has %s, needs %s: %w",
			token.Hex(), id.Dec(), from.Hex(), cloneOrZero(fromBal).Dec(), amount.Dec(), ErrInsufficientBalance)
	}
	toKey := semiKey{Token: token, ID: id.Bytes32(), Owner: to}
	b.setSemi(fromKey, new(uint256.Int).Sub(fromBal, amount))
	b.setSemi(toKey, new(uint256.Int).Add(cloneOrZero(b.semi[toKey]), amount))
	return nil
}

// --- minting (deposits, bridge credits, test and genesis seeding) ---

// MintNative credits native value to an account out of thin air
func (b *Book) MintNative(to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("native mint: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, overflow := new(uint256.Int).AddOverflow(cloneOrZero(b.native[to]), amount)
	if overflow {
		return fmt.Errorf("native mint to %s: %w", to.Hex(), ErrBalanceOverflow)
	}
	b.setNative(to, bal)
	return nil
}

// MintFungible credits fungible token balance to an account
func (b *Book) MintFungible(token, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("fungible mint: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fungibleKey{Token: token, Owner: to}
	bal, overflow := new(uint256.Int).AddOverflow(cloneOrZero(b.fungible[key]), amount)
	if overflow {
		return fmt.Errorf("token %s mint to %s: %w", token.Hex(), to.Hex(), ErrBalanceOverflow)
	}
	b.setFungible(key, bal)
	return nil
}

// MintNonFungible assigns ownership of a token instance, overwriting any
// previous owner
func (b *Book) MintNonFungible(token common.Address, id *uint256.Int, owner common.Address) error {
	if id == nil {
		return fmt.Errorf("non-fungible mint: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setOwner(tokenIDKey{Token: token, ID: id.Bytes32()}, owner)
	return nil
}

// MintSemiFungible credits semi-fungible balance of one token id
func (b *Book) MintSemiFungible(token common.Address, id *uint256.Int, to common.Address, amount *uint256.Int) error {
	if id == nil || amount == nil {
		return fmt.Errorf("semi-fungible mint: %w", ErrNilAmount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := semiKey{Token: token, ID: id.Bytes32(), Owner: to}
	bal, overflow := new(uint256.Int).AddOverflow(cloneOrZero(b.semi[key]), amount)
	if overflow {
		return fmt.Errorf("token %s id %s mint to %s: %w", token.Hex(), id.Dec(), to.Hex(), ErrBalanceOverflow)
	}
	b.setSemi(key, bal)
	return nil
}

// --- journaled writes ---

func (b *Book) setNative(addr common.Address, val *uint256.Int) {
	b.journal = append(b.journal, nativeChange{account: addr, prev: b.native[addr]})
	b.native[addr] = val
}

func (b *Book) setFungible(key fungibleKey, val *uint256.Int) {
	b.journal = append(b.journal, fungibleChange{key: key, prev: b.fungible[key]})
	b.fungible[key] = val
}

func (b *Book) setOwner(key tokenIDKey, owner common.Address) {
	prev, had := b.owners[key]
	b.journal = append(b.journal, ownerChange{key: key, prev: prev, had: had})
	b.owners[key] = owner
}

func (b *Book) setSemi(key semiKey, val *uint256.Int) {
	b.journal = append(b.journal, semiChange{key: key, prev: b.semi[key]})
	b.semi[key] = val
}

// --- snapshots ---

// Snapshot marks the current journal position for a later revert
func (b *Book) Snapshot() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.journal)
}

// RevertToSnapshot undoes every mutation made after the matching Snapshot
// call, in reverse order. Reverting to a position older than the last
// commit is not possible: committed mutations are permanent.
func (b *Book) RevertToSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 || id > len(b.journal) {
		return
	}
	for i := len(b.journal) - 1; i >= id; i-- {
		b.journal[i].revert(b)
	}
	b.journal = b.journal[:id]
}

// Commit persists every balance touched since the last commit and clears
// the journal, making the mutations permanent.
func (b *Book) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.journal) == 0 {
		return nil
	}
	batch := b.store.NewBatch()
	for _, entry := range b.journal {
		if err := entry.persist(b, batch); err != nil {
			batch.Close()
			return fmt.Errorf("failed to stage ledger entry: %w", err)
		}
	}
	if err := b.store.CommitBatch(batch); err != nil {
		return fmt.Errorf("failed to commit ledger batch: %w", err)
	}
	b.journal = b.journal[:0]
	return nil
}
