package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	weth  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	punks = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func newTestBook(t *testing.T) *Book {
	t.Helper()
	b, err := NewBook(t.TempDir())
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNativeTransfer(t *testing.T) {
	b := newTestBook(t)
	if err := b.MintNative(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.TransferNative(alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := b.NativeBalance(alice); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("alice balance = %s, want 60", got.Dec())
	}
	if got := b.NativeBalance(bob); !got.Eq(uint256.NewInt(40)) {
		t.Errorf("bob balance = %s, want 40", got.Dec())
	}

	err := b.TransferNative(alice, bob, uint256.NewInt(1000))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraft error = %v, want ErrInsufficientBalance", err)
	}
	if got := b.NativeBalance(alice); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("failed transfer moved balance: %s", got.Dec())
	}
}

func TestNativeSelfTransfer(t *testing.T) {
	b := newTestBook(t)
	if err := b.MintNative(alice, uint256.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.TransferNative(alice, alice, uint256.NewInt(50)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := b.NativeBalance(alice); !got.Eq(uint256.NewInt(50)) {
		t.Errorf("self transfer changed balance: %s", got.Dec())
	}
}

func TestFungibleTransfer(t *testing.T) {
	b := newTestBook(t)
	if err := b.MintFungible(weth, alice, uint256.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.TransferFungible(weth, alice, bob, uint256.NewInt(250)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := b.FungibleBalance(weth, alice); !got.Eq(uint256.NewInt(750)) {
		t.Errorf("alice = %s, want 750", got.Dec())
	}
	if got := b.FungibleBalance(weth, bob); !got.Eq(uint256.NewInt(250)) {
		t.Errorf("bob = %s, want 250", got.Dec())
	}
}

func TestNonFungibleOwnership(t *testing.T) {
	b := newTestBook(t)
	id := uint256.NewInt(7)
	if err := b.MintNonFungible(punks, id, alice); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// bob does not own it yet
	err := b.TransferNonFungible(punks, bob, alice, id)
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("transfer by non-owner = %v, want ErrNotOwner", err)
	}

	if err := b.TransferNonFungible(punks, alice, bob, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, ok := b.OwnerOf(punks, id)
	if !ok || owner != bob {
		t.Errorf("owner = %s ok=%v, want bob", owner.Hex(), ok)
	}
}

func TestSemiFungibleTransfer(t *testing.T) {
	b := newTestBook(t)
	id := uint256.NewInt(3)
	if err := b.MintSemiFungible(punks, id, alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.TransferSemiFungible(punks, alice, bob, id, uint256.NewInt(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := b.SemiFungibleBalance(punks, alice, id); !got.Eq(uint256.NewInt(6)) {
		t.Errorf("alice = %s, want 6", got.Dec())
	}
	if got := b.SemiFungibleBalance(punks, bob, id); !got.Eq(uint256.NewInt(4)) {
		t.Errorf("bob = %s, want 4", got.Dec())
	}

	err := b.TransferSemiFungible(punks, alice, bob, id, uint256.NewInt(7))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraft = %v, want ErrInsufficientBalance", err)
	}
}

func TestSnapshotRevert(t *testing.T) {
	b := newTestBook(t)
	if err := b.MintNative(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	id := uint256.NewInt(9)
	if err := b.MintNonFungible(punks, id, alice); err != nil {
		t.Fatalf("mint nft: %v", err)
	}

	snap := b.Snapshot()
	if err := b.TransferNative(alice, bob, uint256.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := b.TransferNonFungible(punks, alice, bob, id); err != nil {
		t.Fatalf("transfer nft: %v", err)
	}
	if err := b.MintFungible(weth, bob, uint256.NewInt(5)); err != nil {
		t.Fatalf("mint fungible: %v", err)
	}

	b.RevertToSnapshot(snap)

	if got := b.NativeBalance(alice); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("alice native after revert = %s, want 100", got.Dec())
	}
	if got := b.NativeBalance(bob); !got.IsZero() {
		t.Errorf("bob native after revert = %s, want 0", got.Dec())
	}
	if owner, _ := b.OwnerOf(punks, id); owner != alice {
		t.Errorf("nft owner after revert = %s, want alice", owner.Hex())
	}
	if got := b.FungibleBalance(weth, bob); !got.IsZero() {
		t.Errorf("bob weth after revert = %s, want 0", got.Dec())
	}
}

func TestNestedSnapshots(t *testing.T) {
	b := newTestBook(t)
	if err := b.MintNative(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	outer := b.Snapshot()
	if err := b.TransferNative(alice, bob, uint256.NewInt(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	inner := b.Snapshot()
	if err := b.TransferNative(alice, bob, uint256.NewInt(20)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	b.RevertToSnapshot(inner)
	if got := b.NativeBalance(bob); !got.Eq(uint256.NewInt(10)) {
		t.Errorf("bob after inner revert = %s, want 10", got.Dec())
	}

	b.RevertToSnapshot(outer)
	if got := b.NativeBalance(bob); !got.IsZero() {
		t.Errorf("bob after outer revert = %s, want 0", got.Dec())
	}
	if got := b.NativeBalance(alice); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("alice after outer revert = %s, want 100", got.Dec())
	}
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBook(dir)
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	id := uint256.NewInt(42)
	if err := b.MintNative(alice, uint256.NewInt(77)); err != nil {
		t.Fatalf("mint native: %v", err)
	}
	if err := b.MintFungible(weth, bob, uint256.NewInt(12)); err != nil {
		t.Fatalf("mint fungible: %v", err)
	}
	if err := b.MintNonFungible(punks, id, bob); err != nil {
		t.Fatalf("mint nft: %v", err)
	}
	if err := b.MintSemiFungible(punks, id, alice, uint256.NewInt(5)); err != nil {
		t.Fatalf("mint semi: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBook(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.NativeBalance(alice); !got.Eq(uint256.NewInt(77)) {
		t.Errorf("native after reopen = %s, want 77", got.Dec())
	}
	if got := reopened.FungibleBalance(weth, bob); !got.Eq(uint256.NewInt(12)) {
		t.Errorf("fungible after reopen = %s, want 12", got.Dec())
	}
	if owner, ok := reopened.OwnerOf(punks, id); !ok || owner != bob {
		t.Errorf("owner after reopen = %s ok=%v, want bob", owner.Hex(), ok)
	}
	if got := reopened.SemiFungibleBalance(punks, alice, id); !got.Eq(uint256.NewInt(5)) {
		t.Errorf("semi after reopen = %s, want 5", got.Dec())
	}
}

func TestUncommittedChangesNotPersisted(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBook(dir)
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	if err := b.MintNative(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// journaled but never committed
	if err := b.TransferNative(alice, bob, uint256.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBook(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.NativeBalance(alice); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("alice after reopen = %s, want the committed 100", got.Dec())
	}
	if got := reopened.NativeBalance(bob); !got.IsZero() {
		t.Errorf("bob after reopen = %s, want 0", got.Dec())
	}
}
