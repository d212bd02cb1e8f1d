package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema for the balance book
// Design principles:
// 1. Prefix per asset class so LoadAll can range-scan each class
// 2. Hex-encoded addresses and ids keep keys printable for debugging
// 3. Token id encoded as a 32-byte hash hex for fixed-width keys

// Key prefixes
const (
	prefixNative   = "nat:" // native balances
	prefixFungible = "ftb:" // fungible token balances
	prefixOwner    = "nfo:" // non-fungible ownership
	prefixSemi     = "sfb:" // semi-fungible balances
)

// nativeKey returns the key for an account's native balance
// Format: "nat:{address}"
func nativeKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNative, addr.Hex()))
}

// fungibleBalanceKey returns the key for one owner's token balance
// Format: "ftb:{token}:{owner}"
func fungibleBalanceKey(token, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixFungible, token.Hex(), owner.Hex()))
}

// ownerKey returns the key for a non-fungible token instance's owner
// Format: "nfo:{token}:{id}"
func ownerKey(token common.Address, id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOwner, token.Hex(), common.Hash(id).Hex()))
}

// semiBalanceKey returns the key for one owner's balance of one token id
// Format: "sfb:{token}:{id}:{owner}"
func semiBalanceKey(token common.Address, id [32]byte, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixSemi, token.Hex(), common.Hash(id).Hex(), owner.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the last byte of the prefix
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
