package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ItemClass tags the asset standard an item belongs to
type ItemClass uint8

const (
	Native       ItemClass = iota // chain-native currency, no token address
	Fungible                      // ERC-20 style balance token
	NonFungible                   // ERC-721 style unique token
	SemiFungible                  // ERC-1155 style id+amount token
)

func (c ItemClass) String() string {
	switch c {
	case Native:
		return "native"
	case Fungible:
		return "erc20"
	case NonFungible:
		return "erc721"
	case SemiFungible:
		return "erc1155"
	default:
		return "unknown"
	}
}

// Valid reports whether the class is one of the four supported standards
func (c ItemClass) Valid() bool {
	return c <= SemiFungible
}

// Kind is the order-type tag: open/restricted pairs with full/partial
// sub-variants, plus contract orders generated by a contract offerer.
// Full kinds may only be settled whole (fraction 1/1); partial kinds
// accept any fraction up to the unfilled remainder.
type Kind uint8

const (
	FullOpen Kind = iota
	PartialOpen
	FullRestricted
	PartialRestricted
	Contract
)

func (k Kind) String() string {
	switch k {
	case FullOpen:
		return "full_open"
	case PartialOpen:
		return "partial_open"
	case FullRestricted:
		return "full_restricted"
	case PartialRestricted:
		return "partial_restricted"
	case Contract:
		return "contract"
	default:
		return "unknown"
	}
}

// IsPartial returns true if the order accepts partial fills
func (k Kind) IsPartial() bool {
	return k == PartialOpen || k == PartialRestricted
}

// IsRestricted returns true if the order requires zone authorization
func (k Kind) IsRestricted() bool {
	return k == FullRestricted || k == PartialRestricted
}

// IsContract returns true for contract-offerer orders
// Contract orders carry no offerer signature and may offer native currency.
func (k Kind) IsContract() bool {
	return k == Contract
}

// ConduitKey selects the transfer channel an offerer's tokens move through.
// The zero key means direct transfers (no channel).
type ConduitKey [32]byte

// IsZero returns true for the direct-transfer key
func (k ConduitKey) IsZero() bool {
	return k == ConduitKey{}
}

func (k ConduitKey) Hex() string {
	return common.Hash(k).Hex()
}

// MarshalText encodes the key as 0x-prefixed hex (JSON map/field friendly)
func (k ConduitKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText decodes a 0x-prefixed hex key
func (k *ConduitKey) UnmarshalText(text []byte) error {
	var h common.Hash
	if err := h.UnmarshalText(text); err != nil {
		return fmt.Errorf("invalid conduit key: %w", err)
	}
	*k = ConduitKey(h)
	return nil
}

// OfferItem is one asset the offerer gives up.
// StartAmount and EndAmount may differ to model linear (dutch) pricing over
// the order's time window; for static pricing they are equal.
type OfferItem struct {
	Class       ItemClass      `json:"itemType"`
	Token       common.Address `json:"token"`      // zero for native
	Identifier  *uint256.Int   `json:"identifier"` // token id, zero for fungibles
	StartAmount *uint256.Int   `json:"startAmount"`
	EndAmount   *uint256.Int   `json:"endAmount"`
}

// ConsiderationItem is one asset the offerer demands in return,
// payable to a fixed recipient.
type ConsiderationItem struct {
	Class       ItemClass      `json:"itemType"`
	Token       common.Address `json:"token"`
	Identifier  *uint256.Int   `json:"identifier"`
	StartAmount *uint256.Int   `json:"startAmount"`
	EndAmount   *uint256.Int   `json:"endAmount"`
	Recipient   common.Address `json:"recipient"`
}

// Parameters is the immutable body of an order. Once hashed, the order is
// referenced by its hash; any field change produces a different order.
type Parameters struct {
	Offerer       common.Address      `json:"offerer"`
	Zone          common.Address      `json:"zone"` // authorizer for restricted kinds
	Offer         []OfferItem         `json:"offer"`
	Consideration []ConsiderationItem `json:"consideration"`
	Kind          Kind                `json:"orderType"`
	StartTime     int64               `json:"startTime"` // Unix seconds, inclusive
	EndTime       int64               `json:"endTime"`   // Unix seconds, exclusive
	ConduitKey    ConduitKey          `json:"conduitKey"`
	Salt          *uint256.Int        `json:"salt"`
	Counter       uint64              `json:"counter"` // offerer's counter at signing time
}

// Order is signed Parameters
type Order struct {
	Parameters Parameters `json:"parameters"`
	Signature  []byte     `json:"signature"`
}

// Advanced is an order plus the fraction the fulfiller requests to settle now
type Advanced struct {
	Order
	Numerator   *uint256.Int `json:"numerator"`
	Denominator *uint256.Int `json:"denominator"`
}

// Validate checks the structural invariants of the parameters.
// Time-window, signature, and fill-state checks belong to the resolver.
func (p *Parameters) Validate() error {
	if p.Kind > Contract {
		return fmt.Errorf("unknown order kind: %d", p.Kind)
	}
	if p.StartTime >= p.EndTime {
		return fmt.Errorf("start time %d not before end time %d", p.StartTime, p.EndTime)
	}
	if p.Salt == nil {
		return fmt.Errorf("missing salt")
	}
	for i, item := range p.Offer {
		if !item.Class.Valid() {
			return fmt.Errorf("offer item %d: unknown item class %d", i, item.Class)
		}
		if item.StartAmount == nil || item.EndAmount == nil || item.Identifier == nil {
			return fmt.Errorf("offer item %d: missing amount or identifier", i)
		}
	}
	for i, item := range p.Consideration {
		if !item.Class.Valid() {
			return fmt.Errorf("consideration item %d: unknown item class %d", i, item.Class)
		}
		if item.StartAmount == nil || item.EndAmount == nil || item.Identifier == nil {
			return fmt.Errorf("consideration item %d: missing amount or identifier", i)
		}
		if item.Recipient == (common.Address{}) {
			return fmt.Errorf("consideration item %d: missing recipient", i)
		}
	}
	return nil
}

// SpentItem is the immutable record of an offer item as settled:
// class, asset, identifier, and the amount actually transferred.
type SpentItem struct {
	Class      ItemClass      `json:"itemType"`
	Token      common.Address `json:"token"`
	Identifier *uint256.Int   `json:"identifier"`
	Amount     *uint256.Int   `json:"amount"`
}

// ReceivedItem is a SpentItem plus the address it was delivered to
type ReceivedItem struct {
	Class      ItemClass      `json:"itemType"`
	Token      common.Address `json:"token"`
	Identifier *uint256.Int   `json:"identifier"`
	Amount     *uint256.Int   `json:"amount"`
	Recipient  common.Address `json:"recipient"`
}

// FulfillmentComponent points at one item within one order of a batch
type FulfillmentComponent struct {
	OrderIndex int `json:"orderIndex"`
	ItemIndex  int `json:"itemIndex"`
}

// Fulfillment pairs offer-side components with consideration-side components.
// All referenced items must collapse to a single asset/identifier pair and,
// on the consideration side, a single recipient.
type Fulfillment struct {
	OfferComponents         []FulfillmentComponent `json:"offerComponents"`
	ConsiderationComponents []FulfillmentComponent `json:"considerationComponents"`
}

// Execution is one concrete transfer derived from a fulfillment:
// the received-item descriptor plus the paying offerer and its channel key.
type Execution struct {
	Item       ReceivedItem   `json:"item"`
	Offerer    common.Address `json:"offerer"`
	ConduitKey ConduitKey     `json:"conduitKey"`
}

// IsSelfTransfer reports whether the execution moves an item from an address
// to itself. Native executions are never treated as self-transfers: native
// value movement has side effects even to oneself.
func (e *Execution) IsSelfTransfer() bool {
	return e.Offerer == e.Item.Recipient && e.Item.Class != Native
}

// IsZeroAmount reports whether the execution carries no value
func (e *Execution) IsZeroAmount() bool {
	return e.Item.Amount == nil || e.Item.Amount.IsZero()
}
