package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// Working copies of order items for one settlement call. Items are copied
// out of the immutable order parameters into slots whose amount fields are
// mutated by fraction scaling and aggregation; immutable event records are
// built from the slots by explicit conversion instead of reinterpreting the
// originals in place.

// OfferSlot is the mutable working copy of one offer item
type OfferSlot struct {
	Class      order.ItemClass `json:"itemType"`
	Token      common.Address  `json:"token"`
	Identifier *uint256.Int    `json:"identifier"`

	// Fraction-scaled range endpoints. The probabilistic path parks these
	// and interpolates later; the direct path interpolates immediately.
	Start *uint256.Int `json:"startAmount"`
	End   *uint256.Int `json:"endAmount"`

	// Amount is the transferable amount at the located point. Aggregation
	// consumes it in place so overlapping fulfillments never double-spend.
	Amount *uint256.Int `json:"amount"`

	// Remainder is the untransferred share of the current full amount,
	// kept for reporting: full amount minus the fraction's share.
	Remainder *uint256.Int `json:"remainder"`
}

// ConsiderationSlot is the mutable working copy of one consideration item
type ConsiderationSlot struct {
	Class      order.ItemClass `json:"itemType"`
	Token      common.Address  `json:"token"`
	Identifier *uint256.Int    `json:"identifier"`
	Start      *uint256.Int    `json:"startAmount"`
	End        *uint256.Int    `json:"endAmount"`

	// Amount is the settled amount owed at the located point, retained for
	// event records after aggregation has consumed the tracking field.
	Amount *uint256.Int `json:"amount"`

	// Owed tracks the unmet share of Amount. Aggregation decrements it;
	// the completeness sweep requires it to reach exactly zero.
	Owed *uint256.Int `json:"owed"`

	Recipient common.Address `json:"recipient"`
}

// ResolvedOrder is one batch entry after status resolution and fraction
// scaling. Skipped orders stay in the batch with Filled=false and empty
// slots so component indices keep their meaning.
type ResolvedOrder struct {
	Source        *order.Advanced     `json:"order"`
	Hash          common.Hash         `json:"orderHash"`
	Fraction      order.Fraction      `json:"fraction"` // fraction applied this call
	Offer         []OfferSlot         `json:"offer"`
	Consideration []ConsiderationSlot `json:"consideration"`
	Filled        bool                `json:"filled"`
}

// newOfferSlot copies the immutable item into a working slot
func newOfferSlot(item *order.OfferItem) OfferSlot {
	return OfferSlot{
		Class:      item.Class,
		Token:      item.Token,
		Identifier: new(uint256.Int).Set(item.Identifier),
	}
}

// newConsiderationSlot copies the immutable item into a working slot
func newConsiderationSlot(item *order.ConsiderationItem) ConsiderationSlot {
	return ConsiderationSlot{
		Class:      item.Class,
		Token:      item.Token,
		Identifier: new(uint256.Int).Set(item.Identifier),
		Recipient:  item.Recipient,
	}
}

// SpentItems converts the offer slots into immutable spent-item records.
// Must be called after point location and before aggregation consumes the
// amount fields.
func (r *ResolvedOrder) SpentItems() []order.SpentItem {
	out := make([]order.SpentItem, len(r.Offer))
	for i := range r.Offer {
		slot := &r.Offer[i]
		out[i] = order.SpentItem{
			Class:      slot.Class,
			Token:      slot.Token,
			Identifier: new(uint256.Int).Set(slot.Identifier),
			Amount:     new(uint256.Int).Set(slot.Amount),
		}
	}
	return out
}

// ReceivedItems converts the consideration slots into immutable
// received-item records
func (r *ResolvedOrder) ReceivedItems() []order.ReceivedItem {
	out := make([]order.ReceivedItem, len(r.Consideration))
	for i := range r.Consideration {
		slot := &r.Consideration[i]
		out[i] = order.ReceivedItem{
			Class:      slot.Class,
			Token:      slot.Token,
			Identifier: new(uint256.Int).Set(slot.Identifier),
			Amount:     new(uint256.Int).Set(slot.Amount),
			Recipient:  slot.Recipient,
		}
	}
	return out
}

// hasNativeOffer reports whether any offer slot carries native currency
func (r *ResolvedOrder) hasNativeOffer() bool {
	for i := range r.Offer {
		if r.Offer[i].Class == order.Native {
			return true
		}
	}
	return false
}
