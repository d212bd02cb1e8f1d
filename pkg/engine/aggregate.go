package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// fulfillmentSide selects which item list of an order a component refers to
type fulfillmentSide int

const (
	offerSide fulfillmentSide = iota
	considerationSide
)

func (s fulfillmentSide) String() string {
	if s == offerSide {
		return "offer"
	}
	return "consideration"
}

// validateComponents checks a component set once before aggregation: the set
// must be non-empty, every index must be in range, and every component of an
// available order must name an item with the same descriptor (and, for
// consideration, the same recipient). Aggregation itself trusts these
// properties and never re-checks them.
func validateComponents(batch []ResolvedOrder, side fulfillmentSide, components []order.FulfillmentComponent) error {
	if len(components) == 0 {
		return fmt.Errorf("%s side: %w", side, ErrMissingFulfillmentComponent)
	}
	seeded := false
	var class order.ItemClass
	var token common.Address
	var identifier *uint256.Int
	var recipient common.Address
	for _, c := range components {
		if c.OrderIndex < 0 || c.OrderIndex >= len(batch) {
			return fmt.Errorf("%s component order index %d of %d: %w", side, c.OrderIndex, len(batch), ErrInvalidFulfillmentIndex)
		}
		ro := &batch[c.OrderIndex]
		var itemCount int
		if side == offerSide {
			itemCount = len(ro.Offer)
		} else {
			itemCount = len(ro.Consideration)
		}
		if !ro.Filled {
			// Skipped orders carry no scaled slots; their components are
			// ignored by aggregation, so only the order index is checked.
			if itemCount == 0 {
				continue
			}
		}
		if c.ItemIndex < 0 || c.ItemIndex >= itemCount {
			return fmt.Errorf("%s component item index %d on order %d: %w", side, c.ItemIndex, c.OrderIndex, ErrInvalidFulfillmentIndex)
		}
		if !ro.Filled {
			continue
		}
		if side == offerSide {
			slot := &ro.Offer[c.ItemIndex]
			if !seeded {
				class, token, identifier = slot.Class, slot.Token, slot.Identifier
				seeded = true
				continue
			}
			if slot.Class != class || slot.Token != token || !slot.Identifier.Eq(identifier) {
				return fmt.Errorf("%s component (%d,%d): %w", side, c.OrderIndex, c.ItemIndex, ErrMismatchedComponents)
			}
		} else {
			slot := &ro.Consideration[c.ItemIndex]
			if !seeded {
				class, token, identifier, recipient = slot.Class, slot.Token, slot.Identifier, slot.Recipient
				seeded = true
				continue
			}
			if slot.Class != class || slot.Token != token || !slot.Identifier.Eq(identifier) || slot.Recipient != recipient {
				return fmt.Errorf("%s component (%d,%d): %w", side, c.OrderIndex, c.ItemIndex, ErrMismatchedComponents)
			}
		}
	}
	return nil
}

// aggregate folds the named components into a single pending execution,
// consuming each available slot's tracking amount in place so a later
// fulfillment referencing the same slot finds nothing left to spend.
//
// The canonical descriptor, payer and channel key are taken from the first
// component whose order is available; components of skipped orders
// contribute nothing. When no component is available the execution carries
// a zero amount and is filtered out downstream.
func aggregate(batch []ResolvedOrder, side fulfillmentSide, components []order.FulfillmentComponent,
	conduitOverride *order.ConduitKey, recipientOverride *common.Address) (order.Execution, error) {

	total := uint256.NewInt(0)
	exec := order.Execution{}
	seeded := false

	for _, c := range components {
		ro := &batch[c.OrderIndex]
		if !ro.Filled {
			continue
		}
		var tracking *uint256.Int
		if side == offerSide {
			slot := &ro.Offer[c.ItemIndex]
			if !seeded {
				exec.Item.Class = slot.Class
				exec.Item.Token = slot.Token
				exec.Item.Identifier = new(uint256.Int).Set(slot.Identifier)
				exec.Offerer = ro.Source.Parameters.Offerer
				exec.ConduitKey = ro.Source.Parameters.ConduitKey
				seeded = true
			}
			tracking = slot.Amount
		} else {
			slot := &ro.Consideration[c.ItemIndex]
			if !seeded {
				exec.Item.Class = slot.Class
				exec.Item.Token = slot.Token
				exec.Item.Identifier = new(uint256.Int).Set(slot.Identifier)
				exec.Item.Recipient = slot.Recipient
				seeded = true
			}
			tracking = slot.Owed
		}
		if _, overflow := total.AddOverflow(total, tracking); overflow {
			return order.Execution{}, fmt.Errorf("aggregating %s components: %w", side, ErrAmountOverflow)
		}
		tracking.Clear()
	}

	if !seeded {
		// Every referenced order was skipped: surface a zero-amount
		// execution shaped after the first component so the caller can
		// drop it without special-casing.
		c := components[0]
		params := &batch[c.OrderIndex].Source.Parameters
		if side == offerSide && c.ItemIndex < len(params.Offer) {
			item := &params.Offer[c.ItemIndex]
			exec.Item.Class = item.Class
			exec.Item.Token = item.Token
			exec.Item.Identifier = new(uint256.Int).Set(item.Identifier)
		} else if side == considerationSide && c.ItemIndex < len(params.Consideration) {
			item := &params.Consideration[c.ItemIndex]
			exec.Item.Class = item.Class
			exec.Item.Token = item.Token
			exec.Item.Identifier = new(uint256.Int).Set(item.Identifier)
			exec.Item.Recipient = item.Recipient
		}
		if exec.Item.Identifier == nil {
			exec.Item.Identifier = uint256.NewInt(0)
		}
	}

	exec.Item.Amount = total
	if recipientOverride != nil {
		exec.Item.Recipient = *recipientOverride
	}
	if conduitOverride != nil {
		exec.ConduitKey = *conduitOverride
	}
	return exec, nil
}
