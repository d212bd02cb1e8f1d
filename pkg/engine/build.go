package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// buildMatchExecutions reconciles each fulfillment's offer and consideration
// component sets into a single execution whose amount is the smaller of the
// offered and owed totals. Whichever side exceeds the other has its surplus
// returned to the first component's tracking field, so a later fulfillment
// referencing the same slot sees the reduced remainder and unmet
// consideration survives for the completeness sweep.
//
// Self-transfer executions are dropped after their amounts are consumed. A
// strictly-zero amount abandons all remaining fulfillments and reports the
// list as truncated, which sends the caller down the rollback path.
func buildMatchExecutions(batch []ResolvedOrder, fulfillments []order.Fulfillment) ([]order.Execution, bool, error) {
	executions := make([]order.Execution, 0, len(fulfillments))

	for fi := range fulfillments {
		f := &fulfillments[fi]
		if err := validateComponents(batch, offerSide, f.OfferComponents); err != nil {
			return nil, false, fmt.Errorf("fulfillment %d: %w", fi, err)
		}
		if err := validateComponents(batch, considerationSide, f.ConsiderationComponents); err != nil {
			return nil, false, fmt.Errorf("fulfillment %d: %w", fi, err)
		}

		offered, err := aggregate(batch, offerSide, f.OfferComponents, nil, nil)
		if err != nil {
			return nil, false, fmt.Errorf("fulfillment %d: %w", fi, err)
		}
		owed, err := aggregate(batch, considerationSide, f.ConsiderationComponents, nil, nil)
		if err != nil {
			return nil, false, fmt.Errorf("fulfillment %d: %w", fi, err)
		}
		if offered.Item.Class != owed.Item.Class ||
			offered.Item.Token != owed.Item.Token ||
			!offered.Item.Identifier.Eq(owed.Item.Identifier) {
			return nil, false, fmt.Errorf("fulfillment %d pairs %s offer against %s consideration: %w",
				fi, offered.Item.Class, owed.Item.Class, ErrMismatchedComponents)
		}

		// Payer, channel key and descriptor come from the offer side; the
		// recipient comes from the consideration side.
		exec := offered
		exec.Item.Recipient = owed.Item.Recipient

		switch offered.Item.Amount.Cmp(owed.Item.Amount) {
		case 1:
			surplus := new(uint256.Int).Sub(offered.Item.Amount, owed.Item.Amount)
			restoreTracking(batch, offerSide, f.OfferComponents, surplus)
			exec.Item.Amount = owed.Item.Amount
		case -1:
			shortfall := new(uint256.Int).Sub(owed.Item.Amount, offered.Item.Amount)
			restoreTracking(batch, considerationSide, f.ConsiderationComponents, shortfall)
			exec.Item.Amount = offered.Item.Amount
		}

		if exec.IsZeroAmount() {
			return executions, true, nil
		}
		if exec.IsSelfTransfer() {
			continue
		}
		executions = append(executions, exec)
	}
	return executions, false, nil
}

// restoreTracking returns an unconsumed amount to the first available
// component's tracking field on the given side
func restoreTracking(batch []ResolvedOrder, side fulfillmentSide, components []order.FulfillmentComponent, amount *uint256.Int) {
	for _, c := range components {
		ro := &batch[c.OrderIndex]
		if !ro.Filled {
			continue
		}
		if side == offerSide {
			slot := &ro.Offer[c.ItemIndex]
			slot.Amount.Add(slot.Amount, amount)
		} else {
			slot := &ro.Consideration[c.ItemIndex]
			slot.Owed.Add(slot.Owed, amount)
		}
		return
	}
}

// buildAvailableExecutions aggregates caller-supplied component groups with
// no pairing step: offer groups move the offerers' items to the chosen
// recipient over each offerer's channel, and consideration groups are paid
// by the caller over the caller's channel. Groups that aggregate to zero —
// every referenced order was skipped — are dropped rather than failing the
// batch.
func buildAvailableExecutions(batch []ResolvedOrder,
	offerGroups, considerationGroups [][]order.FulfillmentComponent,
	caller, recipient common.Address, fulfillerKey order.ConduitKey) ([]order.Execution, error) {

	executions := make([]order.Execution, 0, len(offerGroups)+len(considerationGroups))

	for gi, group := range offerGroups {
		if err := validateComponents(batch, offerSide, group); err != nil {
			return nil, fmt.Errorf("offer group %d: %w", gi, err)
		}
		exec, err := aggregate(batch, offerSide, group, nil, &recipient)
		if err != nil {
			return nil, fmt.Errorf("offer group %d: %w", gi, err)
		}
		if exec.IsZeroAmount() || exec.IsSelfTransfer() {
			continue
		}
		executions = append(executions, exec)
	}

	for gi, group := range considerationGroups {
		if err := validateComponents(batch, considerationSide, group); err != nil {
			return nil, fmt.Errorf("consideration group %d: %w", gi, err)
		}
		exec, err := aggregate(batch, considerationSide, group, &fulfillerKey, nil)
		if err != nil {
			return nil, fmt.Errorf("consideration group %d: %w", gi, err)
		}
		exec.Offerer = caller
		if exec.IsZeroAmount() || exec.IsSelfTransfer() {
			continue
		}
		executions = append(executions, exec)
	}
	return executions, nil
}

// sweepConsideration verifies that every available order's owed amounts
// reached exactly zero. Any nonzero remainder, or a truncated execution
// list, marks the whole batch for rollback.
func sweepConsideration(batch []ResolvedOrder, truncated bool) error {
	for i := range batch {
		ro := &batch[i]
		if !ro.Filled {
			continue
		}
		for j := range ro.Consideration {
			owed := ro.Consideration[j].Owed
			if owed != nil && !owed.IsZero() {
				return &IncompleteSettlement{
					OrderIndex: i,
					ItemIndex:  j,
					Shortfall:  new(uint256.Int).Set(owed),
					Truncated:  truncated,
				}
			}
		}
	}
	if truncated {
		return &IncompleteSettlement{OrderIndex: -1, ItemIndex: -1, Truncated: true}
	}
	return nil
}
