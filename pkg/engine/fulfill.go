package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// batchOptions control how an order batch is resolved and scaled
type batchOptions struct {
	revertOnInvalid  bool // fail the whole batch on the first invalid order
	maximumFulfilled int  // stop resolving once this many orders are available
	allowNativeOffer bool // whether native offer items are legal on this path
	deferLocation    bool // park scaled endpoints instead of locating amounts now
}

// resolveBatch runs every order of a batch through status resolution and
// fraction scaling, producing the working set the rest of the settlement
// operates on. Orders that fail validation resolve to a zero fraction and
// stay in the batch as unavailable so component indices keep their meaning;
// once maximumFulfilled orders are available the rest are skipped without
// being resolved at all.
//
// Native offer items are noted during the loop and judged once at the end:
// a violation only fails the batch when the path disallows them, and
// contract-kind orders are always allowed to offer native currency.
func (e *Engine) resolveBatch(orders []*order.Advanced, caller common.Address, opts batchOptions) ([]ResolvedOrder, error) {
	batch := make([]ResolvedOrder, len(orders))
	nativeOffered := false
	remaining := opts.maximumFulfilled

	for i, ord := range orders {
		ro := &batch[i]
		ro.Source = ord
		ro.Fraction = order.ZeroFraction()
		if remaining == 0 {
			continue
		}
		hash, frac, err := e.resolver.Resolve(ord, caller, opts.revertOnInvalid)
		if err != nil {
			// the resolver sees one order at a time; the batch position is
			// stamped here
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.OrderIndex = i
				return nil, verr
			}
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		ro.Hash = hash
		if frac.IsZero() {
			continue
		}
		ro.Fraction = frac
		ro.Filled = true
		remaining--

		if err := e.scaleOrder(ro, opts.deferLocation); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if ro.hasNativeOffer() && !ord.Parameters.Kind.IsContract() {
			nativeOffered = true
		}
	}

	if nativeOffered && !opts.allowNativeOffer {
		return nil, ErrInvalidNativeOfferItem
	}
	return batch, nil
}

// scaleOrder applies the resolved fraction to every item of the order. Both
// range endpoints are scaled with the exactness requirement, so a fraction
// that does not divide an amount evenly rejects the order rather than
// silently rounding value away. Unless location is deferred, the amounts at
// the current point in the order's time window are computed immediately.
func (e *Engine) scaleOrder(ro *ResolvedOrder, deferLocation bool) error {
	params := &ro.Source.Parameters
	num, den := ro.Fraction.Numerator, ro.Fraction.Denominator

	ro.Offer = make([]OfferSlot, len(params.Offer))
	for i := range params.Offer {
		item := &params.Offer[i]
		slot := newOfferSlot(item)
		start, err := applyFractionExact(num, den, item.StartAmount)
		if err != nil {
			return fmt.Errorf("offer item %d: %w", i, err)
		}
		end, err := applyFractionExact(num, den, item.EndAmount)
		if err != nil {
			return fmt.Errorf("offer item %d: %w", i, err)
		}
		slot.Start, slot.End = start, end
		ro.Offer[i] = slot
	}

	ro.Consideration = make([]ConsiderationSlot, len(params.Consideration))
	for i := range params.Consideration {
		item := &params.Consideration[i]
		slot := newConsiderationSlot(item)
		start, err := applyFractionExact(num, den, item.StartAmount)
		if err != nil {
			return fmt.Errorf("consideration item %d: %w", i, err)
		}
		end, err := applyFractionExact(num, den, item.EndAmount)
		if err != nil {
			return fmt.Errorf("consideration item %d: %w", i, err)
		}
		slot.Start, slot.End = start, end
		ro.Consideration[i] = slot
	}

	if deferLocation {
		return nil
	}
	elapsed, duration := e.orderElapsed(params)
	return locateOrder(ro, elapsed, duration)
}

// orderElapsed returns how far along its time window the order is right
// now, clamped to the window bounds so a stale clock read cannot push the
// interpolation point outside the amount range.
func (e *Engine) orderElapsed(params *order.Parameters) (elapsed, duration uint64) {
	span := params.EndTime - params.StartTime
	now := e.clock.Now().Unix()
	switch {
	case now <= params.StartTime:
		return 0, uint64(span)
	case now >= params.EndTime:
		return uint64(span), uint64(span)
	default:
		return uint64(now - params.StartTime), uint64(span)
	}
}

// locateOrder fixes the working amounts of one resolved order at the point
// num/den along its scaled ranges. Transferable offer amounts round down
// and owed consideration amounts round up, so rounding error always favors
// the receiving side. The offer remainder is measured against the full
// unscaled amount at the same point.
func locateOrder(ro *ResolvedOrder, num, den uint64) error {
	pointNum := uint256.NewInt(num)
	pointDen := uint256.NewInt(den)
	params := &ro.Source.Parameters

	for i := range ro.Offer {
		slot := &ro.Offer[i]
		amount, err := currentAmount(slot.Start, slot.End, pointNum, pointDen, false)
		if err != nil {
			return fmt.Errorf("offer item %d: %w", i, err)
		}
		item := &params.Offer[i]
		full, err := currentAmount(item.StartAmount, item.EndAmount, pointNum, pointDen, false)
		if err != nil {
			return fmt.Errorf("offer item %d: %w", i, err)
		}
		remainder, underflow := new(uint256.Int).SubOverflow(full, amount)
		if underflow {
			return fmt.Errorf("offer item %d remainder: %w", i, ErrAmountOverflow)
		}
		slot.Amount = amount
		slot.Remainder = remainder
	}

	for i := range ro.Consideration {
		slot := &ro.Consideration[i]
		amount, err := currentAmount(slot.Start, slot.End, pointNum, pointDen, true)
		if err != nil {
			return fmt.Errorf("consideration item %d: %w", i, err)
		}
		slot.Amount = amount
		slot.Owed = new(uint256.Int).Set(amount)
	}
	return nil
}

// locateBatch fixes every available order of the batch at one shared point,
// used when a parked settlement is resolved at a ratio chosen later.
func locateBatch(batch []ResolvedOrder, num, den uint64) error {
	for i := range batch {
		if !batch[i].Filled {
			continue
		}
		if err := locateOrder(&batch[i], num, den); err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
	}
	return nil
}
