package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

var (
	// ErrReentrancy is returned when a settlement entry point is invoked
	// while another settlement is in progress
	ErrReentrancy = errors.New("settlement already in progress")

	// ErrAmountOverflow is returned when amount arithmetic exceeds 256 bits
	ErrAmountOverflow = errors.New("amount arithmetic overflowed 256 bits")

	// ErrInexactFraction is returned when a partial-fill fraction does not
	// divide an item amount without remainder
	ErrInexactFraction = errors.New("fill fraction does not divide item amount exactly")

	// ErrMissingItemAmount is returned when a transfer would carry no value
	ErrMissingItemAmount = errors.New("non-zero item amount required")

	// ErrUnusedItemParameters is returned when a fungible transfer carries a
	// token identifier
	ErrUnusedItemParameters = errors.New("identifier must be zero for fungible transfers")

	// ErrInvalidERC721TransferAmount is returned when a direct non-fungible
	// transfer declares an amount other than one
	ErrInvalidERC721TransferAmount = errors.New("non-fungible transfer amount must be exactly one")

	// ErrInvalidNativeOfferItem is returned when an order offers native
	// currency on a call path that does not permit it
	ErrInvalidNativeOfferItem = errors.New("native offer item not permitted on this call path")

	// ErrMissingFulfillmentComponent is returned when a fulfillment has no
	// components on the offer or consideration side
	ErrMissingFulfillmentComponent = errors.New("fulfillment missing offer or consideration components")

	// ErrInvalidFulfillmentIndex is returned when a component references an
	// order or item outside the batch
	ErrInvalidFulfillmentIndex = errors.New("fulfillment component index out of range")

	// ErrMismatchedComponents is returned when components within one
	// fulfillment do not collapse to a single item descriptor
	ErrMismatchedComponents = errors.New("fulfillment components reference mismatched items")

	// ErrInvalidChannelResponse is returned when a transfer channel answers
	// a batch call with anything other than the expected acknowledgement
	ErrInvalidChannelResponse = errors.New("transfer channel returned unexpected acknowledgement")

	// ErrInsufficientNativeValue is returned when the attached native value
	// cannot cover a native execution
	ErrInsufficientNativeValue = errors.New("attached native value insufficient")

	// ErrNativeNotAccepted is returned when native value is pushed to the
	// engine outside an active settlement
	ErrNativeNotAccepted = errors.New("native value only accepted during settlement")

	// ErrUnknownRequest is returned when resolving a pending settlement id
	// with no stored request
	ErrUnknownRequest = errors.New("unknown pending settlement request")

	// ErrNoOrdersAvailable is returned when every order in a batch was
	// skipped and nothing remains to fulfill
	ErrNoOrdersAvailable = errors.New("no orders in the batch are available")

	// ErrLuckyDisabled is returned by the probabilistic settlement
	// operations when the engine was built without a pending store or a
	// beacon verifier
	ErrLuckyDisabled = errors.New("probabilistic settlement is not configured")
)

// IsArithmetic reports whether err belongs to the arithmetic class:
// zero denominators, 256-bit overflow, inexact division, or missing amounts.
// Arithmetic errors abort the whole call.
func IsArithmetic(err error) bool {
	return errors.Is(err, order.ErrZeroDenominator) ||
		errors.Is(err, order.ErrFractionOverflow) ||
		errors.Is(err, ErrAmountOverflow) ||
		errors.Is(err, ErrInexactFraction) ||
		errors.Is(err, ErrMissingItemAmount)
}

// ValidationError marks one order in a batch invalid: bad signature, expired
// window, counter mismatch, cancelled, or an illegal requested fraction.
// Fatal to the order, not the batch, unless the caller asked to revert on
// invalid orders.
type ValidationError struct {
	OrderIndex int
	OrderHash  common.Hash // zero when hashing itself failed
	Reason     string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %d invalid: %s: %v", e.OrderIndex, e.Reason, e.Err)
	}
	return fmt.Sprintf("order %d invalid: %s", e.OrderIndex, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransferFailure wraps a failed direct transfer or channel flush.
// The callee's error is preserved verbatim for diagnostic transparency.
type TransferFailure struct {
	Class     order.ItemClass
	Token     common.Address
	From      common.Address
	Recipient common.Address
	Amount    *uint256.Int
	Err       error
}

func (e *TransferFailure) Error() string {
	msg := fmt.Sprintf("%s transfer of %s to %s failed", e.Class, e.Amount.Dec(), e.Recipient.Hex())
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransferFailure) Unwrap() error { return e.Err }

// IncompleteSettlement signals that matching left consideration unmet (or
// produced a zero-amount execution). It is not an abort: the controller
// rolls back fill status and reports a structured failure outcome.
type IncompleteSettlement struct {
	OrderIndex int
	ItemIndex  int
	Shortfall  *uint256.Int
	Truncated  bool // execution list was cut short on a zero-amount execution
}

func (e *IncompleteSettlement) Error() string {
	if e.Truncated {
		return "settlement incomplete: zero-amount execution truncated the fulfillment set"
	}
	return fmt.Sprintf("settlement incomplete: order %d consideration %d short by %s",
		e.OrderIndex, e.ItemIndex, e.Shortfall.Dec())
}

// IsIncomplete reports whether err is the rollback-triggering incomplete
// settlement outcome
func IsIncomplete(err error) bool {
	var inc *IncompleteSettlement
	return errors.As(err, &inc)
}
