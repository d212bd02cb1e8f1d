package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/conduit"
	"github.com/smemoshui/seaport-core/pkg/order"
)

// one is the only legal amount for a direct non-fungible transfer
var one = uint256.NewInt(1)

// Accumulator batches channel-bound transfers so consecutive executions
// over the same channel collapse into one conduit call. It is call-scoped:
// armed by the first insert, flushed and disarmed whenever the channel key
// changes or the dispatch completes.
type Accumulator struct {
	registry  *conduit.Registry
	key       order.ConduitKey
	transfers []conduit.Transfer
	armed     bool
	flushed   int // successful batch calls, for instrumentation
}

func newAccumulator(registry *conduit.Registry) *Accumulator {
	return &Accumulator{registry: registry}
}

// insert queues a transfer for the given channel. Pending transfers for a
// different channel are flushed first, so the armed key stays singular.
func (a *Accumulator) insert(key order.ConduitKey, t conduit.Transfer) error {
	if a.armed && a.key != key {
		if err := a.flush(); err != nil {
			return err
		}
	}
	if !a.armed {
		a.key = key
		a.armed = true
	}
	a.transfers = append(a.transfers, t)
	return nil
}

// flush hands the queued batch to its channel's conduit and requires the
// magic acknowledgement back. The accumulator disarms whether or not the
// call succeeds; a failed batch is never retried.
func (a *Accumulator) flush() error {
	if !a.armed {
		return nil
	}
	key := a.key
	transfers := a.transfers
	a.armed = false
	a.key = order.ConduitKey{}
	a.transfers = nil

	ch, err := a.registry.Resolve(key)
	if err != nil {
		return err
	}
	ack, err := ch.Execute(transfers)
	if err != nil {
		return fmt.Errorf("channel %s: %w", key.Hex(), err)
	}
	if ack != conduit.ExecuteMagic {
		return fmt.Errorf("channel %s: %w", key.Hex(), ErrInvalidChannelResponse)
	}
	a.flushed++
	return nil
}

// dispatchExecutions applies the execution list to the ledger in order,
// then flushes whatever the accumulator still holds. Channel-bound token
// transfers are deferred into the accumulator; everything else applies
// immediately, so a direct transfer can land before an earlier channeled
// one — the channel batch boundary, not the list position, decides when a
// channeled transfer settles.
func (e *Engine) dispatchExecutions(executions []order.Execution) error {
	acc := newAccumulator(e.conduits)
	for i := range executions {
		if err := e.dispatchOne(&executions[i], acc); err != nil {
			return fmt.Errorf("execution %d: %w", i, err)
		}
	}
	if err := acc.flush(); err != nil {
		return err
	}
	e.metrics.ChannelBatches.Add(float64(acc.flushed))
	return nil
}

func (e *Engine) dispatchOne(exec *order.Execution, acc *Accumulator) error {
	switch exec.Item.Class {
	case order.Native:
		return e.transferNative(exec)
	case order.Fungible:
		return e.transferFungible(exec, acc)
	case order.NonFungible:
		return e.transferNonFungible(exec, acc)
	case order.SemiFungible:
		return e.transferSemiFungible(exec, acc)
	default:
		return fmt.Errorf("item class %d is not transferable", exec.Item.Class)
	}
}

// transferNative pays native value out of the escrow the caller funded
// when the settlement began. Sufficiency is checked against this
// request's remaining escrow, never the engine account's whole balance:
// parked settlements keep their value there too, and one request must not
// spend another's.
func (e *Engine) transferNative(exec *order.Execution) error {
	item := &exec.Item
	if item.Amount.IsZero() {
		return fmt.Errorf("native transfer to %s: %w", item.Recipient.Hex(), ErrMissingItemAmount)
	}
	if e.escrow.Lt(item.Amount) {
		return fmt.Errorf("native transfer of %s to %s with %s escrowed: %w",
			item.Amount.Dec(), item.Recipient.Hex(), e.escrow.Dec(), ErrInsufficientNativeValue)
	}
	if err := e.book.TransferNative(e.account, item.Recipient, item.Amount); err != nil {
		return &TransferFailure{
			Class:     order.Native,
			From:      e.account,
			Recipient: item.Recipient,
			Amount:    item.Amount,
			Err:       err,
		}
	}
	e.escrow.Sub(e.escrow, item.Amount)
	return nil
}

func (e *Engine) transferFungible(exec *order.Execution, acc *Accumulator) error {
	item := &exec.Item
	if item.Amount.IsZero() {
		return fmt.Errorf("fungible transfer of token %s: %w", item.Token.Hex(), ErrMissingItemAmount)
	}
	if !item.Identifier.IsZero() {
		return fmt.Errorf("fungible transfer of token %s: %w", item.Token.Hex(), ErrUnusedItemParameters)
	}
	if exec.ConduitKey.IsZero() {
		if exec.Offerer == e.account {
			// the engine never pulls tokens from itself
			return nil
		}
		if err := e.book.TransferFungible(item.Token, exec.Offerer, item.Recipient, item.Amount); err != nil {
			return &TransferFailure{
				Class:     order.Fungible,
				Token:     item.Token,
				From:      exec.Offerer,
				Recipient: item.Recipient,
				Amount:    item.Amount,
				Err:       err,
			}
		}
		return nil
	}
	return acc.insert(exec.ConduitKey, conduit.Transfer{
		Class:      order.Fungible,
		Token:      item.Token,
		From:       exec.Offerer,
		To:         item.Recipient,
		Identifier: item.Identifier,
		Amount:     item.Amount,
	})
}

func (e *Engine) transferNonFungible(exec *order.Execution, acc *Accumulator) error {
	item := &exec.Item
	if exec.ConduitKey.IsZero() {
		// a direct transfer moves exactly one token instance; channels
		// validate their own amounts
		if !item.Amount.Eq(one) {
			return fmt.Errorf("token %s id %s amount %s: %w",
				item.Token.Hex(), item.Identifier.Dec(), item.Amount.Dec(), ErrInvalidERC721TransferAmount)
		}
		if err := e.book.TransferNonFungible(item.Token, exec.Offerer, item.Recipient, item.Identifier); err != nil {
			return &TransferFailure{
				Class:     order.NonFungible,
				Token:     item.Token,
				From:      exec.Offerer,
				Recipient: item.Recipient,
				Amount:    item.Amount,
				Err:       err,
			}
		}
		return nil
	}
	return acc.insert(exec.ConduitKey, conduit.Transfer{
		Class:      order.NonFungible,
		Token:      item.Token,
		From:       exec.Offerer,
		To:         item.Recipient,
		Identifier: item.Identifier,
		Amount:     item.Amount,
	})
}

func (e *Engine) transferSemiFungible(exec *order.Execution, acc *Accumulator) error {
	item := &exec.Item
	if item.Amount.IsZero() {
		return fmt.Errorf("semi-fungible transfer of token %s id %s: %w",
			item.Token.Hex(), item.Identifier.Dec(), ErrMissingItemAmount)
	}
	if exec.ConduitKey.IsZero() {
		if err := e.book.TransferSemiFungible(item.Token, exec.Offerer, item.Recipient, item.Identifier, item.Amount); err != nil {
			return &TransferFailure{
				Class:     order.SemiFungible,
				Token:     item.Token,
				From:      exec.Offerer,
				Recipient: item.Recipient,
				Amount:    item.Amount,
				Err:       err,
			}
		}
		return nil
	}
	return acc.insert(exec.ConduitKey, conduit.Transfer{
		Class:      order.SemiFungible,
		Token:      item.Token,
		From:       exec.Offerer,
		To:         item.Recipient,
		Identifier: item.Identifier,
		Amount:     item.Amount,
	})
}
