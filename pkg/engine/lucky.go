package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/crypto"
	"github.com/smemoshui/seaport-core/pkg/order"
)

// The probabilistic path splits one settlement across two calls. The
// request phase validates and scales the batch exactly like a match, but
// parks the scaled working set instead of locating amounts: endpoints
// stay endpoints until randomness picks the point. The resolve phase
// verifies a beacon round signature, draws the win gate and the price
// point from it, and either settles at that point or restores every
// touched order to its pre-request fill status.

// luckyPointDenominator fixes the resolution of the randomness-chosen
// interpolation ratio
const luckyPointDenominator = 1 << 32

// PendingSettlement is one parked probabilistic settlement: the frozen
// working set, the pairing, the fill snapshots a losing draw restores,
// and the beacon round that decides it.
type PendingSettlement struct {
	ID           uuid.UUID              `json:"id"`
	Caller       common.Address         `json:"caller"`
	Round        uint64                 `json:"round"`
	Odds         order.Fraction         `json:"odds"`
	Batch        []ResolvedOrder        `json:"batch"`
	Fulfillments []order.Fulfillment    `json:"fulfillments"`
	Snapshots    map[common.Hash][]byte `json:"snapshots"`
	NativeValue  *uint256.Int           `json:"nativeValue"`
	CreatedAt    int64                  `json:"createdAt"`
}

// LuckyRequest parks a match-style settlement whose outcome a future
// beacon round decides. Odds is the win probability in (0, 1].
type LuckyRequest struct {
	Caller       common.Address
	Orders       []*order.Advanced
	Fulfillments []order.Fulfillment
	Odds         order.Fraction
	Round        uint64
	NativeValue  *uint256.Int
}

// LuckyReceipt acknowledges a parked settlement
type LuckyReceipt struct {
	RequestID   uuid.UUID
	Round       uint64
	OrderHashes []common.Hash
}

// LuckyResult reports a resolved probabilistic settlement. Won reflects
// the draw; Success additionally requires the winning batch to have
// settled completely.
type LuckyResult struct {
	RequestID   uuid.UUID
	Won         bool
	Success     bool
	OrderHashes []common.Hash
	Executions  []order.Execution
	Incomplete  *IncompleteSettlement
}

// RequestLuckySettlement validates and scales the batch like a match
// call, then parks it under a fresh request id. Fill status advances
// immediately — the orders are spoken for while parked — and the attached
// native value stays escrowed until resolution. Nothing is emitted yet.
func (e *Engine) RequestLuckySettlement(ctx context.Context, req LuckyRequest) (*LuckyReceipt, error) {
	if e.pending == nil || e.beacon == nil {
		return nil, ErrLuckyDisabled
	}
	if err := e.enter(enteredAcceptingNative); err != nil {
		return nil, err
	}
	defer e.exit()
	requestID := uuid.New()
	defer e.observe(pathLucky, e.clock.Now())

	if len(req.Orders) == 0 {
		return nil, ErrNoOrdersAvailable
	}
	if err := req.Odds.Validate(); err != nil {
		return nil, fmt.Errorf("odds: %w", err)
	}
	if req.Round == 0 {
		return nil, errors.New("beacon round is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := e.log.With("request_id", requestID.String(), "path", pathLucky)

	snap := e.book.Snapshot()
	if err := e.escrowNative(req.Caller, req.NativeValue); err != nil {
		return nil, err
	}
	snapshots, err := e.snapshotOrders(req.Orders)
	if err != nil {
		e.abortSettlement(snap, nil)
		return nil, err
	}

	batch, err := e.resolveBatch(req.Orders, req.Caller, batchOptions{
		revertOnInvalid:  true,
		maximumFulfilled: len(req.Orders),
		allowNativeOffer: true,
		deferLocation:    true,
	})
	if err != nil {
		e.abortSettlement(snap, snapshots)
		return nil, err
	}
	hashes := availableHashes(batch)

	// reject impossible pairings now, while state can still be unwound
	// cheaply; the resolve phase has no caller left to complain to
	for fi := range req.Fulfillments {
		f := &req.Fulfillments[fi]
		err := validateComponents(batch, offerSide, f.OfferComponents)
		if err == nil {
			err = validateComponents(batch, considerationSide, f.ConsiderationComponents)
		}
		if err != nil {
			e.abortSettlement(snap, snapshots)
			return nil, fmt.Errorf("fulfillment %d: %w", fi, err)
		}
	}

	parked := &PendingSettlement{
		ID:           requestID,
		Caller:       req.Caller,
		Round:        req.Round,
		Odds:         req.Odds,
		Batch:        batch,
		Fulfillments: req.Fulfillments,
		Snapshots:    snapshots,
		NativeValue:  cloneAmount(req.NativeValue),
		CreatedAt:    e.clock.Now().Unix(),
	}
	if err := e.pending.Put(parked); err != nil {
		e.abortSettlement(snap, snapshots)
		return nil, fmt.Errorf("parking settlement: %w", err)
	}
	if err := e.book.Commit(); err != nil {
		if delErr := e.pending.Delete(requestID); delErr != nil {
			log.Errorw("pending_cleanup_failed", "err", delErr)
		}
		e.abortSettlement(snap, snapshots)
		return nil, fmt.Errorf("committing escrow: %w", err)
	}

	e.metrics.PendingSettlements.Inc()
	log.Infow("settlement_parked", "round", req.Round, "orders", len(hashes),
		"odds", fmt.Sprintf("%s/%s", req.Odds.Numerator.Dec(), req.Odds.Denominator.Dec()))
	return &LuckyReceipt{RequestID: requestID, Round: req.Round, OrderHashes: hashes}, nil
}

// ResolveLuckySettlement decides a parked settlement with the beacon's
// signature over its round. A winning draw locates amounts at the
// randomness-chosen point and settles; a losing draw, or a winning batch
// that cannot settle completely, restores every touched order's fill
// status and refunds the escrowed value. Either way the pending entry is
// cleared and an outcome event is emitted.
func (e *Engine) ResolveLuckySettlement(ctx context.Context, id uuid.UUID, roundSig []byte) (*LuckyResult, error) {
	if e.pending == nil || e.beacon == nil {
		return nil, ErrLuckyDisabled
	}
	if err := e.enter(enteredAcceptingNative); err != nil {
		return nil, err
	}
	defer e.exit()
	defer e.observe(pathLucky, e.clock.Now())

	parked, err := e.pending.Get(id)
	if err != nil {
		return nil, err
	}
	if parked == nil {
		return nil, fmt.Errorf("request %s: %w", id, ErrUnknownRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// a bad signature burns nothing: the entry stays parked
	if err := e.beacon.Verify(parked.Round, roundSig); err != nil {
		return nil, fmt.Errorf("beacon round %d: %w", parked.Round, err)
	}

	log := e.log.With("request_id", id.String(), "path", pathLucky)
	e.escrow = cloneAmount(parked.NativeValue)
	hashes := availableHashes(parked.Batch)

	if !luckyWins(roundSig, id, parked.Odds) {
		if err := e.unpark(parked); err != nil {
			return nil, err
		}
		e.metrics.PendingSettlements.Dec()
		e.metrics.Rollbacks.Inc()
		e.finish(id, pathLucky, outcomeLoss)
		log.Infow("settlement_lost", "round", parked.Round)
		return &LuckyResult{RequestID: id, OrderHashes: hashes}, nil
	}

	pointNum, pointDen := luckyPoint(roundSig, id)
	snap := e.book.Snapshot()
	if err := locateBatch(parked.Batch, pointNum, pointDen); err != nil {
		// arithmetic here is deterministic for this round; the entry
		// stays parked for the TTL sweep to reap
		return nil, err
	}

	buf := &eventBuffer{}
	e.bufferFulfillmentEvents(buf, parked.Batch, common.Address{})
	buf.ordersMatched(OrdersMatchedEvent{OrderHashes: hashes})

	executions, truncated, err := buildMatchExecutions(parked.Batch, parked.Fulfillments)
	if err != nil {
		e.book.RevertToSnapshot(snap)
		return nil, err
	}

	if sweepErr := sweepConsideration(parked.Batch, truncated); sweepErr != nil {
		e.book.RevertToSnapshot(snap)
		if err := e.unpark(parked); err != nil {
			return nil, err
		}
		e.metrics.PendingSettlements.Dec()
		e.metrics.Rollbacks.Inc()
		e.finish(id, pathLucky, outcomeRollback)
		log.Infow("settlement_rolled_back", "reason", sweepErr.Error())
		var inc *IncompleteSettlement
		errors.As(sweepErr, &inc)
		return &LuckyResult{RequestID: id, Won: true, OrderHashes: hashes, Incomplete: inc}, nil
	}

	if err := e.dispatchExecutions(executions); err != nil {
		e.book.RevertToSnapshot(snap)
		return nil, err
	}
	if err := e.refundNative(parked.Caller); err != nil {
		e.book.RevertToSnapshot(snap)
		return nil, err
	}
	if err := e.pending.Delete(id); err != nil {
		e.book.RevertToSnapshot(snap)
		return nil, fmt.Errorf("clearing pending entry: %w", err)
	}
	if err := e.book.Commit(); err != nil {
		e.book.RevertToSnapshot(snap)
		if putErr := e.pending.Put(parked); putErr != nil {
			log.Errorw("pending_reinsert_failed", "err", putErr)
		}
		return nil, fmt.Errorf("committing ledger: %w", err)
	}

	e.countTransfers(executions)
	e.metrics.PendingSettlements.Dec()
	buf.replay(e.sink)
	e.finish(id, pathLucky, outcomeSuccess)
	log.Infow("settlement_won", "round", parked.Round, "executions", len(executions),
		"point", fmt.Sprintf("%d/%d", pointNum, pointDen))
	return &LuckyResult{RequestID: id, Won: true, Success: true, OrderHashes: hashes, Executions: executions}, nil
}

// SweepPending rolls back and clears pending settlements older than the
// configured TTL. A zero TTL disables sweeping entirely: parked
// settlements then wait for explicit resolution, however long that takes.
func (e *Engine) SweepPending(ctx context.Context) (int, error) {
	if e.pending == nil || e.ttl <= 0 {
		return 0, nil
	}
	if err := e.enter(entered); err != nil {
		return 0, err
	}
	defer e.exit()

	entries, err := e.pending.List()
	if err != nil {
		return 0, err
	}
	cutoff := e.clock.Now().Add(-e.ttl).Unix()
	swept := 0
	for _, parked := range entries {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		if parked.CreatedAt > cutoff {
			continue
		}
		e.escrow = cloneAmount(parked.NativeValue)
		if err := e.unpark(parked); err != nil {
			e.log.Errorw("pending_sweep_failed", "request_id", parked.ID.String(), "err", err)
			continue
		}
		e.metrics.PendingSettlements.Dec()
		e.metrics.Rollbacks.Inc()
		e.finish(parked.ID, pathLucky, outcomeRollback)
		e.log.Infow("pending_swept", "request_id", parked.ID.String(), "round", parked.Round)
		swept++
	}
	return swept, nil
}

// unpark restores a parked settlement's fill snapshots, refunds its
// escrowed native value and deletes the pending entry
func (e *Engine) unpark(parked *PendingSettlement) error {
	snap := e.book.Snapshot()
	if err := e.resolver.Restore(parked.Snapshots); err != nil {
		return fmt.Errorf("restoring fill status: %w", err)
	}
	if err := e.refundNative(parked.Caller); err != nil {
		e.book.RevertToSnapshot(snap)
		return err
	}
	if err := e.pending.Delete(parked.ID); err != nil {
		e.book.RevertToSnapshot(snap)
		return fmt.Errorf("clearing pending entry: %w", err)
	}
	if err := e.book.Commit(); err != nil {
		e.book.RevertToSnapshot(snap)
		return fmt.Errorf("committing refund: %w", err)
	}
	return nil
}

// luckyWins derives the win draw from the round signature bound to this
// request id and compares it against the odds: draw mod den < num.
func luckyWins(sig []byte, id uuid.UUID, odds order.Fraction) bool {
	draw := crypto.BeaconDraw(sig, append(id[:], []byte("win")...))
	d := new(uint256.Int).SetBytes(draw[:])
	return new(uint256.Int).Mod(d, odds.Denominator).Lt(odds.Numerator)
}

// luckyPoint derives the interpolation ratio for the winning amounts: a
// point in [0, luckyPointDenominator], both endpoints reachable.
func luckyPoint(sig []byte, id uuid.UUID) (num, den uint64) {
	draw := crypto.BeaconDraw(sig, append(id[:], []byte("ratio")...))
	d := new(uint256.Int).SetBytes(draw[:])
	den = luckyPointDenominator
	num = new(uint256.Int).Mod(d, uint256.NewInt(den+1)).Uint64()
	return num, den
}
