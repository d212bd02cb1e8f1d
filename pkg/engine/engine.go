package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/pkg/conduit"
	"github.com/smemoshui/seaport-core/pkg/ledger"
	"github.com/smemoshui/seaport-core/pkg/metrics"
	"github.com/smemoshui/seaport-core/pkg/order"
	"github.com/smemoshui/seaport-core/pkg/util"
)

// OrderResolver validates orders against their persistent fill status.
// Resolve returns the fraction this call may fill; a merely-invalid order
// resolves to a zero fraction when revertOnInvalid is false and to an
// error when it is true. Snapshots are opaque: the engine only holds them
// for a later Restore.
type OrderResolver interface {
	// Hash derives the canonical order hash used as the fill-status key
	Hash(ord *order.Advanced) (common.Hash, error)

	// Resolve validates the order, applies the requested fill fraction to
	// the stored status and returns the fraction actually granted
	Resolve(ord *order.Advanced, caller common.Address, revertOnInvalid bool) (common.Hash, order.Fraction, error)

	// Snapshot captures an order's current fill status
	Snapshot(hash common.Hash) ([]byte, error)

	// Restore writes back previously captured fill snapshots in one batch
	Restore(snapshots map[common.Hash][]byte) error
}

// PendingStore persists parked probabilistic settlements across restarts.
// Get returns (nil, nil) for an unknown id.
type PendingStore interface {
	Put(p *PendingSettlement) error
	Get(id uuid.UUID) (*PendingSettlement, error)
	Delete(id uuid.UUID) error
	List() ([]*PendingSettlement, error)
}

// BeaconVerifier checks a randomness beacon's round signature
type BeaconVerifier interface {
	Verify(round uint64, sig []byte) error
}

// Reentrancy guard states. The guard admits exactly one settlement at a
// time; pushed native value is only accepted while a settlement that pays
// native is running.
const (
	notEntered int32 = iota
	entered
	enteredAcceptingNative
)

// Settlement entry paths, used in logs, metrics and outcome events
const (
	pathMatch     = "match"
	pathAvailable = "fulfill_available"
	pathLucky     = "lucky"
)

// Outcome labels for the settlements counter
const (
	outcomeSuccess  = "success"
	outcomeRollback = "rollback"
	outcomeLoss     = "loss"
	outcomeError    = "error"
)

// Engine is the settlement controller. It drives a batch of signed orders
// from status resolution through fraction scaling, aggregation and
// matching to transfer dispatch, restoring fill status and balances
// whenever matching comes up short of full consideration.
type Engine struct {
	resolver OrderResolver
	book     *ledger.Book
	conduits *conduit.Registry
	pending  PendingStore
	beacon   BeaconVerifier
	sink     EventSink
	metrics  *metrics.Metrics
	clock    util.Clock
	log      *zap.SugaredLogger

	// account is the engine's escrow identity: attached native value sits
	// here between escrow and payout
	account common.Address

	// escrow tracks the running request's unspent attached value; the
	// guard serializes requests so one field suffices
	escrow *uint256.Int

	ttl   time.Duration // pending-settlement lifetime, zero disables sweeping
	guard atomic.Int32
}

// Config assembles an Engine. Resolver, Book and Conduits are required;
// Pending and Beacon enable the probabilistic path when both are set.
type Config struct {
	Resolver   OrderResolver
	Book       *ledger.Book
	Conduits   *conduit.Registry
	Pending    PendingStore
	Beacon     BeaconVerifier
	Sink       EventSink
	Metrics    *metrics.Metrics
	Clock      util.Clock
	Logger     *zap.Logger
	Account    common.Address
	PendingTTL time.Duration
}

func New(cfg Config) (*Engine, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	if cfg.Book == nil {
		return nil, errors.New("engine: ledger book is required")
	}
	if cfg.Conduits == nil {
		return nil, errors.New("engine: conduit registry is required")
	}
	if cfg.Account == (common.Address{}) {
		return nil, errors.New("engine: escrow account is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		resolver: cfg.Resolver,
		book:     cfg.Book,
		conduits: cfg.Conduits,
		pending:  cfg.Pending,
		beacon:   cfg.Beacon,
		sink:     cfg.Sink,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		log:      logger.Sugar(),
		account:  cfg.Account,
		escrow:   uint256.NewInt(0),
		ttl:      cfg.PendingTTL,
	}
	if e.sink == nil {
		e.sink = NewLogSink(logger)
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop()
	}
	if e.clock == nil {
		e.clock = util.RealClock{}
	}
	return e, nil
}

// Account returns the engine's escrow identity
func (e *Engine) Account() common.Address {
	return e.account
}

// MatchRequest settles orders pairwise through an explicit fulfillment
// list. Every order must validate; the attached native value is escrowed
// from the caller up front and any unspent remainder returns to them.
type MatchRequest struct {
	Caller       common.Address
	Orders       []*order.Advanced
	Fulfillments []order.Fulfillment
	NativeValue  *uint256.Int
}

// MatchResult reports one settled or rolled-back settlement call
type MatchResult struct {
	RequestID   uuid.UUID
	Success     bool
	OrderHashes []common.Hash
	Executions  []order.Execution
	Incomplete  *IncompleteSettlement // set when the batch rolled back
}

// MatchOrders runs the full pipeline: resolve and scale every order,
// reconcile the fulfillment pairing into executions, verify all
// consideration is met, then dispatch. Unmet consideration is not an
// abort: fill status and balances are restored, a failure outcome is
// emitted and the result carries the shortfall.
func (e *Engine) MatchOrders(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	if err := e.enter(enteredAcceptingNative); err != nil {
		return nil, err
	}
	defer e.exit()
	requestID := uuid.New()
	defer e.observe(pathMatch, e.clock.Now())

	if len(req.Orders) == 0 {
		e.finish(requestID, pathMatch, outcomeError)
		return nil, ErrNoOrdersAvailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := e.log.With("request_id", requestID.String(), "path", pathMatch)
	log.Infow("settlement_started", "orders", len(req.Orders), "fulfillments", len(req.Fulfillments))

	snap := e.book.Snapshot()
	if err := e.escrowNative(req.Caller, req.NativeValue); err != nil {
		e.finish(requestID, pathMatch, outcomeError)
		return nil, err
	}
	snapshots, err := e.snapshotOrders(req.Orders)
	if err != nil {
		e.abortSettlement(snap, nil)
		e.finish(requestID, pathMatch, outcomeError)
		return nil, err
	}

	batch, err := e.resolveBatch(req.Orders, req.Caller, batchOptions{
		revertOnInvalid:  true,
		maximumFulfilled: len(req.Orders),
		allowNativeOffer: true,
	})
	if err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathMatch, outcomeError)
		return nil, err
	}
	hashes := availableHashes(batch)

	// event payloads freeze here, before aggregation consumes the amounts
	buf := &eventBuffer{}
	e.bufferFulfillmentEvents(buf, batch, common.Address{})
	buf.ordersMatched(OrdersMatchedEvent{OrderHashes: hashes})

	executions, truncated, err := buildMatchExecutions(batch, req.Fulfillments)
	if err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathMatch, outcomeError)
		return nil, err
	}

	if sweepErr := sweepConsideration(batch, truncated); sweepErr != nil {
		if err := e.rollback(snap, snapshots); err != nil {
			e.finish(requestID, pathMatch, outcomeError)
			return nil, err
		}
		log.Infow("settlement_rolled_back", "reason", sweepErr.Error())
		e.metrics.Rollbacks.Inc()
		e.finish(requestID, pathMatch, outcomeRollback)
		var inc *IncompleteSettlement
		errors.As(sweepErr, &inc)
		return &MatchResult{RequestID: requestID, OrderHashes: hashes, Incomplete: inc}, nil
	}

	if err := e.dispatchExecutions(executions); err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathMatch, outcomeError)
		return nil, err
	}
	if err := e.refundNative(req.Caller); err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathMatch, outcomeError)
		return nil, err
	}
	if err := e.book.Commit(); err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathMatch, outcomeError)
		return nil, fmt.Errorf("committing ledger: %w", err)
	}

	e.countTransfers(executions)
	buf.replay(e.sink)
	e.finish(requestID, pathMatch, outcomeSuccess)
	log.Infow("settlement_completed", "executions", len(executions))
	return &MatchResult{RequestID: requestID, Success: true, OrderHashes: hashes, Executions: executions}, nil
}

// FulfillAvailableRequest settles whichever orders of a batch validate,
// skipping the rest. Offer groups route the offerers' items to Recipient;
// consideration groups are paid by the caller over their channel key.
type FulfillAvailableRequest struct {
	Caller              common.Address
	Orders              []*order.Advanced
	OfferGroups         [][]order.FulfillmentComponent
	ConsiderationGroups [][]order.FulfillmentComponent
	FulfillerConduitKey order.ConduitKey
	Recipient           common.Address // zero means the caller
	MaximumFulfilled    int            // zero or negative means no cap
	NativeValue         *uint256.Int
}

// FulfillAvailableOrders resolves the batch tolerantly, drops unavailable
// orders, and settles the rest. Unlike matching, unmet consideration here
// is a hard error: the caller supplied the component groups and is
// expected to cover everything the surviving orders demand.
func (e *Engine) FulfillAvailableOrders(ctx context.Context, req FulfillAvailableRequest) (*MatchResult, error) {
	if err := e.enter(enteredAcceptingNative); err != nil {
		return nil, err
	}
	defer e.exit()
	requestID := uuid.New()
	defer e.observe(pathAvailable, e.clock.Now())

	if len(req.Orders) == 0 {
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, ErrNoOrdersAvailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = req.Caller
	}
	maximum := req.MaximumFulfilled
	if maximum <= 0 || maximum > len(req.Orders) {
		maximum = len(req.Orders)
	}
	log := e.log.With("request_id", requestID.String(), "path", pathAvailable)
	log.Infow("settlement_started", "orders", len(req.Orders), "maximum_fulfilled", maximum)

	snap := e.book.Snapshot()
	if err := e.escrowNative(req.Caller, req.NativeValue); err != nil {
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, err
	}
	snapshots, err := e.snapshotOrders(req.Orders)
	if err != nil {
		e.abortSettlement(snap, nil)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, err
	}

	batch, err := e.resolveBatch(req.Orders, req.Caller, batchOptions{
		revertOnInvalid:  false,
		maximumFulfilled: maximum,
		allowNativeOffer: false,
	})
	if err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, err
	}
	hashes := availableHashes(batch)
	if len(hashes) == 0 {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, ErrNoOrdersAvailable
	}

	buf := &eventBuffer{}
	e.bufferFulfillmentEvents(buf, batch, recipient)

	executions, err := buildAvailableExecutions(batch, req.OfferGroups, req.ConsiderationGroups,
		req.Caller, recipient, req.FulfillerConduitKey)
	if err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, err
	}

	if sweepErr := sweepConsideration(batch, false); sweepErr != nil {
		if err := e.rollback(snap, snapshots); err != nil {
			e.finish(requestID, pathAvailable, outcomeError)
			return nil, err
		}
		log.Infow("settlement_rejected", "reason", sweepErr.Error())
		e.metrics.Rollbacks.Inc()
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, sweepErr
	}

	if err := e.dispatchExecutions(executions); err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, err
	}
	if err := e.refundNative(req.Caller); err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, err
	}
	if err := e.book.Commit(); err != nil {
		e.abortSettlement(snap, snapshots)
		e.finish(requestID, pathAvailable, outcomeError)
		return nil, fmt.Errorf("committing ledger: %w", err)
	}

	e.countTransfers(executions)
	buf.replay(e.sink)
	e.finish(requestID, pathAvailable, outcomeSuccess)
	log.Infow("settlement_completed", "executions", len(executions), "fulfilled", len(hashes))
	return &MatchResult{RequestID: requestID, Success: true, OrderHashes: hashes, Executions: executions}, nil
}

// ReceiveNative accepts native value pushed to the engine mid-settlement,
// typically by a contract-kind order supplying its offered amount. Pushes
// outside a native-accepting settlement are refused.
func (e *Engine) ReceiveNative(from common.Address, amount *uint256.Int) error {
	if e.guard.Load() != enteredAcceptingNative {
		return ErrNativeNotAccepted
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("native push from %s: %w", from.Hex(), ErrMissingItemAmount)
	}
	if err := e.book.TransferNative(from, e.account, amount); err != nil {
		return fmt.Errorf("native push from %s: %w", from.Hex(), err)
	}
	e.escrow.Add(e.escrow, amount)
	return nil
}

// --- guard ---

func (e *Engine) enter(state int32) error {
	if !e.guard.CompareAndSwap(notEntered, state) {
		return ErrReentrancy
	}
	return nil
}

func (e *Engine) exit() {
	e.guard.Store(notEntered)
}

// --- shared plumbing ---

// escrowNative moves the caller's attached value into the engine account
// for the duration of the call
func (e *Engine) escrowNative(caller common.Address, value *uint256.Int) error {
	e.escrow = uint256.NewInt(0)
	if value == nil || value.IsZero() {
		return nil
	}
	if err := e.book.TransferNative(caller, e.account, value); err != nil {
		return fmt.Errorf("escrowing attached native value: %w", err)
	}
	e.escrow.Set(value)
	return nil
}

// refundNative returns the unspent attached value to the caller
func (e *Engine) refundNative(caller common.Address) error {
	if e.escrow.IsZero() {
		return nil
	}
	amount := new(uint256.Int).Set(e.escrow)
	e.escrow.Clear()
	if err := e.book.TransferNative(e.account, caller, amount); err != nil {
		return fmt.Errorf("refunding attached native value: %w", err)
	}
	return nil
}

// snapshotOrders captures every order's fill status before resolution so
// a rollback can restore the exact pre-call state. Duplicate hashes
// collapse to a single snapshot, which equals the pre-call value either
// way.
func (e *Engine) snapshotOrders(orders []*order.Advanced) (map[common.Hash][]byte, error) {
	snapshots := make(map[common.Hash][]byte, len(orders))
	for i, ord := range orders {
		hash, err := e.resolver.Hash(ord)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if _, ok := snapshots[hash]; ok {
			continue
		}
		snap, err := e.resolver.Snapshot(hash)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		snapshots[hash] = snap
	}
	return snapshots, nil
}

// abortSettlement unwinds a failing call: balances revert to the snapshot
// and any fill status the resolver persisted is restored. A restore
// failure here is logged rather than returned, since the abort already
// carries the primary error.
func (e *Engine) abortSettlement(snap int, snapshots map[common.Hash][]byte) {
	e.book.RevertToSnapshot(snap)
	if len(snapshots) > 0 {
		if err := e.resolver.Restore(snapshots); err != nil {
			e.log.Errorw("fill_status_restore_failed", "err", err)
		}
	}
}

// rollback is the deliberate restoration path: it must fully succeed,
// because the caller reports a structured failure instead of an error.
func (e *Engine) rollback(snap int, snapshots map[common.Hash][]byte) error {
	e.book.RevertToSnapshot(snap)
	if err := e.resolver.Restore(snapshots); err != nil {
		return fmt.Errorf("restoring fill status: %w", err)
	}
	return nil
}

// bufferFulfillmentEvents freezes one fulfillment event per available
// order, in order-array order
func (e *Engine) bufferFulfillmentEvents(buf *eventBuffer, batch []ResolvedOrder, recipient common.Address) {
	for i := range batch {
		ro := &batch[i]
		if !ro.Filled {
			continue
		}
		buf.orderFulfilled(OrderFulfilledEvent{
			OrderHash: ro.Hash,
			Offerer:   ro.Source.Parameters.Offerer,
			Zone:      ro.Source.Parameters.Zone,
			Recipient: recipient,
			Spent:     ro.SpentItems(),
			Received:  ro.ReceivedItems(),
		})
	}
}

func availableHashes(batch []ResolvedOrder) []common.Hash {
	hashes := make([]common.Hash, 0, len(batch))
	for i := range batch {
		if batch[i].Filled {
			hashes = append(hashes, batch[i].Hash)
		}
	}
	return hashes
}

// finish records the settlement outcome in metrics and emits the outcome
// event; only the success label reports success to observers
func (e *Engine) finish(requestID uuid.UUID, path, outcome string) {
	e.metrics.Settlements.WithLabelValues(path, outcome).Inc()
	e.sink.SettlementOutcome(SettlementOutcomeEvent{
		RequestID: requestID,
		Success:   outcome == outcomeSuccess,
		Path:      path,
	})
}

func (e *Engine) observe(path string, start time.Time) {
	e.metrics.SettlementSeconds.WithLabelValues(path).Observe(e.clock.Now().Sub(start).Seconds())
}

func (e *Engine) countTransfers(executions []order.Execution) {
	for i := range executions {
		e.metrics.Transfers.WithLabelValues(executions[i].Item.Class.String()).Inc()
	}
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}
