package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/pkg/crypto"
	"github.com/smemoshui/seaport-core/pkg/engine"
	"github.com/smemoshui/seaport-core/pkg/order"
	"github.com/smemoshui/seaport-core/pkg/util"
)

// ErrInvalidCanceller is returned when a cancellation comes from an
// address that is neither the order's offerer nor its zone
var ErrInvalidCanceller = errors.New("only the offerer or zone may cancel an order")

// Resolver validates orders against their persisted fill status and
// advances that status as settlements consume them. It implements the
// engine's OrderResolver contract; the mutating operations are
// serialized so API-driven cancellations and counter bumps cannot race
// an in-flight settlement.
type Resolver struct {
	mu     sync.RWMutex
	store  *Store
	signer *crypto.TypedSigner
	zones  *ZoneRegistry
	clock  util.Clock
	log    *zap.SugaredLogger
}

// Config wires the resolver's collaborators. Store and Signer are
// required; the rest default.
type Config struct {
	Store  *Store
	Signer *crypto.TypedSigner
	Zones  *ZoneRegistry
	Clock  util.Clock
	Logger *zap.Logger
}

// NewResolver builds an order status resolver
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errors.New("status: store is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("status: typed signer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		store:  cfg.Store,
		signer: cfg.Signer,
		zones:  cfg.Zones,
		clock:  cfg.Clock,
		log:    logger.Sugar(),
	}
	if r.zones == nil {
		r.zones = NewZoneRegistry()
	}
	if r.clock == nil {
		r.clock = util.RealClock{}
	}
	return r, nil
}

var _ engine.OrderResolver = (*Resolver)(nil)

// Hash derives the canonical order hash fill status is keyed by.
// Structurally broken parameters are rejected here so the typed-data
// rendering never sees them.
func (r *Resolver) Hash(ord *order.Advanced) (common.Hash, error) {
	if err := ord.Parameters.Validate(); err != nil {
		return common.Hash{}, fmt.Errorf("invalid order parameters: %w", err)
	}
	return r.signer.OrderHash(&ord.Parameters)
}

// Resolve validates an order and, when it passes, advances its persisted
// fill status by the granted fraction. Merely-invalid orders resolve to
// a zero fraction unless revertOnInvalid is set, in which case they
// produce a ValidationError; arithmetic failures always error.
func (r *Resolver) Resolve(ord *order.Advanced, caller common.Address, revertOnInvalid bool) (common.Hash, order.Fraction, error) {
	hash, err := r.Hash(ord)
	if err != nil {
		return common.Hash{}, order.Fraction{}, err
	}
	params := &ord.Parameters

	requested := order.Fraction{Numerator: ord.Numerator, Denominator: ord.Denominator}
	if requested.Numerator == nil && requested.Denominator == nil {
		requested = order.WholeFraction()
	}
	if err := requested.Validate(); err != nil {
		if errors.Is(err, order.ErrZeroDenominator) {
			return hash, order.Fraction{}, err
		}
		return r.invalid(hash, "bad fill fraction", revertOnInvalid, err)
	}
	if !params.Kind.IsPartial() && !requested.IsWhole() {
		return r.invalid(hash, "partial fill of a full order", revertOnInvalid, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, err := r.store.GetFill(hash)
	if err != nil {
		return common.Hash{}, order.Fraction{}, err
	}
	if st == nil {
		st = &FillStatus{Fill: order.ZeroFraction()}
	}
	if st.Cancelled {
		return r.invalid(hash, "order is cancelled", revertOnInvalid, nil)
	}

	now := r.clock.Now().Unix()
	if now < params.StartTime || now >= params.EndTime {
		return r.invalid(hash, "outside its time window", revertOnInvalid, nil)
	}

	counter, err := r.store.Counter(params.Offerer)
	if err != nil {
		return common.Hash{}, order.Fraction{}, err
	}
	if params.Counter != counter {
		return r.invalid(hash, "stale counter", revertOnInvalid, nil)
	}

	if params.Kind.IsRestricted() {
		if err := r.zones.Authorize(params, hash, caller); err != nil {
			return r.invalid(hash, "zone rejected the fill", revertOnInvalid, err)
		}
	}

	// a pinned validation or a contract-kind order needs no signature check
	if !st.Validated && !params.Kind.IsContract() {
		ok, err := r.signer.VerifyOrderSignature(params, ord.Signature)
		if err != nil || !ok {
			return r.invalid(hash, "bad signature", revertOnInvalid, err)
		}
	}

	applied, total, err := st.Fill.ApplyFill(requested)
	if err != nil {
		return common.Hash{}, order.Fraction{}, err
	}
	if applied.IsZero() {
		return r.invalid(hash, "already filled", revertOnInvalid, nil)
	}

	st.Fill = total
	st.Validated = true
	if err := r.store.PutFill(hash, st); err != nil {
		return common.Hash{}, order.Fraction{}, err
	}
	return hash, applied, nil
}

// invalid resolves an order that failed validation: a zero fraction to
// skip it, or a ValidationError when the caller wants the batch to fail
func (r *Resolver) invalid(hash common.Hash, reason string, revert bool, cause error) (common.Hash, order.Fraction, error) {
	if revert {
		return hash, order.Fraction{}, &engine.ValidationError{OrderHash: hash, Reason: reason, Err: cause}
	}
	r.log.Debugw("order_skipped", "order_hash", hash.Hex(), "reason", reason)
	return hash, order.ZeroFraction(), nil
}

// Snapshot captures the raw stored fill state of an order hash. A nil
// snapshot stands for "never touched" and restores to a deleted row.
func (r *Resolver) Snapshot(hash common.Hash) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.RawFill(hash)
}

// Restore writes back previously captured fill snapshots in one atomic
// batch
func (r *Resolver) Restore(snapshots map[common.Hash][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.RestoreFills(snapshots)
}

// Status returns the fill status of an order hash. Untouched orders
// report a zero fill with both flags clear.
func (r *Resolver) Status(hash common.Hash) (*FillStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, err := r.store.GetFill(hash)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &FillStatus{Fill: order.ZeroFraction()}
	}
	return st, nil
}

// Counter returns the current counter for an offerer
func (r *Resolver) Counter(offerer common.Address) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Counter(offerer)
}

// Validate verifies each order's signature once and pins the result, so
// later fills skip signature recovery. Already-validated orders pass
// through untouched; contract-kind orders carry no signature to pin and
// are skipped. Returns the hashes of the orders now marked validated.
func (r *Resolver) Validate(orders []*order.Order) ([]common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hashes := make([]common.Hash, 0, len(orders))
	for i, ord := range orders {
		if ord.Parameters.Kind.IsContract() {
			continue
		}
		hash, err := r.signer.OrderHash(&ord.Parameters)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		st, err := r.store.GetFill(hash)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if st == nil {
			st = &FillStatus{Fill: order.ZeroFraction()}
		}
		if st.Cancelled {
			return nil, &engine.ValidationError{OrderIndex: i, OrderHash: hash, Reason: "order is cancelled"}
		}
		if st.Validated {
			hashes = append(hashes, hash)
			continue
		}
		ok, err := r.signer.VerifyOrderSignature(&ord.Parameters, ord.Signature)
		if err != nil || !ok {
			return nil, &engine.ValidationError{OrderIndex: i, OrderHash: hash, Reason: "bad signature", Err: err}
		}
		st.Validated = true
		if err := r.store.PutFill(hash, st); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		r.log.Infow("order_validated",
			"order_hash", hash.Hex(),
			"offerer", ord.Parameters.Offerer.Hex(),
		)
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// Cancel marks orders as cancelled. Only the offerer or the zone of an
// order may cancel it; cancellation also clears the validated pin so a
// later un-cancel path would have to re-verify. Returns the cancelled
// hashes.
func (r *Resolver) Cancel(cancellations []*order.Parameters, caller common.Address) ([]common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hashes := make([]common.Hash, 0, len(cancellations))
	for i, p := range cancellations {
		if caller != p.Offerer && caller != p.Zone {
			return nil, fmt.Errorf("order %d: %w", i, ErrInvalidCanceller)
		}
		hash, err := r.signer.OrderHash(p)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		st, err := r.store.GetFill(hash)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		if st == nil {
			st = &FillStatus{Fill: order.ZeroFraction()}
		}
		st.Cancelled = true
		st.Validated = false
		if err := r.store.PutFill(hash, st); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		r.log.Infow("order_cancelled",
			"order_hash", hash.Hex(),
			"offerer", p.Offerer.Hex(),
			"caller", caller.Hex(),
		)
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// IncrementCounter bumps an offerer's counter, invalidating every order
// signed under the old value in one stroke. Returns the new counter.
func (r *Resolver) IncrementCounter(offerer common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.Counter(offerer)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := r.store.SetCounter(offerer, next); err != nil {
		return 0, err
	}
	r.log.Infow("counter_incremented", "offerer", offerer.Hex(), "counter", next)
	return next, nil
}
