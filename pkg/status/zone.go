package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smemoshui/seaport-core/pkg/order"
)

var (
	// ErrUnknownZone is returned when a restricted order names a zone with
	// no registered authorizer
	ErrUnknownZone = errors.New("no authorizer registered for zone")

	// ErrZoneExists is returned when registering a zone address twice
	ErrZoneExists = errors.New("authorizer already registered for zone")
)

// Zone authorizes fills of restricted orders. A restricted order is only
// fillable when the caller is the zone itself or the zone's authorizer
// approves the fill.
type Zone interface {
	// Authorize returns nil to approve the fill
	Authorize(p *order.Parameters, hash common.Hash, caller common.Address) error
}

// ZoneFunc adapts a plain function to the Zone interface
type ZoneFunc func(p *order.Parameters, hash common.Hash, caller common.Address) error

func (f ZoneFunc) Authorize(p *order.Parameters, hash common.Hash, caller common.Address) error {
	return f(p, hash, caller)
}

// ZoneRegistry resolves zone addresses to their authorizers in a
// thread-safe manner
type ZoneRegistry struct {
	mu    sync.RWMutex
	zones map[common.Address]Zone
}

// NewZoneRegistry creates an empty zone registry
func NewZoneRegistry() *ZoneRegistry {
	return &ZoneRegistry{zones: make(map[common.Address]Zone)}
}

// Register binds a zone address to an authorizer
func (r *ZoneRegistry) Register(addr common.Address, z Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.zones[addr]; exists {
		return fmt.Errorf("zone %s: %w", addr.Hex(), ErrZoneExists)
	}
	r.zones[addr] = z
	return nil
}

// Authorize checks a restricted fill against the order's zone. The zone
// address itself may always fill; otherwise its registered authorizer
// decides.
func (r *ZoneRegistry) Authorize(p *order.Parameters, hash common.Hash, caller common.Address) error {
	if caller == p.Zone {
		return nil
	}
	r.mu.RLock()
	z, ok := r.zones[p.Zone]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("zone %s: %w", p.Zone.Hex(), ErrUnknownZone)
	}
	return z.Authorize(p, hash, caller)
}
