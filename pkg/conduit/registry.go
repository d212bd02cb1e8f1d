package conduit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smemoshui/seaport-core/pkg/order"
)

var (
	// ErrUnknownChannel is returned when a channel key has no registered
	// conduit
	ErrUnknownChannel = errors.New("no conduit registered for channel key")

	// ErrZeroChannelKey is returned when registering under the zero key,
	// which is reserved for direct transfers
	ErrZeroChannelKey = errors.New("zero channel key is reserved for direct transfers")

	// ErrChannelExists is returned when registering a key twice
	ErrChannelExists = errors.New("conduit already registered for channel key")
)

// Registry resolves channel keys to their conduits in a thread-safe
// manner. The zero key is never registered: it selects the direct
// transfer path and bypasses channels entirely.
type Registry struct {
	mu       sync.RWMutex
	channels map[order.ConduitKey]Conduit
}

// NewRegistry creates an empty conduit registry
func NewRegistry() *Registry {
	return &Registry{channels: make(map[order.ConduitKey]Conduit)}
}

// Register binds a channel key to a conduit
func (r *Registry) Register(key order.ConduitKey, c Conduit) error {
	if key.IsZero() {
		return ErrZeroChannelKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[key]; exists {
		return fmt.Errorf("key %s: %w", key.Hex(), ErrChannelExists)
	}
	r.channels[key] = c
	return nil
}

// Resolve returns the conduit bound to a channel key
func (r *Registry) Resolve(key order.ConduitKey) (Conduit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[key]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key.Hex(), ErrUnknownChannel)
	}
	return c, nil
}
