package status

import (
	"github.com/google/uuid"

	"github.com/smemoshui/seaport-core/pkg/engine"
)

// PendingStore persists parked probabilistic settlements in the status
// database, so a restart never loses escrowed value or the snapshots
// needed to unwind it. It implements the engine's PendingStore contract.
type PendingStore struct {
	store *Store
}

// NewPendingStore wraps the status store's pending-settlement keyspace
func NewPendingStore(store *Store) *PendingStore {
	return &PendingStore{store: store}
}

var _ engine.PendingStore = (*PendingStore)(nil)

func (p *PendingStore) Put(ps *engine.PendingSettlement) error {
	return p.store.PutPending(ps)
}

func (p *PendingStore) Get(id uuid.UUID) (*engine.PendingSettlement, error) {
	return p.store.GetPending(id)
}

func (p *PendingStore) Delete(id uuid.UUID) error {
	return p.store.DeletePending(id)
}

func (p *PendingStore) List() ([]*engine.PendingSettlement, error) {
	return p.store.ListPending()
}
