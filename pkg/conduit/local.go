package conduit

import (
	"fmt"

	"github.com/smemoshui/seaport-core/pkg/ledger"
	"github.com/smemoshui/seaport-core/pkg/order"
)

// LocalConduit is the in-process channel implementation: it applies each
// transfer of a batch straight to the balance book and acknowledges with
// ExecuteMagic. A failed transfer aborts the batch with the ledger's
// error; the engine's ledger snapshot unwinds any prefix that landed.
type LocalConduit struct {
	book *ledger.Book
}

// NewLocalConduit creates a conduit applying batches to the balance book
func NewLocalConduit(book *ledger.Book) *LocalConduit {
	return &LocalConduit{book: book}
}

// Execute applies every transfer in order
func (c *LocalConduit) Execute(transfers []Transfer) ([4]byte, error) {
	for i := range transfers {
		if err := c.apply(&transfers[i]); err != nil {
			return [4]byte{}, fmt.Errorf("transfer %d: %w", i, err)
		}
	}
	return ExecuteMagic, nil
}

func (c *LocalConduit) apply(t *Transfer) error {
	switch t.Class {
	case order.Fungible:
		return c.book.TransferFungible(t.Token, t.From, t.To, t.Amount)
	case order.NonFungible:
		return c.book.TransferNonFungible(t.Token, t.From, t.To, t.Identifier)
	case order.SemiFungible:
		return c.book.TransferSemiFungible(t.Token, t.From, t.To, t.Identifier, t.Amount)
	default:
		return fmt.Errorf("item class %s cannot move through a channel", t.Class)
	}
}
