package conduit

import (
	"golang.org/x/crypto/sha3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smemoshui/seaport-core/pkg/order"
)

// Transfer is one queued item movement inside a batched channel call
type Transfer struct {
	Class      order.ItemClass
	Token      common.Address
	From       common.Address
	To         common.Address
	Identifier *uint256.Int
	Amount     *uint256.Int
}

// Conduit executes a batch of token transfers on behalf of the settlement
// engine. Native currency never moves through a channel. A conforming
// implementation acknowledges the batch by returning ExecuteMagic; any
// other value marks the channel as misconfigured or hostile.
type Conduit interface {
	Execute(transfers []Transfer) ([4]byte, error)
}

// ExecuteMagic is the acknowledgement a channel must return from Execute:
// the first four bytes of the keccak-256 hash of the batch-execution
// method signature.
var ExecuteMagic = executeSelector()

func executeSelector() [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("execute((uint8,address,address,address,uint256,uint256)[])"))
	var sel [4]byte
	copy(sel[:], h.Sum(nil)[:4])
	return sel
}
