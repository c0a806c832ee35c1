// Package ordering abstracts the external ordering service that sequences
// commitments and transactions into a linear stream of blocks. Consensus is
// out of scope: the engine trusts whatever order arrives here and never
// renegotiates it.
package ordering

import (
	"context"
	"time"

	"github.com/arvo-net/arvo/types"
)

// Item is one ordered element: either a match-set commitment or a
// transaction (a reveal, or a plain directly-submitted transaction).
// Exactly one field is set.
type Item struct {
	Commitment *types.Commitment  `cbor:"1,keyasint,omitempty"`
	Tx         *types.Transaction `cbor:"2,keyasint,omitempty"`
}

// Block is a finite batch of ordered items. Height and Time are assigned by
// the ordering service and are authoritative.
type Block struct {
	Height int64
	Time   time.Time
	Items  []Item
}

// Service is the engine's view of the ordering layer.
type Service interface {
	// SubmitItem enqueues an item for ordering. It does not wait for the
	// item to be sequenced.
	SubmitItem(ctx context.Context, item Item) error

	// Blocks returns the authoritative ordered stream. The channel is closed
	// when the service stops.
	Blocks() <-chan Block
}
