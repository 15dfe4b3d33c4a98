package bid

import (
	"time"

	"github.com/google/uuid"
)

// Bid represents an admitted bid on an auction. Bids are owned by their
// parent auction and are append-only: once admitted they are never
// mutated or removed.
type Bid struct {
	BidderID uuid.UUID `json:"bidder_id"`
	Amount   float64   `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// New creates a bid with a server-assigned timestamp.
func New(bidderID uuid.UUID, amount float64) Bid {
	return Bid{
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: time.Now().UTC(),
	}
}

// IsValid returns true if the bid amount is positive.
func (b Bid) IsValid() bool {
	return b.Amount > 0
}
