package auction

import (
	"time"

	"agrimandi-auction-service/internal/domain/bid"

	"github.com/google/uuid"
)

// Status represents the current status of an auction
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Auction represents a crop-lot sale with an append-only bid history.
// Version is the optimistic-concurrency revision: every successful
// mutation of the record bumps it by one.
type Auction struct {
	ID         uuid.UUID `json:"id"`
	FarmerID   uuid.UUID `json:"farmer_id"`
	Crop       string    `json:"crop"`
	QuantityKg float64   `json:"quantity_kg"`
	BasePrice  float64   `json:"base_price"`
	Status     Status    `json:"status"`
	Bids       []bid.Bid `json:"bids"`
	WinningBid *bid.Bid  `json:"winning_bid,omitempty"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsOpen returns true if the auction is still accepting bids
func (a *Auction) IsOpen() bool {
	return a.Status == StatusOpen
}

// IsClosed returns true if the auction reached its terminal state
func (a *Auction) IsClosed() bool {
	return a.Status == StatusClosed
}

// HighestBid returns the bid with the maximum amount, or nil if no
// bids exist. On equal amounts the first admitted bid wins; the
// admission rule forbids ties against the running maximum, so equal
// amounts only occur in historical data.
func (a *Auction) HighestBid() *bid.Bid {
	var highest *bid.Bid
	for i := range a.Bids {
		if highest == nil || a.Bids[i].Amount > highest.Amount {
			highest = &a.Bids[i]
		}
	}
	return highest
}

// AppendBid appends an admitted bid to the history. The caller is
// responsible for having validated the bid against the admission
// rules first.
func (a *Auction) AppendBid(b bid.Bid) {
	a.Bids = append(a.Bids, b)
	a.UpdatedAt = time.Now().UTC()
}

// Close transitions the auction to CLOSED and snapshots the winning
// bid. Closing an already closed auction is a no-op.
func (a *Auction) Close() {
	if a.IsClosed() {
		return
	}
	a.Status = StatusClosed
	if highest := a.HighestBid(); highest != nil {
		winner := *highest
		a.WinningBid = &winner
	}
	a.UpdatedAt = time.Now().UTC()
}
