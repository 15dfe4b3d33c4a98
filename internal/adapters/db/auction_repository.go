package db

import (
	"context"
	"database/sql"
	"fmt"

	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/bid"
	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// AuctionRepository implements the auction repository interface on
// postgres. Bid rows carry a serial seq column so the loaded history
// preserves insertion order; mutations guard on the auctions.version
// column so concurrent writers surface shared.ErrVersionConflict.
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

// Create creates a new auction
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (id, farmer_id, crop, quantity_kg, base_price, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		a.ID,
		a.FarmerID,
		a.Crop,
		a.QuantityKg,
		a.BasePrice,
		a.Status,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID retrieves an auction with its bids in insertion order
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `
		SELECT id, farmer_id, crop, quantity_kg, base_price, status,
		       winning_bidder_id, winning_amount, winning_placed_at,
		       version, created_at, updated_at
		FROM auctions
		WHERE id = $1
	`

	a, err := r.scanAuction(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if a.Bids, err = r.loadBids(ctx, a.ID); err != nil {
		return nil, err
	}

	return a, nil
}

// AppendBid atomically appends a bid iff the stored version still
// equals expectedVersion. The version bump and the bid insert share a
// transaction, so a racing append invalidates the whole attempt.
func (r *AuctionRepository) AppendBid(ctx context.Context, auctionID uuid.UUID, b bid.Bid, expectedVersion int64) error {
	return r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		guard := `
			UPDATE auctions
			SET version = version + 1, updated_at = $3
			WHERE id = $1 AND version = $2
		`

		result, err := tx.ExecContext(ctx, guard, auctionID, expectedVersion, b.PlacedAt)
		if err != nil {
			return fmt.Errorf("failed to bump auction version: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return r.conflictOrMissing(ctx, tx, auctionID)
		}

		insert := `
			INSERT INTO bids (auction_id, bidder_id, amount, placed_at)
			VALUES ($1, $2, $3, $4)
		`

		if _, err := tx.ExecContext(ctx, insert, auctionID, b.BidderID, b.Amount, b.PlacedAt); err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}

		return nil
	})
}

// Update persists status/winning-bid changes iff the stored version
// still equals expectedVersion
func (r *AuctionRepository) Update(ctx context.Context, a *auction.Auction, expectedVersion int64) error {
	return r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		query := `
			UPDATE auctions
			SET status = $3, winning_bidder_id = $4, winning_amount = $5,
			    winning_placed_at = $6, version = version + 1, updated_at = $7
			WHERE id = $1 AND version = $2
		`

		var winnerID interface{}
		var winnerAmount interface{}
		var winnerPlacedAt interface{}
		if a.WinningBid != nil {
			winnerID = a.WinningBid.BidderID
			winnerAmount = a.WinningBid.Amount
			winnerPlacedAt = a.WinningBid.PlacedAt
		}

		result, err := tx.ExecContext(ctx, query,
			a.ID,
			expectedVersion,
			a.Status,
			winnerID,
			winnerAmount,
			winnerPlacedAt,
			a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update auction: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return r.conflictOrMissing(ctx, tx, a.ID)
		}

		a.Version = expectedVersion + 1
		return nil
	})
}

// List retrieves auctions matching the filter, newest first. A nil
// status filters OPEN auctions, matching the marketplace browse view.
func (r *AuctionRepository) List(ctx context.Context, filter outbound.ListFilter) ([]*auction.Auction, error) {
	query := `
		SELECT id, farmer_id, crop, quantity_kg, base_price, status,
		       winning_bidder_id, winning_amount, winning_placed_at,
		       version, created_at, updated_at
		FROM auctions
		WHERE status = $1
	`

	status := auction.StatusOpen
	if filter.Status != nil {
		status = *filter.Status
	}

	args := []interface{}{status}

	if filter.CropSearch != "" {
		args = append(args, "%"+filter.CropSearch+"%")
		query += fmt.Sprintf(" AND crop ILIKE $%d", len(args))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		query += fmt.Sprintf(" AND base_price >= $%d", len(args))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		query += fmt.Sprintf(" AND base_price <= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	return r.queryAuctions(ctx, query, args...)
}

// ListByBidder retrieves auctions containing at least one bid by the
// user, ordered by that user's most recent bid
func (r *AuctionRepository) ListByBidder(ctx context.Context, userID uuid.UUID) ([]*auction.Auction, error) {
	query := `
		SELECT a.id, a.farmer_id, a.crop, a.quantity_kg, a.base_price, a.status,
		       a.winning_bidder_id, a.winning_amount, a.winning_placed_at,
		       a.version, a.created_at, a.updated_at
		FROM auctions a
		JOIN bids b ON b.auction_id = a.id
		WHERE b.bidder_id = $1
		GROUP BY a.id, a.farmer_id, a.crop, a.quantity_kg, a.base_price, a.status,
		         a.winning_bidder_id, a.winning_amount, a.winning_placed_at,
		         a.version, a.created_at, a.updated_at
		ORDER BY MAX(b.placed_at) DESC
	`

	return r.queryAuctions(ctx, query, userID)
}

// conflictOrMissing distinguishes a lost version race from a missing
// auction after a zero-row conditional update.
func (r *AuctionRepository) conflictOrMissing(ctx context.Context, tx *sql.Tx, auctionID uuid.UUID) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, auctionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check auction existence: %w", err)
	}
	if !exists {
		return shared.ErrAuctionNotFound
	}
	return shared.ErrVersionConflict
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AuctionRepository) scanAuction(row rowScanner) (*auction.Auction, error) {
	var a auction.Auction
	var winnerID uuid.NullUUID
	var winnerAmount sql.NullFloat64
	var winnerPlacedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.FarmerID,
		&a.Crop,
		&a.QuantityKg,
		&a.BasePrice,
		&a.Status,
		&winnerID,
		&winnerAmount,
		&winnerPlacedAt,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to scan auction: %w", err)
	}

	if winnerID.Valid {
		a.WinningBid = &bid.Bid{
			BidderID: winnerID.UUID,
			Amount:   winnerAmount.Float64,
			PlacedAt: winnerPlacedAt.Time,
		}
	}

	return &a, nil
}

func (r *AuctionRepository) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]*auction.Auction, error) {
	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := r.scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	for _, a := range auctions {
		if a.Bids, err = r.loadBids(ctx, a.ID); err != nil {
			return nil, err
		}
	}

	return auctions, nil
}

func (r *AuctionRepository) loadBids(ctx context.Context, auctionID uuid.UUID) ([]bid.Bid, error) {
	query := `
		SELECT bidder_id, amount, placed_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bids: %w", err)
	}
	defer rows.Close()

	var bids []bid.Bid
	for rows.Next() {
		var b bid.Bid
		if err := rows.Scan(&b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return bids, nil
}
