package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/aaronwang/live-auction/internal/models"
)

// PostgresClient wraps the source-of-truth store. Bids are immutable
// records; nothing here updates or deletes a committed bid.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient opens a connection pool and verifies it.
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// InitSchema creates the bids table. Auction lifecycle rows live in the
// auction service's own schema.
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bids (
		id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		session_id VARCHAR(255) NOT NULL,
		username VARCHAR(255) NOT NULL,
		amount DECIMAL(12, 2) NOT NULL,
		placed_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids(auction_id);
	CREATE INDEX IF NOT EXISTS idx_bids_auction_amount ON bids(auction_id, amount DESC);
	CREATE INDEX IF NOT EXISTS idx_bids_placed_at ON bids(placed_at);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertBidsTx inserts a batch of bids inside one transaction. Provisional
// IDs are replaced with permanent ones at this point. Either every bid in
// the batch commits or none does.
func (c *PostgresClient) InsertBidsTx(ctx context.Context, bids []models.Bid) error {
	if len(bids) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bids (id, auction_id, session_id, username, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, bid := range bids {
		id := bid.ID
		if id == "" || strings.HasPrefix(id, models.ProvisionalIDPrefix) {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, bid.AuctionID, bid.SessionID,
			bid.Username, bid.Amount, bid.PlacedAt); err != nil {
			return fmt.Errorf("failed to insert bid for auction %s: %w", bid.AuctionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bid batch: %w", err)
	}
	return nil
}

// TopBids returns up to limit bids for an auction ordered by amount
// descending, then recency descending. This is the authoritative read the
// resync worker repopulates projections from.
func (c *PostgresClient) TopBids(ctx context.Context, auctionID string, limit int) ([]models.Bid, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, auction_id, session_id, username, amount, placed_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, placed_at DESC
		LIMIT $2
	`, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top bids: %w", err)
	}
	defer rows.Close()

	return scanBids(rows)
}

// AuctionIDs returns every distinct auction that holds at least one
// durable bid. Used by the startup cache warm.
func (c *PostgresClient) AuctionIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT auction_id FROM bids`)
	if err != nil {
		return nil, fmt.Errorf("failed to query auction ids: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// RecentAuctionIDs returns distinct auctions with bid activity since the
// given time.
func (c *PostgresClient) RecentAuctionIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT auction_id FROM bids WHERE placed_at >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent auction ids: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func scanBids(rows *sql.Rows) ([]models.Bid, error) {
	var bids []models.Bid
	for rows.Next() {
		var bid models.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.SessionID,
			&bid.Username, &bid.Amount, &bid.PlacedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection pool.
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
