// Package mysql provides a MySQL-backed auction store.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"
	"live-auction/internal/repository"

	driver "github.com/go-sql-driver/mysql"
)

const duplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
		auction_id      VARCHAR(64) PRIMARY KEY,
		name            VARCHAR(255) NOT NULL,
		description     TEXT NOT NULL,
		image           VARCHAR(1024) NOT NULL DEFAULT '',
		starting_price  DECIMAL(20,4) NOT NULL,
		scheduled_start DATETIME(3) NOT NULL,
		duration_ms     BIGINT NOT NULL DEFAULT 0,
		status          VARCHAR(16) NOT NULL,
		started_at      DATETIME(3) NULL,
		closed_at       DATETIME(3) NULL,
		INDEX idx_auctions_scheduled_start (scheduled_start)
	)`,
	`CREATE TABLE IF NOT EXISTS bids (
		auction_id      VARCHAR(64) NOT NULL,
		sequence_number BIGINT UNSIGNED NOT NULL,
		bid_id          CHAR(36) NOT NULL,
		bidder_id       VARCHAR(64) NOT NULL,
		bidder_name     VARCHAR(255) NOT NULL,
		amount          DECIMAL(20,4) NOT NULL,
		placed_at       DATETIME(3) NOT NULL,
		PRIMARY KEY (auction_id, sequence_number),
		UNIQUE KEY uq_bids_bid_id (bid_id),
		FOREIGN KEY (auction_id) REFERENCES auctions (auction_id)
	)`,
}

// Store persists auctions and their bid ledgers in MySQL.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open MySQL handle. The DSN must set parseTime=true.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to MySQL, tunes the pool and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	store := NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the auction tables when missing.
func (m *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the MySQL handle.
func (m *Store) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *Store) CreateAuction(ctx context.Context, auction model.Auction) error {
	if strings.TrimSpace(auction.AuctionID) == "" {
		return fmt.Errorf("mysql: create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO auctions (auction_id, name, description, image, starting_price, scheduled_start, duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		auction.AuctionID, auction.Name, auction.Description, auction.Image,
		auction.StartingPrice, auction.ScheduledStart.UTC(), auction.Duration.Milliseconds(), string(auction.Status),
	)
	if isDuplicate(err) {
		return fmt.Errorf("mysql: create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	if err != nil {
		return fmt.Errorf("mysql: create auction %s: %w", auction.AuctionID, err)
	}
	return nil
}

const auctionColumns = `auction_id, name, description, image, starting_price,
	scheduled_start, duration_ms, status, started_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a                   model.Auction
		status              string
		durationMs          int64
		startedAt, closedAt sql.NullTime
	)
	if err := row.Scan(&a.AuctionID, &a.Name, &a.Description, &a.Image, &a.StartingPrice,
		&a.ScheduledStart, &durationMs, &status, &startedAt, &closedAt); err != nil {
		return model.Auction{}, err
	}
	a.ScheduledStart = a.ScheduledStart.UTC()
	a.Duration = time.Duration(durationMs) * time.Millisecond
	a.Status = model.AuctionStatus(status)
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		a.StartedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		a.ClosedAt = &t
	}
	return a, nil
}

func (m *Store) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = ?`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("mysql: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("mysql: get auction %s: %w", auctionID, err)
	}
	return a, nil
}

func (m *Store) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY scheduled_start, auction_id`)
	if err != nil {
		return nil, fmt.Errorf("mysql: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

func (m *Store) UpdateAuctionStatus(ctx context.Context, auctionID string, status model.AuctionStatus, at time.Time) error {
	var (
		result sql.Result
		err    error
	)
	switch status {
	case model.StatusLive:
		result, err = m.db.ExecContext(ctx, `UPDATE auctions SET status = ?, started_at = ? WHERE auction_id = ?`, string(status), at.UTC(), auctionID)
	case model.StatusClosed:
		result, err = m.db.ExecContext(ctx, `UPDATE auctions SET status = ?, closed_at = ? WHERE auction_id = ?`, string(status), at.UTC(), auctionID)
	default:
		result, err = m.db.ExecContext(ctx, `UPDATE auctions SET status = ? WHERE auction_id = ?`, string(status), auctionID)
	}
	if err != nil {
		return fmt.Errorf("mysql: update auction %s: %w", auctionID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, getErr := m.GetAuction(ctx, auctionID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// AppendBid inserts the bid inside a transaction that first locks the auction row,
// so the append is atomic with respect to the auction's existence.
func (m *Store) AppendBid(ctx context.Context, bid model.Bid) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT auction_id FROM auctions WHERE auction_id = ? FOR UPDATE`, bid.AuctionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("mysql: append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return fmt.Errorf("mysql: lock auction %s: %w", bid.AuctionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bids (auction_id, sequence_number, bid_id, bidder_id, bidder_name, amount, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bid.AuctionID, bid.SequenceNumber, bid.BidID, bid.BidderID, bid.BidderName, bid.Amount, bid.Timestamp.UTC(),
	)
	if isDuplicate(err) {
		return fmt.Errorf("mysql: append bid %d for auction %s: %w", bid.SequenceNumber, bid.AuctionID, biddingerrors.ErrDuplicateSequence)
	}
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	return tx.Commit()
}

func (m *Store) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := m.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT auction_id, sequence_number, bid_id, bidder_id, bidder_name, amount, placed_at
		FROM bids WHERE auction_id = ? ORDER BY sequence_number`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("mysql: get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.AuctionID, &b.SequenceNumber, &b.BidID, &b.BidderID, &b.BidderName, &b.Amount, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("mysql: scan bid: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func isDuplicate(err error) bool {
	var myErr *driver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == duplicateEntry
}

var _ repository.AuctionDB = (*Store)(nil)
