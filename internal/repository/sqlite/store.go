// Package sqlite provides a SQLite-backed auction store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/internal/repository/sqlite/migrations"
	"live-auction/internal/repository/sqlitemigrate"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists auctions and their bid ledgers in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens a SQLite auction store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateAuction inserts one auction record.
func (s *Store) CreateAuction(ctx context.Context, auction model.Auction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(auction.AuctionID) == "" {
		return fmt.Errorf("sqlite: create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO auctions (
		   auction_id, name, description, image, starting_price,
		   scheduled_start, duration_ms, status
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		auction.AuctionID,
		auction.Name,
		auction.Description,
		auction.Image,
		auction.StartingPrice.String(),
		toMillis(auction.ScheduledStart),
		auction.Duration.Milliseconds(),
		string(auction.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
		}
		return fmt.Errorf("sqlite: create auction %s: %w", auction.AuctionID, err)
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
		a                  model.Auction
		status             string
		scheduledStart     int64
		durationMs         int64
		startedAt, closeAt sql.NullInt64
	)
	if err := row.Scan(&a.AuctionID, &a.Name, &a.Description, &a.Image, &a.StartingPrice,
		&scheduledStart, &durationMs, &status, &startedAt, &closeAt); err != nil {
		return model.Auction{}, err
	}
	a.ScheduledStart = fromMillis(scheduledStart)
	a.Duration = time.Duration(durationMs) * time.Millisecond
	a.Status = model.AuctionStatus(status)
	a.StartedAt = fromNullMillis(startedAt)
	a.ClosedAt = fromNullMillis(closeAt)
	return a, nil
}

// GetAuction returns one auction by ID.
func (s *Store) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if err := ctx.Err(); err != nil {
		return model.Auction{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = ?`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("sqlite: get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("sqlite: get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctions returns every auction ordered by scheduled start.
func (s *Store) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY scheduled_start, auction_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list auctions: %w", err)
	}
	defer rows.Close()

	auctions := make([]model.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list auctions: %w", err)
	}
	return auctions, nil
}

// UpdateAuctionStatus records a lifecycle transition.
func (s *Store) UpdateAuctionStatus(ctx context.Context, auctionID string, status model.AuctionStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	query := `UPDATE auctions SET status = ? WHERE auction_id = ?`
	args := []any{string(status), auctionID}
	switch status {
	case model.StatusLive:
		query = `UPDATE auctions SET status = ?, started_at = ? WHERE auction_id = ?`
		args = []any{string(status), toMillis(at), auctionID}
	case model.StatusClosed:
		query = `UPDATE auctions SET status = ?, closed_at = ? WHERE auction_id = ?`
		args = []any{string(status), toMillis(at), auctionID}
	}
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update auction %s: %w", auctionID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("sqlite: update auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return nil
}

// AppendBid records one committed bid keyed by (auction_id, sequence_number).
func (s *Store) AppendBid(ctx context.Context, bid model.Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE auction_id = ?`, bid.AuctionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: append bid for auction %s: %w", bid.AuctionID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bids (
		   auction_id, sequence_number, bid_id, bidder_id, bidder_name, amount, placed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bid.AuctionID,
		int64(bid.SequenceNumber),
		bid.BidID,
		bid.BidderID,
		bid.BidderName,
		bid.Amount.String(),
		toMillis(bid.Timestamp),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: append bid %d for auction %s: %w", bid.SequenceNumber, bid.AuctionID, biddingerrors.ErrDuplicateSequence)
		}
		return fmt.Errorf("sqlite: append bid for auction %s: %w", bid.AuctionID, err)
	}
	return tx.Commit()
}

// GetBidsByAuction returns bids for an auction in sequence order.
func (s *Store) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT auction_id, sequence_number, bid_id, bidder_id, bidder_name, amount, placed_at
		 FROM bids WHERE auction_id = ? ORDER BY sequence_number`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		var (
			b        model.Bid
			seq      int64
			placedAt int64
		)
		if err := rows.Scan(&b.AuctionID, &seq, &b.BidID, &b.BidderID, &b.BidderName, &b.Amount, &placedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan bid: %w", err)
		}
		b.SequenceNumber = uint64(seq)
		b.Timestamp = fromMillis(placedAt)
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ repository.AuctionDB = (*Store)(nil)
