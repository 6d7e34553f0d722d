package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudx-io/sealedauction/core"
)

// ErrNotFound is returned when an update targets an auction the store does not hold.
var ErrNotFound = errors.New("store: auction not found")

// Schema creates the ledger tables. Auction and bid rows are only ever
// inserted or updated in place. gateway_handles holds the sealed ciphertext
// table of the fhe gateway; its rows are deleted once the ledger drops them.
const Schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id                   BIGINT PRIMARY KEY,
	creator              TEXT NOT NULL,
	item_description     TEXT NOT NULL,
	reserve_price        TEXT NOT NULL,
	status               SMALLINT NOT NULL,
	end_time             BIGINT NOT NULL,
	created_at           BIGINT NOT NULL,
	highest_amount       TEXT NOT NULL DEFAULT '',
	highest_bidder_index TEXT NOT NULL DEFAULT '',
	highest_bidder       TEXT NOT NULL DEFAULT '',
	total_bids           BIGINT NOT NULL DEFAULT 0,
	resolved             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS bids (
	auction_id BIGINT NOT NULL REFERENCES auctions (id),
	idx        BIGINT NOT NULL,
	bidder     TEXT NOT NULL,
	amount     TEXT NOT NULL,
	PRIMARY KEY (auction_id, idx)
);

CREATE TABLE IF NOT EXISTS gateway_handles (
	handle TEXT PRIMARY KEY,
	sealed BYTEA NOT NULL
);
`

// PGStore persists auctions and bids into Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate creates the tables if they do not exist.
func (p *PGStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Apply writes the auction row and the optional bid row in one transaction.
func (p *PGStore) Apply(ctx context.Context, c core.Change) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	a := c.Auction
	if c.Created {
		q := `
			INSERT INTO auctions
			  (id, creator, item_description, reserve_price, status, end_time, created_at,
			   highest_amount, highest_bidder_index, highest_bidder, total_bids, resolved)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`
		_, err = tx.ExecContext(ctx, q,
			int64(a.ID),
			string(a.Creator),
			a.ItemDescription,
			string(a.ReservePrice),
			int64(a.Status),
			a.EndTime,
			a.CreatedAt,
			string(a.HighestAmount),
			string(a.HighestBidderIndex),
			string(a.HighestBidder),
			int64(a.TotalBids),
			a.Resolved,
		)
		if err != nil {
			return fmt.Errorf("insert auction %d: %w", a.ID, err)
		}
	} else {
		q := `
			UPDATE auctions
			SET status = $2, highest_amount = $3, highest_bidder_index = $4,
			    highest_bidder = $5, total_bids = $6, resolved = $7
			WHERE id = $1
		`
		res, err := tx.ExecContext(ctx, q,
			int64(a.ID),
			int64(a.Status),
			string(a.HighestAmount),
			string(a.HighestBidderIndex),
			string(a.HighestBidder),
			int64(a.TotalBids),
			a.Resolved,
		)
		if err != nil {
			return fmt.Errorf("update auction %d: %w", a.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update auction %d: %w", a.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("update auction %d: %w", a.ID, ErrNotFound)
		}
	}

	if b := c.Bid; b != nil {
		q := `INSERT INTO bids (auction_id, idx, bidder, amount) VALUES ($1,$2,$3,$4)`
		if _, err = tx.ExecContext(ctx, q, int64(b.AuctionID), int64(b.Index), string(b.Bidder), string(b.Amount)); err != nil {
			return fmt.Errorf("insert bid %d/%d: %w", b.AuctionID, b.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rowScanner is implemented by *sql.Rows and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (core.Auction, error) {
	var (
		a                                           core.Auction
		id, status, totalBids                       int64
		creator, reserve, amount, index, highBidder string
	)
	if err := row.Scan(&id, &creator, &a.ItemDescription, &reserve, &status, &a.EndTime, &a.CreatedAt,
		&amount, &index, &highBidder, &totalBids, &a.Resolved); err != nil {
		return core.Auction{}, err
	}
	a.ID = uint64(id)
	a.Creator = core.Principal(creator)
	a.ReservePrice = core.Handle(reserve)
	a.Status = core.Status(status)
	a.HighestAmount = core.Handle(amount)
	a.HighestBidderIndex = core.Handle(index)
	a.HighestBidder = core.Principal(highBidder)
	a.TotalBids = uint64(totalBids)
	return a, nil
}

func scanBid(row rowScanner) (core.Bid, error) {
	var (
		auctionID, idx int64
		bidder, amount string
	)
	if err := row.Scan(&auctionID, &idx, &bidder, &amount); err != nil {
		return core.Bid{}, err
	}
	return core.Bid{
		AuctionID: uint64(auctionID),
		Bidder:    core.Principal(bidder),
		Amount:    core.Handle(amount),
		Index:     uint64(idx),
	}, nil
}

// Load returns every auction and bid, ordered by id and index.
func (p *PGStore) Load(ctx context.Context) ([]core.Auction, []core.Bid, error) {
	q := `
		SELECT id, creator, item_description, reserve_price, status, end_time, created_at,
		       highest_amount, highest_bidder_index, highest_bidder, total_bids, resolved
		FROM auctions ORDER BY id
	`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	var auctions []core.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate auctions: %w", err)
	}

	bidRows, err := p.db.QueryContext(ctx, `SELECT auction_id, idx, bidder, amount FROM bids ORDER BY auction_id, idx`)
	if err != nil {
		return nil, nil, fmt.Errorf("query bids: %w", err)
	}
	defer bidRows.Close()

	var bids []core.Bid
	for bidRows.Next() {
		b, err := scanBid(bidRows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := bidRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate bids: %w", err)
	}
	return auctions, bids, nil
}
