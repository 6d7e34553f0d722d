package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/cloudx-io/sealedauction/core"
)

// MemoryStore keeps registry state in process memory. Used for development
// and as the reference behaviour for PGStore.
type MemoryStore struct {
	mu       sync.Mutex
	auctions []core.Auction
	bids     []core.Bid
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Apply(ctx context.Context, c core.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := c.Auction.ID
	switch {
	case c.Created && id != uint64(len(m.auctions))+1:
		return fmt.Errorf("insert auction %d: expected id %d", id, len(m.auctions)+1)
	case !c.Created && (id == 0 || id > uint64(len(m.auctions))):
		return fmt.Errorf("update auction %d: %w", id, ErrNotFound)
	}
	if c.Bid != nil && c.Bid.AuctionID != id {
		return fmt.Errorf("insert bid: auction %d does not match %d", c.Bid.AuctionID, id)
	}

	if c.Created {
		m.auctions = append(m.auctions, c.Auction)
	} else {
		m.auctions[id-1] = c.Auction
	}
	if c.Bid != nil {
		m.bids = append(m.bids, *c.Bid)
	}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) ([]core.Auction, []core.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.auctions), slices.Clone(m.bids), nil
}
