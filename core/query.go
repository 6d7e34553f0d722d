package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AuctionCount returns the number of auctions ever created.
func (r *Registry) AuctionCount() uint64 {
	return uint64(r.state.Load().len())
}

// AuctionFee returns the configured creation cost.
func (r *Registry) AuctionFee() decimal.Decimal {
	return r.fee
}

// GetAuction returns the public summary of an auction.
func (r *Registry) GetAuction(auctionID uint64) (AuctionSummary, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return AuctionSummary{}, err
	}
	return st.summary(), nil
}

// ListAuctions returns up to limit summaries starting after offset, in id order.
func (r *Registry) ListAuctions(offset, limit int) []AuctionSummary {
	snap := r.state.Load()
	n := snap.len()
	if offset < 0 {
		offset = 0
	}
	if offset >= n || limit <= 0 {
		return []AuctionSummary{}
	}
	end := n
	if limit < end-offset {
		end = offset + limit
	}

	out := make([]AuctionSummary, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, snap.auctions.at(i).summary())
	}
	return out
}

// GetBidders returns bidder principals in insertion order, duplicates included.
func (r *Registry) GetBidders(auctionID uint64) ([]Principal, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return nil, err
	}
	bidders := make([]Principal, len(st.bids))
	for i, b := range st.bids {
		bidders[i] = b.Bidder
	}
	return bidders, nil
}

// GetBid returns a single bid by index.
func (r *Registry) GetBid(auctionID, index uint64) (Bid, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return Bid{}, err
	}
	if index >= uint64(len(st.bids)) {
		return Bid{}, fmt.Errorf("%w: auction %d index %d", ErrBidNotFound, auctionID, index)
	}
	return st.bids[index], nil
}

// GetWinner returns the winning bidder, or NoPrincipal unless the auction
// ended with at least one bid.
func (r *Registry) GetWinner(auctionID uint64) (Principal, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return NoPrincipal, err
	}
	if st.auction.Status != StatusEnded || st.auction.TotalBids == 0 {
		return NoPrincipal, nil
	}
	return st.auction.HighestBidder, nil
}

// BidCount returns the number of accepted bids.
func (r *Registry) BidCount(auctionID uint64) (uint64, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return 0, err
	}
	return st.auction.TotalBids, nil
}

// IsActive reports whether the auction currently accepts bids.
func (r *Registry) IsActive(auctionID uint64) (bool, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return false, err
	}
	return IsActive(st.auction, r.clock.Now().Unix()), nil
}
