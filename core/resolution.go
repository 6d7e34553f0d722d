package core

import (
	"context"
	"fmt"
	"slices"
)

// resolve fixes the winner of an Ended auction. A resolved auction is
// returned unchanged. The creator's decrypt grant is issued separately by
// grantCreator once the Ended state is persisted.
func (r *Registry) resolve(ctx context.Context, a Auction, bids []Bid) (Auction, error) {
	if a.Resolved {
		return a, nil
	}
	if a.Status != StatusEnded {
		return a, fmt.Errorf("cannot resolve %s auction %d", a.Status, a.ID)
	}

	if a.TotalBids > 0 {
		index, err := r.capability.Reveal(ctx, a.HighestBidderIndex)
		if err != nil {
			return a, capabilityErr("reveal", err)
		}
		if index >= uint64(len(bids)) {
			return a, fmt.Errorf("%w: leader index %d outside %d bids", ErrInvalidCiphertext, index, len(bids))
		}
		a.HighestBidder = bids[index].Bidder
	}

	a.Resolved = true
	return a, nil
}

// grantCreator lets the creator of a resolved auction decrypt the winning
// amount. It is a no-op for any other auction, and granting twice is harmless.
func (r *Registry) grantCreator(ctx context.Context, a Auction) error {
	if a.Status != StatusEnded || !a.Resolved || a.TotalBids == 0 {
		return nil
	}
	if err := r.capability.Allow(ctx, a.HighestAmount, a.Creator); err != nil {
		return capabilityErr("allow", err)
	}
	return nil
}

// GetResolution returns the fixed outcome of an Ended auction.
func (r *Registry) GetResolution(auctionID uint64) (Resolution, error) {
	st, err := r.state.Load().get(auctionID)
	if err != nil {
		return Resolution{}, err
	}
	if st.auction.Status != StatusEnded || !st.auction.Resolved {
		return Resolution{}, ErrNotResolved
	}

	return Resolution{
		AuctionID:       st.auction.ID,
		Creator:         st.auction.Creator,
		ItemDescription: st.auction.ItemDescription,
		ReservePrice:    st.auction.ReservePrice,
		CreatedAt:       st.auction.CreatedAt,
		EndTime:         st.auction.EndTime,
		Winner:          st.auction.HighestBidder,
		WinningAmount:   st.auction.HighestAmount,
		TotalBids:       st.auction.TotalBids,
		Bids:            slices.Clone(st.bids),
	}, nil
}
