package core

import (
	"context"
)

// PlaceBid appends a sealed bid to an active auction and folds it into the
// running encrypted maximum. It returns the bid's index.
func (r *Registry) PlaceBid(ctx context.Context, auctionID uint64, amount Handle, caller Principal) (uint64, error) {
	if caller == NoPrincipal {
		return 0, ErrUnauthorized
	}
	if amount == NoHandle {
		return 0, ErrInvalidCiphertext
	}

	ev, err := r.apply(ctx, func(cur *snapshot, now int64) (step, error) {
		st, err := cur.get(auctionID)
		if err != nil {
			return step{}, err
		}
		if !IsActive(st.auction, now) {
			return step{}, ErrAuctionNotActive
		}
		if caller == st.auction.Creator && !r.policy.AllowCreatorBids {
			return step{}, ErrCreatorBid
		}
		if err := r.capability.Verify(ctx, amount, caller); err != nil {
			return step{}, capabilityErr("verify", err)
		}

		f, err := r.foldMax(ctx, st.auction, amount)
		if err != nil {
			return step{}, err
		}
		next := f.auction

		bid := Bid{
			AuctionID: auctionID,
			Bidder:    caller,
			Amount:    amount,
			Index:     st.auction.TotalBids,
		}
		next.TotalBids++

		return step{
			state:    st.withBid(next, bid),
			change:   Change{Auction: next, Bid: &bid},
			event:    Event{Type: EventBidPlaced, Bidder: caller, BidIndex: bid.Index},
			obsolete: f.obsolete,
			fresh:    f.fresh,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return ev.BidIndex, nil
}

// fold is the result of foldMax.
type fold struct {
	auction Auction
	// fresh lists every handle foldMax created. They are released if the bid
	// does not commit.
	fresh []Handle
	// obsolete lists handles nothing references once the new state commits.
	obsolete []Handle
}

// foldMax returns a with its running maximum updated for a new bid amount.
//
// The leader is tracked as an encrypted bid index so that both the amount and
// the leader go through the same encrypted select. Every non-first bid costs
// exactly one GreaterThan and two Select calls whatever the comparison yields.
// GreaterThan is strict, so an equal later bid never displaces the leader.
func (r *Registry) foldMax(ctx context.Context, a Auction, amount Handle) (f fold, err error) {
	var created []Handle
	defer func() {
		if err != nil {
			r.release(ctx, created)
		}
	}()

	index, err := r.capability.TrivialEncrypt(ctx, a.TotalBids)
	if err != nil {
		return fold{}, capabilityErr("encrypt", err)
	}
	created = append(created, index)

	// totalBids is public, so branching on it leaks nothing.
	if a.TotalBids == 0 {
		a.HighestAmount = amount
		a.HighestBidderIndex = index
		return fold{auction: a, fresh: []Handle{index}}, nil
	}

	greater, err := r.capability.GreaterThan(ctx, amount, a.HighestAmount)
	if err != nil {
		return fold{}, capabilityErr("gt", err)
	}
	created = append(created, greater)
	highest, err := r.capability.Select(ctx, greater, amount, a.HighestAmount)
	if err != nil {
		return fold{}, capabilityErr("select", err)
	}
	created = append(created, highest)
	leader, err := r.capability.Select(ctx, greater, index, a.HighestBidderIndex)
	if err != nil {
		return fold{}, capabilityErr("select", err)
	}
	created = append(created, leader)

	obsolete := []Handle{index, greater, a.HighestBidderIndex}
	// After one bid the maximum is that bid's own amount, which stays
	// referenced by the bid list.
	if a.TotalBids > 1 {
		obsolete = append(obsolete, a.HighestAmount)
	}

	a.HighestAmount = highest
	a.HighestBidderIndex = leader
	return fold{auction: a, fresh: created, obsolete: obsolete}, nil
}
