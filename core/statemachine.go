package core

import (
	"context"
	"fmt"
)

// IsActive reports whether a accepts bids at unix time now. Expiry is lazy:
// an auction past its deadline keeps StatusActive until EndAuction runs.
func IsActive(a Auction, now int64) bool {
	return a.Status == StatusActive && now < a.EndTime
}

// EndAuction moves an auction to Ended and resolves it. Only the creator may
// end an auction, and before the deadline only once it has at least one bid.
//
// The creator's decrypt grant is issued after the Ended state is persisted. If
// that grant fails the auction still ends and the error is returned; Restore
// reissues the grant.
func (r *Registry) EndAuction(ctx context.Context, auctionID uint64, caller Principal) error {
	_, err := r.apply(ctx, func(cur *snapshot, now int64) (step, error) {
		st, err := cur.get(auctionID)
		if err != nil {
			return step{}, err
		}
		a := st.auction
		if caller != a.Creator {
			return step{}, ErrUnauthorized
		}
		if a.Status != StatusActive {
			return step{}, ErrAlreadyFinalized
		}
		if now < a.EndTime && a.TotalBids == 0 {
			return step{}, ErrNoBidsYet
		}

		a.Status = StatusEnded
		a, err = r.resolve(ctx, a, st.bids)
		if err != nil {
			return step{}, err
		}

		return step{
			state:  &auctionState{auction: a, bids: st.bids},
			change: Change{Auction: a},
			event: Event{
				Type:                EventAuctionEnded,
				Winner:              a.HighestBidder,
				WinningAmountHandle: a.HighestAmount,
			},
			after: func(ctx context.Context) error {
				if err := r.grantCreator(ctx, a); err != nil {
					return fmt.Errorf("auction %d ended but the creator grant failed: %w", a.ID, err)
				}
				return nil
			},
		}, nil
	})
	return err
}

// CancelAuction moves an Active auction to Cancelled. No winner is ever
// computed for a cancelled auction.
func (r *Registry) CancelAuction(ctx context.Context, auctionID uint64, caller Principal) error {
	_, err := r.apply(ctx, func(cur *snapshot, _ int64) (step, error) {
		st, err := cur.get(auctionID)
		if err != nil {
			return step{}, err
		}
		a := st.auction
		if caller != a.Creator {
			return step{}, ErrUnauthorized
		}
		if a.Status != StatusActive {
			return step{}, ErrAlreadyFinalized
		}

		// A cancelled auction is never resolved, so its running maximum is
		// dead. Bid amounts stay: bidders may still read their own.
		var obsolete []Handle
		if a.TotalBids > 0 {
			obsolete = append(obsolete, a.HighestBidderIndex)
		}
		if a.TotalBids > 1 {
			obsolete = append(obsolete, a.HighestAmount)
		}

		a.Status = StatusCancelled
		return step{
			state:    &auctionState{auction: a, bids: st.bids},
			change:   Change{Auction: a},
			event:    Event{Type: EventAuctionCancelled},
			obsolete: obsolete,
		}, nil
	})
	return err
}
