package core

import "fmt"

// Principal identifies a calling party (creator or bidder).
type Principal string

// NoPrincipal is the absent-winner sentinel.
const NoPrincipal Principal = ""

// Handle is an opaque reference to an encrypted value held by a Capability.
type Handle string

// NoHandle marks a ciphertext slot that has not been assigned yet.
const NoHandle Handle = ""

// Status is the lifecycle state of an auction. The numeric values are persisted.
type Status uint8

const (
	StatusActive Status = iota
	StatusEnded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// Auction is the full record kept by the registry, including ciphertext handles.
// Query callers receive an AuctionSummary instead.
type Auction struct {
	ID              uint64    `json:"id"`
	Creator         Principal `json:"creator"`
	ItemDescription string    `json:"item_description"`
	ReservePrice    Handle    `json:"reserve_price"`
	Status          Status    `json:"status"`
	EndTime         int64     `json:"end_time"`
	CreatedAt       int64     `json:"created_at"`

	// Running maximum. Both are NoHandle until the first bid lands.
	HighestAmount      Handle `json:"highest_amount,omitempty"`
	HighestBidderIndex Handle `json:"highest_bidder_index,omitempty"`

	// HighestBidder is fixed by resolution and stays NoPrincipal otherwise.
	HighestBidder Principal `json:"highest_bidder,omitempty"`
	TotalBids     uint64    `json:"total_bids"`
	Resolved      bool      `json:"resolved"`
}

// Bid is a single accepted sealed bid.
type Bid struct {
	AuctionID uint64    `json:"auction_id"`
	Bidder    Principal `json:"bidder"`
	Amount    Handle    `json:"amount"`
	Index     uint64    `json:"index"`
}

// AuctionSummary is the public projection returned by GetAuction.
type AuctionSummary struct {
	ID              uint64    `json:"id"`
	Creator         Principal `json:"creator"`
	ItemDescription string    `json:"item_description"`
	HighestBidder   Principal `json:"highest_bidder"`
	EndTime         int64     `json:"end_time"`
	Status          Status    `json:"status"`
	CreatedAt       int64     `json:"created_at"`
	TotalBids       uint64    `json:"total_bids"`
}

// Resolution is the fixed outcome of an ended auction, together with the
// immutable auction parameters and bid list it was computed from.
type Resolution struct {
	AuctionID       uint64    `json:"auction_id"`
	Creator         Principal `json:"creator"`
	ItemDescription string    `json:"item_description"`
	ReservePrice    Handle    `json:"reserve_price"`
	CreatedAt       int64     `json:"created_at"`
	EndTime         int64     `json:"end_time"`
	Winner          Principal `json:"winner"`
	WinningAmount   Handle    `json:"winning_amount,omitempty"`
	TotalBids       uint64    `json:"total_bids"`
	Bids            []Bid     `json:"bids"`
}

// auctionState is one immutable entry of a snapshot. Writers replace it, never mutate it.
type auctionState struct {
	auction Auction
	bids    []Bid
}

func (s *auctionState) summary() AuctionSummary {
	return AuctionSummary{
		ID:              s.auction.ID,
		Creator:         s.auction.Creator,
		ItemDescription: s.auction.ItemDescription,
		HighestBidder:   s.auction.HighestBidder,
		EndTime:         s.auction.EndTime,
		Status:          s.auction.Status,
		CreatedAt:       s.auction.CreatedAt,
		TotalBids:       s.auction.TotalBids,
	}
}

// withBid returns a copy of s with bid appended. Bids are append-only and only
// the writer holding the registry lock appends, so the new slice may share its
// backing array: readers of s never look past len(s.bids).
func (s *auctionState) withBid(a Auction, bid Bid) *auctionState {
	return &auctionState{
		auction: a,
		bids:    append(s.bids, bid),
	}
}
