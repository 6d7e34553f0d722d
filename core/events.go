package core

import "context"

// EventType names a ledger event.
type EventType string

const (
	EventAuctionCreated   EventType = "AuctionCreated"
	EventBidPlaced        EventType = "BidPlaced"
	EventAuctionEnded     EventType = "AuctionEnded"
	EventAuctionCancelled EventType = "AuctionCancelled"
)

// Event is emitted after a mutation commits. Seq is the position of the
// mutation in the registry's total order.
type Event struct {
	Seq       uint64    `json:"seq" cbor:"seq"`
	Type      EventType `json:"type" cbor:"type"`
	AuctionID uint64    `json:"auction_id" cbor:"auction_id"`
	Timestamp int64     `json:"timestamp" cbor:"timestamp"`

	// AuctionCreated
	Creator         Principal `json:"creator,omitempty" cbor:"creator,omitempty"`
	ItemDescription string    `json:"item_description,omitempty" cbor:"item_description,omitempty"`
	EndTime         int64     `json:"end_time,omitempty" cbor:"end_time,omitempty"`

	// BidPlaced
	Bidder   Principal `json:"bidder,omitempty" cbor:"bidder,omitempty"`
	BidIndex uint64    `json:"bid_index,omitempty" cbor:"bid_index,omitempty"`

	// AuctionEnded
	Winner              Principal `json:"winner,omitempty" cbor:"winner,omitempty"`
	WinningAmountHandle Handle    `json:"winning_amount_handle,omitempty" cbor:"winning_amount_handle,omitempty"`
}

// EventSink receives committed events. Publish errors are logged by the
// caller and never roll back the mutation.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error

func (f EventSinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type discardSink struct{}

func (discardSink) Publish(context.Context, Event) error { return nil }
