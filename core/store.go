package core

import "context"

// Change is the persisted effect of one committed mutation.
type Change struct {
	// Auction is the full post-mutation record.
	Auction Auction
	// Bid is set when the mutation appended a bid.
	Bid *Bid
	// Created is true for the mutation that allocated Auction.
	Created bool
}

// Store persists registry state. Apply must be atomic: either the auction row
// and the optional bid row are both written or neither is.
type Store interface {
	Apply(ctx context.Context, c Change) error
	Load(ctx context.Context) ([]Auction, []Bid, error)
}

type nopStore struct{}

func (nopStore) Apply(context.Context, Change) error { return nil }

func (nopStore) Load(context.Context) ([]Auction, []Bid, error) { return nil, nil, nil }
