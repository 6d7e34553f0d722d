package store

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/fhe"
)

func TestMemoryStore_ApplyAndLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.Apply(ctx, core.Change{Auction: sampleAuction, Created: true}))

	a := sampleAuction
	a.TotalBids = 1
	bid := core.Bid{AuctionID: 1, Bidder: "0xalice", Amount: "h0"}
	assert.NoError(t, s.Apply(ctx, core.Change{Auction: a, Bid: &bid}))

	auctions, bids, err := s.Load(ctx)
	assert.NoError(t, err)
	check.Equal(t, []core.Auction{a}, auctions)
	check.Equal(t, []core.Bid{bid}, bids)
}

func TestMemoryStore_Rejects(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	gap := sampleAuction
	gap.ID = 2
	check.NotNil(t, s.Apply(ctx, core.Change{Auction: gap, Created: true}))
	check.True(t, errors.Is(s.Apply(ctx, core.Change{Auction: sampleAuction}), ErrNotFound))

	assert.NoError(t, s.Apply(ctx, core.Change{Auction: sampleAuction, Created: true}))
	check.NotNil(t, s.Apply(ctx, core.Change{Auction: sampleAuction, Bid: &core.Bid{AuctionID: 9}}))

	auctions, bids, err := s.Load(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, len(auctions))
	check.Equal(t, 0, len(bids))
}

// A registry restored from the store sees the same auctions, bids and
// ordering as the one that wrote them.
func TestMemoryStore_RegistryRestore(t *testing.T) {
	ctx := context.Background()
	km, err := fhe.NewKeyManager()
	assert.NoError(t, err)
	g := fhe.NewGateway(km)
	s := NewMemoryStore()

	seal := func(owner core.Principal, amount uint64) core.Handle {
		sealed, err := fhe.SealAmount(amount, km.PublicKey, fhe.HashAlgorithmSHA256)
		assert.NoError(t, err)
		h, err := g.Import(ctx, sealed, owner)
		assert.NoError(t, err)
		return h
	}

	first := core.NewRegistry(g, core.WithStore(s))
	id, err := first.CreateAuction(ctx, core.CreateAuctionParams{
		Creator:         "0xseller",
		ItemDescription: "vintage watch",
		ReservePrice:    seal("0xseller", 1),
		DurationSeconds: 3600,
		Fee:             decimal.RequireFromString("0.01"),
	})
	assert.NoError(t, err)
	_, err = first.PlaceBid(ctx, id, seal("0xalice", 5), "0xalice")
	assert.NoError(t, err)
	_, err = first.PlaceBid(ctx, id, seal("0xbob", 9), "0xbob")
	assert.NoError(t, err)

	second := core.NewRegistry(g, core.WithStore(s))
	assert.NoError(t, second.Restore(ctx))

	check.Equal(t, first.AuctionCount(), second.AuctionCount())
	bidders, err := second.GetBidders(id)
	assert.NoError(t, err)
	check.Equal(t, []core.Principal{"0xalice", "0xbob"}, bidders)

	assert.NoError(t, second.EndAuction(ctx, id, "0xseller"))
	winner, err := second.GetWinner(id)
	assert.NoError(t, err)
	check.Equal(t, core.Principal("0xbob"), winner)

	auctions, _, err := s.Load(ctx)
	assert.NoError(t, err)
	check.Equal(t, core.StatusEnded, auctions[0].Status)
	check.True(t, auctions[0].Resolved)
}
