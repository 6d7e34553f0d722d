package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/fhe"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

func TestService_FullAuction(t *testing.T) {
	h := newHarness(t, WithAttester(fhe.NewMockAttester()))
	ctx := context.Background()
	id := h.createAuction(t)

	a, err := h.svc.GetAuction(ledgerapi.AuctionRequest{AuctionID: id})
	assert.NoError(t, err)
	check.Equal(t, int64(1_700_003_600), a.Auction.EndTime)

	h.bid(t, id, alice, 5)
	second := h.bid(t, id, bob, 10)
	check.Equal(t, uint64(1), second.BidIndex)

	end, err := h.svc.EndAuction(ctx, ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id})
	assert.NoError(t, err)
	check.Equal(t, bob, end.Winner)
	check.NotEqual(t, ledgerapi.AttestationCOSEBase64(""), end.AttestationCOSEBase64)

	coseBytes, err := end.AttestationCOSEBase64.Decode()
	assert.NoError(t, err)
	doc, err := ledgerapi.ParseResolutionAttestation(coseBytes)
	assert.NoError(t, err)
	check.Equal(t, id, doc.UserData.AuctionID)
	check.Equal(t, bob, doc.UserData.Winner)
	check.Equal(t, core.ComputeBidHash(id, 1, bob, second.AmountHandle, doc.UserData.BidHashNonce), doc.UserData.BidHashes[1])

	dec, err := h.svc.Decrypt(ctx, ledgerapi.DecryptRequest{Request: ledgerapi.Request{Caller: seller}, Handle: end.WinningAmountHandle})
	assert.NoError(t, err)
	check.Equal(t, uint64(10), dec.Value)

	_, err = h.svc.Decrypt(ctx, ledgerapi.DecryptRequest{Request: ledgerapi.Request{Caller: alice}, Handle: end.WinningAmountHandle})
	check.True(t, errors.Is(err, ledgerapi.ErrPermissionDenied))

	winner, err := h.svc.GetWinner(ledgerapi.AuctionRequest{AuctionID: id})
	assert.NoError(t, err)
	check.Equal(t, bob, winner.Winner)
}

func TestService_EndWithoutAttester(t *testing.T) {
	h := newHarness(t)
	id := h.createAuction(t)
	h.clock.Advance(2 * time.Hour)

	end, err := h.svc.EndAuction(context.Background(), ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id})
	assert.NoError(t, err)
	check.Equal(t, core.NoPrincipal, end.Winner)
	check.Equal(t, core.NoHandle, end.WinningAmountHandle)
	check.Equal(t, ledgerapi.AttestationCOSEBase64(""), end.AttestationCOSEBase64)
}

func TestService_CreateAuctionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := ledgerapi.CreateAuctionRequest{
		Request:         ledgerapi.Request{Caller: seller},
		ReservePrice:    h.seal(t, 1),
		DurationSeconds: 60,
		Fee:             "0.01",
	}

	tests := []struct {
		name   string
		mutate func(*ledgerapi.CreateAuctionRequest)
		want   error
	}{
		{"no caller", func(r *ledgerapi.CreateAuctionRequest) { r.Caller = "" }, core.ErrUnauthorized},
		{"fee not a number", func(r *ledgerapi.CreateAuctionRequest) { r.Fee = "lots" }, ledgerapi.ErrBadRequest},
		{"negative fee", func(r *ledgerapi.CreateAuctionRequest) { r.Fee = "-1" }, core.ErrInsufficientFee},
		{"fee too low", func(r *ledgerapi.CreateAuctionRequest) { r.Fee = "0.009" }, core.ErrInsufficientFee},
		{"zero duration", func(r *ledgerapi.CreateAuctionRequest) { r.DurationSeconds = 0 }, core.ErrInvalidDuration},
		{"garbage reserve", func(r *ledgerapi.CreateAuctionRequest) { r.ReservePrice.Nonce = "AAAA" }, core.ErrInvalidCiphertext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := h.svc.CreateAuction(ctx, req)
			check.True(t, errors.Is(err, tt.want))
		})
	}
	check.Equal(t, uint64(0), h.svc.AuctionCount().Count)
}

func TestService_PlaceBidErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createAuction(t)

	_, err := h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{AuctionID: id, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrUnauthorized))

	_, err = h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrCreatorBid))

	_, err = h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{Request: ledgerapi.Request{Caller: alice}, AuctionID: 99, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrAuctionNotFound))

	h.clock.Advance(time.Hour)
	_, err = h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{Request: ledgerapi.Request{Caller: alice}, AuctionID: id, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrAuctionNotActive))

	count, err := h.svc.BidCount(ledgerapi.AuctionRequest{AuctionID: id})
	assert.NoError(t, err)
	check.Equal(t, uint64(0), count.Count)
}

func TestService_RefusedRequestsLeaveNoCiphertexts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createAuction(t)
	h.bid(t, id, alice, 5)
	before := h.gateway.HandleCount()

	// Refused after import: the registry rejects creator bids.
	_, err := h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrCreatorBid))
	// Refused before import.
	_, err = h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{Request: ledgerapi.Request{Caller: bob}, AuctionID: 99, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrAuctionNotFound))
	_, err = h.svc.CreateAuction(ctx, ledgerapi.CreateAuctionRequest{
		Request:         ledgerapi.Request{Caller: seller},
		ReservePrice:    h.seal(t, 1),
		DurationSeconds: 60,
		Fee:             "0.001",
	})
	check.True(t, errors.Is(err, core.ErrInsufficientFee))
	check.Equal(t, before, h.gateway.HandleCount())

	h.clock.Advance(time.Hour)
	_, err = h.svc.PlaceBid(ctx, ledgerapi.PlaceBidRequest{Request: ledgerapi.Request{Caller: bob}, AuctionID: id, Amount: h.seal(t, 5)})
	check.True(t, errors.Is(err, core.ErrAuctionNotActive))
	check.Equal(t, before, h.gateway.HandleCount())
}

func TestService_CancelAndResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.createAuction(t)
	h.bid(t, id, alice, 5)

	_, err := h.svc.CancelAuction(ctx, ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: alice}, AuctionID: id})
	check.True(t, errors.Is(err, core.ErrUnauthorized))

	_, err = h.svc.CancelAuction(ctx, ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id})
	assert.NoError(t, err)

	_, err = h.svc.GetResolution(ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id})
	check.True(t, errors.Is(err, core.ErrNotResolved))
	_, err = h.svc.GetResolution(ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: alice}, AuctionID: id})
	check.True(t, errors.Is(err, core.ErrUnauthorized))

	_, err = h.svc.EndAuction(ctx, ledgerapi.AuctionRequest{Request: ledgerapi.Request{Caller: seller}, AuctionID: id})
	check.True(t, errors.Is(err, core.ErrAlreadyFinalized))

	winner, err := h.svc.GetWinner(ledgerapi.AuctionRequest{AuctionID: id})
	assert.NoError(t, err)
	check.Equal(t, core.NoPrincipal, winner.Winner)
}

func TestService_Queries(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.createAuction(t)
	}
	h.bid(t, 2, alice, 1)
	h.bid(t, 2, alice, 2)

	list := h.svc.ListAuctions(ledgerapi.ListAuctionsRequest{Offset: 1})
	check.Equal(t, uint64(3), list.Total)
	check.Equal(t, 2, len(list.Auctions))
	check.Equal(t, uint64(2), list.Auctions[0].ID)

	bidders, err := h.svc.GetBidders(ledgerapi.AuctionRequest{AuctionID: 2})
	assert.NoError(t, err)
	check.Equal(t, []core.Principal{alice, alice}, bidders.Bidders)

	check.Equal(t, "0.01", h.svc.AuctionFee().Fee)
	check.Equal(t, int64(1_700_000_000), h.svc.Ping().Timestamp)

	key, err := h.svc.Key()
	assert.NoError(t, err)
	check.Equal(t, h.gateway.ID(), key.GatewayID)
}
