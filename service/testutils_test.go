package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/fhe"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

const (
	seller core.Principal = "0xseller"
	alice  core.Principal = "0xalice"
	bob    core.Principal = "0xbob"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock   *fakeClock
	gateway *fhe.Gateway
	svc     *Service
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	km, err := fhe.NewKeyManager()
	assert.NoError(t, err)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	g := fhe.NewGateway(km)
	registry := core.NewRegistry(g, core.WithClock(clock))
	return &harness{
		clock:   clock,
		gateway: g,
		svc:     New(registry, g, append([]Option{WithClock(clock)}, opts...)...),
	}
}

func (h *harness) seal(t *testing.T, amount uint64) ledgerapi.EncryptedAmount {
	t.Helper()
	sealed, err := fhe.SealAmount(amount, h.gateway.Keys().PublicKey, fhe.HashAlgorithmSHA256)
	assert.NoError(t, err)
	return sealed
}

func (h *harness) createAuction(t *testing.T) uint64 {
	t.Helper()
	resp, err := h.svc.CreateAuction(context.Background(), ledgerapi.CreateAuctionRequest{
		Request:         ledgerapi.Request{Type: ledgerapi.TypeCreateAuction, Caller: seller},
		ItemDescription: "vintage watch",
		ReservePrice:    h.seal(t, 1),
		DurationSeconds: 3600,
		Fee:             "0.01",
	})
	assert.NoError(t, err)
	return resp.AuctionID
}

func (h *harness) bid(t *testing.T, id uint64, bidder core.Principal, amount uint64) *ledgerapi.PlaceBidResponse {
	t.Helper()
	resp, err := h.svc.PlaceBid(context.Background(), ledgerapi.PlaceBidRequest{
		Request:   ledgerapi.Request{Type: ledgerapi.TypePlaceBid, Caller: bidder},
		AuctionID: id,
		Amount:    h.seal(t, amount),
	})
	assert.NoError(t, err)
	return resp
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	assert.NoError(t, err)
	return b
}
