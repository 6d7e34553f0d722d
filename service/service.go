// Package service exposes the ledger operations in terms of the wire types,
// independent of whether requests arrive over vsock, TCP or HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/fhe"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service binds the registry to the gateway that imports sealed amounts.
type Service struct {
	registry *core.Registry
	gateway  *fhe.Gateway
	attester fhe.Attester
	clock    core.Clock
}

// Option configures a Service.
type Option func(*Service)

// WithAttester enables attestations on key and resolution responses.
func WithAttester(a fhe.Attester) Option {
	return func(s *Service) { s.attester = a }
}

// WithClock overrides the clock used for attestation timestamps and pongs.
func WithClock(c core.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func New(registry *core.Registry, gateway *fhe.Gateway, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		gateway:  gateway,
		clock:    core.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireCaller(r ledgerapi.Request) error {
	if r.Caller == core.NoPrincipal {
		return fmt.Errorf("%w: request has no caller", core.ErrUnauthorized)
	}
	return nil
}

func (s *Service) Ping() ledgerapi.PongResponse {
	return ledgerapi.PongResponse{
		Type:      "pong",
		Message:   "ledger is healthy",
		Timestamp: s.clock.Now().Unix(),
	}
}

func (s *Service) Key() (*ledgerapi.KeyResponse, error) {
	return fhe.HandleKeyRequest(s.attester, s.gateway)
}

func (s *Service) CreateAuction(ctx context.Context, req ledgerapi.CreateAuctionRequest) (*ledgerapi.CreateAuctionResponse, error) {
	if err := requireCaller(req.Request); err != nil {
		return nil, err
	}
	fee, err := core.ParseFee(req.Fee)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientFee) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fee %q: %v", ledgerapi.ErrBadRequest, req.Fee, err)
	}
	// Reject before importing so a refused request leaves no ciphertext behind.
	if req.DurationSeconds <= 0 {
		return nil, core.ErrInvalidDuration
	}
	if required := s.registry.AuctionFee(); !core.FeeMeetsMinimum(fee, required) {
		return nil, fmt.Errorf("%w: paid %s, required %s", core.ErrInsufficientFee, fee.String(), required.String())
	}

	reserve, err := s.gateway.Import(ctx, req.ReservePrice, req.Caller)
	if err != nil {
		return nil, fmt.Errorf("reserve price: %w", err)
	}

	id, err := s.registry.CreateAuction(ctx, core.CreateAuctionParams{
		Creator:         req.Caller,
		ItemDescription: req.ItemDescription,
		ReservePrice:    reserve,
		DurationSeconds: req.DurationSeconds,
		Fee:             fee,
	})
	if err != nil {
		s.release(ctx, reserve)
		return nil, err
	}
	a, err := s.registry.GetAuction(id)
	if err != nil {
		return nil, err
	}

	log.Printf("INFO: Auction %d created by %s (ends %d)", id, req.Caller, a.EndTime)
	return &ledgerapi.CreateAuctionResponse{Type: "create_auction_response", AuctionID: id, EndTime: a.EndTime}, nil
}

func (s *Service) PlaceBid(ctx context.Context, req ledgerapi.PlaceBidRequest) (*ledgerapi.PlaceBidResponse, error) {
	if err := requireCaller(req.Request); err != nil {
		return nil, err
	}
	active, err := s.registry.IsActive(req.AuctionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, core.ErrAuctionNotActive
	}
	amount, err := s.gateway.Import(ctx, req.Amount, req.Caller)
	if err != nil {
		return nil, fmt.Errorf("bid amount: %w", err)
	}

	index, err := s.registry.PlaceBid(ctx, req.AuctionID, amount, req.Caller)
	if err != nil {
		s.release(ctx, amount)
		return nil, err
	}
	return &ledgerapi.PlaceBidResponse{
		Type:         "place_bid_response",
		AuctionID:    req.AuctionID,
		BidIndex:     index,
		AmountHandle: amount,
	}, nil
}

// EndAuction ends and resolves the auction. When an attester is configured
// the response carries an attestation of the resolution; failing to produce
// one does not undo the end.
func (s *Service) EndAuction(ctx context.Context, req ledgerapi.AuctionRequest) (*ledgerapi.EndAuctionResponse, error) {
	if err := requireCaller(req.Request); err != nil {
		return nil, err
	}
	if err := s.registry.EndAuction(ctx, req.AuctionID, req.Caller); err != nil {
		return nil, err
	}
	res, err := s.registry.GetResolution(req.AuctionID)
	if err != nil {
		return nil, err
	}

	resp := &ledgerapi.EndAuctionResponse{
		Type:                "end_auction_response",
		AuctionID:           res.AuctionID,
		Winner:              res.Winner,
		WinningAmountHandle: res.WinningAmount,
	}
	if s.attester != nil {
		attestation, err := fhe.GenerateResolutionAttestation(s.attester, res, s.clock.Now())
		if err != nil {
			log.Printf("ERROR: Auction %d ended but resolution attestation failed: %v", res.AuctionID, err)
		} else {
			resp.AttestationCOSEBase64 = attestation.EncodeBase64()
		}
	}
	return resp, nil
}

func (s *Service) CancelAuction(ctx context.Context, req ledgerapi.AuctionRequest) (*ledgerapi.CancelAuctionResponse, error) {
	if err := requireCaller(req.Request); err != nil {
		return nil, err
	}
	if err := s.registry.CancelAuction(ctx, req.AuctionID, req.Caller); err != nil {
		return nil, err
	}
	return &ledgerapi.CancelAuctionResponse{Type: "cancel_auction_response", AuctionID: req.AuctionID}, nil
}

func (s *Service) GetAuction(req ledgerapi.AuctionRequest) (*ledgerapi.AuctionResponse, error) {
	a, err := s.registry.GetAuction(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &ledgerapi.AuctionResponse{Type: "auction_response", Auction: a}, nil
}

func (s *Service) ListAuctions(req ledgerapi.ListAuctionsRequest) *ledgerapi.ListAuctionsResponse {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	return &ledgerapi.ListAuctionsResponse{
		Type:     "list_auctions_response",
		Auctions: s.registry.ListAuctions(req.Offset, limit),
		Total:    s.registry.AuctionCount(),
	}
}

func (s *Service) GetBidders(req ledgerapi.AuctionRequest) (*ledgerapi.BiddersResponse, error) {
	bidders, err := s.registry.GetBidders(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &ledgerapi.BiddersResponse{Type: "bidders_response", AuctionID: req.AuctionID, Bidders: bidders}, nil
}

func (s *Service) GetWinner(req ledgerapi.AuctionRequest) (*ledgerapi.WinnerResponse, error) {
	winner, err := s.registry.GetWinner(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &ledgerapi.WinnerResponse{Type: "winner_response", AuctionID: req.AuctionID, Winner: winner}, nil
}

func (s *Service) BidCount(req ledgerapi.AuctionRequest) (*ledgerapi.CountResponse, error) {
	n, err := s.registry.BidCount(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &ledgerapi.CountResponse{Type: "count_response", Count: n}, nil
}

func (s *Service) AuctionCount() *ledgerapi.CountResponse {
	return &ledgerapi.CountResponse{Type: "count_response", Count: s.registry.AuctionCount()}
}

func (s *Service) AuctionFee() *ledgerapi.FeeResponse {
	return &ledgerapi.FeeResponse{Type: "fee_response", Fee: s.registry.AuctionFee().String()}
}

// GetResolution is restricted to the creator, who holds the only grant on
// the winning amount.
func (s *Service) GetResolution(req ledgerapi.AuctionRequest) (*ledgerapi.ResolutionResponse, error) {
	if err := requireCaller(req.Request); err != nil {
		return nil, err
	}
	a, err := s.registry.GetAuction(req.AuctionID)
	if err != nil {
		return nil, err
	}
	if a.Creator != req.Caller {
		return nil, core.ErrUnauthorized
	}
	res, err := s.registry.GetResolution(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &ledgerapi.ResolutionResponse{Type: "resolution_response", Resolution: res}, nil
}

func (s *Service) Decrypt(ctx context.Context, req ledgerapi.DecryptRequest) (*ledgerapi.DecryptResponse, error) {
	if err := requireCaller(req.Request); err != nil {
		return nil, err
	}
	v, err := s.gateway.Decrypt(ctx, req.Handle, req.Caller)
	if err != nil {
		return nil, err
	}
	return &ledgerapi.DecryptResponse{Type: "decrypt_response", Handle: req.Handle, Value: v}, nil
}

// release drops a ciphertext imported for a request the registry refused.
func (s *Service) release(ctx context.Context, h core.Handle) {
	if err := s.gateway.Release(context.WithoutCancel(ctx), h); err != nil {
		log.Printf("WARN: Failed to release handle %s: %v", h, err)
	}
}
