package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// Dispatch decodes one raw request, routes it on its "type" field and
// returns the response value to encode. Failures are returned as
// ledgerapi.ErrorResponse values so every request gets an answer.
func (s *Service) Dispatch(ctx context.Context, raw []byte) any {
	var base ledgerapi.Request
	if err := json.Unmarshal(raw, &base); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return ledgerapi.NewErrorResponse(fmt.Errorf("%w: %v", ledgerapi.ErrBadRequest, err))
	}

	resp, err := s.route(ctx, base.Type, raw)
	if err != nil {
		errResp := ledgerapi.NewErrorResponse(err)
		if errResp.Code == ledgerapi.CodeInternal {
			log.Printf("ERROR: %s request %s failed: %v", base.Type, base.RequestID, err)
		} else {
			log.Printf("INFO: %s request %s rejected: %v", base.Type, base.RequestID, err)
		}
		return errResp
	}
	return resp
}

func decode[T any](raw []byte) (T, error) {
	var req T
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ledgerapi.ErrBadRequest, err)
	}
	return req, nil
}

func (s *Service) route(ctx context.Context, typ string, raw []byte) (any, error) {
	switch typ {
	case ledgerapi.TypePing:
		return s.Ping(), nil

	case ledgerapi.TypeKeyRequest:
		return s.Key()

	case ledgerapi.TypeCreateAuction:
		req, err := decode[ledgerapi.CreateAuctionRequest](raw)
		if err != nil {
			return nil, err
		}
		return s.CreateAuction(ctx, req)

	case ledgerapi.TypePlaceBid:
		req, err := decode[ledgerapi.PlaceBidRequest](raw)
		if err != nil {
			return nil, err
		}
		return s.PlaceBid(ctx, req)

	case ledgerapi.TypeListAuctions:
		req, err := decode[ledgerapi.ListAuctionsRequest](raw)
		if err != nil {
			return nil, err
		}
		return s.ListAuctions(req), nil

	case ledgerapi.TypeAuctionCount:
		return s.AuctionCount(), nil

	case ledgerapi.TypeAuctionFee:
		return s.AuctionFee(), nil

	case ledgerapi.TypeDecrypt:
		req, err := decode[ledgerapi.DecryptRequest](raw)
		if err != nil {
			return nil, err
		}
		return s.Decrypt(ctx, req)

	case ledgerapi.TypeEndAuction, ledgerapi.TypeCancelAuction, ledgerapi.TypeGetAuction,
		ledgerapi.TypeGetBidders, ledgerapi.TypeGetWinner, ledgerapi.TypeBidCount, ledgerapi.TypeGetResolution:
		req, err := decode[ledgerapi.AuctionRequest](raw)
		if err != nil {
			return nil, err
		}
		return s.routeAuction(ctx, typ, req)

	default:
		return nil, fmt.Errorf("%w: unknown request type %q", ledgerapi.ErrBadRequest, typ)
	}
}

func (s *Service) routeAuction(ctx context.Context, typ string, req ledgerapi.AuctionRequest) (any, error) {
	switch typ {
	case ledgerapi.TypeEndAuction:
		return s.EndAuction(ctx, req)
	case ledgerapi.TypeCancelAuction:
		return s.CancelAuction(ctx, req)
	case ledgerapi.TypeGetAuction:
		return s.GetAuction(req)
	case ledgerapi.TypeGetBidders:
		return s.GetBidders(req)
	case ledgerapi.TypeGetWinner:
		return s.GetWinner(req)
	case ledgerapi.TypeBidCount:
		return s.BidCount(req)
	default:
		return s.GetResolution(req)
	}
}
