// Package httpapi serves the ledger over HTTP. Read-only queries are public;
// mutations, resolution and decryption require a bearer token whose subject
// becomes the caller.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/ledgerapi"
	"github.com/cloudx-io/sealedauction/service"
)

type Server struct {
	service  *service.Service
	verifier *Verifier
}

func New(svc *service.Service, verifier *Verifier) *Server {
	return &Server{service: svc, verifier: verifier}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/gateway/key", s.handleKey)

	r.Route("/auctions", func(r chi.Router) {
		r.Get("/", s.handleListAuctions)
		r.Get("/count", s.handleAuctionCount)
		r.Get("/fee", s.handleAuctionFee)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAuction)
			r.Get("/bidders", s.handleGetBidders)
			r.Get("/winner", s.handleGetWinner)
			r.Get("/bids/count", s.handleBidCount)

			r.Group(func(r chi.Router) {
				r.Use(s.verifier.Authenticate)
				r.Post("/bids", s.handlePlaceBid)
				r.Post("/end", s.handleEndAuction)
				r.Post("/cancel", s.handleCancelAuction)
				r.Get("/resolution", s.handleGetResolution)
			})
		})

		r.With(s.verifier.Authenticate).Post("/", s.handleCreateAuction)
	})

	r.With(s.verifier.Authenticate).Post("/handles/decrypt", s.handleDecrypt)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Ping())
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Key()
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.service.ListAuctions(ledgerapi.ListAuctionsRequest{
		Request: s.request(r, ledgerapi.TypeListAuctions),
		Offset:  offset,
		Limit:   limit,
	}))
}

func (s *Server) handleAuctionCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.AuctionCount())
}

func (s *Server) handleAuctionFee(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.AuctionFee())
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeGetAuction, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.GetAuction(req)
	})
}

func (s *Server) handleGetBidders(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeGetBidders, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.GetBidders(req)
	})
}

func (s *Server) handleGetWinner(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeGetWinner, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.GetWinner(req)
	})
}

func (s *Server) handleBidCount(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeBidCount, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.BidCount(req)
	})
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeGetResolution, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.GetResolution(req)
	})
}

func (s *Server) handleEndAuction(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeEndAuction, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.EndAuction(r.Context(), req)
	})
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	s.auctionQuery(w, r, ledgerapi.TypeCancelAuction, func(req ledgerapi.AuctionRequest) (any, error) {
		return s.service.CancelAuction(r.Context(), req)
	})
}

type createAuctionRequest struct {
	ItemDescription string                    `json:"item_description"`
	ReservePrice    ledgerapi.EncryptedAmount `json:"reserve_price"`
	DurationSeconds int64                     `json:"duration_seconds"`
	Fee             string                    `json:"fee"`
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	resp, err := s.service.CreateAuction(r.Context(), ledgerapi.CreateAuctionRequest{
		Request:         s.request(r, ledgerapi.TypeCreateAuction),
		ItemDescription: req.ItemDescription,
		ReservePrice:    req.ReservePrice,
		DurationSeconds: req.DurationSeconds,
		Fee:             req.Fee,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

type placeBidRequest struct {
	Amount ledgerapi.EncryptedAmount `json:"amount"`
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req placeBidRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	resp, err := s.service.PlaceBid(r.Context(), ledgerapi.PlaceBidRequest{
		Request:   s.request(r, ledgerapi.TypePlaceBid),
		AuctionID: id,
		Amount:    req.Amount,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

type decryptRequest struct {
	Handle core.Handle `json:"handle"`
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	resp, err := s.service.Decrypt(r.Context(), ledgerapi.DecryptRequest{
		Request: s.request(r, ledgerapi.TypeDecrypt),
		Handle:  req.Handle,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) auctionQuery(w http.ResponseWriter, r *http.Request, typ string, fn func(ledgerapi.AuctionRequest) (any, error)) {
	id, err := auctionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp, err := fn(ledgerapi.AuctionRequest{Request: s.request(r, typ), AuctionID: id})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// request builds the envelope the vsock protocol would carry, with the
// caller taken from the verified token.
func (s *Server) request(r *http.Request, typ string) ledgerapi.Request {
	return ledgerapi.Request{
		Type:      typ,
		RequestID: middleware.GetReqID(r.Context()),
		Caller:    PrincipalFrom(r.Context()),
	}
}

func auctionID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid auction id %q", ledgerapi.ErrBadRequest, raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ledgerapi.ErrBadRequest, key, raw)
	}
	return n, nil
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ledgerapi.ErrBadRequest, err)
	}
	return nil
}
