package ledgerapi

import (
	"github.com/cloudx-io/sealedauction/core"
)

// Request types accepted by the ledger daemon.
const (
	TypePing          = "ping"
	TypeKeyRequest    = "key_request"
	TypeCreateAuction = "create_auction"
	TypePlaceBid      = "place_bid"
	TypeEndAuction    = "end_auction"
	TypeCancelAuction = "cancel_auction"
	TypeGetAuction    = "get_auction"
	TypeListAuctions  = "list_auctions"
	TypeGetBidders    = "get_bidders"
	TypeGetWinner     = "get_winner"
	TypeBidCount      = "bid_count"
	TypeAuctionCount  = "auction_count"
	TypeAuctionFee    = "auction_fee"
	TypeGetResolution = "get_resolution"
	TypeDecrypt       = "decrypt"
)

// EncryptedAmount is a bid or reserve amount sealed to the gateway key with
// RSA-OAEP/AES-256-GCM. The plaintext is the JSON object {"amount": N} where N
// is the amount in gwei.
type EncryptedAmount struct {
	AESKeyEncrypted  string `json:"aes_key_encrypted"`        // base64 RSA-OAEP encrypted AES key
	EncryptedPayload string `json:"encrypted_payload"`        // base64 AES-GCM ciphertext
	Nonce            string `json:"nonce"`                    // base64 GCM nonce (12 bytes)
	HashAlgorithm    string `json:"hash_algorithm,omitempty"` // "SHA-256" (default) or "SHA-1"
}

// AmountPayload is the plaintext sealed inside an EncryptedAmount.
type AmountPayload struct {
	Amount uint64 `json:"amount"`
}

// Request is the envelope shared by every request. Caller is set by the
// authenticated bridge in front of the daemon.
type Request struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Caller    core.Principal `json:"caller,omitempty"`
}

type CreateAuctionRequest struct {
	Request
	ItemDescription string          `json:"item_description"`
	ReservePrice    EncryptedAmount `json:"reserve_price"`
	DurationSeconds int64           `json:"duration_seconds"`
	Fee             string          `json:"fee"`
}

type CreateAuctionResponse struct {
	Type      string `json:"type"`
	AuctionID uint64 `json:"auction_id"`
	EndTime   int64  `json:"end_time"`
}

type PlaceBidRequest struct {
	Request
	AuctionID uint64          `json:"auction_id"`
	Amount    EncryptedAmount `json:"amount"`
}

type PlaceBidResponse struct {
	Type         string      `json:"type"`
	AuctionID    uint64      `json:"auction_id"`
	BidIndex     uint64      `json:"bid_index"`
	AmountHandle core.Handle `json:"amount_handle"`
}

// AuctionRequest addresses a single auction. Used by end, cancel and the
// per-auction queries.
type AuctionRequest struct {
	Request
	AuctionID uint64 `json:"auction_id"`
}

type EndAuctionResponse struct {
	Type                  string                `json:"type"`
	AuctionID             uint64                `json:"auction_id"`
	Winner                core.Principal        `json:"winner"`
	WinningAmountHandle   core.Handle           `json:"winning_amount_handle,omitempty"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

type CancelAuctionResponse struct {
	Type      string `json:"type"`
	AuctionID uint64 `json:"auction_id"`
}

type AuctionResponse struct {
	Type    string              `json:"type"`
	Auction core.AuctionSummary `json:"auction"`
}

type ListAuctionsRequest struct {
	Request
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type ListAuctionsResponse struct {
	Type     string                `json:"type"`
	Auctions []core.AuctionSummary `json:"auctions"`
	Total    uint64                `json:"total"`
}

type BiddersResponse struct {
	Type      string           `json:"type"`
	AuctionID uint64           `json:"auction_id"`
	Bidders   []core.Principal `json:"bidders"`
}

type WinnerResponse struct {
	Type      string         `json:"type"`
	AuctionID uint64         `json:"auction_id"`
	Winner    core.Principal `json:"winner"`
}

type CountResponse struct {
	Type  string `json:"type"`
	Count uint64 `json:"count"`
}

type FeeResponse struct {
	Type string `json:"type"`
	Fee  string `json:"fee"`
}

type ResolutionResponse struct {
	Type       string          `json:"type"`
	Resolution core.Resolution `json:"resolution"`
}

type DecryptRequest struct {
	Request
	Handle core.Handle `json:"handle"`
}

type DecryptResponse struct {
	Type   string      `json:"type"`
	Handle core.Handle `json:"handle"`
	Value  uint64      `json:"value"`
}

// KeyResponse carries the gateway sealing key. The attestation is omitted
// when the daemon runs outside an enclave.
type KeyResponse struct {
	Type                  string                `json:"type"`
	PublicKey             string                `json:"public_key"` // PEM format
	GatewayID             string                `json:"gateway_id"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
