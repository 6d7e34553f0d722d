package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeBidHash commits to one accepted bid without revealing anything beyond
// what the ledger already publishes. It is computed by the gateway when
// attesting a resolution and recomputed by bidders to prove inclusion.
//
// Formula: SHA256(auction_id + "|" + index + "|" + bidder + "|" + amount_handle + "|" + nonce)
func ComputeBidHash(auctionID, index uint64, bidder Principal, amount Handle, nonce string) string {
	data := fmt.Sprintf("%d|%d|%s|%s|%s", auctionID, index, bidder, amount, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeAuctionHash commits to the immutable public parameters of an
// auction, so any bidder can recompute it from GetAuction.
//
// Formula: SHA256(auction_id + "|" + creator + "|" + item_description + "|" + created_at + "|" + end_time + "|" + nonce)
func ComputeAuctionHash(a AuctionSummary, nonce string) string {
	data := fmt.Sprintf("%d|%s|%s|%d|%d|%s", a.ID, a.Creator, a.ItemDescription, a.CreatedAt, a.EndTime, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
