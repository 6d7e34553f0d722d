package validation

import (
	"fmt"
	"slices"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// ResolutionValidationInput is what a bidder knows about their own bid and
// the auction they bid on.
type ResolutionValidationInput struct {
	Attestation ledgerapi.AttestationCOSEBase64 // from EndAuctionResponse

	Auction core.AuctionSummary // from get_auction
	Bid     core.Bid            // the bidder's own bid
	// IsWinner is the outcome the bidder expects.
	IsWinner bool
}

// ValidateResolutionAttestation checks an ended auction's attestation and
// verifies:
// - the auction parameters match the attested auction hash
// - the bid is among the attested bid hashes
// - the winner is the bidder exactly when IsWinner is set
func (v *Validator) ValidateResolutionAttestation(input ResolutionValidationInput) (*ResolutionValidationResult, error) {
	coseBytes, err := input.Attestation.Decode()
	if err != nil {
		return nil, err
	}

	baseResult, err := v.validateCommon(coseBytes)
	if err != nil {
		return nil, err
	}
	attestation, err := ledgerapi.ParseResolutionAttestation(coseBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resolution attestation: %w", err)
	}

	result := &ResolutionValidationResult{BaseValidationResult: *baseResult}
	userData := attestation.UserData

	if userData.AuctionID != input.Auction.ID {
		result.detail("Auction id mismatch: expected %d, attestation has %d", input.Auction.ID, userData.AuctionID)
		return result, nil
	}

	result.AuctionHashValid = validateAuctionHash(input.Auction, userData, result)
	result.BidIncluded = validateBidInclusion(input.Bid, userData, result)
	result.WinnerValid = validateWinner(input, userData, result)
	return result, nil
}

func validateAuctionHash(a core.AuctionSummary, userData *ledgerapi.ResolutionAttestationUserData, result *ResolutionValidationResult) bool {
	if userData.AuctionHashNonce == "" {
		result.detail("Auction hash nonce missing from attestation")
		return false
	}
	computed := core.ComputeAuctionHash(a, userData.AuctionHashNonce)
	if computed != userData.AuctionHash {
		result.detail("Auction hash mismatch: computed %s, attestation has %s", computed, userData.AuctionHash)
		return false
	}
	result.detail("Auction hash validation passed: %s", computed)
	return true
}

func validateBidInclusion(bid core.Bid, userData *ledgerapi.ResolutionAttestationUserData, result *ResolutionValidationResult) bool {
	if userData.BidHashNonce == "" {
		result.detail("Bid hash nonce missing from attestation")
		return false
	}
	if uint64(len(userData.BidHashes)) != userData.TotalBids {
		result.detail("Attestation lists %d bid hashes for %d bids", len(userData.BidHashes), userData.TotalBids)
		return false
	}

	computed := core.ComputeBidHash(bid.AuctionID, bid.Index, bid.Bidder, bid.Amount, userData.BidHashNonce)
	if slices.Contains(userData.BidHashes, computed) {
		result.detail("Bid hash found in attestation: %s", computed)
		return true
	}
	result.detail("Bid hash NOT found in attestation. Computed: %s", computed)
	result.detail("Total hashes in attestation: %d", len(userData.BidHashes))
	return false
}

func validateWinner(input ResolutionValidationInput, userData *ledgerapi.ResolutionAttestationUserData, result *ResolutionValidationResult) bool {
	actuallyWon := userData.Winner != core.NoPrincipal && userData.Winner == input.Bid.Bidder

	if input.IsWinner == actuallyWon {
		if actuallyWon {
			result.detail("Winner validation passed: bid won as expected")
		} else {
			result.detail("Winner validation passed: bid lost as expected (winner %s)", userData.Winner)
		}
		return true
	}

	if input.IsWinner {
		result.detail("Winner validation failed: expected to win, but %s won", userData.Winner)
	} else {
		result.detail("Winner validation failed: expected to lose, but won")
	}
	return false
}
