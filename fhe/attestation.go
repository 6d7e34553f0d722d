package fhe

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// Attester produces NSM attestation documents. *enclave.EnclaveHandle
// satisfies it; tests inject a mock.
type Attester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// generateSecureRandomBytes uses crypto/rand, which inside an enclave draws
// from the NSM-seeded kernel entropy pool.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateKeyAttestation attests the gateway's sealing key so clients can
// check they encrypt bids to a key held inside the enclave.
func GenerateKeyAttestation(attester Attester, keys *KeyManager, gatewayID string) (ledgerapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	publicKeyPEM, err := keys.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key to PEM: %w", err)
	}

	return attest(attester, "key", &ledgerapi.KeyAttestationUserData{
		KeyAlgorithm: "RSA-2048",
		PublicKey:    publicKeyPEM,
		GatewayID:    gatewayID,
	})
}

// GenerateResolutionAttestation attests the outcome of an ended auction. Each
// bid is committed to by hash so bidders can check inclusion without the
// document carrying amounts.
func GenerateResolutionAttestation(attester Attester, res core.Resolution, now time.Time) (ledgerapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	bidHashNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate bid hash nonce: %w", err)
	}
	auctionHashNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auction hash nonce: %w", err)
	}

	bidHashes := make([]string, 0, len(res.Bids))
	for _, bid := range res.Bids {
		bidHashes = append(bidHashes, core.ComputeBidHash(bid.AuctionID, bid.Index, bid.Bidder, bid.Amount, bidHashNonce))
	}

	auction := core.AuctionSummary{
		ID:              res.AuctionID,
		Creator:         res.Creator,
		ItemDescription: res.ItemDescription,
		CreatedAt:       res.CreatedAt,
		EndTime:         res.EndTime,
	}

	return attest(attester, "resolution", &ledgerapi.ResolutionAttestationUserData{
		AuctionID:           res.AuctionID,
		AuctionHash:         core.ComputeAuctionHash(auction, auctionHashNonce),
		AuctionHashNonce:    auctionHashNonce,
		Winner:              res.Winner,
		WinningAmountHandle: res.WinningAmount,
		TotalBids:           res.TotalBids,
		BidHashes:           bidHashes,
		BidHashNonce:        bidHashNonce,
		Timestamp:           now,
	})
}

func attest(attester Attester, what string, userData any) (ledgerapi.AttestationCOSE, error) {
	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s user data: %w", what, err)
	}

	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM %s attestation failed: %v", what, err)
		return nil, fmt.Errorf("NSM %s attestation failed: %w", what, err)
	}

	log.Printf("INFO: NSM %s attestation generated: %d bytes", what, len(attestationCBOR))
	return ledgerapi.AttestationCOSE(attestationCBOR), nil
}
