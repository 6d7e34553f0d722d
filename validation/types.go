package validation

import "fmt"

// BaseValidationResult holds the checks common to every gateway attestation.
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

func (r *BaseValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// KeyValidationResult holds the checks on a sealing key attestation.
type KeyValidationResult struct {
	BaseValidationResult
	PublicKeyMatch bool
	GatewayIDMatch bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PublicKeyMatch && r.GatewayIDMatch
}

// ResolutionValidationResult holds the checks a bidder runs on the
// attestation of an ended auction.
type ResolutionValidationResult struct {
	BaseValidationResult
	AuctionHashValid bool
	BidIncluded      bool
	WinnerValid      bool
}

// IsValid returns true if all resolution validation checks passed
func (r *ResolutionValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.AuctionHashValid && r.BidIncluded && r.WinnerValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // sealedauction commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
