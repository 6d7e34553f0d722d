// Package validation lets clients check gateway attestations: that the
// sealing key was generated inside a measured enclave, and that an auction
// resolution included their bid and named the right winner.
package validation

import (
	"crypto/x509"
	"fmt"

	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// Validator checks attestations against known enclave measurements.
type Validator struct {
	knownPCRs []PCRSet
	roots     *x509.CertPool
}

// NewValidator returns a validator trusting the AWS Nitro root CA.
func NewValidator(knownPCRs []PCRSet) (*Validator, error) {
	roots, err := NitroRootPool()
	if err != nil {
		return nil, err
	}
	return NewValidatorWithRoots(knownPCRs, roots)
}

// NewValidatorWithRoots returns a validator trusting roots instead of the
// Nitro root CA.
func NewValidatorWithRoots(knownPCRs []PCRSet, roots *x509.CertPool) (*Validator, error) {
	if len(knownPCRs) == 0 {
		return nil, fmt.Errorf("at least one known PCR set required")
	}
	if roots == nil {
		return nil, fmt.Errorf("root pool required")
	}
	return &Validator{knownPCRs: knownPCRs, roots: roots}, nil
}

// validateCommon checks PCRs, the certificate chain and the COSE signature.
// Failed checks are recorded in the result; an error means the document
// could not be parsed at all.
func (v *Validator) validateCommon(coseBytes ledgerapi.AttestationCOSE) (*BaseValidationResult, error) {
	doc, _, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{ValidationDetails: []string{}}

	pcrMatch, matchedSet := ValidatePCRs(doc.PCRs, v.knownPCRs)
	result.PCRsValid = pcrMatch
	if pcrMatch {
		result.detail("PCR measurements valid")
		result.detail("Matched PCR set: #%d (commit: %s)", matchedSet, v.knownPCRs[matchedSet].CommitHash)
	} else {
		result.detail("PCR0: %s (no match)", doc.PCRs.ImageFileHash)
		result.detail("PCR1: %s (no match)", doc.PCRs.KernelHash)
		result.detail("PCR2: %s (no match)", doc.PCRs.ApplicationHash)
	}

	switch {
	case doc.Certificate == "":
		result.detail("Missing certificate")
	case len(doc.CABundle) == 0:
		result.detail("Missing CA bundle")
	default:
		if err := ValidateCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp, v.roots); err != nil {
			result.detail("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			result.detail("Certificate chain verified")
		}
	}

	if doc.Certificate == "" {
		result.detail("COSE signature not checked: no certificate")
	} else if err := VerifyCOSESignature(coseBytes, doc.Certificate); err != nil {
		result.detail("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		result.detail("COSE signature verified")
	}

	return result, nil
}
