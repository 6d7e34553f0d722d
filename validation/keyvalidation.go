package validation

import (
	"fmt"
	"strings"

	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// ValidateKeyAttestation checks the attestation carried by a key response
// and that it binds the public key and gateway id the response advertises.
//
// Returns:
//   - KeyValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input)
func (v *Validator) ValidateKeyAttestation(resp ledgerapi.KeyResponse) (*KeyValidationResult, error) {
	if resp.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("key response carries no attestation")
	}
	coseBytes, err := resp.AttestationCOSEBase64.Decode()
	if err != nil {
		return nil, err
	}

	baseResult, err := v.validateCommon(coseBytes)
	if err != nil {
		return nil, err
	}
	keyAttestation, err := ledgerapi.ParseKeyAttestation(coseBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key attestation: %w", err)
	}

	result := &KeyValidationResult{BaseValidationResult: *baseResult}
	userData := keyAttestation.UserData

	// PEM encodings may differ in trailing newlines.
	switch {
	case userData.PublicKey == "":
		result.detail("Public key missing from attestation")
	case strings.TrimSpace(resp.PublicKey) == strings.TrimSpace(userData.PublicKey):
		result.PublicKeyMatch = true
		result.detail("Public key matches attestation")
	default:
		result.detail("Public key mismatch: provided key does not match attested key")
	}

	if userData.GatewayID != "" && userData.GatewayID == resp.GatewayID {
		result.GatewayIDMatch = true
		result.detail("Gateway id matches attestation: %s", userData.GatewayID)
	} else {
		result.detail("Gateway id mismatch: response %q, attestation %q", resp.GatewayID, userData.GatewayID)
	}

	return result, nil
}
