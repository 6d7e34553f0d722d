package fhe

import (
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
)

// MockAttester implements Attester for tests and local development.
type MockAttester struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockAttester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// NewMockAttester returns an attester producing unsigned documents with the
// Nitro COSE_Sign1 layout, so they parse like real ones but never verify.
func NewMockAttester() *MockAttester {
	return &MockAttester{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "mock-gateway-enclave",
				"digest":    "SHA384",
				"timestamp": uint64(1700000000000),
				"pcrs": map[uint64][]byte{
					0: make([]byte, 48),
					1: make([]byte, 48),
					2: make([]byte, 48),
				},
				"certificate": []byte("mock-certificate"),
				"cabundle":    [][]byte{[]byte("mock-ca")},
				"public_key":  []byte{},
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, fmt.Errorf("failed to encode mock attestation: %w", err)
			}

			// [protected header, unprotected header, payload, signature]
			return cbor.Marshal([]any{
				[]byte{0xa1, 0x01, 0x38, 0x22},
				map[string]any{},
				nestedBytes,
				make([]byte, 96),
			})
		},
	}
}
