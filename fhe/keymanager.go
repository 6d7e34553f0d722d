package fhe

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// KeyManager holds the gateway's RSA sealing key. Amounts are encrypted to
// PublicKey by clients and only ever opened inside the gateway.
type KeyManager struct {
	privateKey *rsa.PrivateKey // Keep private - sensitive!
	PublicKey  *rsa.PublicKey
}

// NewKeyManager creates a new KeyManager and generates a fresh RSA key pair
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// PublicKeyPEM returns the public key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	return publicKeyToPEM(km.PublicKey)
}

// OpenAmount decrypts a sealed amount envelope.
func (km *KeyManager) OpenAmount(enc ledgerapi.EncryptedAmount) (uint64, error) {
	plaintext, err := DecryptHybrid(enc.AESKeyEncrypted, enc.EncryptedPayload, enc.Nonce,
		km.privateKey, parseHashAlgorithm(enc.HashAlgorithm))
	if err != nil {
		return 0, err
	}

	var payload ledgerapi.AmountPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse amount payload: %w", err)
	}
	return payload.Amount, nil
}

func publicKeyToPEM(publicKey *rsa.PublicKey) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}

// ParsePublicKeyPEM parses a PEM-encoded RSA public key as returned by
// PublicKeyPEM.
func ParsePublicKeyPEM(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("failed to decode PEM public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", key)
	}
	return rsaKey, nil
}

// HandleKeyRequest returns the gateway sealing key, attested when an attester
// is available. Without one the daemon is running outside an enclave and the
// key is returned bare.
func HandleKeyRequest(attester Attester, g *Gateway) (*ledgerapi.KeyResponse, error) {
	publicKeyPEM, err := g.keys.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	resp := &ledgerapi.KeyResponse{
		Type:      "key_response",
		PublicKey: publicKeyPEM,
		GatewayID: g.ID(),
	}
	if attester == nil {
		return resp, nil
	}

	attestationCOSE, err := GenerateKeyAttestation(attester, g.keys, g.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}
	resp.AttestationCOSEBase64 = attestationCOSE.EncodeBase64()
	return resp, nil
}
