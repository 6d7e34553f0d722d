package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/veraison/go-cose"
)

var (
	testPCR0 = []byte{0x0a, 0x0b, 0x0c}
	testPCR1 = []byte{0x01, 0x01}
	testPCR2 = []byte{0x02, 0x02}
)

func testPCRSets() []PCRSet {
	return []PCRSet{
		{PCR0: "ffff", PCR1: "ffff", PCR2: "ffff", CommitHash: "old"},
		{PCR0: "0a0b0c", PCR1: "0101", PCR2: "0202", CommitHash: "abc123"},
	}
}

// signingAttester produces Nitro-shaped COSE_Sign1 documents signed by a leaf
// certificate chained to a throwaway root.
type signingAttester struct {
	rootDER []byte
	leafDER []byte
	leafKey *ecdsa.PrivateKey
	// signKey overrides leafKey to produce a bad signature.
	signKey *ecdsa.PrivateKey
}

func newSigningAttester(t *testing.T) (*signingAttester, *x509.CertPool) {
	t.Helper()
	now := time.Now()

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-test-enclave"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(3 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, rootCert, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(rootCert)
	return &signingAttester{rootDER: rootDER, leafDER: leafDER, leafKey: leafKey}, roots
}

func (a *signingAttester) Attest(opts enclave.AttestationOptions) ([]byte, error) {
	payload, err := cbor.Marshal(map[string]any{
		"module_id":   "i-test-enclave",
		"digest":      "SHA384",
		"timestamp":   uint64(time.Now().UnixMilli()),
		"pcrs":        map[uint64][]byte{0: testPCR0, 1: testPCR1, 2: testPCR2},
		"certificate": a.leafDER,
		"cabundle":    [][]byte{a.rootDER},
		"public_key":  []byte{},
		"user_data":   opts.UserData,
		"nonce":       opts.Nonce,
	})
	if err != nil {
		return nil, err
	}
	protected, err := cbor.Marshal(map[int]int{1: -35}) // alg: ES384
	if err != nil {
		return nil, err
	}
	toBeSigned, err := sigStructure(protected, payload)
	if err != nil {
		return nil, err
	}

	key := a.leafKey
	if a.signKey != nil {
		key = a.signKey
	}
	signer, err := cose.NewSigner(cose.AlgorithmES384, key)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(rand.Reader, toBeSigned)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
}
