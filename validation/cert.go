package validation

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"
)

// nitroRootG1 is the AWS Nitro Enclaves root (G1, P-384, expires 2049-10-28).
// Every attestation the ledger signs must chain to it.
const nitroRootG1 = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

// NitroRootPool returns a pool trusting only the Nitro root.
func NitroRootPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(nitroRootG1)) {
		return nil, fmt.Errorf("nitro root certificate is not valid PEM")
	}
	return pool, nil
}

// parseCert decodes one base64 DER certificate. what names it in errors.
func parseCert(what, b64 string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", what, err)
	}
	return cert, nil
}

// ValidateCertificateChain checks that the enclave signing certificate chains
// to roots through the bundle the attestation carries. Signing certificates
// expire within hours, so validity is judged at the attestation time at, not
// at the time of the check.
func ValidateCertificateChain(certB64 string, caBundleB64 []string, at time.Time, roots *x509.CertPool) error {
	leaf, err := parseCert("certificate", certB64)
	if err != nil {
		return err
	}
	bundle := x509.NewCertPool()
	for i, b64 := range caBundleB64 {
		ca, err := parseCert(fmt.Sprintf("CA bundle entry %d", i), b64)
		if err != nil {
			return err
		}
		bundle.AddCert(ca)
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: bundle,
		CurrentTime:   at,
		// Nitro leaves carry no extended key usage.
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("signing certificate does not chain to the trusted root: %w", err)
	}
	return nil
}
