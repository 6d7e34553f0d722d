package validation

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestNitroRootPool(t *testing.T) {
	pool, err := NitroRootPool()
	assert.NoError(t, err)
	check.NotNil(t, pool)
}

func TestValidateCertificateChain(t *testing.T) {
	attester, roots := newSigningAttester(t)
	leaf := base64.StdEncoding.EncodeToString(attester.leafDER)
	bundle := []string{base64.StdEncoding.EncodeToString(attester.rootDER)}
	now := time.Now()

	check.NoError(t, ValidateCertificateChain(leaf, bundle, now, roots))

	// The leaf is judged at the attestation time.
	check.Error(t, ValidateCertificateChain(leaf, bundle, now.Add(4*time.Hour), roots))
	check.Error(t, ValidateCertificateChain(leaf, bundle, now.Add(-2*time.Hour), roots))

	nitro, err := NitroRootPool()
	assert.NoError(t, err)
	check.Error(t, ValidateCertificateChain(leaf, bundle, now, nitro))

	check.Error(t, ValidateCertificateChain("not base64!", bundle, now, roots))
	check.Error(t, ValidateCertificateChain(leaf, []string{"AAAA"}, now, roots))
}
