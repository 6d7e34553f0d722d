package httpapi

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cloudx-io/sealedauction/core"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p as the authenticated caller.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller set by the auth middleware, or
// core.NoPrincipal on unauthenticated routes.
func PrincipalFrom(ctx context.Context) core.Principal {
	p, _ := ctx.Value(principalKey{}).(core.Principal)
	return p
}

// Verifier checks bearer tokens. Tokens are signed either with a shared HMAC
// secret or by a key whose public half is loaded from a PEM file. The "sub"
// claim is the caller's principal.
type Verifier struct {
	secret  []byte
	keys    []any // *rsa.PublicKey, *ecdsa.PublicKey or ed25519.PublicKey
	methods []string
}

// NewVerifier builds a verifier from an HMAC secret, a PEM public key file,
// or both.
func NewVerifier(hmacSecret, publicKeyFile string) (*Verifier, error) {
	v := &Verifier{}
	if hmacSecret != "" {
		v.secret = []byte(hmacSecret)
		v.methods = append(v.methods, jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg())
	}
	if publicKeyFile != "" {
		if err := v.loadKeys(publicKeyFile); err != nil {
			return nil, fmt.Errorf("failed to load token keys: %w", err)
		}
	}
	if len(v.methods) == 0 {
		return nil, errors.New("no token secret or public key configured")
	}
	return v, nil
}

func (v *Verifier) loadKeys(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var rsaKeys, ecKeys, edKeys bool
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			cert, certErr := x509.ParseCertificate(block.Bytes)
			if certErr != nil {
				continue
			}
			key = cert.PublicKey
		}
		switch key.(type) {
		case *rsa.PublicKey:
			rsaKeys = true
		case *ecdsa.PublicKey:
			ecKeys = true
		case ed25519.PublicKey:
			edKeys = true
		default:
			continue
		}
		v.keys = append(v.keys, key)
	}

	if len(v.keys) == 0 {
		return fmt.Errorf("no valid keys found in %s", path)
	}
	if rsaKeys {
		v.methods = append(v.methods, "RS256", "RS384", "RS512", "PS256", "PS384", "PS512")
	}
	if ecKeys {
		v.methods = append(v.methods, "ES256", "ES384", "ES512")
	}
	if edKeys {
		v.methods = append(v.methods, "EdDSA")
	}
	return nil
}

// Verify parses tokenStr and returns its subject.
func (v *Verifier) Verify(tokenStr string) (core.Principal, error) {
	var lastErr error
	for _, key := range v.candidates() {
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods(v.methods))
		if err != nil {
			lastErr = err
			continue
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return core.NoPrincipal, errors.New("token has no subject")
		}
		return core.Principal(sub), nil
	}
	return core.NoPrincipal, fmt.Errorf("token parse error: %w", lastErr)
}

func (v *Verifier) candidates() []any {
	keys := make([]any, 0, len(v.keys)+1)
	if v.secret != nil {
		keys = append(keys, v.secret)
	}
	return append(keys, v.keys...)
}

// Authenticate rejects requests without a valid bearer token and stores the
// token subject in the request context.
func (v *Verifier) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondUnauthenticated(w, "bearer token required")
			return
		}
		p, err := v.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			respondUnauthenticated(w, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
