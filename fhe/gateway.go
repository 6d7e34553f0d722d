package fhe

import (
	"context"
	"crypto/cipher"
	"fmt"
	"log"
	"maps"
	"math/bits"
	"sync"

	"github.com/google/uuid"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

type kind uint8

const (
	kindUint kind = iota
	kindBool
)

func (k kind) String() string {
	if k == kindBool {
		return "ebool"
	}
	return "euint64"
}

// ciphertext is one entry of the handle table. value never leaves the
// gateway except through Reveal or an authorized Decrypt.
type ciphertext struct {
	value uint64
	kind  kind
	// owner is the principal that imported the value. Derived values have no
	// owner and cannot be submitted as inputs.
	owner     core.Principal
	published bool
	readers   map[core.Principal]struct{}
}

func (ct *ciphertext) addReader(p core.Principal) {
	if ct.readers == nil {
		ct.readers = make(map[core.Principal]struct{})
	}
	ct.readers[p] = struct{}{}
}

// clone returns a copy that can be changed and persisted before it replaces ct.
func (ct *ciphertext) clone() *ciphertext {
	c := *ct
	c.readers = maps.Clone(ct.readers)
	return &c
}

// Gateway is the ciphertext capability. It keeps amounts inside the enclave
// boundary and hands out opaque handles. Comparison and selection run
// branch-free on the plaintext so timing does not depend on the outcome.
//
// With a HandleStore every change to the handle table is written through
// before it takes effect, so a restarted gateway can evaluate the handles a
// restored ledger holds.
type Gateway struct {
	id   string
	keys *KeyManager

	handleStore HandleStore
	sealer      cipher.AEAD

	mu      sync.RWMutex
	handles map[core.Handle]*ciphertext
}

var (
	_ core.Capability    = (*Gateway)(nil)
	_ core.HandleChecker = (*Gateway)(nil)
	_ core.Releaser      = (*Gateway)(nil)
)

// NewGateway creates a gateway sealing amounts with keys.
func NewGateway(keys *KeyManager, opts ...Option) *Gateway {
	g := &Gateway{
		id:      uuid.NewString(),
		keys:    keys,
		handles: make(map[core.Handle]*ciphertext),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ID identifies this gateway instance in key attestations.
func (g *Gateway) ID() string { return g.id }

// Keys returns the sealing key manager.
func (g *Gateway) Keys() *KeyManager { return g.keys }

// Import opens a sealed amount and registers it as an input owned by owner.
func (g *Gateway) Import(ctx context.Context, enc ledgerapi.EncryptedAmount, owner core.Principal) (core.Handle, error) {
	if err := ctx.Err(); err != nil {
		return core.NoHandle, err
	}
	if owner == core.NoPrincipal {
		return core.NoHandle, fmt.Errorf("%w: sealed amount has no owner", core.ErrInvalidCiphertext)
	}
	amount, err := g.keys.OpenAmount(enc)
	if err != nil {
		return core.NoHandle, fmt.Errorf("%w: %v", core.ErrInvalidCiphertext, err)
	}
	ct := &ciphertext{value: amount, kind: kindUint, owner: owner}
	// Importers may always read back what they submitted.
	ct.addReader(owner)
	return g.store(ctx, ct)
}

func (g *Gateway) Verify(ctx context.Context, h core.Handle, submitter core.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	ct, err := g.lookup(h, kindUint)
	if err != nil {
		return err
	}
	if ct.owner == core.NoPrincipal || ct.owner != submitter {
		return fmt.Errorf("%w: handle %s is not bound to %s", core.ErrInvalidCiphertext, h, submitter)
	}
	return nil
}

func (g *Gateway) TrivialEncrypt(ctx context.Context, v uint64) (core.Handle, error) {
	if err := ctx.Err(); err != nil {
		return core.NoHandle, err
	}
	return g.store(ctx, &ciphertext{value: v, kind: kindUint})
}

func (g *Gateway) GreaterThan(ctx context.Context, a, b core.Handle) (core.Handle, error) {
	if err := ctx.Err(); err != nil {
		return core.NoHandle, err
	}
	g.mu.RLock()
	ca, err := g.lookup(a, kindUint)
	if err != nil {
		g.mu.RUnlock()
		return core.NoHandle, err
	}
	cb, err := g.lookup(b, kindUint)
	if err != nil {
		g.mu.RUnlock()
		return core.NoHandle, err
	}
	gt := greaterThan(ca.value, cb.value)
	g.mu.RUnlock()

	return g.store(ctx, &ciphertext{value: gt, kind: kindBool})
}

func (g *Gateway) Select(ctx context.Context, cond, ifTrue, ifFalse core.Handle) (core.Handle, error) {
	if err := ctx.Err(); err != nil {
		return core.NoHandle, err
	}
	g.mu.RLock()
	cc, err := g.lookup(cond, kindBool)
	if err != nil {
		g.mu.RUnlock()
		return core.NoHandle, err
	}
	ct, err := g.lookup(ifTrue, kindUint)
	if err != nil {
		g.mu.RUnlock()
		return core.NoHandle, err
	}
	cf, err := g.lookup(ifFalse, kindUint)
	if err != nil {
		g.mu.RUnlock()
		return core.NoHandle, err
	}
	v := selectValue(cc.value, ct.value, cf.value)
	g.mu.RUnlock()

	return g.store(ctx, &ciphertext{value: v, kind: kindUint})
}

func (g *Gateway) Allow(ctx context.Context, h core.Handle, p core.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == core.NoPrincipal {
		return fmt.Errorf("cannot grant handle %s to an empty principal", h)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ct, ok := g.handles[h]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrInvalidCiphertext, h)
	}
	if _, ok := ct.readers[p]; ok {
		return nil
	}
	next := ct.clone()
	next.addReader(p)
	if err := g.persist(ctx, h, next); err != nil {
		return err
	}
	g.handles[h] = next
	log.Printf("INFO: Granted decrypt on %s to %s", h, p)
	return nil
}

func (g *Gateway) Reveal(ctx context.Context, h core.Handle) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ct, ok := g.handles[h]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrInvalidCiphertext, h)
	}
	if !ct.published {
		next := ct.clone()
		next.published = true
		if err := g.persist(ctx, h, next); err != nil {
			return 0, err
		}
		g.handles[h] = next
	}
	return ct.value, nil
}

// Check reports whether h refers to a live ciphertext.
func (g *Gateway) Check(ctx context.Context, h core.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.handles[h]; !ok {
		return fmt.Errorf("%w: %s", core.ErrInvalidCiphertext, h)
	}
	return nil
}

// Release discards h. Releasing an unknown handle is not an error.
func (g *Gateway) Release(ctx context.Context, h core.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.handles[h]; !ok {
		return nil
	}
	if g.handleStore != nil {
		if err := g.handleStore.DeleteHandle(ctx, h); err != nil {
			return fmt.Errorf("failed to delete handle %s: %w", h, err)
		}
	}
	delete(g.handles, h)
	return nil
}

// Decrypt returns the plaintext of h to p if h was published or p holds a
// grant for it.
func (g *Gateway) Decrypt(ctx context.Context, h core.Handle, p core.Principal) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	ct, ok := g.handles[h]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrInvalidCiphertext, h)
	}
	if ct.published {
		return ct.value, nil
	}
	if _, ok := ct.readers[p]; !ok || p == core.NoPrincipal {
		return 0, fmt.Errorf("%w: %s on %s", ledgerapi.ErrPermissionDenied, p, h)
	}
	return ct.value, nil
}

// HandleCount returns the number of live ciphertexts.
func (g *Gateway) HandleCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// lookup must be called with mu held.
func (g *Gateway) lookup(h core.Handle, want kind) (*ciphertext, error) {
	ct, ok := g.handles[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidCiphertext, h)
	}
	if ct.kind != want {
		return nil, fmt.Errorf("%w: %s is %s, want %s", core.ErrInvalidCiphertext, h, ct.kind, want)
	}
	return ct, nil
}

func (g *Gateway) store(ctx context.Context, ct *ciphertext) (core.Handle, error) {
	h := core.Handle(uuid.NewString())
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.persist(ctx, h, ct); err != nil {
		return core.NoHandle, err
	}
	g.handles[h] = ct
	return h, nil
}

// greaterThan returns 1 if a > b and 0 otherwise. The borrow of b-a is set
// exactly when b < a.
func greaterThan(a, b uint64) uint64 {
	_, borrow := bits.Sub64(b, a, 0)
	return borrow
}

// selectValue returns t when cond is 1 and f when cond is 0.
func selectValue(cond, t, f uint64) uint64 {
	mask := -(cond & 1)
	return (t & mask) | (f &^ mask)
}
