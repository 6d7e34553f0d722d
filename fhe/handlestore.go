package fhe

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"log"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/sealedauction/core"
)

// HandleStore persists the gateway's ciphertext table so that handles held by
// a stored ledger survive a restart. The gateway seals every record before it
// reaches the store.
type HandleStore interface {
	PutHandle(ctx context.Context, h core.Handle, sealed []byte) error
	DeleteHandle(ctx context.Context, h core.Handle) error
	LoadHandles(ctx context.Context) (map[core.Handle][]byte, error)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHandleStore writes every ciphertext through hs, sealed with sealer.
func WithHandleStore(hs HandleStore, sealer cipher.AEAD) Option {
	return func(g *Gateway) {
		g.handleStore = hs
		g.sealer = sealer
	}
}

// NewRecordSealer returns the AES-256-GCM cipher used to seal persisted
// handle records.
func NewRecordSealer(key []byte) (cipher.AEAD, error) {
	if len(key) != aesKeySize {
		return nil, fmt.Errorf("handle seal key must be %d bytes, got %d", aesKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// handleRecord is the persisted form of a ciphertext.
type handleRecord struct {
	Value     uint64           `cbor:"1,keyasint"`
	Kind      uint8            `cbor:"2,keyasint"`
	Owner     core.Principal   `cbor:"3,keyasint,omitempty"`
	Published bool             `cbor:"4,keyasint,omitempty"`
	Readers   []core.Principal `cbor:"5,keyasint,omitempty"`
}

func toRecord(ct *ciphertext) handleRecord {
	rec := handleRecord{
		Value:     ct.value,
		Kind:      uint8(ct.kind),
		Owner:     ct.owner,
		Published: ct.published,
	}
	for p := range ct.readers {
		rec.Readers = append(rec.Readers, p)
	}
	slices.Sort(rec.Readers)
	return rec
}

func fromRecord(rec handleRecord) *ciphertext {
	ct := &ciphertext{
		value:     rec.Value,
		kind:      kind(rec.Kind),
		owner:     rec.Owner,
		published: rec.Published,
	}
	for _, p := range rec.Readers {
		ct.addReader(p)
	}
	return ct
}

// seal encrypts a record bound to its handle, so a sealed record cannot be
// moved to another handle.
func (g *Gateway) seal(h core.Handle, ct *ciphertext) ([]byte, error) {
	plaintext, err := cbor.Marshal(toRecord(ct))
	if err != nil {
		return nil, fmt.Errorf("failed to encode handle %s: %w", h, err)
	}
	nonce := make([]byte, g.sealer.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return g.sealer.Seal(nonce, nonce, plaintext, []byte(h)), nil
}

func (g *Gateway) open(h core.Handle, sealed []byte) (*ciphertext, error) {
	n := g.sealer.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("sealed handle %s is truncated", h)
	}
	plaintext, err := g.sealer.Open(nil, sealed[:n], sealed[n:], []byte(h))
	if err != nil {
		return nil, fmt.Errorf("failed to open handle %s: %w", h, err)
	}
	var rec handleRecord
	if err := cbor.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode handle %s: %w", h, err)
	}
	return fromRecord(rec), nil
}

// persist writes ct through the handle store. It must be called with mu held
// for writing.
func (g *Gateway) persist(ctx context.Context, h core.Handle, ct *ciphertext) error {
	if g.handleStore == nil {
		return nil
	}
	sealed, err := g.seal(h, ct)
	if err != nil {
		return err
	}
	if err := g.handleStore.PutHandle(ctx, h, sealed); err != nil {
		return fmt.Errorf("failed to persist handle %s: %w", h, err)
	}
	return nil
}

// Restore loads every persisted ciphertext. It must run before the gateway
// serves any request and fails if a record cannot be opened, which happens
// when the seal key changed.
func (g *Gateway) Restore(ctx context.Context) error {
	if g.handleStore == nil {
		return nil
	}
	records, err := g.handleStore.LoadHandles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load handles: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for h, sealed := range records {
		ct, err := g.open(h, sealed)
		if err != nil {
			return err
		}
		g.handles[h] = ct
	}
	log.Printf("INFO: Gateway %s restored %d handles", g.id, len(records))
	return nil
}
