package fhe

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/ledgerapi"
)

type mapHandleStore struct {
	mu      sync.Mutex
	records map[core.Handle][]byte
	fail    error
}

func newMapHandleStore() *mapHandleStore {
	return &mapHandleStore{records: make(map[core.Handle][]byte)}
}

func (m *mapHandleStore) PutHandle(_ context.Context, h core.Handle, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.records[h] = append([]byte(nil), sealed...)
	return nil
}

func (m *mapHandleStore) DeleteHandle(_ context.Context, h core.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.records, h)
	return nil
}

func (m *mapHandleStore) LoadHandles(context.Context) (map[core.Handle][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[core.Handle][]byte, len(m.records))
	for h, b := range m.records {
		out[h] = append([]byte(nil), b...)
	}
	return out, nil
}

var testSealKey = []byte("0123456789abcdef0123456789abcdef")

func newPersistentGateway(t *testing.T, hs HandleStore, key []byte) *Gateway {
	t.Helper()
	km, err := NewKeyManager()
	assert.NoError(t, err)
	sealer, err := NewRecordSealer(key)
	assert.NoError(t, err)
	g := NewGateway(km, WithHandleStore(hs, sealer))
	assert.NoError(t, g.Restore(context.Background()))
	return g
}

func TestNewRecordSealer_KeySize(t *testing.T) {
	_, err := NewRecordSealer([]byte("short"))
	check.Error(t, err)
	_, err = NewRecordSealer(testSealKey)
	check.NoError(t, err)
}

func TestGateway_RestoreKeepsHandlesAndGrants(t *testing.T) {
	ctx := context.Background()
	hs := newMapHandleStore()
	g := newPersistentGateway(t, hs, testSealKey)

	a := importAmount(t, g, alice, 5)
	b := importAmount(t, g, bob, 9)
	gt, err := g.GreaterThan(ctx, b, a)
	assert.NoError(t, err)
	highest, err := g.Select(ctx, gt, b, a)
	assert.NoError(t, err)
	assert.NoError(t, g.Allow(ctx, highest, seller))
	index, err := g.TrivialEncrypt(ctx, 1)
	assert.NoError(t, err)
	_, err = g.Reveal(ctx, index)
	assert.NoError(t, err)
	check.Equal(t, g.HandleCount(), len(hs.records))

	restarted := newPersistentGateway(t, hs, testSealKey)
	check.Equal(t, g.HandleCount(), restarted.HandleCount())

	check.NoError(t, restarted.Verify(ctx, a, alice))
	check.Error(t, restarted.Verify(ctx, a, bob))
	v, err := restarted.Decrypt(ctx, highest, seller)
	assert.NoError(t, err)
	check.Equal(t, uint64(9), v)
	_, err = restarted.Decrypt(ctx, highest, alice)
	check.True(t, errors.Is(err, ledgerapi.ErrPermissionDenied))
	v, err = restarted.Decrypt(ctx, index, carol)
	assert.NoError(t, err)
	check.Equal(t, uint64(1), v)

	// Derived values keep their kind.
	_, err = restarted.Select(ctx, gt, a, b)
	check.NoError(t, err)
	_, err = restarted.Select(ctx, a, a, b)
	check.True(t, errors.Is(err, core.ErrInvalidCiphertext))
}

func TestGateway_RestoreRejectsWrongKeyAndMovedRecords(t *testing.T) {
	hs := newMapHandleStore()
	g := newPersistentGateway(t, hs, testSealKey)
	a := importAmount(t, g, alice, 5)
	b := importAmount(t, g, bob, 9)

	km, err := NewKeyManager()
	assert.NoError(t, err)
	otherKey, err := NewRecordSealer([]byte("fedcba9876543210fedcba9876543210"))
	assert.NoError(t, err)
	check.Error(t, NewGateway(km, WithHandleStore(hs, otherKey)).Restore(context.Background()))

	// A record copied under another handle does not open.
	hs.records[a], hs.records[b] = hs.records[b], hs.records[a]
	sealer, err := NewRecordSealer(testSealKey)
	assert.NoError(t, err)
	check.Error(t, NewGateway(km, WithHandleStore(hs, sealer)).Restore(context.Background()))
}

func TestGateway_HandleStoreFailureLeavesTableUnchanged(t *testing.T) {
	ctx := context.Background()
	hs := newMapHandleStore()
	g := newPersistentGateway(t, hs, testSealKey)
	a := importAmount(t, g, alice, 5)

	hs.fail = errors.New("disk full")

	_, err := g.TrivialEncrypt(ctx, 3)
	check.True(t, errors.Is(err, hs.fail))
	check.True(t, errors.Is(g.Allow(ctx, a, seller), hs.fail))
	_, err = g.Reveal(ctx, a)
	check.True(t, errors.Is(err, hs.fail))
	check.True(t, errors.Is(g.Release(ctx, a), hs.fail))

	check.Equal(t, 1, g.HandleCount())
	_, err = g.Decrypt(ctx, a, seller)
	check.True(t, errors.Is(err, ledgerapi.ErrPermissionDenied))
}

func TestGateway_CheckAndRelease(t *testing.T) {
	ctx := context.Background()
	hs := newMapHandleStore()
	g := newPersistentGateway(t, hs, testSealKey)
	a := importAmount(t, g, alice, 5)

	check.NoError(t, g.Check(ctx, a))
	assert.NoError(t, g.Release(ctx, a))
	check.True(t, errors.Is(g.Check(ctx, a), core.ErrInvalidCiphertext))
	check.Equal(t, 0, len(hs.records))
	check.NoError(t, g.Release(ctx, a))
}
