package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/cloudx-io/sealedauction/core"
)

// PutHandle upserts a sealed gateway record.
func (p *PGStore) PutHandle(ctx context.Context, h core.Handle, sealed []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO gateway_handles (handle, sealed) VALUES ($1, $2)
		ON CONFLICT (handle) DO UPDATE SET sealed = EXCLUDED.sealed`,
		string(h), sealed)
	if err != nil {
		return fmt.Errorf("upsert handle %s: %w", h, err)
	}
	return nil
}

// DeleteHandle removes a sealed gateway record. Deleting a missing row is not
// an error.
func (p *PGStore) DeleteHandle(ctx context.Context, h core.Handle) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM gateway_handles WHERE handle = $1`, string(h)); err != nil {
		return fmt.Errorf("delete handle %s: %w", h, err)
	}
	return nil
}

// LoadHandles reads every sealed gateway record.
func (p *PGStore) LoadHandles(ctx context.Context) (map[core.Handle][]byte, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT handle, sealed FROM gateway_handles`)
	if err != nil {
		return nil, fmt.Errorf("query handles: %w", err)
	}
	defer rows.Close()

	out := make(map[core.Handle][]byte)
	for rows.Next() {
		var (
			h      string
			sealed []byte
		)
		if err := rows.Scan(&h, &sealed); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		out[core.Handle(h)] = sealed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handles: %w", err)
	}
	return out, nil
}

// MemoryHandleTable keeps sealed gateway records in process memory. It pairs
// with MemoryStore so a gateway and a registry can be restarted together in
// one process.
type MemoryHandleTable struct {
	mu      sync.Mutex
	records map[core.Handle][]byte
}

func NewMemoryHandleTable() *MemoryHandleTable {
	return &MemoryHandleTable{records: make(map[core.Handle][]byte)}
}

func (m *MemoryHandleTable) PutHandle(ctx context.Context, h core.Handle, sealed []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[h] = append([]byte(nil), sealed...)
	return nil
}

func (m *MemoryHandleTable) DeleteHandle(ctx context.Context, h core.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, h)
	return nil
}

func (m *MemoryHandleTable) LoadHandles(ctx context.Context) (map[core.Handle][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.records), nil
}

// Len reports how many records the table holds.
func (m *MemoryHandleTable) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
