package store

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/fhe"
)

var (
	_ fhe.HandleStore = (*PGStore)(nil)
	_ fhe.HandleStore = (*MemoryHandleTable)(nil)
)

func TestPGStore_PutHandleUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO gateway_handles (.+) ON CONFLICT \\(handle\\) DO UPDATE").
		WithArgs("h-1", []byte{1, 2, 3}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.PutHandle(context.Background(), "h-1", []byte{1, 2, 3}))
	check.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_DeleteHandle(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM gateway_handles").
		WithArgs("h-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM gateway_handles").
		WithArgs("h-2").
		WillReturnError(errors.New("connection reset"))

	check.NoError(t, s.DeleteHandle(context.Background(), "h-1"))
	check.Error(t, s.DeleteHandle(context.Background(), "h-2"))
	check.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_LoadHandles(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT handle, sealed FROM gateway_handles").
		WillReturnRows(sqlmock.NewRows([]string{"handle", "sealed"}).
			AddRow("h-1", []byte{1}).
			AddRow("h-2", []byte{2, 2}))

	got, err := s.LoadHandles(context.Background())
	assert.NoError(t, err)
	check.Equal(t, map[core.Handle][]byte{"h-1": {1}, "h-2": {2, 2}}, got)
	check.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_LoadHandlesQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT handle, sealed FROM gateway_handles").
		WillReturnError(errors.New("relation \"gateway_handles\" does not exist"))

	_, err := s.LoadHandles(context.Background())
	check.Error(t, err)
	check.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryHandleTable(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryHandleTable()

	sealed := []byte{7, 7}
	assert.NoError(t, m.PutHandle(ctx, "h-1", sealed))
	sealed[0] = 0
	assert.NoError(t, m.PutHandle(ctx, "h-2", []byte{9}))
	assert.NoError(t, m.DeleteHandle(ctx, "h-2"))
	assert.NoError(t, m.DeleteHandle(ctx, "missing"))

	got, err := m.LoadHandles(ctx)
	assert.NoError(t, err)
	check.Equal(t, map[core.Handle][]byte{"h-1": {7, 7}}, got)
	check.Equal(t, 1, m.Len())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	check.Error(t, m.PutHandle(canceled, "h-3", []byte{1}))
	check.Equal(t, 1, m.Len())
}
