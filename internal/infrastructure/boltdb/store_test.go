package boltdb

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := openTemp(t)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(Record{Key: "root:a", Value: json.RawMessage(`{"user":null}`)}))

	rec, ok, err := s.Get("root:a")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"user":null}`, string(rec.Value))
	require.False(t, rec.UpdatedAt.IsZero())

	size, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, 1, size)

	require.NoError(t, s.Delete("root:a"))
	require.NoError(t, s.Delete("root:a"))
	_, ok, err = s.Get("root:a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_Cleanup(t *testing.T) {
	s := openTemp(t)
	now := time.Now()

	require.NoError(t, s.Put(Record{Key: "old-1", Value: json.RawMessage(`1`), UpdatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Put(Record{Key: "old-2", Value: json.RawMessage(`2`), UpdatedAt: now.Add(-90 * time.Minute)}))
	require.NoError(t, s.Put(Record{Key: "fresh", Value: json.RawMessage(`3`), UpdatedAt: now}))

	removed, err := s.Cleanup(now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, ok, err := s.Get("fresh")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_ClosedIsSafe(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	_, _, err := s.Get("x")
	require.Error(t, err)
	require.Error(t, s.Put(Record{Key: "x"}))
}
