package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastygo/portal/domain"
)

func TestStateStorage(t *testing.T) {
	s := NewStateStorage()
	ctx := context.Background()

	value := []byte(`{"user":null}`)
	require.NoError(t, s.SetItem(ctx, "root", value))
	value[0] = 'x'

	got, err := s.GetItem(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, `{"user":null}`, string(got))

	removed, err := s.Purge(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Zero(t, removed)

	require.NoError(t, s.RemoveItem(ctx, "root"))
	_, err = s.GetItem(ctx, "root")
	require.ErrorIs(t, err, domain.ErrStateNotFound)
	require.Zero(t, s.Len())
}

func TestNoop(t *testing.T) {
	var s Noop
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, "root", []byte(`{}`)))
	_, err := s.GetItem(ctx, "root")
	require.ErrorIs(t, err, domain.ErrStateNotFound)
	require.NoError(t, s.RemoveItem(ctx, "root"))
}
