package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCopyLeavesSource(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "b", "inbound/a.pdf", []byte("pdf"), "application/pdf", false))

	require.NoError(t, s.Copy(ctx, "b", "inbound/a.pdf", "outbound/a.pdf"))

	src, err := s.Get(ctx, "b", "inbound/a.pdf")
	require.NoError(t, err)
	dst, err := s.Get(ctx, "b", "outbound/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, src, dst)
	assert.ElementsMatch(t, []string{"inbound/a.pdf", "outbound/a.pdf"}, s.Keys("b"))
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Copy(ctx, "b", "missing", "x"), ErrNotFound)
}

func TestMemoryStorePutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "b", "k", []byte("first"), "", true))
	require.NoError(t, s.Put(ctx, "b", "k", []byte("second"), "", true))

	got, err := s.Get(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}
