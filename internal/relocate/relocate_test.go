package relocate

import (
	"context"
	"testing"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteReplacesFirstInboundSegment(t *testing.T) {
	r := New(nil, DefaultZones())

	tests := []struct {
		key, zone, want string
	}{
		{"inbound/2025/03/form.pdf", "outbound/", "outbound/2025/03/form.pdf"},
		{"mail/inbound/x/inbound/f.pdf", "review/", "mail/review/x/inbound/f.pdf"},
		{"archive/f.pdf", "review/", "archive/f.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Rewrite(tt.key, tt.zone), tt.key)
	}
}

func TestRelocateCopiesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "b", "inbound/p1/f.pdf", []byte("pdf"), "application/pdf", false))
	r := New(store, DefaultZones())

	dest, err := r.Relocate(ctx, "b", "inbound/p1/f.pdf", "outbound/")
	require.NoError(t, err)
	assert.Equal(t, "outbound/p1/f.pdf", dest)

	again, err := r.Relocate(ctx, "b", "inbound/p1/f.pdf", "outbound/")
	require.NoError(t, err)
	assert.Equal(t, dest, again)

	assert.ElementsMatch(t, []string{"inbound/p1/f.pdf", "outbound/p1/f.pdf"}, store.Keys("b"))
}

func TestRelocateMissingSource(t *testing.T) {
	r := New(objectstore.NewMemoryStore(), DefaultZones())

	_, err := r.Relocate(context.Background(), "b", "inbound/missing.pdf", "review/")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindRelocation))
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}
