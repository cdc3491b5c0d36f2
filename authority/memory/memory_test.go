package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/authority/authoritytest"
)

func TestConformance(t *testing.T) {
	authoritytest.Run(t, func(t *testing.T) authoritytest.Opener {
		store := NewStore()
		return func() authority.Authority { return New(WithStore(store)) }
	}, authoritytest.Options{})
}

func TestGetIDBlock_Cancelled(t *testing.T) {
	a := New()
	require.NoError(t, a.SetBlockSizer(authority.NewFixedSizer(10, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.GetIDBlock(ctx, 0, authority.NamespaceVertex)
	assert.True(t, authority.IsTemporary(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrivateStores(t *testing.T) {
	a := New()
	b := New()
	require.NoError(t, a.SetBlockSizer(authority.NewFixedSizer(10, nil)))
	require.NoError(t, b.SetBlockSizer(authority.NewFixedSizer(10, nil)))

	ba, err := a.GetIDBlock(context.Background(), 0, authority.NamespaceVertex)
	require.NoError(t, err)
	bb, err := b.GetIDBlock(context.Background(), 0, authority.NamespaceVertex)
	require.NoError(t, err)
	assert.Equal(t, ba, bb)
}
