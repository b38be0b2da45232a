package membership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncfleet/syncfleet/pkg/coordination"
)

func TestRegistrar_RegisterWritesLeaseBoundKey(t *testing.T) {
	ctx := context.Background()
	store := coordination.NewMemory()
	grant, err := store.LeaseGrant(ctx, 30)
	require.NoError(t, err)

	r := New(store, "a")
	require.NoError(t, r.Register(ctx, grant.ID))

	kvs, err := store.Range(ctx, Prefix)
	require.NoError(t, err)
	require.Len(t, kvs, 1)
	assert.Equal(t, "/nodes/a", kvs[0].Key)
	assert.Equal(t, "replica", kvs[0].Value)

	store.ExpireNow(grant.ID)
	kvs, err = store.Range(ctx, Prefix)
	require.NoError(t, err)
	assert.Empty(t, kvs, "membership key must be removed when the lease expires")
}
