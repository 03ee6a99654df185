package pebblekv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := Open(dir)
	require.NoError(t, err)

	_, found, err := kv.Get(ctx, "mango:templates")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "mango:templates", `{"v":1,"e":[]}`))
	require.NoError(t, kv.Close())

	kv, err = Open(dir)
	require.NoError(t, err)
	defer kv.Close()

	v, found, err := kv.Get(ctx, "mango:templates")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"v":1,"e":[]}`, v)
}

func TestKVHonorsCanceledContext(t *testing.T) {
	kv, err := Open(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, kv.Set(ctx, "k", "v"), context.Canceled)
}
