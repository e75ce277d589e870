package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientWithRedis(rdb, time.Hour), mr
}

func TestAddItemIncrementsUpToCap(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	qty, ok, err := client.AddItem(ctx, "sess-1", 42, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), qty)

	qty, ok, err = client.AddItem(ctx, "sess-1", 42, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), qty)

	// cart already holds the full cap
	_, ok, err = client.AddItem(ctx, "sess-1", 42, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	lines, err := client.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestGetCartPreservesInsertionOrder(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	for _, productID := range []int64{7, 3, 11} {
		_, ok, err := client.AddItem(ctx, "sess-1", productID, 10)
		require.NoError(t, err)
		require.True(t, ok)
	}

	lines, err := client.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, int64(7), lines[0].ProductID)
	assert.Equal(t, int64(3), lines[1].ProductID)
	assert.Equal(t, int64(11), lines[2].ProductID)
}

func TestSetItemOverwritesQuantity(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, _, err := client.AddItem(ctx, "sess-1", 42, 10)
	require.NoError(t, err)

	require.NoError(t, client.SetItem(ctx, "sess-1", 42, 5))

	lines, err := client.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestSetItemAppendsNewProduct(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetItem(ctx, "sess-1", 1, 2))
	require.NoError(t, client.SetItem(ctx, "sess-1", 2, 3))

	lines, err := client.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].ProductID)
	assert.Equal(t, int64(2), lines[1].ProductID)
}

func TestRemoveItem(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, _, err := client.AddItem(ctx, "sess-1", 1, 10)
	require.NoError(t, err)
	_, _, err = client.AddItem(ctx, "sess-1", 2, 10)
	require.NoError(t, err)

	require.NoError(t, client.RemoveItem(ctx, "sess-1", 1))

	lines, err := client.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(2), lines[0].ProductID)

	// removing an absent product is a no-op
	require.NoError(t, client.RemoveItem(ctx, "sess-1", 99))
}

func TestClearCart(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	_, _, err := client.AddItem(ctx, "sess-1", 1, 10)
	require.NoError(t, err)

	require.NoError(t, client.ClearCart(ctx, "sess-1"))

	lines, err := client.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.False(t, mr.Exists("cart:sess-1"))
	assert.False(t, mr.Exists("cart:sess-1:ids"))
}

func TestCartsAreIsolatedPerSession(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, _, err := client.AddItem(ctx, "sess-a", 1, 10)
	require.NoError(t, err)

	lines, err := client.GetCart(ctx, "sess-b")
	require.NoError(t, err)
	assert.Empty(t, lines)
}
