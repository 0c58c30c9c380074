package redis

import (
	"context"
	"testing"
	"time"

	"online_store/internal/model"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *rd.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestProductCacheRoundTrip(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	cache := NewProductCache(rdb, time.Minute)

	_, found, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	p := &model.Product{ID: 1, Name: "pen", Price: decimal.RequireFromString("1.25"), StockQuantity: 3}
	require.NoError(t, cache.Set(ctx, p))
	assert.Equal(t, time.Minute, mr.TTL(ProductKey(1)))

	got, found, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pen", got.Name)
	assert.True(t, got.Price.Equal(p.Price))
	assert.Equal(t, 3, got.StockQuantity)

	require.NoError(t, cache.Invalidate(ctx, 1, 2))
	assert.False(t, mr.Exists(ProductKey(1)))
}

func TestProductCacheCorruptEntry(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set(ProductKey(9), "{not json"))

	_, found, err := NewProductCache(rdb, time.Minute).Get(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists(ProductKey(9)))
}

func TestCheckoutIdempotencyLifecycle(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	state, _, err := ClaimCheckoutKey(ctx, rdb, 1, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state)

	state, _, err = ClaimCheckoutKey(ctx, rdb, 1, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, IdemInFlight, state)

	// 其他用户同名键互不影响
	state, _, err = ClaimCheckoutKey(ctx, rdb, 2, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state)

	require.NoError(t, CompleteCheckoutKey(ctx, rdb, 1, "k1", 42, time.Hour))
	state, orderID, err := ClaimCheckoutKey(ctx, rdb, 1, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, IdemCompleted, state)
	assert.Equal(t, uint(42), orderID)

	// 已完成的映射不会被 release 删掉
	require.NoError(t, ReleaseCheckoutKey(ctx, rdb, 1, "k1"))
	state, _, err = ClaimCheckoutKey(ctx, rdb, 1, "k1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, IdemCompleted, state)
}

func TestReleasePendingKey(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	_, _, err := ClaimCheckoutKey(ctx, rdb, 5, "retry", time.Hour)
	require.NoError(t, err)
	require.NoError(t, ReleaseCheckoutKey(ctx, rdb, 5, "retry"))

	state, _, err := ClaimCheckoutKey(ctx, rdb, 5, "retry", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state)
}

func TestPendingClaimExpiresBeforeCompletedMapping(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	key := CheckoutIdempotencyKey(7, "crash")

	state, _, err := ClaimCheckoutKey(ctx, rdb, 7, "crash", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, IdemClaimed, state)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	// 持有者未释放就退出：占位过期后同一键可重新抢占
	mr.FastForward(31 * time.Second)
	state, _, err = ClaimCheckoutKey(ctx, rdb, 7, "crash", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, IdemClaimed, state)

	require.NoError(t, CompleteCheckoutKey(ctx, rdb, 7, "crash", 99, 24*time.Hour))
	assert.Equal(t, 24*time.Hour, mr.TTL(key))
}
