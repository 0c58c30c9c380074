package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"online_store/internal/model"

	rd "github.com/redis/go-redis/v9"
)

// ProductCache 商品详情读缓存。库存以数据库为准，缓存只服务展示；
// 下单后由订单事件消费者失效对应商品。
type ProductCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewProductCache(rdb *rd.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

// Get found=false 表示未命中。
func (c *ProductCache) Get(ctx context.Context, productID uint) (*model.Product, bool, error) {
	b, err := c.rdb.Get(ctx, ProductKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var p model.Product
	if err := json.Unmarshal(b, &p); err != nil {
		// 脏数据当作未命中，顺手删掉。
		_ = c.rdb.Del(ctx, ProductKey(productID)).Err()
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *ProductCache) Set(ctx context.Context, p *model.Product) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, ProductKey(p.ID), b, c.ttl).Err()
}

// Invalidate 删除一批商品缓存。
func (c *ProductCache) Invalidate(ctx context.Context, productIDs ...uint) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, ProductKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
