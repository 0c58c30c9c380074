// Package catalog 只读商品访问。
package catalog

import (
	"context"
	"errors"
	"log"

	"online_store/internal/errs"
	"online_store/internal/model"
	rediskey "online_store/pkg/redis"

	"gorm.io/gorm"
)

type Store struct {
	db    *gorm.DB
	cache *rediskey.ProductCache
}

// New cache 可为 nil（不走缓存）。
func New(db *gorm.DB, cache *rediskey.ProductCache) *Store {
	return &Store{db: db, cache: cache}
}

// List 返回全部商品，按 id 升序。
func (s *Store) List(ctx context.Context) ([]model.Product, error) {
	list := make([]model.Product, 0)
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Get 先查缓存，未命中回源数据库并回填。缓存出错时降级为直查。
func (s *Store) Get(ctx context.Context, productID uint) (*model.Product, error) {
	if s.cache != nil {
		p, found, err := s.cache.Get(ctx, productID)
		if err != nil {
			log.Printf("catalog cache get product=%d: %v", productID, err)
		} else if found {
			return p, nil
		}
	}

	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("product")
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, &p); err != nil {
			log.Printf("catalog cache set product=%d: %v", productID, err)
		}
	}
	return &p, nil
}

// OrderPlaced 下单提交后立即失效本实例可见的商品缓存，使 Get 与 List 读到同一库存。
// 其他实例依赖订单事件消费者失效。
func (s *Store) OrderPlaced(ctx context.Context, o *model.Order) error {
	if s.cache == nil || len(o.Items) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	return s.cache.Invalidate(ctx, ids...)
}
