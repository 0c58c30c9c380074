// Package cart 用户购物车：加购（按 cart+product 唯一键累加）、查看、移除、清空。
// 加购不校验库存，库存只在下单时校验。
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"online_store/internal/database"
	"online_store/internal/errs"
	"online_store/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Line 购物车行，附带商品名、现价和小计。
type Line struct {
	ItemID    uint            `json:"cart_item_id"`
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// View 购物车视图；没有购物车时返回空列表和 0。
type View struct {
	Items []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AddItem 加购。购物车不存在时先创建；已有同商品行则数量累加。
func (s *Store) AddItem(ctx context.Context, userID, productID uint, quantity int) error {
	if quantity <= 0 {
		return errs.InvalidArgument("quantity must be > 0")
	}
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Product{}).Where("id = ?", productID).Count(&n).Error; err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if n == 0 {
			return errs.NotFound("product")
		}

		cartID, err := EnsureCart(tx, userID)
		if err != nil {
			return err
		}

		// upsert：依赖 (cart_id, product_id) 唯一索引，并发加购不会丢失更新。
		item := model.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": time.Now(),
			}),
		}).Create(&item).Error
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}
		return nil
	})
}

// EnsureCart 返回用户购物车 id，不存在则创建。需在事务内调用。
func EnsureCart(tx *gorm.DB, userID uint) (uint, error) {
	var c model.Cart
	err := tx.Where("user_id = ?", userID).Take(&c).Error
	if err == nil {
		return c.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("find cart: %w", err)
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Cart{UserID: userID}).Error; err != nil {
		return 0, fmt.Errorf("create cart: %w", err)
	}
	if err := tx.Where("user_id = ?", userID).Take(&c).Error; err != nil {
		return 0, fmt.Errorf("reload cart: %w", err)
	}
	return c.ID, nil
}

// GetCart 按加购顺序返回购物车行及总价。
func (s *Store) GetCart(ctx context.Context, userID uint) (*View, error) {
	lines := make([]Line, 0)
	err := s.db.WithContext(ctx).
		Table("cart_items AS ci").
		Select("ci.id AS item_id, ci.product_id, p.name, p.price, ci.quantity").
		Joins("JOIN carts c ON c.id = ci.cart_id").
		Joins("JOIN products p ON p.id = ci.product_id").
		Where("c.user_id = ?", userID).
		Order("ci.id ASC").
		Scan(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	view := &View{Items: lines, Total: decimal.Zero}
	for i := range view.Items {
		l := &view.Items[i]
		l.Subtotal = l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		view.Total = view.Total.Add(l.Subtotal)
	}
	return view, nil
}

// RemoveItem 删除一行；行不存在时什么都不做。
func (s *Store) RemoveItem(ctx context.Context, userID, productID uint) error {
	err := s.db.WithContext(ctx).
		Where("cart_id IN (?) AND product_id = ?", s.cartIDs(userID), productID).
		Delete(&model.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

// Clear 清空购物车，幂等。
func (s *Store) Clear(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).
		Where("cart_id IN (?)", s.cartIDs(userID)).
		Delete(&model.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Store) cartIDs(userID uint) *gorm.DB {
	return s.db.Model(&model.Cart{}).Select("id").Where("user_id = ?", userID)
}
