// Package order 下单引擎与订单历史。
//
// PlaceOrder 在一个事务内完成：读购物车与库存、校验、算总价、写订单和订单行、
// 扣库存、清空购物车。任一步失败整体回滚，购物车、库存、订单表保持调用前状态。
package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"online_store/internal/database"
	"online_store/internal/errs"
	"online_store/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventSink 接收已提交的订单（如写入事件流）。在事务提交之后调用。
type EventSink interface {
	OrderPlaced(ctx context.Context, o *model.Order) error
}

type Engine struct {
	db    *gorm.DB
	sinks []EventSink
}

// NewEngine 提交后按顺序通知 sinks，nil 会被忽略。
func NewEngine(db *gorm.DB, sinks ...EventSink) *Engine {
	e := &Engine{db: db}
	for _, s := range sinks {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
	return e
}

// cartLine 事务内读到的购物车行及商品当前价格、库存。
type cartLine struct {
	ProductID     uint
	Quantity      int
	Price         decimal.Decimal
	StockQuantity int
}

// PlaceOrder 把用户购物车转成一张已完成订单。
// 失败时返回 *errs.Error：CART_NOT_FOUND / EMPTY_CART / INSUFFICIENT_STOCK / TRANSACTION_FAILURE。
// 不做自动重试，是否重试由调用方决定。
func (e *Engine) PlaceOrder(ctx context.Context, userID uint) (*model.Order, error) {
	var c model.Cart
	if err := e.db.WithContext(ctx).Where("user_id = ?", userID).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCartNotFound
		}
		return nil, errs.Transaction(err)
	}

	var placed *model.Order
	err := database.Transact(ctx, e.db, func(tx *gorm.DB) error {
		o, err := checkout(tx, userID, c.ID)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		if errs.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errs.Transaction(err)
	}

	// 订单已提交，sink 失败只记日志，也不影响后续 sink
	for _, s := range e.sinks {
		if err := s.OrderPlaced(ctx, placed); err != nil {
			log.Printf("order placed event order=%d sink=%T: %v", placed.ID, s, err)
		}
	}
	return placed, nil
}

func checkout(tx *gorm.DB, userID, cartID uint) (*model.Order, error) {
	// 1. 读购物车行 + 现价 + 库存（支持行锁的库上加 FOR UPDATE）
	var lines []cartLine
	err := tx.Table("cart_items AS ci").
		Select("ci.product_id, ci.quantity, p.price, p.stock_quantity").
		Joins("JOIN products p ON p.id = ci.product_id").
		Where("ci.cart_id = ?", cartID).
		Order("ci.id ASC").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scan(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, errs.ErrEmptyCart
	}

	// 2. 校验库存，第一处不足即失败
	for _, l := range lines {
		if l.Quantity > l.StockQuantity {
			return nil, errs.InsufficientStock(l.ProductID)
		}
	}

	// 3. 总价只用本事务内读到的价格
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	// 4. 订单先以 PENDING 落库，提交前改为 COMPLETED
	o := &model.Order{
		UserID:      userID,
		TotalAmount: total,
		Status:      model.OrderPending,
	}
	if err := tx.Create(o).Error; err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// 5. 订单行快照下单价
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.OrderItem{
			OrderID:         o.ID,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.Price,
		})
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, fmt.Errorf("create order items: %w", err)
	}

	// 6. 扣库存。条件更新兜底，即便隔离级别不够也不会扣成负数。
	for _, l := range lines {
		res := tx.Model(&model.Product{}).
			Where("id = ? AND stock_quantity >= ?", l.ProductID, l.Quantity).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", l.Quantity))
		if res.Error != nil {
			return nil, fmt.Errorf("decrement stock product=%d: %w", l.ProductID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, errs.InsufficientStock(l.ProductID)
		}
	}

	// 7. 清空购物车（购物车本身保留）
	if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	// 8. 标记完成
	if err := tx.Model(o).Update("status", model.OrderCompleted).Error; err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	o.Status = model.OrderCompleted
	o.Items = items
	return o, nil
}
