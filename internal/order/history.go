package order

import (
	"context"
	"errors"

	"online_store/internal/errs"
	"online_store/internal/model"

	"gorm.io/gorm"
)

// History 只读订单查询。
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

// ListOrders 按下单时间倒序，同一时间按 id 倒序。不含订单行。
func (h *History) ListOrders(ctx context.Context, userID uint) ([]model.Order, error) {
	list := make([]model.Order, 0)
	err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GetOrder 返回订单及订单行；不属于该用户的订单视为不存在。
func (h *History) GetOrder(ctx context.Context, userID, orderID uint) (*model.Order, error) {
	var o model.Order
	err := h.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id ASC") }).
		Where("id = ? AND user_id = ?", orderID, userID).
		Take(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("order")
		}
		return nil, err
	}
	return &o, nil
}
