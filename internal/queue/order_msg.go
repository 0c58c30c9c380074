package queue

import (
	"fmt"
	"strconv"
	"time"

	"online_store/internal/model"

	"github.com/shopspring/decimal"
)

// OrderLine 订单事件中的商品行。
type OrderLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// OrderMessage 是写入 Stream / Kafka 的订单已提交事件。
type OrderMessage struct {
	OrderID     uint        `json:"order_id"`
	UserID      uint        `json:"user_id"`
	TotalAmount string      `json:"total_amount"`
	Lines       []OrderLine `json:"lines"`
	PlacedAt    time.Time   `json:"placed_at"`
}

// NewOrderMessage 由已提交订单构造事件。
func NewOrderMessage(o *model.Order) OrderMessage {
	lines := make([]OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return OrderMessage{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.String(),
		Lines:       lines,
		PlacedAt:    o.CreatedAt,
	}
}

// Key Kafka 分区键。
func (m OrderMessage) Key() string {
	return strconv.FormatUint(uint64(m.OrderID), 10)
}

// ProductIDs 事件涉及的商品。
func (m OrderMessage) ProductIDs() []uint {
	ids := make([]uint, 0, len(m.Lines))
	for _, l := range m.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderMessage) Validate() error {
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if len(m.Lines) == 0 {
		return fmt.Errorf("lines must not be empty")
	}
	for _, l := range m.Lines {
		if l.ProductID == 0 {
			return fmt.Errorf("product_id is required")
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("quantity must be > 0")
		}
	}
	total, err := decimal.NewFromString(m.TotalAmount)
	if err != nil {
		return fmt.Errorf("invalid total_amount %q", m.TotalAmount)
	}
	if total.IsNegative() {
		return fmt.Errorf("total_amount must be >= 0")
	}
	return nil
}
