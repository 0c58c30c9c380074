package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品：价格与库存。库存只在下单事务中扣减。
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string          `gorm:"size:128;not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	ImageURL      string          `gorm:"size:255" json:"image_url,omitempty"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null;check:price >= 0" json:"price"`
	StockQuantity int             `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
}

func (Product) TableName() string { return "products" }
