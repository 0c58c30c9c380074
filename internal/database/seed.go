package database

import (
	"fmt"

	"online_store/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var sampleProducts = []model.Product{
	{Name: "Wireless Mouse", Description: "2.4GHz ergonomic mouse", Price: decimal.RequireFromString("19.99"), StockQuantity: 100},
	{Name: "Mechanical Keyboard", Description: "87-key, brown switches", Price: decimal.RequireFromString("79.00"), StockQuantity: 50},
	{Name: "USB-C Hub", Description: "7-in-1 with HDMI", Price: decimal.RequireFromString("34.50"), StockQuantity: 75},
	{Name: "27\" Monitor", Description: "QHD IPS panel", Price: decimal.RequireFromString("249.00"), StockQuantity: 20},
	{Name: "Laptop Stand", Description: "Aluminium, adjustable", Price: decimal.RequireFromString("29.90"), StockQuantity: 60},
}

// Seed 商品表为空时写入示例商品；已有数据则什么都不做。
func Seed(db *gorm.DB) (int, error) {
	var n int64
	if err := db.Model(&model.Product{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	products := make([]model.Product, len(sampleProducts))
	copy(products, sampleProducts)
	if err := db.Create(&products).Error; err != nil {
		return 0, fmt.Errorf("seed products: %w", err)
	}
	return len(products), nil
}
