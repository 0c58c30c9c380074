// Package dbtest 为测试提供独立的文件型 SQLite 实例和造数工具。
package dbtest

import (
	"path/filepath"
	"testing"

	"online_store/internal/database"
	"online_store/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// New 每个测试一个数据库文件，测试结束自动关闭。
func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Product 创建一个商品，price 如 "10.00"。
func Product(t testing.TB, db *gorm.DB, name, price string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// User 创建一个用户（不建购物车）。
func User(t testing.TB, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Stock 重新读取商品库存。
func Stock(t testing.TB, db *gorm.DB, productID uint) int {
	t.Helper()
	var p model.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.StockQuantity
}

// CountOrders 统计某用户的订单数。
func CountOrders(t testing.TB, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.Order{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}
