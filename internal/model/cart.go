package model

import "time"

// Cart 每个用户恰好一个购物车，注册时或首次加购时创建。
type Cart struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Items  []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Cart) TableName() string { return "carts" }

// CartItem 购物车行。(cart_id, product_id) 唯一，重复加购累加数量；数量恒 > 0。
type CartItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CartID    uint `gorm:"not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_cart_product;index" json:"product_id"`
	Quantity  int  `gorm:"not null;check:quantity > 0" json:"quantity"`

	Product *Product `gorm:"foreignKey:ProductID" json:"-"`
}

func (CartItem) TableName() string { return "cart_items" }
