package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"online_store/internal/cart"
	"online_store/internal/database/dbtest"
	"online_store/internal/errs"
	"online_store/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu     sync.Mutex
	orders []uint
	err    error
}

func (s *recordingSink) OrderPlaced(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o.ID)
	return s.err
}

func cartItemCount(t *testing.T, db *gorm.DB, userID uint) int {
	t.Helper()
	view, err := cart.New(db).GetCart(context.Background(), userID)
	require.NoError(t, err)
	return len(view.Items)
}

func TestPlaceOrderSuccess(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	a := dbtest.Product(t, db, "a", "10.00", 5)
	b := dbtest.Product(t, db, "b", "5.00", 3)
	carts := cart.New(db)
	ctx := context.Background()
	require.NoError(t, carts.AddItem(ctx, u.ID, a.ID, 2))
	require.NoError(t, carts.AddItem(ctx, u.ID, b.ID, 1))

	sink := &recordingSink{}
	o, err := NewEngine(db, sink).PlaceOrder(ctx, u.ID)
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, model.OrderCompleted, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("25.00")), o.TotalAmount.String())
	assert.Equal(t, 3, dbtest.Stock(t, db, a.ID))
	assert.Equal(t, 2, dbtest.Stock(t, db, b.ID))
	assert.Equal(t, 0, cartItemCount(t, db, u.ID))
	assert.Equal(t, []uint{o.ID}, sink.orders)

	// 持久化的订单与返回值一致，各行之和等于总价
	stored, err := NewHistory(db).GetOrder(ctx, u.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, stored.Status)
	require.Len(t, stored.Items, 2)
	sum := decimal.Zero
	for _, it := range stored.Items {
		sum = sum.Add(it.Subtotal())
	}
	assert.True(t, sum.Equal(stored.TotalAmount))
}

func TestPlaceOrderCartNotFound(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")

	_, err := NewEngine(db, nil).PlaceOrder(context.Background(), u.ID)
	assert.ErrorIs(t, err, errs.ErrCartNotFound)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	p := dbtest.Product(t, db, "a", "1.00", 1)
	carts := cart.New(db)
	ctx := context.Background()
	require.NoError(t, carts.AddItem(ctx, u.ID, p.ID, 1))
	require.NoError(t, carts.Clear(ctx, u.ID))

	_, err := NewEngine(db, nil).PlaceOrder(ctx, u.ID)
	assert.ErrorIs(t, err, errs.ErrEmptyCart)
	assert.NotErrorIs(t, err, errs.ErrCartNotFound)
	assert.Equal(t, int64(0), dbtest.CountOrders(t, db, u.ID))
}

func TestPlaceOrderInsufficientStockIsAtomic(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	a := dbtest.Product(t, db, "a", "10.00", 5)
	b := dbtest.Product(t, db, "b", "5.00", 1)
	carts := cart.New(db)
	ctx := context.Background()
	require.NoError(t, carts.AddItem(ctx, u.ID, a.ID, 2))
	require.NoError(t, carts.AddItem(ctx, u.ID, b.ID, 2))

	sink := &recordingSink{}
	o, err := NewEngine(db, sink).PlaceOrder(ctx, u.ID)
	require.Error(t, err)
	assert.Nil(t, o)
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, b.ID, e.ProductID)

	assert.Equal(t, 5, dbtest.Stock(t, db, a.ID))
	assert.Equal(t, 1, dbtest.Stock(t, db, b.ID))
	assert.Equal(t, 2, cartItemCount(t, db, u.ID))
	assert.Equal(t, int64(0), dbtest.CountOrders(t, db, u.ID))
	var items int64
	require.NoError(t, db.Model(&model.OrderItem{}).Count(&items).Error)
	assert.Equal(t, int64(0), items)
	assert.Empty(t, sink.orders)
}

func TestPlaceOrderCancelledContext(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	p := dbtest.Product(t, db, "a", "1.00", 1)
	require.NoError(t, cart.New(db).AddItem(context.Background(), u.ID, p.ID, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(db, nil).PlaceOrder(ctx, u.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errs.CodeTransactionFailure, errs.CodeOf(err))

	assert.Equal(t, 1, dbtest.Stock(t, db, p.ID))
	assert.Equal(t, 1, cartItemCount(t, db, u.ID))
	assert.Equal(t, int64(0), dbtest.CountOrders(t, db, u.ID))
}

func TestPlaceOrderSinkErrorDoesNotFail(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	p := dbtest.Product(t, db, "a", "1.00", 1)
	require.NoError(t, cart.New(db).AddItem(context.Background(), u.ID, p.ID, 1))

	sink := &recordingSink{err: errors.New("redis down")}
	o, err := NewEngine(db, sink).PlaceOrder(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{o.ID}, sink.orders)
}

func TestPlaceOrderNotifiesEverySinkInOrder(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	p := dbtest.Product(t, db, "a", "1.00", 2)
	require.NoError(t, cart.New(db).AddItem(context.Background(), u.ID, p.ID, 1))

	failing := &recordingSink{err: errors.New("cache down")}
	outbox := &recordingSink{}
	o, err := NewEngine(db, failing, nil, outbox).PlaceOrder(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{o.ID}, failing.orders)
	assert.Equal(t, []uint{o.ID}, outbox.orders)
}

func TestPriceAtPurchaseSurvivesPriceChange(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	p := dbtest.Product(t, db, "a", "19.99", 10)
	ctx := context.Background()
	require.NoError(t, cart.New(db).AddItem(ctx, u.ID, p.ID, 3))

	o, err := NewEngine(db, nil).PlaceOrder(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", p.ID).
		Update("price", decimal.RequireFromString("99.00")).Error)

	stored, err := NewHistory(db).GetOrder(ctx, u.ID, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, stored.Items[0].PriceAtPurchase.Equal(decimal.RequireFromString("19.99")))
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("59.97")), stored.TotalAmount.String())
}

func TestRetryAfterFailureReadsFreshState(t *testing.T) {
	db := dbtest.New(t)
	u := dbtest.User(t, db, "alice")
	p := dbtest.Product(t, db, "a", "2.00", 1)
	carts := cart.New(db)
	engine := NewEngine(db, nil)
	ctx := context.Background()
	require.NoError(t, carts.AddItem(ctx, u.ID, p.ID, 2))

	_, err := engine.PlaceOrder(ctx, u.ID)
	require.ErrorIs(t, err, errs.ErrInsufficientStock)

	// 调整数量后重试成功
	require.NoError(t, carts.RemoveItem(ctx, u.ID, p.ID))
	require.NoError(t, carts.AddItem(ctx, u.ID, p.ID, 1))
	o, err := engine.PlaceOrder(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, 0, dbtest.Stock(t, db, p.ID))
}

// runConcurrentCheckouts 建 n 个用户，每人购物车放 1 件同一商品，然后同时下单。
func runConcurrentCheckouts(t *testing.T, n, stock int) (db *gorm.DB, productID uint, errsOut []error) {
	t.Helper()
	db = dbtest.New(t)
	p := dbtest.Product(t, db, "hot", "1.00", stock)
	carts := cart.New(db)
	users := make([]uint, n)
	for i := range users {
		u := dbtest.User(t, db, fmt.Sprintf("user%d", i))
		require.NoError(t, carts.AddItem(context.Background(), u.ID, p.ID, 1))
		users[i] = u.ID
	}

	engine := NewEngine(db, nil)
	errsOut = make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, uid := range users {
		wg.Add(1)
		go func(idx int, uid uint) {
			defer wg.Done()
			<-start
			_, errsOut[idx] = engine.PlaceOrder(context.Background(), uid)
		}(i, uid)
	}
	close(start)
	wg.Wait()
	return db, p.ID, errsOut
}

func TestConcurrentCheckoutExactStock(t *testing.T) {
	const n = 8
	db, productID, results := runConcurrentCheckouts(t, n, n)
	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, dbtest.Stock(t, db, productID))
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	const n = 8
	db, productID, results := runConcurrentCheckouts(t, n, n-1)

	failed := 0
	for _, err := range results {
		if err == nil {
			continue
		}
		require.ErrorIs(t, err, errs.ErrInsufficientStock)
		failed++
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, dbtest.Stock(t, db, productID))

	var orders int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(n-1), orders)
}
