package router

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"online_store/internal/auth"
	"online_store/internal/cart"
	"online_store/internal/catalog"
	"online_store/internal/errs"
	"online_store/internal/middleware"
	"online_store/internal/model"
	"online_store/internal/order"
	rediskey "online_store/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// HeaderIdempotencyKey 客户端下单幂等键。
const HeaderIdempotencyKey = "Idempotency-Key"

// checkoutPendingTTL 幂等键「处理中」占位的有效期，需大于一次下单的最长耗时
// （含 SQLite busy_timeout）。
const checkoutPendingTTL = 30 * time.Second

func register(a *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		u, err := a.Register(c.Request.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, u)
	}
}

func login(a *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		token, u, err := a.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"access_token": token, "token_type": "bearer", "user": u})
	}
}

// listProducts 查询商品列表。
func listProducts(s *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, list)
	}
}

func getProduct(s *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c, "product_id")
		if !valid {
			badRequest(c, "商品ID无效")
			return
		}
		p, err := s.Get(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func getCart(s *cart.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := s.GetCart(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, view)
	}
}

// addToCart 加购后返回最新购物车。
func addToCart(s *cart.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ProductID uint `json:"product_id" binding:"required,min=1"`
			Quantity  int  `json:"quantity" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		userID := middleware.UserID(c)
		if err := s.AddItem(c.Request.Context(), userID, req.ProductID, req.Quantity); err != nil {
			fail(c, err)
			return
		}
		view, err := s.GetCart(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, view)
	}
}

func removeFromCart(s *cart.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c, "product_id")
		if !valid {
			badRequest(c, "商品ID无效")
			return
		}
		userID := middleware.UserID(c)
		if err := s.RemoveItem(c.Request.Context(), userID, id); err != nil {
			fail(c, err)
			return
		}
		view, err := s.GetCart(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, view)
	}
}

func clearCart(s *cart.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Clear(c.Request.Context(), middleware.UserID(c)); err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"items": []cart.Line{}, "total": "0"})
	}
}

// placeOrder 下单入口。
// 带 Idempotency-Key 时：同键已成功则返回原订单；同键处理中返回 409；
// 失败会释放键，客户端可用同一键重试。
func placeOrder(e *order.Engine, h *order.History, rdb *rd.Client, idemTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := middleware.UserID(c)
		reqID := middleware.RequestIDFrom(c)
		idemKey := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		useIdem := rdb != nil && idemKey != "" && len(idemKey) <= 128

		if useIdem {
			state, orderID, err := rediskey.ClaimCheckoutKey(ctx, rdb, userID, idemKey, checkoutPendingTTL)
			switch {
			case err != nil:
				// Redis 不可用时退化为普通下单
				log.Printf("checkout idempotency claim req=%s user=%d: %v", reqID, userID, err)
				useIdem = false
			case state == rediskey.IdemInFlight:
				c.JSON(http.StatusConflict, gin.H{"code": 409, "reason": errs.CodeConflict, "msg": "相同幂等键的下单请求正在处理"})
				return
			case state == rediskey.IdemCompleted:
				o, err := h.GetOrder(ctx, userID, orderID)
				if err != nil {
					fail(c, err)
					return
				}
				resp := orderResponse(o)
				resp["replayed"] = true
				ok(c, resp)
				return
			}
		}

		o, err := e.PlaceOrder(ctx, userID)
		if err != nil {
			if useIdem {
				releaseIdem(rdb, reqID, userID, idemKey)
			}
			fail(c, err)
			return
		}
		if useIdem {
			if err := rediskey.CompleteCheckoutKey(context.WithoutCancel(ctx), rdb, userID, idemKey, o.ID, idemTTL); err != nil {
				log.Printf("checkout idempotency complete req=%s user=%d order=%d: %v", reqID, userID, o.ID, err)
			}
		}
		log.Printf("checkout ok req=%s user=%d order=%d total=%s", reqID, userID, o.ID, o.TotalAmount)
		resp := orderResponse(o)
		resp["replayed"] = false
		ok(c, resp)
	}
}

func releaseIdem(rdb *rd.Client, reqID string, userID uint, idemKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rediskey.ReleaseCheckoutKey(ctx, rdb, userID, idemKey); err != nil {
		log.Printf("checkout idempotency release req=%s user=%d: %v", reqID, userID, err)
	}
}

func orderResponse(o *model.Order) gin.H {
	return gin.H{
		"order_id":     o.ID,
		"order_date":   o.CreatedAt,
		"total_amount": o.TotalAmount,
		"status":       o.Status,
		"items":        o.Items,
	}
}

// listOrders 订单历史，最新在前。
func listOrders(h *order.History) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.ListOrders(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			fail(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, o := range list {
			out = append(out, gin.H{
				"order_id":     o.ID,
				"order_date":   o.CreatedAt,
				"total_amount": o.TotalAmount,
				"status":       o.Status,
			})
		}
		ok(c, gin.H{"orders": out})
	}
}

func getOrder(h *order.History) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c, "order_id")
		if !valid {
			badRequest(c, "订单ID无效")
			return
		}
		o, err := h.GetOrder(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, orderResponse(o))
	}
}
