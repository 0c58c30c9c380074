package router

import (
	"errors"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"online_store/internal/auth"
	"online_store/internal/cart"
	"online_store/internal/catalog"
	"online_store/internal/errs"
	"online_store/internal/middleware"
	"online_store/internal/order"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// Deps 路由依赖。RDB 为 nil 时不启用限流与下单幂等。
type Deps struct {
	Auth    *auth.Service
	Catalog *catalog.Store
	Cart    *cart.Store
	Orders  *order.Engine
	History *order.History
	RDB     *rd.Client

	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	IdempotencyTTL     time.Duration
	// CORSOrigins 为空或含 "*" 时放行全部来源
	CORSOrigins []string
}

var endpoints = []string{
	"POST /api/register",
	"POST /api/login",
	"GET /api/products",
	"GET /api/products/:product_id",
	"GET /api/cart",
	"POST /api/cart/add",
	"DELETE /api/cart/items/:product_id",
	"DELETE /api/cart",
	"POST /api/order/place",
	"GET /api/orders",
	"GET /api/orders/:order_id",
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestID(), corsMiddleware(d.CORSOrigins))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"service": "online store", "endpoints": endpoints}})
	})

	api := r.Group("/api")
	// Auth
	api.POST("/register", register(d.Auth))
	api.POST("/login", login(d.Auth))
	// Products
	api.GET("/products", listProducts(d.Catalog))
	api.GET("/products/:product_id", getProduct(d.Catalog))

	authed := api.Group("", middleware.AuthRequired(d.Auth))
	// Cart
	authed.GET("/cart", getCart(d.Cart))
	authed.POST("/cart/add", addToCart(d.Cart))
	authed.DELETE("/cart/items/:product_id", removeFromCart(d.Cart))
	authed.DELETE("/cart", clearCart(d.Cart))
	// Orders
	place := []gin.HandlerFunc{}
	if d.RDB != nil {
		place = append(place, middleware.RedisRateLimit(d.RDB, d.CheckoutRateLimit, d.CheckoutRateWindow))
	}
	place = append(place, placeOrder(d.Orders, d.History, d.RDB, d.IdempotencyTTL))
	authed.POST("/order/place", place...)
	authed.GET("/orders", listOrders(d.History))
	authed.GET("/orders/:order_id", getOrder(d.History))
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", HeaderIdempotencyKey, middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// ok 成功响应。
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

// fail 统一失败响应：业务错误按错误码映射 HTTP 状态，其余一律 500。
// 500 只返回固定文案，底层错误写日志。
func fail(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		log.Printf("request failed req=%s %s %s: %v", middleware.RequestIDFrom(c), c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "服务器内部错误"})
		return
	}
	status := statusOf(e.Code)
	if status == http.StatusInternalServerError {
		log.Printf("request failed req=%s %s %s: %v", middleware.RequestIDFrom(c), c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"code": status, "reason": e.Code, "msg": e.Msg}
	if e.Code == errs.CodeInsufficientStock {
		body["data"] = gin.H{"product_id": e.ProductID}
	}
	c.JSON(status, body)
}

func statusOf(code errs.Code) int {
	switch code {
	case errs.CodeNotFound, errs.CodeCartNotFound:
		return http.StatusNotFound
	case errs.CodeEmptyCart, errs.CodeInsufficientStock, errs.CodeInvalidArgument:
		return http.StatusBadRequest
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeUnauthorized:
		return http.StatusUnauthorized
	case errs.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "reason": errs.CodeInvalidArgument, "msg": msg})
}

// parseID 解析路径中的正整数 ID。
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
