package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"online_store/internal/auth"
	"online_store/internal/cart"
	"online_store/internal/catalog"
	"online_store/internal/config"
	"online_store/internal/database"
	"online_store/internal/order"
	"online_store/internal/queue"
	"online_store/internal/router"
	rediskey "online_store/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// 1. 连接 SQLite，自动建表
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	if cfg.SeedProducts {
		n, err := database.Seed(db)
		if err != nil {
			log.Fatalf("db seed: %v", err)
		}
		if n > 0 {
			log.Printf("seeded %d products", n)
		}
	}

	// 2. Redis：商品缓存、下单幂等、限流、订单事件 outbox
	rdb := rd.NewClient(&rd.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// 不阻止启动：缓存降级到数据库，限流放行，事件写入失败只记日志
		log.Printf("redis ping %s: %v", cfg.RedisAddr, err)
	}
	pingCancel()

	cache := rediskey.NewProductCache(rdb, cfg.ProductCacheTTL)
	outbox := queue.NewOutbox(rdb, cfg.OrderEventStream)

	// 3. Kafka：outbox relay -> producer -> consumer（失效商品缓存）
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, cache)
	defer consumer.Close()
	// 多实例部署时消费者名需唯一
	consumerName := cfg.OrderEventConsumer + "-" + uuid.NewString()[:8]
	relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, consumerName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	// 4. HTTP
	authSvc := auth.NewService(db, cfg.JWTSecret, cfg.TokenTTL)
	products := catalog.New(db, cache)
	r := gin.Default()
	router.Setup(r, router.Deps{
		Auth:               authSvc,
		Catalog:            products,
		Cart:               cart.New(db),
		Orders:             order.NewEngine(db, products, outbox),
		History:            order.NewHistory(db),
		RDB:                rdb,
		CheckoutRateLimit:  cfg.CheckoutRateLimit,
		CheckoutRateWindow: cfg.CheckoutRateWindow,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		CORSOrigins:        cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	wg.Wait()
}
