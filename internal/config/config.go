package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr     string
	DBPath       string
	SeedProducts bool

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（下单提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 下单接口限流、商品缓存与幂等键有效期
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	ProductCacheTTL    time.Duration
	IdempotencyTTL     time.Duration

	JWTSecret string
	TokenTTL  time.Duration

	CORSOrigins []string
}

// Load 先尝试加载 .env，再读取并校验环境变量，缺失时使用默认值。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config load .env: %v", err)
	}

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "online_store.db"),
		SeedProducts:       getEnvBool("SEED_PRODUCTS", true),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "store-orders"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "store-order-consumer"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "store:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "store-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "store-relay-1"),
		CheckoutRateLimit:  20,
		CheckoutRateWindow: time.Second,
		ProductCacheTTL:    5 * time.Minute,
		IdempotencyTTL:     24 * time.Hour,
		JWTSecret:          getEnv("JWT_SECRET", "dev_secret_change_me"),
		TokenTTL:           60 * time.Minute,
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	rateLimit, err := getEnvInt("CHECKOUT_RATE_LIMIT", cfg.CheckoutRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_LIMIT must be > 0")
	}
	cfg.CheckoutRateLimit = rateLimit

	if cfg.CheckoutRateWindow, err = getEnvSeconds("CHECKOUT_RATE_WINDOW_SEC", cfg.CheckoutRateWindow); err != nil {
		return AppConfig{}, err
	}
	if cfg.ProductCacheTTL, err = getEnvSeconds("PRODUCT_CACHE_TTL_SEC", cfg.ProductCacheTTL); err != nil {
		return AppConfig{}, err
	}
	if cfg.IdempotencyTTL, err = getEnvSeconds("IDEMPOTENCY_TTL_SEC", cfg.IdempotencyTTL); err != nil {
		return AppConfig{}, err
	}

	tokenMin, err := getEnvInt("TOKEN_TTL_MIN", int(cfg.TokenTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TOKEN_TTL_MIN: %w", err)
	}
	if tokenMin <= 0 {
		return AppConfig{}, fmt.Errorf("TOKEN_TTL_MIN must be > 0")
	}
	cfg.TokenTTL = time.Duration(tokenMin) * time.Minute

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.OrderEventStream == "" || cfg.OrderEventGroup == "" || cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM/GROUP/CONSUMER must not be empty")
	}
	if len(cfg.CORSOrigins) == 0 {
		return AppConfig{}, fmt.Errorf("CORS_ORIGINS must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvBool 无法解析时返回默认值。
func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvSeconds 读取正整数秒数。
func getEnvSeconds(key string, fallback time.Duration) (time.Duration, error) {
	sec, err := getEnvInt(key, int(fallback/time.Second))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if sec <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return time.Duration(sec) * time.Second, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
