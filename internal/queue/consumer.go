package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	rediskey "online_store/pkg/redis"

	"github.com/segmentio/kafka-go"
)

// Consumer 消费订单事件，失效被扣减库存商品的缓存。
type Consumer struct {
	r     *kafka.Reader
	cache *rediskey.ProductCache
}

func NewConsumer(brokers []string, topic, groupID string, cache *rediskey.ProductCache) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		cache: cache,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := c.handle(ctx, m.Value); err != nil {
			log.Printf("consumer order event key=%s: %v", string(m.Key), err)
		}
	}
}

// handle 失效是幂等的，重复消息无副作用。
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var msg OrderMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, msg.ProductIDs()...)
}
