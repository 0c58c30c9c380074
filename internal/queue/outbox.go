package queue

import (
	"context"
	"encoding/json"

	"online_store/internal/model"

	rd "github.com/redis/go-redis/v9"
)

// outboxMaxLen Stream 近似上限，防止 Relay 长时间不可用时无限增长。
const outboxMaxLen = 100000

// Outbox 把已提交订单写入 Redis Stream，由 Relay 异步转发到 Kafka。
// 实现 order.EventSink。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

func (o *Outbox) OrderPlaced(ctx context.Context, order *model.Order) error {
	msg := NewOrderMessage(order)
	if err := msg.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: outboxMaxLen,
		Approx: true,
		Values: map[string]any{
			"order_id": msg.Key(),
			"payload":  string(b),
		},
	}).Err()
}
