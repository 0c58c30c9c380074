package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// idemPending 占位值：请求已受理、订单尚未提交。
const idemPending = "pending"

// luaClaimIdempotencyKey 原子地「已存在则返回旧值，否则写入占位」。
// 返回 "" 表示本次抢到；"pending" 表示同键请求处理中；其他为已完成的订单号。
const luaClaimIdempotencyKey = `
local key = KEYS[1]
local pendingMs = tonumber(ARGV[1])
local cur = redis.call('GET', key)
if cur then
  return cur
end
redis.call('SET', key, 'pending', 'PX', pendingMs)
return ''
`

// luaReleaseIfPending 仅当仍是占位值时才删除，避免误删已完成的映射。
const luaReleaseIfPending = `
if redis.call('GET', KEYS[1]) == 'pending' then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// IdemState 幂等键当前状态。
type IdemState int

const (
	IdemClaimed   IdemState = iota // 本次请求拿到键，继续下单
	IdemInFlight                   // 同键请求正在处理
	IdemCompleted                  // 已有订单，OrderID 有效
)

// ClaimCheckoutKey 抢占幂等键。占位只保留 pendingTTL（应覆盖一次下单的最长耗时），
// 进程在释放前崩溃时键会自行过期；成功后由 CompleteCheckoutKey 写入长期映射。
func ClaimCheckoutKey(ctx context.Context, rdb *rd.Client, userID uint, idemKey string, pendingTTL time.Duration) (IdemState, uint, error) {
	key := CheckoutIdempotencyKey(userID, idemKey)
	cur, err := rdb.Eval(ctx, luaClaimIdempotencyKey, []string{key}, pendingTTL.Milliseconds()).Text()
	if err != nil {
		return 0, 0, err
	}
	switch cur {
	case "":
		return IdemClaimed, 0, nil
	case idemPending:
		return IdemInFlight, 0, nil
	}
	id, err := strconv.ParseUint(cur, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return IdemCompleted, uint(id), nil
}

// CompleteCheckoutKey 下单成功后记录订单号，有效期 ttl。
func CompleteCheckoutKey(ctx context.Context, rdb *rd.Client, userID uint, idemKey string, orderID uint, ttl time.Duration) error {
	key := CheckoutIdempotencyKey(userID, idemKey)
	return rdb.Set(ctx, key, strconv.FormatUint(uint64(orderID), 10), ttl).Err()
}

// ReleaseCheckoutKey 下单失败后释放占位，允许客户端用同一键重试。
func ReleaseCheckoutKey(ctx context.Context, rdb *rd.Client, userID uint, idemKey string) error {
	key := CheckoutIdempotencyKey(userID, idemKey)
	_, err := rdb.Eval(ctx, luaReleaseIfPending, []string{key}).Int()
	return err
}
