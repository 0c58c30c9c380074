package redis

import "fmt"

// ProductKey 商品快照缓存键。
func ProductKey(productID uint) string {
	return fmt.Sprintf("shop:product:%d", productID)
}

// CheckoutIdempotencyKey 将客户端幂等键映射到订单号，按用户隔离。
func CheckoutIdempotencyKey(userID uint, idemKey string) string {
	return fmt.Sprintf("shop:idem:checkout:%d:%s", userID, idemKey)
}

// CheckoutRateLimitUserKey 下单接口按用户限流的键。
func CheckoutRateLimitUserKey(userID uint) string {
	return fmt.Sprintf("rate_limit:checkout:user:%d", userID)
}

// CheckoutRateLimitIPKey 无法识别用户时按 IP 限流。
func CheckoutRateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:checkout:ip:%s", ip)
}
