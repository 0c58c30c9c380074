package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// envelope 服务端统一响应。
type envelope struct {
	Code   int             `json:"code"`
	Reason string          `json:"reason"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Uint("product", 1, "product id")
	quantity := flag.Int("qty", 1, "quantity per cart")
	prefix := flag.String("prefix", fmt.Sprintf("lt%d", time.Now().Unix()%100000), "username prefix")

	// 超卖测试参数：N 个用户各自下单，库存不足时应有部分失败而不是超卖
	nUsers := flag.Int("users", 50, "distinct users")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	before, err := getStock(client, *baseURL, *productID)
	if err != nil {
		panic(fmt.Sprintf("stock check failed: %v", err))
	}
	fmt.Printf("product=%d stock before=%d\n", *productID, before)

	// 1) 准备：注册、登录、加购（串行，避免准备阶段本身受写锁影响）
	tokens := make([]string, 0, *nUsers)
	for i := 0; i < *nUsers; i++ {
		token, err := prepareUser(client, *baseURL, fmt.Sprintf("%s_%d", *prefix, i), uint(*productID), *quantity)
		if err != nil {
			panic(fmt.Sprintf("prepare user %d: %v", i, err))
		}
		tokens = append(tokens, token)
	}
	fmt.Printf("prepared %d users\n", len(tokens))

	// 2) 并发下单
	fmt.Printf("start checkout test: users=%d concurrency=%d\n", len(tokens), *concurrency)
	results := runCheckout(client, *baseURL, tokens, *concurrency)
	printSummary("checkout", results)

	after, err := getStock(client, *baseURL, *productID)
	if err != nil {
		fmt.Println("stock check err:", err)
		return
	}
	okCount := 0
	for _, r := range results {
		if r.Err == nil && r.Status == http.StatusOK {
			okCount++
		}
	}
	fmt.Printf("stock after=%d sold=%d successful orders=%d\n", after, before-after, okCount)
	if after < 0 || before-after != okCount*(*quantity) {
		fmt.Println("MISMATCH: stock change does not match successful orders")
	}
}

func prepareUser(client *http.Client, baseURL, username string, productID uint, qty int) (string, error) {
	const password = "loadtest123"
	if _, err := doJSON(client, http.MethodPost, baseURL+"/api/register", "", map[string]any{
		"username": username, "email": username + "@loadtest.local", "password": password,
	}); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	env, err := doJSON(client, http.MethodPost, baseURL+"/api/login", "", map[string]any{
		"username": username, "password": password,
	})
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &login); err != nil {
		return "", err
	}
	if _, err := doJSON(client, http.MethodPost, baseURL+"/api/cart/add", login.AccessToken, map[string]any{
		"product_id": productID, "quantity": qty,
	}); err != nil {
		return "", fmt.Errorf("add to cart: %w", err)
	}
	return login.AccessToken, nil
}

func runCheckout(client *http.Client, baseURL string, tokens []string, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(tokens))

	// 所有 goroutine 就绪后同时放行，尽量制造写锁竞争
	start := make(chan struct{})
	for i, token := range tokens {
		wg.Add(1)
		go func(idx int, token string) {
			defer wg.Done()
			<-start
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = checkoutOnce(client, baseURL, token)
		}(i, token)
	}
	close(start)

	wg.Wait()
	return results
}

func checkoutOnce(client *http.Client, baseURL, token string) Result {
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/order/place", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码和失败原因分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	reasons := map[string]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
		if r.Status != http.StatusOK {
			var env envelope
			if json.Unmarshal([]byte(r.Body), &env) == nil && env.Reason != "" {
				reasons[env.Reason]++
			}
		}
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 401, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	for reason, n := range reasons {
		fmt.Printf("  reason %s -> %d\n", reason, n)
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doJSON 发送 JSON 请求，非 2xx 视为错误。
func doJSON(client *http.Client, method, url, token string, body any) (envelope, error) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return envelope{}, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

// getStock 从商品列表读取库存。列表直接查库，不经过商品缓存。
func getStock(client *http.Client, baseURL string, productID uint) (int, error) {
	env, err := doJSON(client, http.MethodGet, baseURL+"/api/products", "", nil)
	if err != nil {
		return 0, err
	}
	var list []struct {
		ID            uint `json:"id"`
		StockQuantity int  `json:"stock_quantity"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		return 0, err
	}
	for _, p := range list {
		if p.ID == productID {
			return p.StockQuantity, nil
		}
	}
	return 0, fmt.Errorf("product %d not found", productID)
}
