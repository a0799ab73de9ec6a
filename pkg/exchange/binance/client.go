// Package binance implements gateway.Exchange against Binance USDT-M
// futures: signed REST for orders/positions/account, and reconnecting
// websockets for depth/kline/user-data streams.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"trading-core/pkg/exchange/common"
)

// Config holds Binance USDT-M futures credentials and connection options.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// restBaseURL returns the REST host for cfg.Testnet.
func restBaseURL(testnet bool) string {
	if testnet {
		return "https://testnet.binancefuture.com"
	}
	return "https://fapi.binance.com"
}

// streamBaseURL returns the websocket host for cfg.Testnet.
func streamBaseURL(testnet bool) string {
	if testnet {
		return "wss://stream.binancefuture.com"
	}
	return "wss://fstream.binance.com"
}

// client is the signed-REST half of the Binance futures binding. Two
// independent rate controls guard it: limiter throttles outgoing request
// rate proactively (golang.org/x/time/rate, a client-side token bucket),
// while rateLimiter tracks the exchange's reported used-weight reactively
// off response headers.
type client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	limiter     *rate.Limiter
}

func newClient(cfg Config) *client {
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	c := &client{
		cfg:        cfg,
		baseURL:    restBaseURL(cfg.Testnet),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/2400), 50),
	}
	c.timeSync = common.NewTimeSync(func() (int64, error) {
		return c.getServerTime(context.Background())
	})
	c.rateLimiter = common.NewRateLimiter(2400, time.Minute)
	return c
}

func (c *client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

func (c *client) getServerTime(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ServerTime, nil
}

// createListenKey opens a user-data stream listen key.
func (c *client) createListenKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fapi/v1/listenKey", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("create listen key status %d: %s", res.StatusCode, string(b))
	}
	var out struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ListenKey, nil
}

// keepAliveListenKey extends the listen key's 60-minute expiry. The
// Exchange's keepAliveLoop calls this every 15 minutes per spec.md §4.3.
func (c *client) keepAliveListenKey(ctx context.Context, listenKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/fapi/v1/listenKey?listenKey="+listenKey, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("keepalive listen key status %d: %s", res.StatusCode, string(b))
	}
	return nil
}

// doSigned HMAC-signs params and executes a REST call, tracking the
// returned used-weight header in the rate limiter.
func (c *client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("binance futures: rate limiter: %w", err)
	}

	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance futures: status %d: %s", res.StatusCode, string(body))
	}
	return body, nil
}
