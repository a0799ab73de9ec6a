// Package data backfills closed candles over Binance's public REST klines
// endpoint, adapted from the teacher's HistoricalDataService so the
// strategy can seed its EMAs before admitting live candles (§4.6).
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"trading-core/internal/model"
)

// HistoricalFetcher implements strategy.HistoricalFetcher against
// Binance USDT-M futures' public (unsigned) klines endpoint.
type HistoricalFetcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewHistoricalFetcher builds a fetcher against testnet or mainnet.
func NewHistoricalFetcher(testnet bool) *HistoricalFetcher {
	base := "https://fapi.binance.com"
	if testnet {
		base = "https://testnet.binancefuture.com"
	}
	return &HistoricalFetcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    base,
	}
}

// GetKlines fetches the most recent n closed candles for symbol at
// interval, oldest first.
func (f *HistoricalFetcher) GetKlines(symbol string, interval model.TimeInterval, n int) ([]model.Kline, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reqURL := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d", f.baseURL, symbol, interval, n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("data: build klines request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("data: fetch klines for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("data: read klines response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data: klines request for %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("data: decode klines response: %w", err)
	}

	out := make([]model.Kline, 0, len(raw))
	for _, row := range raw {
		k, ok := parseRow(symbol, interval, row)
		if !ok || k.CloseTime.After(time.Now()) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func parseRow(symbol string, interval model.TimeInterval, row []any) (model.Kline, bool) {
	if len(row) < 7 {
		return model.Kline{}, false
	}
	openTimeMs, ok := row[0].(float64)
	if !ok {
		return model.Kline{}, false
	}
	open, ok1 := parseFloatField(row[1])
	high, ok2 := parseFloatField(row[2])
	low, ok3 := parseFloatField(row[3])
	closePrice, ok4 := parseFloatField(row[4])
	volume, ok5 := parseFloatField(row[5])
	closeTimeMs, ok6 := row[6].(float64)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return model.Kline{}, false
	}

	return model.Kline{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(int64(openTimeMs)),
		CloseTime: time.UnixMilli(int64(closeTimeMs)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Closed:    true,
	}, true
}

func parseFloatField(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
