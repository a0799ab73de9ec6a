// Package strategy is the MACD signal generator (C6): it consumes closed
// candlesticks for a set of symbols, incrementally tracks MACD/Signal EMAs,
// and emits a Buy/Sell/Hold verdict on every closed candle.
package strategy

import "trading-core/internal/model"

// Params tunes the MACD computation. DefaultParams matches spec.md §4.6.
type Params struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
	Smoothing    float64
}

// DefaultParams is fast=12, slow=26, signal=9, smoothing=2.
func DefaultParams() Params {
	return Params{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9, Smoothing: 2}
}

// historySeedCandles is how many closed candles the strategy tries to fetch
// before admitting live ones, per spec.md §4.6's "initialization must run on
// historical candles to seed EMAs".
const historySeedCandles = 200

// HistoricalFetcher fetches the last n closed candles for symbol at
// interval, oldest first. internal/data implements it against the REST
// klines endpoint; tests can stub it.
type HistoricalFetcher interface {
	GetKlines(symbol string, interval model.TimeInterval, n int) ([]model.Kline, error)
}
