// Package risk is the ATR-driven position sizer and TP/SL manager (C7): it
// consumes signals, order-book tops and closed candles for a set of
// symbols, sizes and places orders against an Exchange, manages tiered
// take-profit/stop-loss intent per open position, and runs a drawdown
// watchdog that force-opens the circuit breaker and liquidates on breach.
package risk

import "time"

// Config tunes sizing, exposure and drawdown thresholds. DefaultConfig
// matches spec.md §4.7/§6.
type Config struct {
	MaxRiskPerTradePct float64 // fraction of mid-price risked per trade sizing calc
	MaxExposurePct     float64 // fraction of (cash+unrealized) allowed as exposure
	MaxRelativeDD      float64 // peak-to-current drawdown fraction
	MaxAbsoluteDD      float64 // initial-to-current drawdown fraction

	ATRPeriod     int     // candles in the ATR rolling window
	ATRMultiplier float64 // risk = ATR * ATRMultiplier

	DrawdownCheckInterval time.Duration
}

// DefaultConfig returns the spec's defaults: 5% relative drawdown, 10%
// absolute drawdown, ATR(14) with a 1.0 multiplier, checked every 30s.
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTradePct:    0.01,
		MaxExposurePct:        0.5,
		MaxRelativeDD:         0.05,
		MaxAbsoluteDD:         0.10,
		ATRPeriod:             14,
		ATRMultiplier:         1.0,
		DrawdownCheckInterval: 30 * time.Second,
	}
}

// tpsl is one open position's active take-profit/stop-loss intent, owned
// exclusively by the Manager per spec.md's ownership rule.
type tpsl struct {
	stopLoss   float64
	takeProfit float64
}

// tpslResult is managePosition's report: whether either level was hit, the
// (possibly retightened) levels, and the risk metrics that drove the tier
// decision.
type tpslResult struct {
	hit        bool
	stopLoss   float64
	takeProfit float64
	rMultiple  float64
	pnlPct     float64
}
