package strategy

import "trading-core/internal/model"

// ema is a single exponential moving average accumulator. The first Update
// call seeds the average to its input rather than averaging against zero,
// per spec.md §4.6.
type ema struct {
	alpha   float64
	value   float64
	seeded  bool
	periods int // period the alpha was derived from, kept for the "filled" check
	updates int
}

func newEMA(period int, smoothing float64) *ema {
	return &ema{alpha: smoothing / (float64(period) + 1), periods: period}
}

func (e *ema) Update(v float64) float64 {
	if !e.seeded {
		e.value = v
		e.seeded = true
	} else {
		e.value = e.alpha*v + (1-e.alpha)*e.value
	}
	e.updates++
	return e.value
}

// macdSeries is one symbol's running MACD state: EMA_fast, EMA_slow, their
// difference, and the EMA-of-MACD signal line, plus the hysteresis state
// spec.md §4.6 requires so a crossing emits exactly one signal.
//
// warmupRemaining gates signal emission, not EMA computation: the EMAs
// always update from the first candle (seeding to that candle's price), but
// a series built with no historical seed is asked to hold its verdict for
// warmupRemaining more updates (spec.md §4.6's cold-start fallback).
// Normal operation seeds from historical candles first, so warmupRemaining
// is zero and the very first live candle can emit.
type macdSeries struct {
	params Params

	fast   *ema
	slow   *ema
	signal *ema

	macd       float64
	signalLine float64

	lastStartTime int64 // dedupe by candle start_time
	seenAny       bool

	warmupRemaining int
	lastAction      model.SignalAction
}

func newMACDSeries(p Params) *macdSeries {
	return &macdSeries{
		params:     p,
		fast:       newEMA(p.FastPeriod, p.Smoothing),
		slow:       newEMA(p.SlowPeriod, p.Smoothing),
		signal:     newEMA(p.SignalPeriod, p.Smoothing),
		lastAction: model.ActionHold,
	}
}

// requireWarmup marks the series as having started without a historical
// seed: the next n updates compute EMAs as normal but emit only Hold.
func (s *macdSeries) requireWarmup(n int) {
	s.warmupRemaining = n
}

// update feeds one closed candle's close price into the series, returning
// the emitted action. Duplicate candles (same start time) are ignored and
// return Hold without touching state.
func (s *macdSeries) update(k model.Kline) model.SignalAction {
	startMs := k.OpenTime.UnixMilli()
	if s.seenAny && startMs == s.lastStartTime {
		return model.ActionHold
	}
	s.seenAny = true
	s.lastStartTime = startMs

	fastV := s.fast.Update(k.Close)
	slowV := s.slow.Update(k.Close)
	s.macd = fastV - slowV
	s.signalLine = s.signal.Update(s.macd)

	if s.warmupRemaining > 0 {
		s.warmupRemaining--
		return model.ActionHold
	}

	switch {
	case s.macd > s.signalLine && s.lastAction != model.ActionBuy:
		s.lastAction = model.ActionBuy
		return model.ActionBuy
	case s.macd < s.signalLine && s.lastAction != model.ActionSell:
		s.lastAction = model.ActionSell
		return model.ActionSell
	default:
		return model.ActionHold
	}
}
