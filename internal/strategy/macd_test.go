package strategy

import (
	"math"
	"testing"
	"time"

	"trading-core/internal/model"
)

func closeKline(price float64, minuteOffset int) model.Kline {
	t := time.UnixMilli(0).Add(time.Duration(minuteOffset) * time.Minute)
	return model.Kline{
		Symbol:   "BTCUSDT",
		Interval: model.Interval1m,
		OpenTime: t,
		Close:    price,
		Closed:   true,
	}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// TestMACDSequence_ScenarioFive matches spec.md §8 scenario 5: the default
// parameters over [45000,46000,45500,47000,46500,46000] converge to
// MACD ≈ 307.064 and Signal ≈ 156.763, with the first emitted action a Buy.
func TestMACDSequence_ScenarioFive(t *testing.T) {
	prices := []float64{45000, 46000, 45500, 47000, 46500, 46000}
	s := newMACDSeries(DefaultParams())

	var firstAction model.SignalAction
	sawFirst := false
	for i, p := range prices {
		action := s.update(closeKline(p, i))
		if !sawFirst && action != model.ActionHold {
			firstAction = action
			sawFirst = true
		}
	}

	if !sawFirst {
		t.Fatalf("expected a non-Hold action somewhere in the sequence")
	}
	if firstAction != model.ActionBuy {
		t.Fatalf("first emitted action = %v, want Buy", firstAction)
	}
	if !approxEqual(s.macd, 307.064, 1e-3) {
		t.Fatalf("macd = %v, want ≈307.064", s.macd)
	}
	if !approxEqual(s.signalLine, 156.763, 1e-3) {
		t.Fatalf("signal = %v, want ≈156.763", s.signalLine)
	}
}

// TestEMA_MatchesBatchFormula checks the incremental EMA against the
// textbook batch recurrence (seed to the first value, then
// alpha*v + (1-alpha)*prev) to within 1e-9, per spec.md §8.
func TestEMA_MatchesBatchFormula(t *testing.T) {
	prices := []float64{10, 12, 11, 15, 14, 13, 16, 18, 17, 20}
	period := 5
	smoothing := 2.0
	alpha := smoothing / (float64(period) + 1)

	e := newEMA(period, smoothing)
	var want float64
	for i, p := range prices {
		got := e.Update(p)
		if i == 0 {
			want = p
		} else {
			want = alpha*p + (1-alpha)*want
		}
		if !approxEqual(got, want, 1e-9) {
			t.Fatalf("update %d: ema = %v, want %v", i, got, want)
		}
	}
}

// TestDuplicateCandle_IgnoredByStartTime verifies that feeding the same
// open time twice does not double-apply the update.
func TestDuplicateCandle_IgnoredByStartTime(t *testing.T) {
	s := newMACDSeries(DefaultParams())
	s.update(closeKline(100, 0))
	before := s.macd

	s.update(closeKline(999, 0)) // same open time, different price
	if s.macd != before {
		t.Fatalf("duplicate candle (same start time) must not mutate state: got macd=%v, want %v", s.macd, before)
	}
}

// TestHysteresis_NoRepeatSignalWithoutOppositeCrossing ensures a Buy is not
// re-emitted on every tick while MACD stays above Signal.
func TestHysteresis_NoRepeatSignalWithoutOppositeCrossing(t *testing.T) {
	s := newMACDSeries(DefaultParams())
	prices := []float64{100, 101, 102, 103, 104, 105, 106, 107}

	var actions []model.SignalAction
	for i, p := range prices {
		a := s.update(closeKline(p, i))
		if a != model.ActionHold {
			actions = append(actions, a)
		}
	}
	if len(actions) != 1 {
		t.Fatalf("expected exactly one signal emission for a monotonic run, got %d: %v", len(actions), actions)
	}
}

// TestWarmup_HoldsUntilSlowPeriodFilled verifies the cold-start fallback:
// with no historical seed, the series emits Hold until the slow period's
// worth of live candles have arrived, even if a crossing already occurred.
func TestWarmup_HoldsUntilSlowPeriodFilled(t *testing.T) {
	p := DefaultParams()
	s := newMACDSeries(p)
	s.requireWarmup(p.SlowPeriod)

	prices := []float64{45000, 46000, 45500, 47000, 46500, 46000}
	for i, price := range prices {
		if a := s.update(closeKline(price, i)); a != model.ActionHold {
			t.Fatalf("update %d: action = %v, want Hold during warm-up", i, a)
		}
	}
	if s.warmupRemaining != p.SlowPeriod-len(prices) {
		t.Fatalf("warmupRemaining = %d, want %d", s.warmupRemaining, p.SlowPeriod-len(prices))
	}
}
