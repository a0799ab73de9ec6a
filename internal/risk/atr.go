package risk

import "trading-core/internal/indicators"

// atr computes the Average True Range over up to the last period closed
// candles in ring: mean(max(h-l, |h-prevClose|, |l-prevClose|)). It is
// valid from the first true-range sample onward (two candles), averaging
// over whatever window is filled so far, matching the original
// `calculate_atr`'s `rolling(window=period, min_periods=1).mean()`
// (_examples/original_source/app/risk/risk_manager.py:131) rather than
// requiring a full period+1 candles before producing a value. Once the
// window is fully filled, the average runs through indicators.SMA; before
// that it is a plain mean of the partial sample. Returns (0, false) when
// fewer than two candles are available (no true range can be computed).
func atr(ring *candleRing, period int) (float64, bool) {
	if ring.len() < 2 {
		return 0, false
	}

	window := period + 1
	if ring.len() < window {
		window = ring.len()
	}

	candles := ring.last(window)
	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		h, l := candles[i].High, candles[i].Low
		prevClose := candles[i-1].Close

		trueRange := h - l
		if v := abs(h - prevClose); v > trueRange {
			trueRange = v
		}
		if v := abs(l - prevClose); v > trueRange {
			trueRange = v
		}
		trueRanges = append(trueRanges, trueRange)
	}

	if len(trueRanges) == period {
		return indicators.SMA(trueRanges, period), true
	}
	sum := 0.0
	for _, v := range trueRanges {
		sum += v
	}
	return sum / float64(len(trueRanges)), true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// positionSize computes a contract quantity from the mid price and ATR:
// raw = (mid * maxRiskPerTradePct) / atr, scaled down by 1000 to a
// reasonable contract size. Valid only when atr > 0 and mid is known,
// per spec.md §4.7; open question (a) in SPEC_FULL.md notes the ÷1000
// scaler is kept as specified, with lot-size rounding left to the
// exchange binding.
func positionSize(mid, atrValue, maxRiskPerTradePct float64) (float64, bool) {
	if atrValue <= 0 || mid <= 0 {
		return 0, false
	}
	raw := (mid * maxRiskPerTradePct) / atrValue
	return raw / 1000, true
}
