package risk

// computeTPSL derives the tiered take-profit/stop-loss levels for an open
// position and reports whether the level in force BEFORE this update (prev,
// unset on a position's first tick) was hit by the current mark, per
// spec.md §4.7's manage_position. entry/qty describe the position (qty
// signed: positive long, negative short), mid is the current mark price,
// risk is ATR*ATRMultiplier, unrealizedPnL is the position's mark-to-market
// P&L. Since new_tp/new_sl are always computed from the current mid (so a
// fresh TP sits on the far side of it by construction), hit detection
// necessarily checks the previous tick's levels, not the ones this call
// returns — those become the active levels for the next tick.
func computeTPSL(entry, qty, mid, risk, unrealizedPnL float64, prev tpsl, havePrev bool) tpslResult {
	long := qty > 0

	pnlPct := unrealizedPnL / abs(qty*entry)

	var rMultiple float64
	if long {
		rMultiple = (mid - entry) / risk
	} else {
		rMultiple = -(mid - entry) / risk
	}

	var sl, tp float64
	switch {
	case pnlPct >= 0.02 && rMultiple >= 2:
		if long {
			sl, tp = entry+0.5*risk, mid+1.5*risk
		} else {
			sl, tp = entry-0.5*risk, mid-1.5*risk
		}
	case pnlPct >= 0.01 || rMultiple >= 1.5:
		if long {
			sl, tp = entry+risk, mid+2*risk
		} else {
			sl, tp = entry-risk, mid-2*risk
		}
	default:
		if long {
			sl, tp = entry-risk, mid+2*risk
		} else {
			sl, tp = entry+risk, mid-2*risk
		}
	}

	var hit bool
	if havePrev {
		if long {
			hit = mid >= prev.takeProfit || mid <= prev.stopLoss
		} else {
			hit = mid <= prev.takeProfit || mid >= prev.stopLoss
		}
	}

	return tpslResult{hit: hit, stopLoss: sl, takeProfit: tp, rMultiple: rMultiple, pnlPct: pnlPct}
}
