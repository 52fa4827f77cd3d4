// Package settlement matches open trades against official settlement
// highs, computes win/loss and P&L, and updates risk cooldown state. No
// settlement-related original source file was kept in the retrieved pack;
// built from the component's prose description in this codebase's idiom.
package settlement

import (
	"fmt"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/risk"
)

// Outcome is the result of settling one trade.
type Outcome struct {
	Won        bool
	PNLCents   int64
	PostMortem string
}

// Settle computes the win/loss outcome for an OPEN trade against an
// official settlement high, respecting the bracket's open-ended edges and
// the trade's side.
func Settle(t model.Trade, s model.Settlement) Outcome {
	won := bracketWon(t, s.ObservedHighF)

	var pnl int64
	if won {
		pnl = int64(100-t.PriceCents) * int64(t.Quantity)
	} else {
		pnl = -int64(t.PriceCents) * int64(t.Quantity)
	}

	return Outcome{
		Won:        won,
		PNLCents:   pnl,
		PostMortem: postMortem(t, s, won),
	}
}

func bracketWon(t model.Trade, observedHighF float64) bool {
	inRange := bracketRangeContains(t.BracketLabel, observedHighF)
	if t.Side == model.SideYes {
		return inRange
	}
	return !inRange
}

// bracketRangeContains re-derives bracket bounds from the persisted label
// shape ("Below XF", "XF or above", "X-YF") since Trade stores only the
// label, not the structured bounds, once a bracket is committed to a row.
func bracketRangeContains(label string, temp float64) bool {
	var lower, upper float64
	var hasLower, hasUpper bool

	switch {
	case hasPrefix(label, "Below "):
		fmt.Sscanf(label, "Below %fF", &upper)
		hasUpper = true
	case hasSuffix(label, "F or above"):
		fmt.Sscanf(label, "%fF or above", &lower)
		hasLower = true
	default:
		fmt.Sscanf(label, "%f-%fF", &lower, &upper)
		hasLower, hasUpper = true, true
	}

	if hasLower && temp < lower {
		return false
	}
	if hasUpper && temp >= upper {
		return false
	}
	return true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func postMortem(t model.Trade, s model.Settlement, won bool) string {
	result := "LOST"
	if won {
		result = "WON"
	}
	return fmt.Sprintf("%s: %s %s at %d¢ x%d, settled %.1fF (observed %s)",
		result, t.City, t.BracketLabel, t.PriceCents, t.Quantity, s.ObservedHighF, t.Side)
}

// ApplyToRiskState folds a settlement outcome into the operator's risk
// counters, applying the cooldown-update rules for a win or a loss.
func ApplyToRiskState(state model.DailyRiskState, outcome Outcome, operator model.Operator, now time.Time) model.DailyRiskState {
	if outcome.Won {
		return risk.RegisterWin(state)
	}
	lossCents := -outcome.PNLCents
	return risk.RegisterLoss(state, lossCents, operator, now)
}
