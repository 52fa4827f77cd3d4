// Package ev computes expected value per bracket/side and emits trade
// signals for every combination clearing the operator's minimum EV
// threshold. No ev_calculator.py was kept in the retrieved original
// source; this package is built from the component's own prose
// description, in this codebase's idiom (plain funcs over decimal/float
// values, no class hierarchy).
package ev

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// ErrValidation covers the pre-scan validation gates: missing prediction,
// NaN probability, probabilities not summing to ~1.0, or stale data
// (checked by Validate), and a market price out of range (ValidPrice,
// checked by the trading cycle before scanning).
var ErrValidation = errors.New("ev: validation failed")

const (
	probabilitySumTolerance = 0.01
	staleAfter              = 120 * time.Minute
)

// Validate runs the pre-scan gates common to every signal in a cycle.
func Validate(pred *model.Prediction, newestFetchedAt time.Time, now time.Time) error {
	if pred == nil {
		return errAnnotate("no prediction available for this city/date")
	}
	var sum float64
	for _, b := range pred.Brackets {
		if math.IsNaN(b.Probability) {
			return errAnnotate("bracket probability is NaN")
		}
		sum += b.Probability
	}
	if math.Abs(sum-1.0) > probabilitySumTolerance {
		return errAnnotate("bracket probabilities do not sum to 1.0")
	}
	if now.Sub(newestFetchedAt) > staleAfter {
		return errAnnotate("newest forecast is stale")
	}
	return nil
}

func errAnnotate(msg string) error {
	return errors.Join(ErrValidation, errors.New(msg))
}

// ValidPrice reports whether a market price in cents is in the tradeable
// range [1, 99], both edges included, i.e. market_p strictly inside (0, 1).
func ValidPrice(priceCents int) bool {
	return priceCents > 0 && priceCents < 100
}

// Signal is one tradeable EV-positive opportunity.
type Signal struct {
	City         model.City
	Bracket      model.BracketProbability
	Side         model.Side
	PriceCents   int
	Qty          int
	ModelP       float64
	MarketP      float64
	EV           float64
	Confidence   model.Confidence
	MarketTicker string
	Reasoning    string
}

// Scan computes EV for every bracket/side and returns every signal whose
// EV meets or exceeds the operator's minimum threshold.
func Scan(pred model.Prediction, marketTicker string, bracketPrices map[string]int, operator model.Operator) []Signal {
	minEV, _ := operator.MinEVThreshold.Float64()

	var out []Signal
	for _, b := range pred.Brackets {
		priceCents, ok := bracketPrices[b.Label]
		if !ok || !ValidPrice(priceCents) {
			continue
		}
		marketP := float64(priceCents) / 100.0

		for _, side := range []model.Side{model.SideYes, model.SideNo} {
			modelP := b.Probability
			if side == model.SideNo {
				modelP = 1 - b.Probability
			}
			evValue := modelP - marketP
			if evValue < minEV {
				continue
			}
			qty := defaultOrKellyQty(modelP, marketP, priceCents, operator)
			out = append(out, Signal{
				City:         pred.City,
				Bracket:      b,
				Side:         side,
				PriceCents:   priceCents,
				Qty:          qty,
				ModelP:       modelP,
				MarketP:      marketP,
				EV:           evValue,
				Confidence:   pred.Confidence,
				MarketTicker: marketTicker,
				Reasoning:    reasoningFor(b, side, modelP, marketP, evValue),
			})
		}
	}
	return out
}

func defaultOrKellyQty(modelP, marketP float64, priceCents int, operator model.Operator) int {
	if !operator.Kelly.Enabled {
		return 1
	}
	fractionalKelly, _ := operator.Kelly.FractionalKelly.Float64()
	bankrollPct, _ := operator.Kelly.MaxBankrollPctTrade.Float64()

	bankroll := float64(operator.MaxDailyExposureCents) * bankrollPct
	edge := modelP - marketP
	denom := 1 - marketP
	if denom <= 0 || priceCents <= 0 {
		return 1
	}
	raw := math.Floor(edge / denom * fractionalKelly * bankroll / float64(priceCents))
	qty := int(raw)
	if qty < 1 {
		qty = 1
	}
	if operator.Kelly.MaxContractsPerTrade > 0 && qty > operator.Kelly.MaxContractsPerTrade {
		qty = operator.Kelly.MaxContractsPerTrade
	}
	return qty
}

func reasoningFor(b model.BracketProbability, side model.Side, modelP, marketP, evValue float64) string {
	return decimal.NewFromFloat(evValue).Round(4).String() + " edge on " + b.Label + " (" + string(side) + ")"
}

// CostCents is the signal's total position cost in cents.
func (s Signal) CostCents() int64 {
	return int64(s.PriceCents) * int64(s.Qty)
}

// WorstLossCents is the signal's maximum loss if the position goes to
// zero, equal to its cost (a bought contract's downside is its price).
func (s Signal) WorstLossCents() int64 {
	return s.CostCents()
}
