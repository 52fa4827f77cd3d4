// Package risk evaluates trade signals against the operator's risk gates
// and tracks the per-trading-day risk counters and cooldown state. The
// correlated-region gate generalizes the prior H3-prefix position
// limiter (internal/correlation) to weather markets: the correlation key
// is a city's standard UTC offset rather than an H3 cell prefix.
package risk

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/station"
)

// Rejection reasons, in gate evaluation order.
var (
	ErrOutsideTradingWindow   = errors.New("risk: outside trading window")
	ErrCooldownActive         = errors.New("risk: operator cooldown active")
	ErrDailyLossLimitExceeded = errors.New("risk: daily loss limit would be exceeded")
	ErrMaxExposureExceeded    = errors.New("risk: max daily exposure would be exceeded")
	ErrMaxTradeSizeExceeded   = errors.New("risk: max trade size exceeded")
	ErrPerCityLimitExceeded   = errors.New("risk: per-city exposure limit exceeded")
	ErrCorrelatedRegionLimitExceeded = errors.New("risk: correlated weather region exposure limit exceeded")
)

const (
	tradingWindowStartHour = 6
	tradingWindowEndHour   = 23
)

// Limits configures the correlated-region gate. MaxPerCityCents plays the
// prior limiter's MaxPerCell role; MaxCorrelatedRegionCents plays
// MaxCorrelated.
type Limits struct {
	MaxPerCityCents          int64
	MaxCorrelatedRegionCents int64
}

// Signal is the subset of a trade signal the risk gates need.
type Signal struct {
	City          model.City
	CostCents     int64 // price_cents * qty
	WorstLossCents int64 // cost if the trade loses outright
}

// Evaluate runs every gate in fixed order, returning the first violated
// reason, or nil if the signal clears all gates. cityExposures is the
// caller-supplied map of current open exposure per city (queried from
// OPEN trades), used only by the correlated-region gate.
func Evaluate(
	now time.Time,
	localHour int,
	operator model.Operator,
	state model.DailyRiskState,
	limits Limits,
	cityExposures map[model.City]int64,
	sig Signal,
) error {
	if localHour < tradingWindowStartHour || localHour > tradingWindowEndHour {
		return ErrOutsideTradingWindow
	}

	if state.CooldownUntil != nil && now.Before(*state.CooldownUntil) {
		return ErrCooldownActive
	}
	if state.ConsecutiveLosses >= operator.ConsecutiveLossLimit && operator.ConsecutiveLossLimit > 0 {
		return ErrCooldownActive
	}

	if state.TotalLossCents+sig.WorstLossCents > operator.DailyLossLimitCents {
		return ErrDailyLossLimitExceeded
	}

	if state.TotalExposureCents+sig.CostCents > operator.MaxDailyExposureCents {
		return ErrMaxExposureExceeded
	}

	if sig.CostCents > operator.MaxTradeSizeCents {
		return ErrMaxTradeSizeExceeded
	}

	if err := checkCorrelatedRegion(sig.City, sig.CostCents, cityExposures, limits); err != nil {
		return err
	}

	return nil
}

// checkCorrelatedRegion mirrors PositionLimiter.CheckLimit:
// first the per-city limit, then the aggregate limit across every city
// sharing the signal city's standard UTC offset.
func checkCorrelatedRegion(city model.City, costCents int64, cityExposures map[model.City]int64, limits Limits) error {
	currentInCity := cityExposures[city]
	newPosition := currentInCity + costCents

	if limits.MaxPerCityCents > 0 && newPosition > limits.MaxPerCityCents {
		return ErrPerCityLimitExceeded
	}

	targetOffset, err := offsetFor(city)
	if err != nil {
		return nil // unknown city code is a config error caught elsewhere; do not block on it here
	}

	totalCorrelated := newPosition
	for otherCity, exposure := range cityExposures {
		if otherCity == city {
			continue
		}
		otherOffset, err := offsetFor(otherCity)
		if err != nil || otherOffset != targetOffset {
			continue
		}
		totalCorrelated += exposure
	}

	if limits.MaxCorrelatedRegionCents > 0 && totalCorrelated > limits.MaxCorrelatedRegionCents {
		return ErrCorrelatedRegionLimitExceeded
	}
	return nil
}

func offsetFor(city model.City) (int, error) {
	cfg, err := station.Get(city)
	if err != nil {
		return 0, err
	}
	return cfg.StandardUTCOffset, nil
}

// NeedsDailyReset reports whether state was stamped for a trading day
// other than tradingDay, implementing the "daily reset" rule.
func NeedsDailyReset(state model.DailyRiskState, tradingDay time.Time) bool {
	return !civilDateEqual(state.TradingDay, tradingDay)
}

// ResetForDay returns a fresh risk-state row for the given operator and
// trading day, clearing cooldown and counters.
func ResetForDay(operatorID uuid.UUID, tradingDay time.Time) model.DailyRiskState {
	return model.DailyRiskState{
		OperatorID: operatorID,
		TradingDay: tradingDay,
	}
}

func civilDateEqual(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// RegisterLoss updates state after a trade settles as a loss: increments
// consecutive losses, adds to the daily loss total, and — if the new
// consecutive-loss count reaches the operator's limit — sets cooldown_until
// per the operator's configured cooldown duration.
func RegisterLoss(state model.DailyRiskState, lossCents int64, operator model.Operator, now time.Time) model.DailyRiskState {
	state.TotalLossCents += lossCents
	state.ConsecutiveLosses++
	if operator.ConsecutiveLossLimit > 0 && state.ConsecutiveLosses >= operator.ConsecutiveLossLimit {
		until := now.Add(time.Duration(operator.CooldownMinutesPerLoss) * time.Minute)
		state.CooldownUntil = &until
	}
	return state
}

// RegisterWin resets the consecutive-loss counter after a win, per the
// standard cooldown reset semantics.
func RegisterWin(state model.DailyRiskState) model.DailyRiskState {
	state.ConsecutiveLosses = 0
	return state
}
