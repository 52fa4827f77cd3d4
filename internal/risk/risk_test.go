package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func baseOperator() model.Operator {
	return model.Operator{
		TradingMode:            model.TradingModeAuto,
		MaxTradeSizeCents:      10_000,
		DailyLossLimitCents:    50_000,
		MaxDailyExposureCents:  100_000,
		ConsecutiveLossLimit:   3,
		CooldownMinutesPerLoss: 60,
	}
}

func baseState() model.DailyRiskState {
	return model.DailyRiskState{TradingDay: time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)}
}

func TestEvaluatePassesWithinAllLimits(t *testing.T) {
	err := Evaluate(time.Now(), 12, baseOperator(), baseState(), Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 5_000, WorstLossCents: 5_000})
	if err != nil {
		t.Fatalf("want no error, got %v", err)
	}
}

func TestEvaluateRejectsOutsideTradingWindow(t *testing.T) {
	err := Evaluate(time.Now(), 4, baseOperator(), baseState(), Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 1_000, WorstLossCents: 1_000})
	if err != ErrOutsideTradingWindow {
		t.Errorf("err = %v, want ErrOutsideTradingWindow", err)
	}
}

func TestEvaluateRejectsActiveCooldown(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	state := baseState()
	state.CooldownUntil = &until
	err := Evaluate(time.Now(), 12, baseOperator(), state, Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 1_000, WorstLossCents: 1_000})
	if err != ErrCooldownActive {
		t.Errorf("err = %v, want ErrCooldownActive", err)
	}
}

func TestEvaluateRejectsConsecutiveLossLimit(t *testing.T) {
	state := baseState()
	state.ConsecutiveLosses = 3
	err := Evaluate(time.Now(), 12, baseOperator(), state, Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 1_000, WorstLossCents: 1_000})
	if err != ErrCooldownActive {
		t.Errorf("err = %v, want ErrCooldownActive", err)
	}
}

func TestEvaluateRejectsDailyLossLimit(t *testing.T) {
	state := baseState()
	state.TotalLossCents = 49_000
	err := Evaluate(time.Now(), 12, baseOperator(), state, Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 1_000, WorstLossCents: 2_000})
	if err != ErrDailyLossLimitExceeded {
		t.Errorf("err = %v, want ErrDailyLossLimitExceeded", err)
	}
}

func TestEvaluateRejectsMaxExposure(t *testing.T) {
	state := baseState()
	state.TotalExposureCents = 95_000
	err := Evaluate(time.Now(), 12, baseOperator(), state, Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 10_000, WorstLossCents: 1_000})
	if err != ErrMaxExposureExceeded {
		t.Errorf("err = %v, want ErrMaxExposureExceeded", err)
	}
}

func TestEvaluateRejectsMaxTradeSize(t *testing.T) {
	err := Evaluate(time.Now(), 12, baseOperator(), baseState(), Limits{}, nil,
		Signal{City: model.CityNYC, CostCents: 11_000, WorstLossCents: 1_000})
	if err != ErrMaxTradeSizeExceeded {
		t.Errorf("err = %v, want ErrMaxTradeSizeExceeded", err)
	}
}

func TestEvaluateRejectsCorrelatedRegionAcrossSharedOffset(t *testing.T) {
	limits := Limits{MaxPerCityCents: 50_000, MaxCorrelatedRegionCents: 8_000}
	exposures := map[model.City]int64{model.CityMIA: 6_000} // MIA shares UTC-5 with NYC
	err := Evaluate(time.Now(), 12, baseOperator(), baseState(), limits, exposures,
		Signal{City: model.CityNYC, CostCents: 5_000, WorstLossCents: 1_000})
	if err != ErrCorrelatedRegionLimitExceeded {
		t.Errorf("err = %v, want ErrCorrelatedRegionLimitExceeded (6000+5000 > 8000)", err)
	}
}

func TestEvaluateIgnoresUnrelatedOffsetExposure(t *testing.T) {
	limits := Limits{MaxPerCityCents: 50_000, MaxCorrelatedRegionCents: 8_000}
	exposures := map[model.City]int64{model.CityCHI: 6_000} // CHI shares UTC-6 with AUS, not NYC
	err := Evaluate(time.Now(), 12, baseOperator(), baseState(), limits, exposures,
		Signal{City: model.CityNYC, CostCents: 5_000, WorstLossCents: 1_000})
	if err != nil {
		t.Errorf("want no error (CHI exposure uncorrelated with NYC), got %v", err)
	}
}

func TestNeedsDailyReset(t *testing.T) {
	state := baseState()
	if NeedsDailyReset(state, state.TradingDay) {
		t.Error("same trading day should not need reset")
	}
	if !NeedsDailyReset(state, state.TradingDay.AddDate(0, 0, 1)) {
		t.Error("different trading day should need reset")
	}
}

func TestResetForDayClearsCounters(t *testing.T) {
	opID := uuid.New()
	fresh := ResetForDay(opID, time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC))
	if fresh.OperatorID != opID {
		t.Error("OperatorID not preserved")
	}
	if fresh.TotalLossCents != 0 || fresh.CooldownUntil != nil || fresh.ConsecutiveLosses != 0 {
		t.Error("ResetForDay must clear all counters")
	}
}

func TestRegisterLossTriggersCooldownAtLimit(t *testing.T) {
	op := baseOperator()
	state := baseState()
	state.ConsecutiveLosses = 2 // one more loss reaches the limit of 3
	now := time.Now()
	state = RegisterLoss(state, 1_000, op, now)
	if state.ConsecutiveLosses != 3 {
		t.Errorf("ConsecutiveLosses = %d, want 3", state.ConsecutiveLosses)
	}
	if state.CooldownUntil == nil {
		t.Fatal("CooldownUntil must be set once the consecutive-loss limit is reached")
	}
	if !state.CooldownUntil.After(now) {
		t.Error("CooldownUntil must be in the future")
	}
}

func TestRegisterWinResetsConsecutiveLosses(t *testing.T) {
	state := baseState()
	state.ConsecutiveLosses = 2
	state = RegisterWin(state)
	if state.ConsecutiveLosses != 0 {
		t.Errorf("ConsecutiveLosses = %d, want 0", state.ConsecutiveLosses)
	}
}
