package ev

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func f(v float64) *float64 { return &v }

func samplePrediction() model.Prediction {
	return model.Prediction{
		City: model.CityNYC,
		Brackets: []model.BracketProbability{
			{Label: "Below 50F", UpperBoundF: f(50), Probability: 0.1},
			{Label: "50-52F", LowerBoundF: f(50), UpperBoundF: f(52), Probability: 0.6},
			{Label: "52F or above", LowerBoundF: f(52), Probability: 0.3},
		},
	}
}

func TestValidateRejectsNilPrediction(t *testing.T) {
	err := Validate(nil, time.Now(), time.Now())
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsNaNProbability(t *testing.T) {
	pred := samplePrediction()
	pred.Brackets[0].Probability = math.NaN()
	err := Validate(&pred, time.Now(), time.Now())
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsBadProbabilitySum(t *testing.T) {
	pred := samplePrediction()
	pred.Brackets[0].Probability = 0.5 // now sums to 1.4
	err := Validate(&pred, time.Now(), time.Now())
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsStaleData(t *testing.T) {
	pred := samplePrediction()
	now := time.Now()
	err := Validate(&pred, now.Add(-3*time.Hour), now)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestValidatePasses(t *testing.T) {
	pred := samplePrediction()
	now := time.Now()
	if err := Validate(&pred, now.Add(-10*time.Minute), now); err != nil {
		t.Errorf("want no error, got %v", err)
	}
}

func TestValidPrice(t *testing.T) {
	if !ValidPrice(50) {
		t.Error("50 should be valid")
	}
	if ValidPrice(0) || ValidPrice(100) {
		t.Error("0 and 100 should be invalid")
	}
}

func operatorWithThreshold(threshold float64) model.Operator {
	return model.Operator{MinEVThreshold: decimal.NewFromFloat(threshold), MaxDailyExposureCents: 100_000}
}

func TestScanEmitsSignalsAboveThreshold(t *testing.T) {
	pred := samplePrediction()
	prices := map[string]int{"Below 50F": 5, "50-52F": 40, "52F or above": 20}
	signals := Scan(pred, "KXHIGHNY-26FEB18", prices, operatorWithThreshold(0.05))

	found := false
	for _, s := range signals {
		if s.Bracket.Label == "50-52F" && s.Side == model.SideYes {
			found = true
			if s.ModelP != 0.6 {
				t.Errorf("ModelP = %v, want 0.6", s.ModelP)
			}
			if s.MarketP != 0.4 {
				t.Errorf("MarketP = %v, want 0.4", s.MarketP)
			}
			wantEV := 0.6 - 0.4
			if math.Abs(s.EV-wantEV) > 1e-9 {
				t.Errorf("EV = %v, want %v", s.EV, wantEV)
			}
			if s.Qty != 1 {
				t.Errorf("Qty = %d, want 1 (Kelly disabled)", s.Qty)
			}
		}
	}
	if !found {
		t.Fatal("expected a yes-side signal on 50-52F")
	}
}

func TestScanSkipsInvalidPrices(t *testing.T) {
	pred := samplePrediction()
	prices := map[string]int{"Below 50F": 0, "50-52F": 100} // both invalid; 52F or above missing
	signals := Scan(pred, "ticker", prices, operatorWithThreshold(0.01))
	if len(signals) != 0 {
		t.Errorf("len(signals) = %d, want 0", len(signals))
	}
}

func TestScanAppliesKellySizing(t *testing.T) {
	pred := samplePrediction()
	prices := map[string]int{"Below 50F": 5, "50-52F": 40, "52F or above": 20}
	op := operatorWithThreshold(0.01)
	op.Kelly = model.KellyParams{
		Enabled:              true,
		FractionalKelly:      decimal.NewFromFloat(0.5),
		MaxBankrollPctTrade:  decimal.NewFromFloat(0.1),
		MaxContractsPerTrade: 50,
	}
	signals := Scan(pred, "ticker", prices, op)
	for _, s := range signals {
		if s.Bracket.Label == "50-52F" && s.Side == model.SideYes {
			if s.Qty <= 1 {
				t.Errorf("Qty = %d, want > 1 with Kelly sizing enabled", s.Qty)
			}
			if s.Qty > op.Kelly.MaxContractsPerTrade {
				t.Errorf("Qty = %d exceeds MaxContractsPerTrade = %d", s.Qty, op.Kelly.MaxContractsPerTrade)
			}
		}
	}
}

func TestSignalCostAndWorstLoss(t *testing.T) {
	s := Signal{PriceCents: 40, Qty: 3}
	if s.CostCents() != 120 {
		t.Errorf("CostCents = %d, want 120", s.CostCents())
	}
	if s.WorstLossCents() != 120 {
		t.Errorf("WorstLossCents = %d, want 120", s.WorstLossCents())
	}
}
