package settlement

import (
	"testing"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func TestSettleYesWinsInsideMiddleBracket(t *testing.T) {
	trade := model.Trade{City: model.CityNYC, BracketLabel: "52-54F", Side: model.SideYes, PriceCents: 40, Quantity: 2}
	s := model.Settlement{ObservedHighF: 53.0}
	out := Settle(trade, s)
	if !out.Won {
		t.Fatal("want win, 53 is inside 52-54")
	}
	if out.PNLCents != int64(100-40)*2 {
		t.Errorf("PNLCents = %d, want %d", out.PNLCents, int64(100-40)*2)
	}
}

func TestSettleYesLosesOutsideMiddleBracket(t *testing.T) {
	trade := model.Trade{City: model.CityNYC, BracketLabel: "52-54F", Side: model.SideYes, PriceCents: 40, Quantity: 2}
	s := model.Settlement{ObservedHighF: 55.0}
	out := Settle(trade, s)
	if out.Won {
		t.Fatal("want loss, 55 is outside 52-54 (upper bound exclusive)")
	}
	if out.PNLCents != -int64(40)*2 {
		t.Errorf("PNLCents = %d, want %d", out.PNLCents, -int64(40)*2)
	}
}

func TestSettleUpperBoundIsExclusive(t *testing.T) {
	trade := model.Trade{BracketLabel: "52-54F", Side: model.SideYes, PriceCents: 40, Quantity: 1}
	out := Settle(trade, model.Settlement{ObservedHighF: 54.0})
	if out.Won {
		t.Error("54.0 at the cap must not win a 52-54F bracket")
	}
}

func TestSettleBottomEdgeBracket(t *testing.T) {
	trade := model.Trade{BracketLabel: "Below 48F", Side: model.SideYes, PriceCents: 10, Quantity: 1}
	out := Settle(trade, model.Settlement{ObservedHighF: 45.0})
	if !out.Won {
		t.Error("45 should win Below 48F")
	}
}

func TestSettleTopEdgeBracket(t *testing.T) {
	trade := model.Trade{BracketLabel: "70F or above", Side: model.SideYes, PriceCents: 20, Quantity: 1}
	out := Settle(trade, model.Settlement{ObservedHighF: 72.0})
	if !out.Won {
		t.Error("72 should win 70F or above")
	}
}

func TestSettleNoSideInvertsOutcome(t *testing.T) {
	trade := model.Trade{BracketLabel: "52-54F", Side: model.SideNo, PriceCents: 60, Quantity: 1}
	out := Settle(trade, model.Settlement{ObservedHighF: 60.0}) // outside range
	if !out.Won {
		t.Error("no-side should win when settlement falls outside the bracket")
	}
	if out.PNLCents != 40 {
		t.Errorf("PNLCents = %d, want 40", out.PNLCents)
	}
}

func TestApplyToRiskStateRegistersLossAndWin(t *testing.T) {
	op := model.Operator{ConsecutiveLossLimit: 3, CooldownMinutesPerLoss: 30}
	state := model.DailyRiskState{ConsecutiveLosses: 1}
	lossOutcome := Outcome{Won: false, PNLCents: -40}
	state = ApplyToRiskState(state, lossOutcome, op, time.Now())
	if state.ConsecutiveLosses != 2 || state.TotalLossCents != 40 {
		t.Errorf("state after loss = %+v", state)
	}

	winOutcome := Outcome{Won: true, PNLCents: 60}
	state = ApplyToRiskState(state, winOutcome, op, time.Now())
	if state.ConsecutiveLosses != 0 {
		t.Errorf("ConsecutiveLosses = %d, want 0 after a win", state.ConsecutiveLosses)
	}
}
