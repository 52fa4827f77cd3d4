package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func TestMemoryStoreOperatorRoundTrips(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	if _, err := s.GetOperator(ctx, id); err == nil {
		t.Fatal("want error for missing operator")
	}

	op := model.Operator{ID: id, TradingMode: model.TradingModeAuto}
	if err := s.SaveOperator(ctx, op); err != nil {
		t.Fatalf("SaveOperator: %v", err)
	}

	got, err := s.GetOperator(ctx, id)
	if err != nil {
		t.Fatalf("GetOperator: %v", err)
	}
	if got.TradingMode != model.TradingModeAuto {
		t.Errorf("TradingMode = %q, want auto", got.TradingMode)
	}
}

func TestMemoryStoreLatestForecastsByCityPicksNewestPerSource(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	target := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	old := model.WeatherForecast{
		ID: uuid.New(), City: model.CityNYC, TargetDate: target,
		Source: model.SourceNWS, ForecastHighF: 90, FetchedAt: target.Add(-2 * time.Hour),
	}
	newer := model.WeatherForecast{
		ID: uuid.New(), City: model.CityNYC, TargetDate: target,
		Source: model.SourceNWS, ForecastHighF: 92, FetchedAt: target.Add(-1 * time.Hour),
	}
	other := model.WeatherForecast{
		ID: uuid.New(), City: model.CityNYC, TargetDate: target,
		Source: model.SourceOpenMeteoGFS, ForecastHighF: 89, FetchedAt: target.Add(-1 * time.Hour),
	}
	for _, f := range []model.WeatherForecast{old, newer, other} {
		if err := s.InsertWeatherForecast(ctx, f); err != nil {
			t.Fatalf("InsertWeatherForecast: %v", err)
		}
	}

	got, err := s.LatestForecastsByCity(ctx, model.CityNYC, target)
	if err != nil {
		t.Fatalf("LatestForecastsByCity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d forecasts, want 2", len(got))
	}
	for _, f := range got {
		if f.Source == model.SourceNWS && f.ForecastHighF != 92 {
			t.Errorf("NWS forecast = %v, want the newer 92", f.ForecastHighF)
		}
	}
}

func TestMemoryStorePendingTradeLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	opID := uuid.New()
	pt := model.PendingTrade{
		ID: uuid.New(), OperatorID: opID, City: model.CityCHI,
		Status: model.PendingStatusPending, ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.InsertPendingTrade(ctx, pt); err != nil {
		t.Fatalf("InsertPendingTrade: %v", err)
	}

	pending, err := s.PendingTradesByStatus(ctx, opID, model.PendingStatusPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("PendingTradesByStatus: got %d, err %v", len(pending), err)
	}

	if err := s.UpdatePendingTradeStatus(ctx, pt.ID, model.PendingStatusApproved, time.Now()); err != nil {
		t.Fatalf("UpdatePendingTradeStatus: %v", err)
	}

	pending, err = s.PendingTradesByStatus(ctx, opID, model.PendingStatusPending)
	if err != nil || len(pending) != 0 {
		t.Fatalf("want no pending trades after approval, got %d", len(pending))
	}
}

func TestMemoryStoreExpiredPendingTrades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	expired := model.PendingTrade{ID: uuid.New(), Status: model.PendingStatusPending, ExpiresAt: now.Add(-time.Minute)}
	fresh := model.PendingTrade{ID: uuid.New(), Status: model.PendingStatusPending, ExpiresAt: now.Add(time.Minute)}
	for _, pt := range []model.PendingTrade{expired, fresh} {
		if err := s.InsertPendingTrade(ctx, pt); err != nil {
			t.Fatalf("InsertPendingTrade: %v", err)
		}
	}

	got, err := s.ExpiredPendingTrades(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredPendingTrades: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Fatalf("ExpiredPendingTrades = %+v, want only %s", got, expired.ID)
	}
}

func TestMemoryStoreOpenExposureByCity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	opID := uuid.New()

	open := model.Trade{ID: uuid.New(), OperatorID: opID, City: model.CityMIA, PriceCents: 60, Quantity: 10, Status: model.TradeStatusOpen}
	won := model.Trade{ID: uuid.New(), OperatorID: opID, City: model.CityMIA, PriceCents: 50, Quantity: 5, Status: model.TradeStatusWon}
	for _, tr := range []model.Trade{open, won} {
		if err := s.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("InsertTrade: %v", err)
		}
	}

	exposure, err := s.OpenExposureByCity(ctx, opID)
	if err != nil {
		t.Fatalf("OpenExposureByCity: %v", err)
	}
	if want := int64(600); exposure[model.CityMIA] != want {
		t.Errorf("exposure[MIA] = %d, want %d (only open trades count)", exposure[model.CityMIA], want)
	}
}

func TestMemoryStoreIncrementTradesCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	opID := uuid.New()
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := s.IncrementTradesCount(ctx, opID, day); err != nil {
			t.Fatalf("IncrementTradesCount: %v", err)
		}
	}

	state, err := s.GetRiskState(ctx, opID, day)
	if err != nil {
		t.Fatalf("GetRiskState: %v", err)
	}
	if state.TradesCount != 3 {
		t.Errorf("TradesCount = %d, want 3", state.TradesCount)
	}
}

func TestMemoryStoreLogEntryLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()
	start := time.Now()

	if err := s.InsertLogEntry(ctx, model.LogEntry{ID: id, JobName: "fetch_forecasts", StartedAt: start}); err != nil {
		t.Fatalf("InsertLogEntry: %v", err)
	}
	if err := s.FinishLogEntry(ctx, id, start.Add(time.Second), "success", ""); err != nil {
		t.Fatalf("FinishLogEntry: %v", err)
	}
	if err := s.FinishLogEntry(ctx, uuid.New(), start, "success", ""); err == nil {
		t.Fatal("want error finishing an unknown log entry")
	}
}
