// MemoryStore is an in-memory Store implementation used for testing and
// local development, adapted from internal/store/memory.go's
// mutex-guarded-maps-and-slices pattern, generalized to the eight-table
// domain schema.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// MemoryStore implements Store with in-memory maps/slices. Used for
// testing and development; not suitable for production (no persistence).
type MemoryStore struct {
	mu sync.RWMutex

	operators map[uuid.UUID]model.Operator
	forecasts []model.WeatherForecast
	predicts  []model.Prediction
	trades    []model.Trade
	pending   []model.PendingTrade
	settles   []model.Settlement
	risk      map[riskKey]model.DailyRiskState
	logs      map[uuid.UUID]*model.LogEntry
}

type riskKey struct {
	operatorID uuid.UUID
	day        time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		operators: make(map[uuid.UUID]model.Operator),
		risk:      make(map[riskKey]model.DailyRiskState),
		logs:      make(map[uuid.UUID]*model.LogEntry),
	}
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *MemoryStore) GetOperator(_ context.Context, id uuid.UUID) (model.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[id]
	if !ok {
		return model.Operator{}, fmt.Errorf("operator %s: %w", id, ErrNotFound)
	}
	return op, nil
}

func (s *MemoryStore) SaveOperator(_ context.Context, operator model.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operators[operator.ID] = operator
	return nil
}

func (s *MemoryStore) InsertWeatherForecast(_ context.Context, f model.WeatherForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = append(s.forecasts, f)
	return nil
}

func (s *MemoryStore) LatestForecastsByCity(_ context.Context, city model.City, targetDate time.Time) ([]model.WeatherForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := civilDay(targetDate)
	latestBySource := make(map[model.WeatherSource]model.WeatherForecast)
	for _, f := range s.forecasts {
		if f.City != city || !civilDay(f.TargetDate).Equal(want) {
			continue
		}
		if existing, ok := latestBySource[f.Source]; !ok || f.FetchedAt.After(existing.FetchedAt) {
			latestBySource[f.Source] = f
		}
	}

	out := make([]model.WeatherForecast, 0, len(latestBySource))
	for _, f := range latestBySource {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *MemoryStore) InsertPrediction(_ context.Context, p model.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicts = append(s.predicts, p)
	return nil
}

func (s *MemoryStore) LatestPrediction(_ context.Context, city model.City, predictionDate time.Time) (model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := civilDay(predictionDate)
	var best model.Prediction
	var found bool
	for _, p := range s.predicts {
		if p.City != city || !civilDay(p.PredictionDate).Equal(want) {
			continue
		}
		if !found || p.GeneratedAt.After(best.GeneratedAt) {
			best, found = p, true
		}
	}
	if !found {
		return model.Prediction{}, fmt.Errorf("prediction for %s on %s: %w", city, want, ErrNotFound)
	}
	return best, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *MemoryStore) UpdateTradeSettlement(_ context.Context, t model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.trades {
		if s.trades[i].ID == t.ID {
			s.trades[i] = t
			return nil
		}
	}
	return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
}

func (s *MemoryStore) OpenTrades(_ context.Context, operatorID uuid.UUID) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Trade
	for _, t := range s.trades {
		if t.OperatorID == operatorID && t.Status == model.TradeStatusOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) OpenExposureByCity(_ context.Context, operatorID uuid.UUID) (map[model.City]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.City]int64)
	for _, t := range s.trades {
		if t.OperatorID == operatorID && t.Status == model.TradeStatusOpen {
			out[t.City] += int64(t.PriceCents) * int64(t.Quantity)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertPendingTrade(_ context.Context, pt model.PendingTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pt)
	return nil
}

func (s *MemoryStore) UpdatePendingTradeStatus(_ context.Context, id uuid.UUID, status model.PendingStatus, actedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending[i].Status = status
			at := actedAt
			s.pending[i].ActedAt = &at
			return nil
		}
	}
	return fmt.Errorf("pending trade %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) PendingTradesByStatus(_ context.Context, operatorID uuid.UUID, status model.PendingStatus) ([]model.PendingTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PendingTrade
	for _, pt := range s.pending {
		if pt.OperatorID == operatorID && pt.Status == status {
			out = append(out, pt)
		}
	}
	return out, nil
}

func (s *MemoryStore) ExpiredPendingTrades(_ context.Context, now time.Time) ([]model.PendingTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PendingTrade
	for _, pt := range s.pending {
		if pt.Status == model.PendingStatusPending && now.After(pt.ExpiresAt) {
			out = append(out, pt)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertSettlement(_ context.Context, st model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settles = append(s.settles, st)
	return nil
}

func (s *MemoryStore) SettlementFor(_ context.Context, city model.City, settlementDate time.Time) (model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := civilDay(settlementDate)
	for _, st := range s.settles {
		if st.City == city && civilDay(st.SettlementDate).Equal(want) {
			return st, nil
		}
	}
	return model.Settlement{}, fmt.Errorf("settlement for %s on %s: %w", city, want, ErrNotFound)
}

func (s *MemoryStore) GetRiskState(_ context.Context, operatorID uuid.UUID, tradingDay time.Time) (model.DailyRiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := riskKey{operatorID, civilDay(tradingDay)}
	state, ok := s.risk[key]
	if !ok {
		return model.DailyRiskState{OperatorID: operatorID, TradingDay: civilDay(tradingDay)}, nil
	}
	return state, nil
}

func (s *MemoryStore) SaveRiskState(_ context.Context, state model.DailyRiskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := riskKey{state.OperatorID, civilDay(state.TradingDay)}
	s.risk[key] = state
	return nil
}

func (s *MemoryStore) IncrementTradesCount(_ context.Context, operatorID uuid.UUID, tradingDay time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := riskKey{operatorID, civilDay(tradingDay)}
	state := s.risk[key]
	state.OperatorID, state.TradingDay = operatorID, civilDay(tradingDay)
	state.TradesCount++
	s.risk[key] = state
	return nil
}

func (s *MemoryStore) InsertLogEntry(_ context.Context, entry model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry
	s.logs[entry.ID] = &e
	return nil
}

func (s *MemoryStore) FinishLogEntry(_ context.Context, id uuid.UUID, finishedAt time.Time, outcome, errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("log entry %s: %w", id, ErrNotFound)
	}
	at := finishedAt
	entry.FinishedAt = &at
	entry.Outcome = outcome
	entry.ErrorText = errorText
	return nil
}
