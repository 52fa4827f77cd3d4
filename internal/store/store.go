// Package store defines the persistence interface for the trading control
// plane and provides PostgreSQL and in-memory implementations. The
// interface/pgxpool-implementation/in-memory-test-double split, and the
// NUMERIC-as-TEXT scan/format convention for decimal fields, are adapted
// from internal/store/{store.go,postgres.go,memory.go},
// generalized from a prior Market/LedgerEntry/Position schema to the
// eight-table schema this system persists: operators, weather forecasts,
// predictions, trades, pending trades, settlements, daily risk state, and
// job log entries.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// Store is the full persistence interface. PostgresStore is the source of
// truth; MemoryStore is an in-memory test double. Both satisfy the smaller
// Store/LogStore interfaces internal/trading and internal/scheduler depend
// on structurally — no adapter type is needed to wire this package into
// either.
type Store interface {
	// --- Operator ---
	GetOperator(ctx context.Context, id uuid.UUID) (model.Operator, error)
	SaveOperator(ctx context.Context, operator model.Operator) error

	// --- Weather forecasts ---
	InsertWeatherForecast(ctx context.Context, f model.WeatherForecast) error
	LatestForecastsByCity(ctx context.Context, city model.City, targetDate time.Time) ([]model.WeatherForecast, error)

	// --- Predictions ---
	InsertPrediction(ctx context.Context, p model.Prediction) error
	LatestPrediction(ctx context.Context, city model.City, predictionDate time.Time) (model.Prediction, error)

	// --- Trades ---
	InsertTrade(ctx context.Context, t model.Trade) error
	UpdateTradeSettlement(ctx context.Context, t model.Trade) error
	OpenTrades(ctx context.Context, operatorID uuid.UUID) ([]model.Trade, error)
	OpenExposureByCity(ctx context.Context, operatorID uuid.UUID) (map[model.City]int64, error)

	// --- Pending trades ---
	InsertPendingTrade(ctx context.Context, pt model.PendingTrade) error
	UpdatePendingTradeStatus(ctx context.Context, id uuid.UUID, status model.PendingStatus, actedAt time.Time) error
	PendingTradesByStatus(ctx context.Context, operatorID uuid.UUID, status model.PendingStatus) ([]model.PendingTrade, error)
	ExpiredPendingTrades(ctx context.Context, now time.Time) ([]model.PendingTrade, error)

	// --- Settlements ---
	InsertSettlement(ctx context.Context, s model.Settlement) error
	SettlementFor(ctx context.Context, city model.City, settlementDate time.Time) (model.Settlement, error)

	// --- Daily risk state ---
	GetRiskState(ctx context.Context, operatorID uuid.UUID, tradingDay time.Time) (model.DailyRiskState, error)
	SaveRiskState(ctx context.Context, state model.DailyRiskState) error
	IncrementTradesCount(ctx context.Context, operatorID uuid.UUID, tradingDay time.Time) error

	// --- Job log entries ---
	InsertLogEntry(ctx context.Context, entry model.LogEntry) error
	FinishLogEntry(ctx context.Context, id uuid.UUID, finishedAt time.Time, outcome, errorText string) error
}

// ErrNotFound is returned by single-row lookups when nothing matches.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
