// PostgresStore is the pgxpool-backed Store implementation, adapted from
// internal/store/postgres.go's NUMERIC-as-TEXT scan/format
// convention for exact decimal precision. Integer-cents money fields and
// plain counters bind as native Go integers; only true decimal fields
// (probability thresholds, Kelly fractions) round-trip through ::TEXT.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func wrapNotFound(err error, context string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", context, ErrNotFound)
	}
	return err
}

func citiesToStrings(cities []model.City) []string {
	out := make([]string, len(cities))
	for i, c := range cities {
		out[i] = string(c)
	}
	return out
}

func stringsToCities(ss []string) []model.City {
	out := make([]model.City, len(ss))
	for i, s := range ss {
		out[i] = model.City(s)
	}
	return out
}

func (s *PostgresStore) GetOperator(ctx context.Context, id uuid.UUID) (model.Operator, error) {
	var op model.Operator
	var minEV, kellyFrac, kellyPct string
	var cities []string

	err := s.pool.QueryRow(ctx,
		`SELECT id, encrypted_api_key, encrypted_api_secret, trading_mode,
		        max_trade_size_cents, daily_loss_limit_cents, max_daily_exposure_cents,
		        min_ev_threshold::TEXT, cooldown_minutes_per_loss, consecutive_loss_limit,
		        kelly_enabled, kelly_fractional::TEXT, kelly_max_bankroll_pct::TEXT, kelly_max_contracts_per_trade,
		        active_cities, notifications_enabled, push_subscription, demo_mode,
		        created_at, updated_at
		 FROM operators WHERE id = $1`, id).
		Scan(&op.ID, &op.EncryptedAPIKey, &op.EncryptedAPISecret, &op.TradingMode,
			&op.MaxTradeSizeCents, &op.DailyLossLimitCents, &op.MaxDailyExposureCents,
			&minEV, &op.CooldownMinutesPerLoss, &op.ConsecutiveLossLimit,
			&op.Kelly.Enabled, &kellyFrac, &kellyPct, &op.Kelly.MaxContractsPerTrade,
			&cities, &op.NotificationsEnabled, &op.PushSubscription, &op.DemoMode,
			&op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return model.Operator{}, wrapNotFound(err, fmt.Sprintf("get operator %s", id))
	}

	op.MinEVThreshold, _ = decimal.NewFromString(minEV)
	op.Kelly.FractionalKelly, _ = decimal.NewFromString(kellyFrac)
	op.Kelly.MaxBankrollPctTrade, _ = decimal.NewFromString(kellyPct)
	op.ActiveCities = stringsToCities(cities)
	return op, nil
}

func (s *PostgresStore) SaveOperator(ctx context.Context, op model.Operator) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operators (id, encrypted_api_key, encrypted_api_secret, trading_mode,
		        max_trade_size_cents, daily_loss_limit_cents, max_daily_exposure_cents,
		        min_ev_threshold, cooldown_minutes_per_loss, consecutive_loss_limit,
		        kelly_enabled, kelly_fractional, kelly_max_bankroll_pct, kelly_max_contracts_per_trade,
		        active_cities, notifications_enabled, push_subscription, demo_mode,
		        created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9, $10, $11, $12::NUMERIC, $13::NUMERIC, $14,
		         $15, $16, $17, $18, $19, $20)
		 ON CONFLICT (id) DO UPDATE SET
		        encrypted_api_key = EXCLUDED.encrypted_api_key,
		        encrypted_api_secret = EXCLUDED.encrypted_api_secret,
		        trading_mode = EXCLUDED.trading_mode,
		        max_trade_size_cents = EXCLUDED.max_trade_size_cents,
		        daily_loss_limit_cents = EXCLUDED.daily_loss_limit_cents,
		        max_daily_exposure_cents = EXCLUDED.max_daily_exposure_cents,
		        min_ev_threshold = EXCLUDED.min_ev_threshold,
		        cooldown_minutes_per_loss = EXCLUDED.cooldown_minutes_per_loss,
		        consecutive_loss_limit = EXCLUDED.consecutive_loss_limit,
		        kelly_enabled = EXCLUDED.kelly_enabled,
		        kelly_fractional = EXCLUDED.kelly_fractional,
		        kelly_max_bankroll_pct = EXCLUDED.kelly_max_bankroll_pct,
		        kelly_max_contracts_per_trade = EXCLUDED.kelly_max_contracts_per_trade,
		        active_cities = EXCLUDED.active_cities,
		        notifications_enabled = EXCLUDED.notifications_enabled,
		        push_subscription = EXCLUDED.push_subscription,
		        demo_mode = EXCLUDED.demo_mode,
		        updated_at = EXCLUDED.updated_at`,
		op.ID, op.EncryptedAPIKey, op.EncryptedAPISecret, op.TradingMode,
		op.MaxTradeSizeCents, op.DailyLossLimitCents, op.MaxDailyExposureCents,
		op.MinEVThreshold.String(), op.CooldownMinutesPerLoss, op.ConsecutiveLossLimit,
		op.Kelly.Enabled, op.Kelly.FractionalKelly.String(), op.Kelly.MaxBankrollPctTrade.String(), op.Kelly.MaxContractsPerTrade,
		citiesToStrings(op.ActiveCities), op.NotificationsEnabled, op.PushSubscription, op.DemoMode,
		op.CreatedAt, op.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) InsertWeatherForecast(ctx context.Context, f model.WeatherForecast) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO weather_forecasts (id, city, target_date, source, forecast_high_f,
		        temp_low_f, humidity_pct, wind_speed_mph, cloud_cover_pct, dew_point_f, pressure_mb,
		        model_run_timestamp, raw_data, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		f.ID, f.City, f.TargetDate, f.Source, f.ForecastHighF,
		f.Variables.TempLowF, f.Variables.HumidityPct, f.Variables.WindSpeedMPH,
		f.Variables.CloudCoverPct, f.Variables.DewPointF, f.Variables.PressureMB,
		f.ModelRunTimestamp, f.RawData, f.FetchedAt,
	)
	return err
}

func (s *PostgresStore) LatestForecastsByCity(ctx context.Context, city model.City, targetDate time.Time) ([]model.WeatherForecast, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (source) id, city, target_date, source, forecast_high_f,
		        temp_low_f, humidity_pct, wind_speed_mph, cloud_cover_pct, dew_point_f, pressure_mb,
		        model_run_timestamp, raw_data, fetched_at
		 FROM weather_forecasts
		 WHERE city = $1 AND target_date = $2::DATE
		 ORDER BY source, fetched_at DESC`, city, targetDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeatherForecast
	for rows.Next() {
		var f model.WeatherForecast
		if err := rows.Scan(&f.ID, &f.City, &f.TargetDate, &f.Source, &f.ForecastHighF,
			&f.Variables.TempLowF, &f.Variables.HumidityPct, &f.Variables.WindSpeedMPH,
			&f.Variables.CloudCoverPct, &f.Variables.DewPointF, &f.Variables.PressureMB,
			&f.ModelRunTimestamp, &f.RawData, &f.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertPrediction(ctx context.Context, p model.Prediction) error {
	brackets, err := json.Marshal(p.Brackets)
	if err != nil {
		return fmt.Errorf("marshal brackets: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (id, city, prediction_date, generated_at, mean_f, std_dev_f,
		        confidence, model_sources, brackets)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::JSONB)`,
		p.ID, p.City, p.PredictionDate, p.GeneratedAt, p.MeanF, p.StdDevF,
		p.Confidence, p.ModelSources, brackets,
	)
	return err
}

func (s *PostgresStore) LatestPrediction(ctx context.Context, city model.City, predictionDate time.Time) (model.Prediction, error) {
	var p model.Prediction
	var brackets []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, city, prediction_date, generated_at, mean_f, std_dev_f, confidence, model_sources, brackets
		 FROM predictions
		 WHERE city = $1 AND prediction_date = $2::DATE
		 ORDER BY generated_at DESC LIMIT 1`, city, predictionDate).
		Scan(&p.ID, &p.City, &p.PredictionDate, &p.GeneratedAt, &p.MeanF, &p.StdDevF,
			&p.Confidence, &p.ModelSources, &brackets)
	if err != nil {
		return model.Prediction{}, wrapNotFound(err, fmt.Sprintf("latest prediction %s/%s", city, predictionDate))
	}
	if err := json.Unmarshal(brackets, &p.Brackets); err != nil {
		return model.Prediction{}, fmt.Errorf("unmarshal brackets: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, operator_id, market_order_id, city, trade_date, market_ticker,
		        bracket_label, side, price_cents, quantity, model_probability, market_probability,
		        entry_ev, confidence, status, settlement_temp_f, settlement_source, pnl_cents,
		        fees_cents, post_mortem, created_at, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		t.ID, t.OperatorID, t.MarketOrderID, t.City, t.TradeDate, t.MarketTicker,
		t.BracketLabel, t.Side, t.PriceCents, t.Quantity, t.ModelProbability, t.MarketProbability,
		t.EntryEV, t.Confidence, t.Status, t.SettlementTempF, t.SettlementSource, t.PNLCents,
		t.FeesCents, t.PostMortem, t.CreatedAt, t.SettledAt,
	)
	return err
}

func (s *PostgresStore) UpdateTradeSettlement(ctx context.Context, t model.Trade) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trades SET status = $2, settlement_temp_f = $3, settlement_source = $4,
		        pnl_cents = $5, post_mortem = $6, settled_at = $7
		 WHERE id = $1`,
		t.ID, t.Status, t.SettlementTempF, t.SettlementSource, t.PNLCents, t.PostMortem, t.SettledAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) OpenTrades(ctx context.Context, operatorID uuid.UUID) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, operator_id, market_order_id, city, trade_date, market_ticker, bracket_label,
		        side, price_cents, quantity, model_probability, market_probability, entry_ev,
		        confidence, status, settlement_temp_f, settlement_source, pnl_cents, fees_cents,
		        post_mortem, created_at, settled_at
		 FROM trades WHERE operator_id = $1 AND status = $2`, operatorID, model.TradeStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) OpenExposureByCity(ctx context.Context, operatorID uuid.UUID) (map[model.City]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city, COALESCE(SUM(price_cents * quantity), 0)
		 FROM trades WHERE operator_id = $1 AND status = $2 GROUP BY city`,
		operatorID, model.TradeStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.City]int64)
	for rows.Next() {
		var city model.City
		var exposure int64
		if err := rows.Scan(&city, &exposure); err != nil {
			return nil, err
		}
		out[city] = exposure
	}
	return out, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows pgxRows) ([]model.Trade, error) {
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.ID, &t.OperatorID, &t.MarketOrderID, &t.City, &t.TradeDate, &t.MarketTicker,
			&t.BracketLabel, &t.Side, &t.PriceCents, &t.Quantity, &t.ModelProbability, &t.MarketProbability,
			&t.EntryEV, &t.Confidence, &t.Status, &t.SettlementTempF, &t.SettlementSource, &t.PNLCents,
			&t.FeesCents, &t.PostMortem, &t.CreatedAt, &t.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertPendingTrade(ctx context.Context, pt model.PendingTrade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_trades (id, operator_id, city, trade_date, market_ticker, bracket_label,
		        side, price_cents, quantity, model_probability, market_probability, entry_ev,
		        confidence, reasoning, status, expires_at, acted_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		pt.ID, pt.OperatorID, pt.City, pt.TradeDate, pt.MarketTicker, pt.BracketLabel,
		pt.Side, pt.PriceCents, pt.Quantity, pt.ModelProbability, pt.MarketProbability, pt.EntryEV,
		pt.Confidence, pt.Reasoning, pt.Status, pt.ExpiresAt, pt.ActedAt, pt.CreatedAt,
	)
	return err
}

func (s *PostgresStore) UpdatePendingTradeStatus(ctx context.Context, id uuid.UUID, status model.PendingStatus, actedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_trades SET status = $2, acted_at = $3 WHERE id = $1`, id, status, actedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending trade %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) PendingTradesByStatus(ctx context.Context, operatorID uuid.UUID, status model.PendingStatus) ([]model.PendingTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, operator_id, city, trade_date, market_ticker, bracket_label, side, price_cents,
		        quantity, model_probability, market_probability, entry_ev, confidence, reasoning,
		        status, expires_at, acted_at, created_at
		 FROM pending_trades WHERE operator_id = $1 AND status = $2`, operatorID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPendingTrades(rows)
}

func (s *PostgresStore) ExpiredPendingTrades(ctx context.Context, now time.Time) ([]model.PendingTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, operator_id, city, trade_date, market_ticker, bracket_label, side, price_cents,
		        quantity, model_probability, market_probability, entry_ev, confidence, reasoning,
		        status, expires_at, acted_at, created_at
		 FROM pending_trades WHERE status = $1 AND expires_at < $2`, model.PendingStatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPendingTrades(rows)
}

func scanPendingTrades(rows pgxRows) ([]model.PendingTrade, error) {
	var out []model.PendingTrade
	for rows.Next() {
		var pt model.PendingTrade
		if err := rows.Scan(&pt.ID, &pt.OperatorID, &pt.City, &pt.TradeDate, &pt.MarketTicker, &pt.BracketLabel,
			&pt.Side, &pt.PriceCents, &pt.Quantity, &pt.ModelProbability, &pt.MarketProbability, &pt.EntryEV,
			&pt.Confidence, &pt.Reasoning, &pt.Status, &pt.ExpiresAt, &pt.ActedAt, &pt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertSettlement(ctx context.Context, st model.Settlement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, city, settlement_date, observed_high_f, observed_low_f,
		        source, raw_report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.ID, st.City, st.SettlementDate, st.ObservedHighF, st.ObservedLowF,
		st.Source, st.RawReport, st.CreatedAt,
	)
	return err
}

func (s *PostgresStore) SettlementFor(ctx context.Context, city model.City, settlementDate time.Time) (model.Settlement, error) {
	var st model.Settlement
	err := s.pool.QueryRow(ctx,
		`SELECT id, city, settlement_date, observed_high_f, observed_low_f, source, raw_report, created_at
		 FROM settlements WHERE city = $1 AND settlement_date = $2::DATE`, city, settlementDate).
		Scan(&st.ID, &st.City, &st.SettlementDate, &st.ObservedHighF, &st.ObservedLowF,
			&st.Source, &st.RawReport, &st.CreatedAt)
	if err != nil {
		return model.Settlement{}, wrapNotFound(err, fmt.Sprintf("settlement %s/%s", city, settlementDate))
	}
	return st, nil
}

func (s *PostgresStore) GetRiskState(ctx context.Context, operatorID uuid.UUID, tradingDay time.Time) (model.DailyRiskState, error) {
	var rs model.DailyRiskState
	err := s.pool.QueryRow(ctx,
		`SELECT id, operator_id, trading_day, total_loss_cents, total_exposure_cents,
		        consecutive_losses, cooldown_until, trades_count
		 FROM daily_risk_state WHERE operator_id = $1 AND trading_day = $2::DATE`,
		operatorID, tradingDay).
		Scan(&rs.ID, &rs.OperatorID, &rs.TradingDay, &rs.TotalLossCents, &rs.TotalExposureCents,
			&rs.ConsecutiveLosses, &rs.CooldownUntil, &rs.TradesCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DailyRiskState{OperatorID: operatorID, TradingDay: tradingDay}, nil
	}
	if err != nil {
		return model.DailyRiskState{}, err
	}
	return rs, nil
}

func (s *PostgresStore) SaveRiskState(ctx context.Context, state model.DailyRiskState) error {
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_risk_state (id, operator_id, trading_day, total_loss_cents,
		        total_exposure_cents, consecutive_losses, cooldown_until, trades_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (operator_id, trading_day) DO UPDATE SET
		        total_loss_cents = EXCLUDED.total_loss_cents,
		        total_exposure_cents = EXCLUDED.total_exposure_cents,
		        consecutive_losses = EXCLUDED.consecutive_losses,
		        cooldown_until = EXCLUDED.cooldown_until,
		        trades_count = EXCLUDED.trades_count`,
		state.ID, state.OperatorID, state.TradingDay, state.TotalLossCents,
		state.TotalExposureCents, state.ConsecutiveLosses, state.CooldownUntil, state.TradesCount,
	)
	return err
}

func (s *PostgresStore) IncrementTradesCount(ctx context.Context, operatorID uuid.UUID, tradingDay time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_risk_state (id, operator_id, trading_day, trades_count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (operator_id, trading_day) DO UPDATE SET
		        trades_count = daily_risk_state.trades_count + 1`,
		uuid.New(), operatorID, tradingDay,
	)
	return err
}

func (s *PostgresStore) InsertLogEntry(ctx context.Context, entry model.LogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO log_entries (id, job_name, started_at, finished_at, outcome, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.JobName, entry.StartedAt, entry.FinishedAt, entry.Outcome, entry.ErrorText,
	)
	return err
}

func (s *PostgresStore) FinishLogEntry(ctx context.Context, id uuid.UUID, finishedAt time.Time, outcome, errorText string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE log_entries SET finished_at = $2, outcome = $3, error_text = $4 WHERE id = $1`,
		id, finishedAt, outcome, errorText,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("log entry %s: %w", id, ErrNotFound)
	}
	return nil
}
