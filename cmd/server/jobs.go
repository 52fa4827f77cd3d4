package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/clireport"
	"github.com/aclarkson2013/boz-weather-trader/internal/ev"
	"github.com/aclarkson2013/boz-weather-trader/internal/eventbus"
	"github.com/aclarkson2013/boz-weather-trader/internal/features"
	"github.com/aclarkson2013/boz-weather-trader/internal/kalshi"
	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/predict"
	"github.com/aclarkson2013/boz-weather-trader/internal/regressor"
	"github.com/aclarkson2013/boz-weather-trader/internal/settlement"
	"github.com/aclarkson2013/boz-weather-trader/internal/station"
	"github.com/aclarkson2013/boz-weather-trader/internal/store"
	"github.com/aclarkson2013/boz-weather-trader/internal/trading"
	"github.com/aclarkson2013/boz-weather-trader/internal/weather"
)

// fetchForecastsJob pulls NWS and Open-Meteo forecasts for every active
// city and inserts every returned row. Each fetcher already returns rows
// spanning several target dates; no per-date filtering is needed here.
type fetchForecastsJob struct {
	log     *slog.Logger
	weather *weather.Client
	store   store.Store
}

func (j *fetchForecastsJob) Name() string { return "fetch_forecasts" }

func (j *fetchForecastsJob) Run(ctx context.Context) error {
	for _, city := range station.ValidCities {
		for _, fetch := range []func(context.Context, model.City) ([]model.WeatherForecast, error){
			j.weather.FetchNWSForecast,
			j.weather.FetchNWSGridpoint,
			j.weather.FetchOpenMeteo,
		} {
			rows, err := fetch(ctx, city)
			if err != nil {
				j.log.Warn("forecast fetch failed", "city", city, "error", err)
				continue
			}
			for _, row := range rows {
				if err := j.store.InsertWeatherForecast(ctx, row); err != nil {
					j.log.Warn("insert forecast failed", "city", city, "source", row.Source, "error", err)
				}
			}
		}
	}
	return nil
}

// fetchCLIReportJob fetches and parses each city's morning climate report
// and persists it as an official settlement.
type fetchCLIReportJob struct {
	log     *slog.Logger
	weather *weather.Client
	store   store.Store
}

func (j *fetchCLIReportJob) Name() string { return "fetch_cli_reports" }

func (j *fetchCLIReportJob) Run(ctx context.Context) error {
	for _, city := range station.ValidCities {
		raw, err := j.weather.FetchCLIReport(ctx, city)
		if err != nil {
			j.log.Warn("CLI report fetch failed", "city", city, "error", err)
			continue
		}
		report, err := clireport.Parse(raw)
		if err != nil {
			j.log.Warn("CLI report parse failed", "city", city, "error", err)
			continue
		}
		s := model.Settlement{
			ID:             uuid.New(),
			City:           city,
			SettlementDate: report.ReportDate,
			ObservedHighF:  report.HighF,
			ObservedLowF:   report.LowF,
			Source:         model.SourceNWSCLI,
			RawReport:      report.RawText,
			CreatedAt:      time.Now().UTC(),
		}
		if err := j.store.InsertSettlement(ctx, s); err != nil {
			j.log.Warn("insert settlement failed", "city", city, "error", err)
		}
	}
	return nil
}

// generatePredictionsJob fuses the latest forecasts for each city's
// current trading day into a persisted Prediction.
type generatePredictionsJob struct {
	log      *slog.Logger
	store    store.Store
	pipeline *predict.Pipeline
}

func (j *generatePredictionsJob) Name() string { return "generate_predictions" }

func (j *generatePredictionsJob) Run(ctx context.Context) error {
	for _, city := range station.ValidCities {
		tradingDay, err := station.TradingDay(city)
		if err != nil {
			j.log.Error("unknown city code", "city", city, "error", err)
			continue
		}
		forecasts, err := j.store.LatestForecastsByCity(ctx, city, tradingDay)
		if err != nil {
			j.log.Warn("load forecasts failed", "city", city, "error", err)
			continue
		}
		pred, err := j.pipeline.Run(ctx, city, tradingDay, forecasts)
		if err != nil {
			j.log.Warn("prediction fusion failed", "city", city, "error", err)
			continue
		}
		if err := j.store.InsertPrediction(ctx, pred); err != nil {
			j.log.Warn("insert prediction failed", "city", city, "error", err)
		}
	}
	return nil
}

// tradingCycleJob scans every active city's latest prediction against
// current market prices and routes every EV-positive signal through the
// executor's risk gates.
type tradingCycleJob struct {
	log      *slog.Logger
	store    store.Store
	gateway  kalshi.Gateway
	executor *trading.Executor
	operator func(context.Context) (model.Operator, error)
}

func (j *tradingCycleJob) Name() string { return "trading_cycle" }

func (j *tradingCycleJob) Run(ctx context.Context) error {
	operator, err := j.operator(ctx)
	if err != nil {
		return fmt.Errorf("trading cycle: load operator: %w", err)
	}
	if j.gateway == nil {
		j.log.Warn("trading cycle skipped, no market gateway configured")
		return nil
	}

	for _, city := range operator.ActiveCities {
		now, err := station.Now(city)
		if err != nil {
			j.log.Error("unknown city code", "city", city, "error", err)
			continue
		}
		tradingDay, err := station.TradingDay(city)
		if err != nil {
			continue
		}

		pred, err := j.store.LatestPrediction(ctx, city, tradingDay)
		if err != nil {
			j.log.Warn("no prediction available for trading cycle", "city", city, "error", err)
			continue
		}
		if err := ev.Validate(&pred, pred.GeneratedAt, time.Now().UTC()); err != nil {
			j.log.Warn("prediction failed validation gates", "city", city, "error", err)
			continue
		}

		ticker, err := kalshi.BuildEventTicker(city, tradingDay)
		if err != nil {
			j.log.Error("build event ticker failed", "city", city, "error", err)
			continue
		}
		markets, err := j.gateway.GetEventMarkets(ctx, ticker)
		if err != nil {
			j.log.Warn("market gateway unavailable for trading cycle", "city", city, "error", err)
			continue
		}

		bracketPrices := make(map[string]int, len(markets))
		for _, m := range markets {
			bracketPrices[kalshi.ParseBracketFromMarket(m).Label] = m.YesAsk
		}
		var priceErr error
		for label, p := range bracketPrices {
			if !ev.ValidPrice(p) {
				priceErr = fmt.Errorf("%w: market price %d for %s outside [1,99]", ev.ErrValidation, p, label)
				break
			}
		}
		if priceErr != nil {
			j.log.Warn("market prices failed validation gates", "city", city, "error", priceErr)
			continue
		}

		signals := ev.Scan(pred, ticker, bracketPrices, operator)
		for _, sig := range signals {
			if err := j.executor.Decide(ctx, operator, sig, tradingDay, now.Hour()); err != nil {
				j.log.Error("trade decision failed", "city", city, "bracket", sig.Bracket.Label, "error", err)
			}
		}
	}
	return nil
}

// expirePendingJob transitions every TTL-elapsed manual-mode pending trade
// to EXPIRED.
type expirePendingJob struct {
	log      *slog.Logger
	store    store.Store
	executor *trading.Executor
}

func (j *expirePendingJob) Name() string { return "expire_pending" }

func (j *expirePendingJob) Run(ctx context.Context) error {
	expired, err := j.store.ExpiredPendingTrades(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("expire pending: load expired trades: %w", err)
	}
	return j.executor.ExpirePending(ctx, expired)
}

// settleTradesJob matches every OPEN trade against its city/date's
// official settlement and folds the outcome into risk state.
type settleTradesJob struct {
	log      *slog.Logger
	store    store.Store
	pub      *eventbus.Bus
	operator func(context.Context) (model.Operator, error)
}

func (j *settleTradesJob) Name() string { return "settle_trades" }

func (j *settleTradesJob) Run(ctx context.Context) error {
	operator, err := j.operator(ctx)
	if err != nil {
		return fmt.Errorf("settle trades: load operator: %w", err)
	}

	open, err := j.store.OpenTrades(ctx, operator.ID)
	if err != nil {
		return fmt.Errorf("settle trades: load open trades: %w", err)
	}

	now := time.Now().UTC()
	for _, t := range open {
		s, err := j.store.SettlementFor(ctx, t.City, t.TradeDate)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				j.log.Warn("settlement lookup failed", "trade_id", t.ID, "error", err)
			}
			continue
		}

		outcome := settlement.Settle(t, s)
		t.Status = model.TradeStatusLost
		if outcome.Won {
			t.Status = model.TradeStatusWon
		}
		t.SettlementTempF = &s.ObservedHighF
		t.SettlementSource = string(s.Source)
		t.PNLCents = &outcome.PNLCents
		t.PostMortem = outcome.PostMortem
		t.SettledAt = &now

		if err := j.store.UpdateTradeSettlement(ctx, t); err != nil {
			j.log.Error("update trade settlement failed", "trade_id", t.ID, "error", err)
			continue
		}

		state, err := j.store.GetRiskState(ctx, t.OperatorID, t.TradeDate)
		if err != nil {
			j.log.Error("load risk state for settlement failed", "trade_id", t.ID, "error", err)
			continue
		}
		state = settlement.ApplyToRiskState(state, outcome, operator, now)
		if err := j.store.SaveRiskState(ctx, state); err != nil {
			j.log.Error("save risk state after settlement failed", "trade_id", t.ID, "error", err)
		}

		if j.pub != nil {
			j.pub.Publish(ctx, "trade.settled", t)
		}
	}
	return nil
}

// modelSpec names one ensemble slot's artefact paths and constructor.
type modelSpec struct {
	name     string
	fileName string
	newModel func() regressor.Regressor
}

var modelSpecs = []modelSpec{
	{name: "gradient_stump", fileName: "xgb_temp", newModel: func() regressor.Regressor { return regressor.NewGradientStump(50, 0.1) }},
	{name: "linear_ridge", fileName: "ridge_temp", newModel: func() regressor.Regressor { return regressor.NewLinearRidge(1.0) }},
}

// loadEnsemble loads every accepted model artefact under modelsDir into a
// fresh Ensemble. A model missing or rejected at its last training run is
// skipped; an empty ensemble is valid and falls back to the prediction
// pipeline's forecast-mean baseline.
func loadEnsemble(log *slog.Logger, modelsDir string) *regressor.Ensemble {
	var members []regressor.Member
	for _, spec := range modelSpecs {
		r := spec.newModel()
		modelPath := filepath.Join(modelsDir, spec.fileName+".json")
		metaPath := filepath.Join(modelsDir, spec.fileName+"_meta.json")

		if err := r.Load(modelPath); err != nil {
			log.Info("no model artefact to load, skipping ensemble member", "model", spec.name, "error", err)
			continue
		}
		metrics, err := regressor.LoadMetricsFile(metaPath)
		if err != nil {
			log.Warn("model artefact present but metadata missing, skipping", "model", spec.name, "error", err)
			continue
		}
		if !metrics.Accepted {
			log.Info("model did not clear acceptance threshold at last training, skipping", "model", spec.name, "rmse", metrics.RMSE)
			continue
		}
		members = append(members, regressor.Member{Regressor: r, RMSE: metrics.RMSE})
	}
	return regressor.NewEnsemble(members)
}

// retrainLookbackDays bounds how far back the retrain job scans for
// (city, date) training samples.
const retrainLookbackDays = 180

// retrainModelsJob rebuilds the training set from stored forecasts and
// settlements, retrains every model, and atomically replaces any artefact
// whose retrained RMSE clears the acceptance threshold. It never mutates a
// running process's in-memory ensemble; the next process restart picks up
// whatever is on disk.
type retrainModelsJob struct {
	log       *slog.Logger
	store     store.Store
	modelsDir string
}

func (j *retrainModelsJob) Name() string { return "retrain_models" }

func (j *retrainModelsJob) Run(ctx context.Context) error {
	x, y, err := j.buildTrainingSet(ctx)
	if err != nil {
		return err
	}
	if len(x) < 10 {
		j.log.Warn("not enough samples to retrain, skipping", "sample_count", len(x))
		return nil
	}

	xTrain, xTest, yTrain, yTest := regressor.ChronologicalSplit(x, y)

	if err := os.MkdirAll(j.modelsDir, 0o755); err != nil {
		return fmt.Errorf("retrain models: create models dir: %w", err)
	}

	var accepted []regressor.Member
	for _, spec := range modelSpecs {
		r := spec.newModel()
		metrics, err := r.Train(xTrain, yTrain, xTest, yTest)
		if err != nil {
			j.log.Error("training failed", "model", spec.name, "error", err)
			continue
		}
		metrics.SampleCount = len(x)

		modelPath := filepath.Join(j.modelsDir, spec.fileName+".json")
		metaPath := filepath.Join(j.modelsDir, spec.fileName+"_meta.json")
		if !metrics.Accepted {
			j.log.Warn("retrained model did not clear acceptance threshold, not persisted",
				"model", spec.name, "rmse", metrics.RMSE)
			continue
		}
		if err := r.Save(modelPath); err != nil {
			j.log.Error("saving model artefact failed", "model", spec.name, "error", err)
			continue
		}
		if err := regressor.SaveMetrics(metaPath, metrics); err != nil {
			j.log.Error("saving model metadata failed", "model", spec.name, "error", err)
			continue
		}
		j.log.Info("model retrained and accepted", "model", spec.name, "rmse", metrics.RMSE)
		accepted = append(accepted, regressor.Member{Regressor: r, RMSE: metrics.RMSE})
	}

	if len(accepted) > 0 {
		weightsPath := filepath.Join(j.modelsDir, "ml_weights.json")
		weights := regressor.InverseRMSEWeights(accepted)
		names := make([]string, len(accepted))
		for i, m := range accepted {
			names[i] = m.Regressor.Name()
		}
		informational := struct {
			Models  []string  `json:"models"`
			Weights []float64 `json:"weights"`
		}{Models: names, Weights: weights}
		if err := writeWeightsFile(weightsPath, informational); err != nil {
			j.log.Warn("saving informational ensemble weights failed", "error", err)
		}
	}
	return nil
}

// buildTrainingSet scans backward from today over retrainLookbackDays for
// every (city, date) pair with both a settled observation and at least two
// forecast sources, pivoting each into one labeled feature row. There is no
// bulk forecast query, so this iterates day by day.
func (j *retrainModelsJob) buildTrainingSet(ctx context.Context) ([][]float64, []float64, error) {
	type sample struct {
		date time.Time
		x    []float64
		y    float64
	}
	var samples []sample

	today := time.Now().UTC()
	for _, city := range station.ValidCities {
		for i := 0; i < retrainLookbackDays; i++ {
			date := today.AddDate(0, 0, -i)

			s, err := j.store.SettlementFor(ctx, city, date)
			if err != nil {
				continue
			}
			forecasts, err := j.store.LatestForecastsByCity(ctx, city, date)
			if err != nil || len(forecasts) < 2 {
				continue
			}
			row := features.Extract(forecasts, city, date)
			samples = append(samples, sample{date: date, x: row, y: s.ObservedHighF})
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].date.Before(samples[j].date) })

	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.x
		y[i] = s.y
	}
	return x, y, nil
}

func writeWeightsFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
