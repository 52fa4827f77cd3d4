package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/aclarkson2013/boz-weather-trader/internal/broker"
	"github.com/aclarkson2013/boz-weather-trader/internal/config"
	"github.com/aclarkson2013/boz-weather-trader/internal/crypto"
	"github.com/aclarkson2013/boz-weather-trader/internal/eventbus"
	"github.com/aclarkson2013/boz-weather-trader/internal/httpapi"
	"github.com/aclarkson2013/boz-weather-trader/internal/kalshi"
	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/predict"
	"github.com/aclarkson2013/boz-weather-trader/internal/ratelimit"
	"github.com/aclarkson2013/boz-weather-trader/internal/risk"
	"github.com/aclarkson2013/boz-weather-trader/internal/scheduler"
	"github.com/aclarkson2013/boz-weather-trader/internal/station"
	"github.com/aclarkson2013/boz-weather-trader/internal/store"
	"github.com/aclarkson2013/boz-weather-trader/internal/telemetry"
	"github.com/aclarkson2013/boz-weather-trader/internal/trading"
	"github.com/aclarkson2013/boz-weather-trader/internal/weather"
	"github.com/aclarkson2013/boz-weather-trader/internal/wsgateway"
)

// operatorID is the fixed singleton operator row this control plane
// manages in v1; multi-operator support is not in scope.
var operatorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

const buildVersion = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	box, err := crypto.NewBox(cfg.EncryptionKey)
	if err != nil {
		slog.Error("crypto box init failed", "err", err)
		os.Exit(1)
	}

	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	st := buildStore(cfg, &cleanup)

	ctx := context.Background()
	operator, err := ensureOperator(ctx, st, cfg)
	if err != nil {
		slog.Error("operator bootstrap failed", "err", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	var pub *eventbus.Bus
	var jobQueue *broker.Queue
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		pub = eventbus.New(rdb, logger)
		jobQueue = broker.New(rdb, "jobs")
		slog.Info("Redis event bus and job queue enabled")
	} else {
		slog.Warn("REDIS_URL not set, event bus and job queue disabled")
	}

	ratelimit.NWS = ratelimit.New(cfg.NWSRateLimitPerSecond)
	ratelimit.OpenMeteo = ratelimit.New(cfg.OpenMeteoRateLimitPerSecond)

	weatherClient := weather.NewClient(logger, cfg.NWSUserAgent)

	gateway := buildGateway(logger, box, operator)

	wsGW := wsgateway.New(logger)
	go wsGW.Run()

	shutdownCtx, cancelSubscribe := context.WithCancel(context.Background())
	if rdb != nil {
		go eventbus.Subscribe(shutdownCtx, rdb, logger, wsGW)
	}

	telemetry.SetAppInfo(buildVersion, cfg.Environment)

	limits := risk.Limits{
		MaxPerCityCents:          cfg.DefaultMaxPerCityExposureCents,
		MaxCorrelatedRegionCents: cfg.DefaultMaxCorrelatedRegionExposureCents,
	}

	ensemble := loadEnsemble(logger, cfg.ModelsDir)
	pipeline := predict.NewPipeline(logger, ensemble, gateway)
	executor := trading.NewExecutor(logger, st, gateway, limits, pub)

	jobs := scheduler.Jobs{
		FetchForecasts:      &fetchForecastsJob{log: logger, weather: weatherClient, store: st},
		FetchCLIReport:      &fetchCLIReportJob{log: logger, weather: weatherClient, store: st},
		GeneratePredictions: &generatePredictionsJob{log: logger, store: st, pipeline: pipeline},
		TradingCycle: &tradingCycleJob{
			log: logger, store: st, gateway: gateway, executor: executor,
			operator: func(ctx context.Context) (model.Operator, error) { return st.GetOperator(ctx, operatorID) },
		},
		ExpirePending: &expirePendingJob{log: logger, store: st, executor: executor},
		SettleTrades: &settleTradesJob{
			log: logger, store: st, pub: pub,
			operator: func(ctx context.Context) (model.Operator, error) { return st.GetOperator(ctx, operatorID) },
		},
		RetrainModels: &retrainModelsJob{log: logger, store: st, modelsDir: cfg.ModelsDir},
	}

	sched := scheduler.New(logger, st)
	if err := scheduler.RegisterDefaults(sched, jobs); err != nil {
		slog.Error("scheduler registration failed", "err", err)
		os.Exit(1)
	}
	sched.Start()

	if jobQueue != nil {
		go runJobDispatcher(shutdownCtx, logger, jobQueue, sched, jobs)
	}

	srv := &http.Server{
		Addr:         ":" + port(),
		Handler:      httpapi.New(wsGW),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("boz-weather-trader listening", "port", port())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down boz-weather-trader...")
	sched.Stop()
	cancelSubscribe()

	shutdownTimeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownTimeoutCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("boz-weather-trader stopped")
}

func port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}

// buildStore selects PostgreSQL when DATABASE_URL is configured, falling
// back to an in-memory store for local development.
func buildStore(cfg *config.Config, cleanup *[]func()) store.Store {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore()
	}
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	*cleanup = append(*cleanup, pool.Close)
	slog.Info("connected to PostgreSQL")
	return store.NewPostgresStore(pool)
}

// ensureOperator loads the singleton operator row, creating it from
// config-sourced defaults on first run.
func ensureOperator(ctx context.Context, st store.Store, cfg *config.Config) (model.Operator, error) {
	operator, err := st.GetOperator(ctx, operatorID)
	if err == nil {
		return operator, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Operator{}, err
	}

	now := time.Now().UTC()
	operator = model.Operator{
		ID:                     operatorID,
		TradingMode:            model.TradingModeManual,
		MaxTradeSizeCents:      cfg.DefaultMaxTradeSizeCents,
		DailyLossLimitCents:    cfg.DefaultDailyLossLimitCents,
		MaxDailyExposureCents:  cfg.DefaultMaxDailyExposureCents,
		MinEVThreshold:         decimal.NewFromFloat(cfg.DefaultMinEVThreshold),
		CooldownMinutesPerLoss: cfg.DefaultCooldownMinutes,
		ConsecutiveLossLimit:   cfg.DefaultConsecutiveLossLimit,
		ActiveCities:           station.ValidCities,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := st.SaveOperator(ctx, operator); err != nil {
		return model.Operator{}, fmt.Errorf("seed default operator: %w", err)
	}
	slog.Info("seeded default operator row", "operator_id", operatorID)
	return operator, nil
}

// buildGateway decrypts the operator's Kalshi credentials and constructs a
// live gateway. A nil gateway is returned (with a logged warning) if
// credentials are not yet configured; predict.Pipeline and the trading
// cycle job both tolerate a nil gateway, falling back to synthetic
// brackets and skipping the cycle respectively.
func buildGateway(logger *slog.Logger, box *crypto.Box, operator model.Operator) kalshi.Gateway {
	if operator.EncryptedAPIKey == "" || operator.EncryptedAPISecret == "" {
		logger.Warn("no Kalshi credentials configured, trading cycle and live brackets disabled")
		return nil
	}

	apiKeyID, err := box.Decrypt(operator.EncryptedAPIKey)
	if err != nil {
		logger.Error("decrypt Kalshi API key failed", "err", err)
		return nil
	}
	privateKeyPEM, err := box.Decrypt(operator.EncryptedAPISecret)
	if err != nil {
		logger.Error("decrypt Kalshi private key failed", "err", err)
		return nil
	}

	gw, err := kalshi.NewLiveGateway(
		"https://api.elections.kalshi.com/trade-api/v2", "/trade-api/v2",
		apiKeyID, []byte(privateKeyPEM),
	)
	if err != nil {
		logger.Error("construct Kalshi live gateway failed", "err", err)
		return nil
	}
	return gw
}

// runJobDispatcher drains the Redis-backed job queue, routing each task's
// job name to RunNow on the scheduler's registered jobs. It is the queue's
// consumer; the producer side (an operator-facing "run now" action) is not
// built here.
func runJobDispatcher(ctx context.Context, log *slog.Logger, q *broker.Queue, sched *scheduler.Scheduler, jobs scheduler.Jobs) {
	byName := map[string]scheduler.Job{
		jobs.FetchForecasts.Name():      jobs.FetchForecasts,
		jobs.FetchCLIReport.Name():      jobs.FetchCLIReport,
		jobs.GeneratePredictions.Name(): jobs.GeneratePredictions,
		jobs.TradingCycle.Name():        jobs.TradingCycle,
		jobs.ExpirePending.Name():       jobs.ExpirePending,
		jobs.SettleTrades.Name():        jobs.SettleTrades,
		jobs.RetrainModels.Name():       jobs.RetrainModels,
	}

	for {
		if ctx.Err() != nil {
			return
		}
		task, raw, err := q.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("job dispatcher dequeue failed", "error", err)
			continue
		}
		if raw == nil {
			continue
		}
		job, ok := byName[task.JobName]
		if !ok {
			log.Warn("job dispatcher received unknown job name", "job_name", task.JobName)
			_ = q.Ack(ctx, raw)
			continue
		}
		sched.RunNow(job)
		if err := q.Ack(ctx, raw); err != nil {
			log.Warn("job dispatcher ack failed", "job_name", task.JobName, "error", err)
		}
	}
}
