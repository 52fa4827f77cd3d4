package scheduler

import "time"

// Cron schedules, carried over verbatim (in meaning) from the Celery beat
// table this scheduler replaces: weather fetch every 30 minutes, CLI report
// at 8am local, predictions offset 5 minutes after each weather fetch,
// trading cycle every 15 minutes, pending-trade expiry every 5 minutes,
// settlement at 9am local, and a weekly Sunday 3am model retrain.
const (
	ScheduleFetchForecasts      = "*/30 * * * *"
	ScheduleFetchCLIReport      = "0 8 * * *"
	ScheduleGeneratePredictions = "5,35 * * * *"
	ScheduleTradingCycle        = "*/15 * * * *"
	ScheduleExpirePending       = "*/5 * * * *"
	ScheduleSettleTrades        = "0 9 * * *"
	ScheduleRetrainModels       = "0 3 * * 0"
)

// Per-job soft/hard timeouts and retry policy, one constant pair per row of
// the cadence table, each confirmed against its Celery original's
// @shared_task(soft_time_limit=..., time_limit=...) decorator and its
// max_retries/default_retry_delay. These are deliberately not collapsed
// into one shared default: the seven jobs' latency budgets and retry
// policies differ from each other, and from each other's originals.
const (
	FetchForecastsSoftTimeout = 240 * time.Second
	FetchForecastsHardTimeout = 300 * time.Second
	FetchForecastsMaxRetries  = 3
	FetchForecastsBackoff     = 60 * time.Second

	FetchCLIReportSoftTimeout = 240 * time.Second
	FetchCLIReportHardTimeout = 300 * time.Second
	FetchCLIReportMaxRetries  = 3
	FetchCLIReportBackoff     = 120 * time.Second

	GeneratePredictionsSoftTimeout = 240 * time.Second
	GeneratePredictionsHardTimeout = 300 * time.Second
	GeneratePredictionsMaxRetries  = 2
	GeneratePredictionsBackoff     = 60 * time.Second

	TradingCycleSoftTimeout = 180 * time.Second
	TradingCycleHardTimeout = 240 * time.Second
	TradingCycleMaxRetries  = 2
	TradingCycleBackoff     = 30 * time.Second

	// ExpirePending is idempotent (re-running it just re-scans for
	// already-expired rows), so the original never retries it on failure.
	ExpirePendingSoftTimeout = 120 * time.Second
	ExpirePendingHardTimeout = 180 * time.Second
	ExpirePendingMaxRetries  = 0
	ExpirePendingBackoff     = 0 * time.Second

	SettleTradesSoftTimeout = 300 * time.Second
	SettleTradesHardTimeout = 360 * time.Second
	SettleTradesMaxRetries  = 2
	SettleTradesBackoff     = 60 * time.Second

	// RetrainModels never retries: a failed training run Sunday at 3am
	// should surface rather than silently re-attempt an expensive training
	// pass, and the next week's run will simply try again from fresh data.
	RetrainModelsSoftTimeout = 600 * time.Second
	RetrainModelsHardTimeout = 720 * time.Second
	RetrainModelsMaxRetries  = 0
	RetrainModelsBackoff     = 0 * time.Second
)

// RegisterDefaults registers every standing job with its table-driven
// schedule, timeout, and retry policy, wiring each to the concrete
// implementations passed in. Any nil job is skipped (useful in partial
// wiring during startup).
func RegisterDefaults(s *Scheduler, jobs Jobs) error {
	type reg struct {
		schedule   string
		job        Job
		soft, hard time.Duration
		maxRetries int
		backoff    time.Duration
	}
	regs := []reg{
		{ScheduleFetchForecasts, jobs.FetchForecasts, FetchForecastsSoftTimeout, FetchForecastsHardTimeout, FetchForecastsMaxRetries, FetchForecastsBackoff},
		{ScheduleFetchCLIReport, jobs.FetchCLIReport, FetchCLIReportSoftTimeout, FetchCLIReportHardTimeout, FetchCLIReportMaxRetries, FetchCLIReportBackoff},
		{ScheduleGeneratePredictions, jobs.GeneratePredictions, GeneratePredictionsSoftTimeout, GeneratePredictionsHardTimeout, GeneratePredictionsMaxRetries, GeneratePredictionsBackoff},
		{ScheduleTradingCycle, jobs.TradingCycle, TradingCycleSoftTimeout, TradingCycleHardTimeout, TradingCycleMaxRetries, TradingCycleBackoff},
		{ScheduleExpirePending, jobs.ExpirePending, ExpirePendingSoftTimeout, ExpirePendingHardTimeout, ExpirePendingMaxRetries, ExpirePendingBackoff},
		{ScheduleSettleTrades, jobs.SettleTrades, SettleTradesSoftTimeout, SettleTradesHardTimeout, SettleTradesMaxRetries, SettleTradesBackoff},
		{ScheduleRetrainModels, jobs.RetrainModels, RetrainModelsSoftTimeout, RetrainModelsHardTimeout, RetrainModelsMaxRetries, RetrainModelsBackoff},
	}
	for _, r := range regs {
		if r.job == nil {
			continue
		}
		if err := s.AddJobFull(r.schedule, r.job, r.soft, r.hard, r.maxRetries, r.backoff); err != nil {
			return err
		}
	}
	return nil
}

// Jobs bundles every standing job implementation. Fields left nil are
// skipped by RegisterDefaults.
type Jobs struct {
	FetchForecasts      Job
	FetchCLIReport      Job
	GeneratePredictions Job
	TradingCycle        Job
	ExpirePending       Job
	SettleTrades        Job
	RetrainModels       Job
}
