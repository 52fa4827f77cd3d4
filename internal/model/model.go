// Package model defines the domain types persisted by the trading control
// plane: operators, weather forecasts, predictions, trades, pending trades,
// settlements, daily risk state, and job-run log entries.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// City is one of the four supported weather-market cities.
type City string

const (
	CityNYC City = "NYC"
	CityCHI City = "CHI"
	CityMIA City = "MIA"
	CityAUS City = "AUS"
)

// AllCities lists every supported city in a fixed order, used anywhere a
// stable iteration order matters (feature one-hot encoding, synthetic
// bracket generation, correlated-region grouping).
var AllCities = []City{CityNYC, CityCHI, CityMIA, CityAUS}

func (c City) Valid() bool {
	switch c {
	case CityNYC, CityCHI, CityMIA, CityAUS:
		return true
	default:
		return false
	}
}

// TradingMode selects whether qualifying signals execute immediately or
// wait for manual approval.
type TradingMode string

const (
	TradingModeAuto   TradingMode = "auto"
	TradingModeManual TradingMode = "manual"
)

// Side is the market side of a trade or signal.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Confidence labels a prediction's source-spread tightness.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// TradeStatus is the lifecycle state of an executed trade. Once a trade
// reaches WON, LOST, or CANCELED it is terminal and immutable.
type TradeStatus string

const (
	TradeStatusOpen     TradeStatus = "OPEN"
	TradeStatusWon      TradeStatus = "WON"
	TradeStatusLost     TradeStatus = "LOST"
	TradeStatusCanceled TradeStatus = "CANCELED"
)

func (s TradeStatus) Terminal() bool {
	return s == TradeStatusWon || s == TradeStatusLost || s == TradeStatusCanceled
}

// PendingStatus is the lifecycle state of a manual-mode pending trade.
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "PENDING"
	PendingStatusApproved PendingStatus = "APPROVED"
	PendingStatusRejected PendingStatus = "REJECTED"
	PendingStatusExpired  PendingStatus = "EXPIRED"
	PendingStatusExecuted PendingStatus = "EXECUTED"
)

func (s PendingStatus) Terminal() bool {
	switch s {
	case PendingStatusRejected, PendingStatusExpired, PendingStatusExecuted:
		return true
	default:
		return false
	}
}

// WeatherSource is one of the fixed set of forecast providers.
type WeatherSource string

const (
	SourceNWS           WeatherSource = "NWS"
	SourceNWSGridpoint  WeatherSource = "NWS:gridpoint"
	SourceOpenMeteoGFS  WeatherSource = "Open-Meteo:GFS"
	SourceOpenMeteoECMWF WeatherSource = "Open-Meteo:ECMWF"
	SourceOpenMeteoICON WeatherSource = "Open-Meteo:ICON"
	SourceNWSCLI        WeatherSource = "NWS_CLI"
)

// KellyParams holds optional Kelly-criterion position sizing parameters.
type KellyParams struct {
	Enabled              bool
	FractionalKelly      decimal.Decimal
	MaxBankrollPctTrade  decimal.Decimal
	MaxContractsPerTrade int
}

// Operator is the singleton (in v1) trading identity: credentials, mode,
// and risk configuration.
type Operator struct {
	ID                     uuid.UUID
	EncryptedAPIKey        string
	EncryptedAPISecret     string
	TradingMode            TradingMode
	MaxTradeSizeCents      int64
	DailyLossLimitCents    int64
	MaxDailyExposureCents  int64
	MinEVThreshold         decimal.Decimal
	CooldownMinutesPerLoss int
	ConsecutiveLossLimit   int
	Kelly                  KellyParams
	ActiveCities           []City
	NotificationsEnabled   bool
	PushSubscription       string
	DemoMode               bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// WeatherVariables carries supplementary per-source forecast fields. All
// are optional since not every source reports every variable.
type WeatherVariables struct {
	TempLowF      *float64
	HumidityPct   *float64
	WindSpeedMPH  *float64
	CloudCoverPct *float64
	DewPointF     *float64
	PressureMB    *float64
}

// WeatherForecast is one row per (city, target date, source, fetched-at).
type WeatherForecast struct {
	ID                uuid.UUID
	City              City
	TargetDate        time.Time // date-only, local-standard-time civil date
	Source            WeatherSource
	ForecastHighF     float64
	Variables         WeatherVariables
	ModelRunTimestamp *time.Time
	RawData           string // opaque JSON/text blob of the original response
	FetchedAt         time.Time
}

// BracketProbability is an embedded component of Prediction: one bracket's
// label, temperature bounds, and fused probability.
type BracketProbability struct {
	Label       string
	LowerBoundF *float64 // nil for the bottom-edge bracket
	UpperBoundF *float64 // nil for the top-edge bracket
	Probability float64
}

func (b BracketProbability) IsBottomEdge() bool { return b.LowerBoundF == nil }
func (b BracketProbability) IsTopEdge() bool    { return b.UpperBoundF == nil }

// Contains reports whether temp falls within this bracket's range,
// respecting open-ended edges.
func (b BracketProbability) Contains(temp float64) bool {
	if b.LowerBoundF != nil && temp < *b.LowerBoundF {
		return false
	}
	if b.UpperBoundF != nil && temp >= *b.UpperBoundF {
		return false
	}
	return true
}

// Prediction is one row per (city, prediction date, generated-at): the
// fused ensemble mean/std and the bracket probability distribution.
type Prediction struct {
	ID             uuid.UUID
	City           City
	PredictionDate time.Time
	GeneratedAt    time.Time
	MeanF          float64
	StdDevF        float64
	Confidence     Confidence
	ModelSources   string // comma-joined contributing source/model names
	Brackets       []BracketProbability
}

// Trade is an executed position against a Kalshi bracket market.
type Trade struct {
	ID                uuid.UUID
	OperatorID        uuid.UUID
	MarketOrderID     string
	City              City
	TradeDate         time.Time
	MarketTicker      string
	BracketLabel      string
	Side              Side
	PriceCents        int
	Quantity          int
	ModelProbability  float64
	MarketProbability float64
	EntryEV           float64
	Confidence        Confidence
	Status            TradeStatus
	SettlementTempF   *float64
	SettlementSource  string
	PNLCents          *int64
	FeesCents         int64
	PostMortem        string
	CreatedAt         time.Time
	SettledAt         *time.Time
}

// PendingTrade is an approval-waiting item created in manual trading mode.
type PendingTrade struct {
	ID                uuid.UUID
	OperatorID        uuid.UUID
	City              City
	TradeDate         time.Time
	MarketTicker      string
	BracketLabel      string
	Side              Side
	PriceCents        int
	Quantity          int
	ModelProbability  float64
	MarketProbability float64
	EntryEV           float64
	Confidence        Confidence
	Reasoning         string
	Status            PendingStatus
	ExpiresAt         time.Time
	ActedAt           *time.Time
	CreatedAt         time.Time
}

// Settlement is the official observed daily high/low for a city and date,
// unique on (city, date).
type Settlement struct {
	ID             uuid.UUID
	City           City
	SettlementDate time.Time
	ObservedHighF  float64
	ObservedLowF   *float64
	Source         WeatherSource
	RawReport      string
	CreatedAt      time.Time
}

// DailyRiskState is the per-operator, per-trading-day risk counter row.
type DailyRiskState struct {
	ID                 uuid.UUID
	OperatorID         uuid.UUID
	TradingDay         time.Time
	TotalLossCents     int64
	TotalExposureCents int64
	ConsecutiveLosses  int
	CooldownUntil      *time.Time
	TradesCount        int
}

// LogEntry is a persisted record of one scheduled job's run outcome,
// supplementing the structured stdout logs with queryable history.
type LogEntry struct {
	ID         uuid.UUID
	JobName    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    string // "success" | "failure" | "retry"
	ErrorText  string
}
