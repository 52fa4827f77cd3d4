// Package trading executes EV-positive signals that clear every risk gate:
// submitting orders in auto mode, queuing pending approvals in manual
// mode, and processing approve/reject/expire transitions. Control flow
// (lock, validate, risk-check, persist, broadcast) is grounded on
// internal/trade/service.go's ExecuteTrade, generalized from LMSR
// markets to Kalshi brackets: the market-maker math is replaced entirely
// by the MarketGateway abstraction.
package trading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aclarkson2013/boz-weather-trader/internal/ev"
	"github.com/aclarkson2013/boz-weather-trader/internal/kalshi"
	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/risk"
)

// PendingTTL is how long a manual-mode pending trade waits before it
// expires unacted.
const PendingTTL = 2 * time.Hour

// Store is the minimal persistence surface the executor depends on.
type Store interface {
	InsertTrade(ctx context.Context, t model.Trade) error
	InsertPendingTrade(ctx context.Context, pt model.PendingTrade) error
	UpdatePendingTradeStatus(ctx context.Context, id uuid.UUID, status model.PendingStatus, actedAt time.Time) error
	GetRiskState(ctx context.Context, operatorID uuid.UUID, tradingDay time.Time) (model.DailyRiskState, error)
	SaveRiskState(ctx context.Context, state model.DailyRiskState) error
	OpenExposureByCity(ctx context.Context, operatorID uuid.UUID) (map[model.City]int64, error)
	IncrementTradesCount(ctx context.Context, operatorID uuid.UUID, tradingDay time.Time) error
}

// Publisher is the minimal event-bus surface the executor depends on.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any)
}

// Executor wires EV signals through risk gates to either an immediate
// order or a pending-approval row. Trade execution is serialized by mu,
// matching a single-instance locking strategy.
type Executor struct {
	log     *slog.Logger
	store   Store
	gateway kalshi.Gateway
	limits  risk.Limits
	pub     Publisher
	mu      sync.Mutex
}

// NewExecutor builds an Executor. pub may be nil (publish becomes a no-op).
func NewExecutor(log *slog.Logger, store Store, gateway kalshi.Gateway, limits risk.Limits, pub Publisher) *Executor {
	return &Executor{log: log, store: store, gateway: gateway, limits: limits, pub: pub}
}

// Decide runs one signal through the risk gates and either executes it
// (auto mode) or queues it for approval (manual mode). It returns nil on
// a clean risk rejection (the signal is dropped and the rejection reason
// is logged here) or on a clean gateway failure (log and
// drop, the next cycle re-scans); only unexpected storage errors are
// returned as hard errors.
func (e *Executor) Decide(ctx context.Context, operator model.Operator, signal ev.Signal, tradingDay time.Time, localHour int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetRiskState(ctx, operator.ID, tradingDay)
	if err != nil {
		return fmt.Errorf("trading: load risk state: %w", err)
	}
	if risk.NeedsDailyReset(state, tradingDay) {
		state = risk.ResetForDay(operator.ID, tradingDay)
	}

	exposures, err := e.store.OpenExposureByCity(ctx, operator.ID)
	if err != nil {
		return fmt.Errorf("trading: load exposure: %w", err)
	}

	riskSignal := risk.Signal{City: signal.City, CostCents: signal.CostCents(), WorstLossCents: signal.WorstLossCents()}
	if err := risk.Evaluate(time.Now(), localHour, operator, state, e.limits, exposures, riskSignal); err != nil {
		e.log.Info("signal rejected by risk gate", "city", signal.City, "bracket", signal.Bracket.Label, "reason", err)
		return nil
	}

	if err := e.store.SaveRiskState(ctx, state); err != nil {
		return fmt.Errorf("trading: save risk state: %w", err)
	}

	if operator.TradingMode == model.TradingModeManual {
		return e.queuePending(ctx, operator, signal)
	}
	return e.executeNow(ctx, operator, signal, tradingDay)
}

func (e *Executor) executeNow(ctx context.Context, operator model.Operator, signal ev.Signal, tradingDay time.Time) error {
	order, err := e.gateway.PlaceOrder(ctx, signal.MarketTicker, signal.Side, signal.PriceCents, signal.Qty)
	if err != nil {
		e.log.Warn("gateway order placement failed, dropping signal for this cycle", "city", signal.City, "error", err)
		return nil
	}

	trade := model.Trade{
		ID:                uuid.New(),
		OperatorID:        operator.ID,
		MarketOrderID:     order.OrderID,
		City:              signal.City,
		TradeDate:         tradingDay,
		MarketTicker:      signal.MarketTicker,
		BracketLabel:      signal.Bracket.Label,
		Side:              signal.Side,
		PriceCents:        signal.PriceCents,
		Quantity:          signal.Qty,
		ModelProbability:  signal.ModelP,
		MarketProbability: signal.MarketP,
		EntryEV:           signal.EV,
		Confidence:        signal.Confidence,
		Status:            model.TradeStatusOpen,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return fmt.Errorf("trading: insert trade: %w", err)
	}
	if err := e.store.IncrementTradesCount(ctx, operator.ID, tradingDay); err != nil {
		return fmt.Errorf("trading: increment trades count: %w", err)
	}
	e.publish(ctx, "trade.executed", trade)
	return nil
}

func (e *Executor) queuePending(ctx context.Context, operator model.Operator, signal ev.Signal) error {
	pt := model.PendingTrade{
		ID:                uuid.New(),
		OperatorID:        operator.ID,
		City:              signal.City,
		TradeDate:         time.Now().UTC(),
		MarketTicker:      signal.MarketTicker,
		BracketLabel:      signal.Bracket.Label,
		Side:              signal.Side,
		PriceCents:        signal.PriceCents,
		Quantity:          signal.Qty,
		ModelProbability:  signal.ModelP,
		MarketProbability: signal.MarketP,
		EntryEV:           signal.EV,
		Confidence:        signal.Confidence,
		Reasoning:         signal.Reasoning,
		Status:            model.PendingStatusPending,
		ExpiresAt:         time.Now().UTC().Add(PendingTTL),
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.store.InsertPendingTrade(ctx, pt); err != nil {
		return fmt.Errorf("trading: insert pending trade: %w", err)
	}
	e.publish(ctx, "trade.queued", pt)
	return nil
}

// Approve transitions a pending trade to APPROVED then attempts execution
// via the same order-submission path as auto mode. On gateway success the
// pending trade becomes EXECUTED and a Trade row is created; on failure it
// becomes REJECTED.
func (e *Executor) Approve(ctx context.Context, pt model.PendingTrade, operator model.Operator) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.UpdatePendingTradeStatus(ctx, pt.ID, model.PendingStatusApproved, time.Now().UTC()); err != nil {
		return fmt.Errorf("trading: mark pending trade approved: %w", err)
	}

	order, err := e.gateway.PlaceOrder(ctx, pt.MarketTicker, pt.Side, pt.PriceCents, pt.Quantity)
	now := time.Now().UTC()
	if err != nil {
		if updErr := e.store.UpdatePendingTradeStatus(ctx, pt.ID, model.PendingStatusRejected, now); updErr != nil {
			return fmt.Errorf("trading: mark pending trade rejected: %w", updErr)
		}
		return nil
	}

	trade := model.Trade{
		ID:                uuid.New(),
		OperatorID:        pt.OperatorID,
		MarketOrderID:     order.OrderID,
		City:              pt.City,
		TradeDate:         pt.TradeDate,
		MarketTicker:      pt.MarketTicker,
		BracketLabel:      pt.BracketLabel,
		Side:              pt.Side,
		PriceCents:        pt.PriceCents,
		Quantity:          pt.Quantity,
		ModelProbability:  pt.ModelProbability,
		MarketProbability: pt.MarketProbability,
		EntryEV:           pt.EntryEV,
		Confidence:        pt.Confidence,
		Status:            model.TradeStatusOpen,
		CreatedAt:         now,
	}
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return fmt.Errorf("trading: insert trade from approval: %w", err)
	}
	if err := e.store.UpdatePendingTradeStatus(ctx, pt.ID, model.PendingStatusExecuted, now); err != nil {
		return fmt.Errorf("trading: mark pending trade executed: %w", err)
	}
	if err := e.store.IncrementTradesCount(ctx, operator.ID, pt.TradeDate); err != nil {
		return fmt.Errorf("trading: increment trades count: %w", err)
	}
	e.publish(ctx, "trade.executed", trade)
	return nil
}

// Reject transitions a pending trade to REJECTED without touching the
// gateway.
func (e *Executor) Reject(ctx context.Context, pt model.PendingTrade) error {
	return e.store.UpdatePendingTradeStatus(ctx, pt.ID, model.PendingStatusRejected, time.Now().UTC())
}

// ExpirePending transitions every PENDING trade whose TTL has elapsed to
// EXPIRED, publishing trade.expired for each.
func (e *Executor) ExpirePending(ctx context.Context, expired []model.PendingTrade) error {
	now := time.Now().UTC()
	for _, pt := range expired {
		if err := e.store.UpdatePendingTradeStatus(ctx, pt.ID, model.PendingStatusExpired, now); err != nil {
			return fmt.Errorf("trading: expire pending trade %s: %w", pt.ID, err)
		}
		e.publish(ctx, "trade.expired", pt)
	}
	return nil
}

func (e *Executor) publish(ctx context.Context, eventType string, data any) {
	if e.pub == nil {
		return
	}
	e.pub.Publish(ctx, eventType, data)
}
