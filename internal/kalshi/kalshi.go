// Package kalshi builds event tickers, parses bracket markets, and defines
// the market gateway abstraction the prediction and trading pipelines
// depend on. Ticker construction and bracket parsing are grounded on the
// reference implementation's kalshi/markets.py; the gateway surface and
// its live-exchange implementation have no equivalent kept source and are
// built from the externally observed interface alone.
package kalshi

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// SeriesTickers maps a city code to its Kalshi daily-high-temperature
// series ticker.
var SeriesTickers = map[model.City]string{
	model.CityNYC: "KXHIGHNY",
	model.CityCHI: "KXHIGHCHI",
	model.CityMIA: "KXHIGHMIA",
	model.CityAUS: "KXHIGHAUS",
}

// BuildEventTicker builds the event ticker for a city and date:
// "{series}-{YY}{MON}{DD}" with an uppercase three-letter month.
func BuildEventTicker(city model.City, targetDate time.Time) (string, error) {
	series, ok := SeriesTickers[city]
	if !ok {
		return "", fmt.Errorf("kalshi: unknown city code %q", city)
	}
	dateStr := strings.ToUpper(targetDate.Format("06Jan02"))
	return fmt.Sprintf("%s-%s", series, dateStr), nil
}

// Market is the subset of a Kalshi market API response needed for bracket
// parsing and order placement.
type Market struct {
	Ticker      string
	FloorStrike *float64
	CapStrike   *float64
	YesBid      int
	YesAsk      int
	NoBid       int
	NoAsk       int
	LastPrice   int
	Volume      int
	Status      string
}

// ParseBracketFromMarket derives a BracketProbability-shaped label and
// bounds from a market's floor/cap strikes. Probability is left zero; the
// caller fills it in from the fused prediction.
func ParseBracketFromMarket(m Market) model.BracketProbability {
	switch {
	case m.FloorStrike == nil && m.CapStrike != nil:
		cap := *m.CapStrike
		return model.BracketProbability{
			Label:       fmt.Sprintf("Below %dF", int(cap+0.01)),
			UpperBoundF: &cap,
		}
	case m.CapStrike == nil && m.FloorStrike != nil:
		floor := *m.FloorStrike
		return model.BracketProbability{
			Label:       fmt.Sprintf("%dF or above", int(floor)),
			LowerBoundF: &floor,
		}
	case m.FloorStrike != nil && m.CapStrike != nil:
		floor, cap := *m.FloorStrike, *m.CapStrike
		return model.BracketProbability{
			Label:       fmt.Sprintf("%d-%dF", int(floor), int(cap+0.01)),
			LowerBoundF: &floor,
			UpperBoundF: &cap,
		}
	default:
		return model.BracketProbability{Label: "Unknown"}
	}
}

// ParseEventMarkets converts an event's markets into bracket metadata,
// sorted bottom-edge first, then ascending lower bound, top-edge last.
func ParseEventMarkets(markets []Market) []model.BracketProbability {
	brackets := make([]model.BracketProbability, 0, len(markets))
	for _, m := range markets {
		brackets = append(brackets, ParseBracketFromMarket(m))
	}
	sort.SliceStable(brackets, func(i, j int) bool {
		return sortKey(brackets[i]) < sortKey(brackets[j])
	})
	return brackets
}

func sortKey(b model.BracketProbability) float64 {
	if b.IsBottomEdge() {
		return math.Inf(-1)
	}
	if b.IsTopEdge() {
		return math.Inf(1)
	}
	if b.LowerBoundF != nil {
		return *b.LowerBoundF
	}
	return 0
}

// Gateway is the abstract exchange interface the prediction and trading
// pipelines depend on. Implementations talk to the live Kalshi API or, in
// tests, a stub.
type Gateway interface {
	GetEventMarkets(ctx context.Context, eventTicker string) ([]Market, error)
	GetMarket(ctx context.Context, ticker string) (Market, error)
	GetOrders(ctx context.Context, status string) ([]Order, error)
	PlaceOrder(ctx context.Context, ticker string, side model.Side, priceCents, qty int) (Order, error)
	GetBalanceCents(ctx context.Context) (int64, error)
	Close() error
}

// Order is the exchange's confirmation of a placed order.
type Order struct {
	OrderID    string
	Ticker     string
	Side       model.Side
	PriceCents int
	Quantity   int
	Status     string
}

// SyntheticBrackets builds the six-bracket fallback shape used when the
// market gateway cannot supply real brackets: four 2°F-wide middle
// brackets straddling the ensemble mean, flanked by open-ended catch-all
// brackets on either side.
func SyntheticBrackets(meanF float64) []model.BracketProbability {
	base := math.Floor(meanF/2)*2 - 2 // lowest floor of the four middle brackets

	brackets := make([]model.BracketProbability, 0, 6)
	bottomCap := base
	brackets = append(brackets, model.BracketProbability{
		Label:       fmt.Sprintf("Below %dF", int(bottomCap)),
		UpperBoundF: &bottomCap,
	})

	for i := 0; i < 4; i++ {
		floor := base + float64(i)*2
		cap := floor + 2
		brackets = append(brackets, model.BracketProbability{
			Label:       fmt.Sprintf("%d-%dF", int(floor), int(cap)),
			LowerBoundF: &floor,
			UpperBoundF: &cap,
		})
	}

	topFloor := base + 8
	brackets = append(brackets, model.BracketProbability{
		Label:       fmt.Sprintf("%dF or above", int(topFloor)),
		LowerBoundF: &topFloor,
	})
	return brackets
}

// ErrGatewayUnavailable wraps any failure reaching the exchange, so
// callers (the prediction pipeline's synthetic-bracket fallback, the
// trading pipeline's log-and-drop policy) can match on it without
// depending on transport details.
type ErrGatewayUnavailable struct {
	Op  string
	Err error
}

func (e *ErrGatewayUnavailable) Error() string {
	return fmt.Sprintf("kalshi: %s: %v", e.Op, e.Err)
}

func (e *ErrGatewayUnavailable) Unwrap() error { return e.Err }
