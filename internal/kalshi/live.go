package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// LiveGateway is the Gateway implementation talking to the real Kalshi
// exchange API. Request signing (timestamp+method+path signed with
// RSA-PSS/SHA-256, base64-encoded into KALSHI-ACCESS-* headers) is
// grounded on sdibella-kalshi-btc15m's internal/kalshi/auth.go and
// client.go; generalized here from that bot's BTC-15-minute markets to
// this system's daily-high-temperature bracket markets.
type LiveGateway struct {
	baseURL    string
	pathPrefix string
	apiKeyID   string
	privKey    *rsa.PrivateKey
	http       *http.Client
}

// NewLiveGateway parses a PEM-encoded RSA private key (PKCS8 or PKCS1) and
// returns a Gateway bound to baseURL (e.g. "https://api.elections.kalshi.com/trade-api/v2").
func NewLiveGateway(baseURL, pathPrefix, apiKeyID string, privateKeyPEM []byte) (*LiveGateway, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi: private key is not RSA")
		}
		return newLiveGateway(baseURL, pathPrefix, apiKeyID, rsaKey), nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kalshi: parsing private key (tried PKCS8 and PKCS1): %w", err)
	}
	return newLiveGateway(baseURL, pathPrefix, apiKeyID, rsaKey), nil
}

func newLiveGateway(baseURL, pathPrefix, apiKeyID string, key *rsa.PrivateKey) *LiveGateway {
	return &LiveGateway{
		baseURL:    baseURL,
		pathPrefix: pathPrefix,
		apiKeyID:   apiKeyID,
		privKey:    key,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func sign(privKey *rsa.PrivateKey, timestampMS, method, path string) (string, error) {
	message := timestampMS + method + path
	hash := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, privKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("kalshi: signing request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (g *LiveGateway) authHeaders(method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := sign(g.privKey, ts, method, g.pathPrefix+path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"KALSHI-ACCESS-KEY":       g.apiKeyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}

func (g *LiveGateway) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return &ErrGatewayUnavailable{Op: method + " " + path, Err: err}
	}

	headers, err := g.authHeaders(method, path)
	if err != nil {
		return &ErrGatewayUnavailable{Op: method + " " + path, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return &ErrGatewayUnavailable{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ErrGatewayUnavailable{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode >= 400 {
		return &ErrGatewayUnavailable{Op: method + " " + path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ErrGatewayUnavailable{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

type marketWire struct {
	Ticker      string   `json:"ticker"`
	FloorStrike *float64 `json:"floor_strike"`
	CapStrike   *float64 `json:"cap_strike"`
	YesBid      int      `json:"yes_bid"`
	YesAsk      int      `json:"yes_ask"`
	NoBid       int      `json:"no_bid"`
	NoAsk       int      `json:"no_ask"`
	LastPrice   int      `json:"last_price"`
	Volume      int      `json:"volume"`
	Status      string   `json:"status"`
}

func (w marketWire) toMarket() Market {
	return Market{
		Ticker:      w.Ticker,
		FloorStrike: w.FloorStrike,
		CapStrike:   w.CapStrike,
		YesBid:      w.YesBid,
		YesAsk:      w.YesAsk,
		NoBid:       w.NoBid,
		NoAsk:       w.NoAsk,
		LastPrice:   w.LastPrice,
		Volume:      w.Volume,
		Status:      w.Status,
	}
}

func (g *LiveGateway) GetEventMarkets(ctx context.Context, eventTicker string) ([]Market, error) {
	var result struct {
		Markets []marketWire `json:"markets"`
	}
	if err := g.do(ctx, http.MethodGet, "/events/"+eventTicker, nil, &result); err != nil {
		return nil, err
	}
	markets := make([]Market, 0, len(result.Markets))
	for _, m := range result.Markets {
		markets = append(markets, m.toMarket())
	}
	return markets, nil
}

func (g *LiveGateway) GetMarket(ctx context.Context, ticker string) (Market, error) {
	var result struct {
		Market marketWire `json:"market"`
	}
	if err := g.do(ctx, http.MethodGet, "/markets/"+ticker, nil, &result); err != nil {
		return Market{}, err
	}
	return result.Market.toMarket(), nil
}

type orderWire struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Side           string `json:"side"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	RemainingCount int    `json:"remaining_count"`
	Status         string `json:"status"`
}

func (w orderWire) toOrder() Order {
	price := w.YesPrice
	side := model.SideYes
	if w.Side == "no" {
		side = model.SideNo
		price = w.NoPrice
	}
	return Order{
		OrderID:    w.OrderID,
		Ticker:     w.Ticker,
		Side:       side,
		PriceCents: price,
		Quantity:   w.RemainingCount,
		Status:     w.Status,
	}
}

func (g *LiveGateway) GetOrders(ctx context.Context, status string) ([]Order, error) {
	path := "/portfolio/orders"
	if status != "" {
		path += "?status=" + status
	}
	var result struct {
		Orders []orderWire `json:"orders"`
	}
	if err := g.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(result.Orders))
	for _, o := range result.Orders {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

func (g *LiveGateway) PlaceOrder(ctx context.Context, ticker string, side model.Side, priceCents, qty int) (Order, error) {
	req := map[string]any{
		"ticker": ticker,
		"action": "buy",
		"side":   string(side),
		"type":   "limit",
		"count":  qty,
	}
	if side == model.SideYes {
		req["yes_price"] = priceCents
	} else {
		req["no_price"] = priceCents
	}

	var result struct {
		Order orderWire `json:"order"`
	}
	if err := g.do(ctx, http.MethodPost, "/portfolio/orders", req, &result); err != nil {
		return Order{}, err
	}
	return result.Order.toOrder(), nil
}

func (g *LiveGateway) GetBalanceCents(ctx context.Context) (int64, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := g.do(ctx, http.MethodGet, "/portfolio/balance", nil, &result); err != nil {
		return 0, err
	}
	return result.Balance, nil
}

func (g *LiveGateway) Close() error { return nil }
