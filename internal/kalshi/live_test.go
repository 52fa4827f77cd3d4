package kalshi

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/google/uuid"
)

func testGateway(t *testing.T) *LiveGateway {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	gw, err := NewLiveGateway("https://api.elections.kalshi.com/trade-api/v2", "/trade-api/v2", "key-"+uuid.NewString(), pemBytes)
	if err != nil {
		t.Fatalf("NewLiveGateway: %v", err)
	}
	return gw
}

func TestNewLiveGatewayRejectsMalformedKey(t *testing.T) {
	if _, err := NewLiveGateway("https://example.com", "", "key", []byte("not a pem block")); err == nil {
		t.Error("want error for malformed private key")
	}
}

func TestAuthHeadersIncludesRequiredFields(t *testing.T) {
	gw := testGateway(t)
	headers, err := gw.authHeaders("GET", "/markets/FOO")
	if err != nil {
		t.Fatalf("authHeaders: %v", err)
	}
	for _, key := range []string{"KALSHI-ACCESS-KEY", "KALSHI-ACCESS-TIMESTAMP", "KALSHI-ACCESS-SIGNATURE"} {
		if headers[key] == "" {
			t.Errorf("missing header %s", key)
		}
	}
}

func TestAuthHeadersVaryByRequest(t *testing.T) {
	gw := testGateway(t)
	a, err := gw.authHeaders("GET", "/markets/FOO")
	if err != nil {
		t.Fatalf("authHeaders: %v", err)
	}
	b, err := gw.authHeaders("POST", "/portfolio/orders")
	if err != nil {
		t.Fatalf("authHeaders: %v", err)
	}
	if a["KALSHI-ACCESS-SIGNATURE"] == b["KALSHI-ACCESS-SIGNATURE"] {
		t.Error("signatures for different method/path should differ")
	}
}
