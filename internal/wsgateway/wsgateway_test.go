package wsgateway

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewGatewayStartsEmpty(t *testing.T) {
	g := New(testLogger())
	if g.ActiveConnections() != 0 {
		t.Errorf("ActiveConnections = %d, want 0", g.ActiveConnections())
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	g := New(testLogger())
	// Fill the buffer without a running Run loop to drain it.
	for i := 0; i < cap(g.broadcast); i++ {
		g.Broadcast([]byte("msg"))
	}
	if len(g.broadcast) != cap(g.broadcast) {
		t.Fatalf("buffer len = %d, want full at %d", len(g.broadcast), cap(g.broadcast))
	}
	// One more must not block; Broadcast's select-default drops it.
	g.Broadcast([]byte("overflow"))
	if len(g.broadcast) != cap(g.broadcast) {
		t.Errorf("buffer len = %d after overflow, want unchanged at %d", len(g.broadcast), cap(g.broadcast))
	}
}
