// Package wsgateway fans real-time trading events out to connected
// WebSocket clients. The register/unregister/broadcast channel loop and
// ping/pong keepalive are adapted from internal/trade/ws_hub.go;
// the connection-manager semantics (the connection set cannot change
// mid-broadcast, and a connection is removed the moment its send fails) are
// additionally grounded on original_source/backend/websocket/manager.py's
// ConnectionManager.broadcast.
package wsgateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Gateway manages WebSocket connections and broadcasts events pulled off
// the event bus to every connected client. It satisfies eventbus.Sink.
type Gateway struct {
	log        *slog.Logger
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// New builds a Gateway. Call Run in its own goroutine to start the event
// loop before accepting connections.
func New(log *slog.Logger) *Gateway {
	return &Gateway{
		log:        log.With("component", "wsgateway"),
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run is the gateway's single-goroutine event loop; it owns all mutation of
// the client set outside of reads guarded by mu.
func (g *Gateway) Run() {
	for {
		select {
		case conn := <-g.register:
			g.mu.Lock()
			g.clients[conn] = true
			n := len(g.clients)
			g.mu.Unlock()
			g.log.Info("client connected", "active_connections", n)

		case conn := <-g.unregister:
			g.mu.Lock()
			if _, ok := g.clients[conn]; ok {
				delete(g.clients, conn)
				conn.Close()
			}
			n := len(g.clients)
			g.mu.Unlock()
			g.log.Info("client disconnected", "active_connections", n)

		case msg := <-g.broadcast:
			g.sendToAll(msg)
		}
	}
}

// sendToAll iterates the connection set while holding the write lock, so
// the set cannot change mid-broadcast (the effect the Python manager gets
// from iterating a `.copy()`), and removes any connection whose send fails.
func (g *Gateway) sendToAll(msg []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for conn := range g.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(g.clients, conn)
		}
	}
}

// Broadcast queues raw JSON for delivery to every connected client. It
// satisfies eventbus.Sink. A full buffer drops the message rather than
// blocking the caller — the eventbus subscriber loop must never stall
// because a client is slow to drain.
func (g *Gateway) Broadcast(raw []byte) {
	select {
	case g.broadcast <- raw:
	default:
		g.log.Warn("broadcast buffer full, dropping event")
	}
}

// ActiveConnections reports the current connection count.
func (g *Gateway) ActiveConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// it with the gateway.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("ws upgrade failed", "error", err)
		return
	}
	g.register <- conn

	go g.readPump(conn)
	go g.pingLoop(conn)
}

// readPump drains and discards client frames purely to detect disconnects
// and service pong control frames; clients never send application data.
func (g *Gateway) readPump(conn *websocket.Conn) {
	defer func() { g.unregister <- conn }()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		g.mu.RLock()
		_, ok := g.clients[conn]
		g.mu.RUnlock()
		if !ok {
			return
		}
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}
