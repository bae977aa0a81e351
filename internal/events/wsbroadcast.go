package events

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSBroadcaster streams every dispatched event to connected WebSocket
// clients as JSON — a live tail for dashboards watching the automation
// event stream (§4.8) without polling the A2A JSON-RPC surface. Grounded on
// the teacher's gateway.Server: the same upgrader/checkOrigin shape, wired
// here to Dispatcher.Subscribe instead of the teacher's channel/agent
// broadcast bus.
type WSBroadcaster struct {
	dispatcher     *Dispatcher
	allowedOrigins []string
	upgrader       websocket.Upgrader

	mu      sync.Mutex
	clients map[string]chan Event
}

// NewWSBroadcaster builds a handler backed by d. allowedOrigins mirrors
// config.A2AConfig.AllowedOrigins: empty means allow any origin (CLI/SDK
// clients send no Origin header at all and are always allowed).
func NewWSBroadcaster(d *Dispatcher, allowedOrigins []string) *WSBroadcaster {
	b := &WSBroadcaster{
		dispatcher:     d,
		allowedOrigins: allowedOrigins,
		clients:        make(map[string]chan Event),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     b.checkOrigin,
	}
	return b
}

func (b *WSBroadcaster) checkOrigin(r *http.Request) bool {
	if len(b.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range b.allowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("events.ws_origin_rejected", "origin", origin)
	return false
}

// ServeHTTP upgrades the connection and relays every subsequently
// dispatched event to the client until it disconnects.
func (b *WSBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("events.ws_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	id := fmt.Sprintf("ws-%p-%d", conn, time.Now().UnixNano())
	ch := make(chan Event, 32)

	b.mu.Lock()
	b.clients[id] = ch
	b.mu.Unlock()

	b.dispatcher.Subscribe(id, func(e Event) {
		select {
		case ch <- e:
		default:
			slog.Warn("events.ws_client_slow_dropping_event", "client", id)
		}
	})

	defer func() {
		b.dispatcher.Unsubscribe(id)
		b.mu.Lock()
		delete(b.clients, id)
		b.mu.Unlock()
	}()

	closed := make(chan struct{})
	go b.drainReads(conn, closed)

	for {
		select {
		case <-closed:
			return
		case e := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

// drainReads discards whatever the client sends — this broadcaster is
// send-only, but a connection's read loop still has to run so gorilla's
// pong handler fires and a dead client's disconnect is noticed, closing
// closed so the write loop above stops blocking on ch.
func (b *WSBroadcaster) drainReads(conn *websocket.Conn, closed chan struct{}) {
	defer close(closed)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
