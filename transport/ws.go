// Package transport ships the default gorilla/websocket-backed
// implementation of the dialogue.Transport interface, together with the
// small HTTP upgrade helper cmd/dialoguesrv wires up. The core package
// never imports this one; it depends only on the Transport interface, the
// way the teacher's Socket only ever depends on *engineio.Session.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrTransportClosed is returned by Send once the connection has closed.
var ErrTransportClosed = errors.New("transport: connection closed")

// ErrSlowClient is returned by Send when the outbound queue is full; the
// caller (the room's fan-out step) treats this as a dropped emission and
// does not retry, per the core's backpressure policy.
var ErrSlowClient = errors.New("transport: slow client")

// Config controls keepalive timing and outbound buffering. Grounded on the
// teacher's engineio.Config (PingInterval/PingTimeout/MaxPayload), adapted
// to native WebSocket ping/pong control frames instead of Engine.IO's own
// text-framed ping/pong packets.
type Config struct {
	PingInterval   time.Duration
	PingTimeout    time.Duration
	MaxPayload     int64
	OutboundBuffer int
}

// DefaultConfig mirrors the teacher's engineio.DefaultConfig values.
func DefaultConfig() Config {
	return Config{
		PingInterval:   25 * time.Second,
		PingTimeout:    20 * time.Second,
		MaxPayload:     1e6,
		OutboundBuffer: 256,
	}
}

// Server upgrades incoming HTTP requests to WSTransport connections.
// Grounded on the teacher's engineio.Server.ServeHTTP: upgrade, then hand
// the live connection to the caller.
type Server struct {
	upgrader websocket.Upgrader
	config   Config
}

// NewServer constructs a Server with the given keepalive/buffering config.
func NewServer(config Config) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		config: config,
	}
}

// Upgrade upgrades r to a WebSocket connection and returns the resulting
// transport along with the handshake's auth payload, extracted from the
// "auth" query parameter (as JSON, falling back to a bare token) or, absent
// that, the negotiated subprotocol. The caller is expected to pass both to
// dialogue.Server.HandleConnect and then call transport.Start once it has a
// ConnectedClient to route inbound frames to.
func (s *Server) Upgrade(w http.ResponseWriter, r *http.Request) (*WSTransport, interface{}, error) {
	auth := extractAuthPayload(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, err
	}

	conn.SetReadLimit(s.config.MaxPayload)

	id := uuid.NewString()
	return NewWSTransport(id, conn, s.config), auth, nil
}

func extractAuthPayload(r *http.Request) interface{} {
	if raw := r.URL.Query().Get("auth"); raw != "" {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return payload
		}
		return map[string]interface{}{"token": raw}
	}

	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		return map[string]interface{}{"token": proto}
	}

	return nil
}

// WSTransport is a gorilla/websocket connection satisfying
// dialogue.Transport. Grounded on the teacher's engineio.Session: a
// buffered outbound channel drained by one write goroutine, one read
// goroutine decoding and dispatching inbound frames, and a
// schedule-ping/schedule-ping-timeout keepalive chain — generalized to
// native WebSocket control frames since this transport carries plain JSON
// frames rather than Engine.IO's own multiplexed packet format.
type WSTransport struct {
	id       string
	conn     *websocket.Conn
	outgoing chan []byte
	config   Config

	closeOnce sync.Once
	closed    chan struct{}

	pingTicker *time.Ticker

	mu        sync.RWMutex
	onMessage func([]byte)
	onClose   func(reason string)
}

// NewWSTransport wraps an already-upgraded connection.
func NewWSTransport(id string, conn *websocket.Conn, config Config) *WSTransport {
	return &WSTransport{
		id:       id,
		conn:     conn,
		outgoing: make(chan []byte, config.OutboundBuffer),
		config:   config,
		closed:   make(chan struct{}),
	}
}

// RemoteID returns the connection's process-unique identifier.
func (t *WSTransport) RemoteID() string { return t.id }

// OnMessage registers the inbound-frame handler. Must be set before Start.
func (t *WSTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// OnClose registers the close handler, invoked exactly once.
func (t *WSTransport) OnClose(fn func(reason string)) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// Start launches the read and write loops and the keepalive ticker.
func (t *WSTransport) Start() {
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.config.PingInterval + t.config.PingTimeout))
	})
	_ = t.conn.SetReadDeadline(time.Now().Add(t.config.PingInterval + t.config.PingTimeout))

	go t.writeLoop()
	go t.readLoop()
}

// Send queues frame for delivery. A full outbound queue returns
// ErrSlowClient rather than blocking, matching the teacher's
// engineio.Session.Send default-case behavior exactly.
func (t *WSTransport) Send(frame []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	select {
	case t.outgoing <- frame:
		return nil
	case <-t.closed:
		return ErrTransportClosed
	default:
		return ErrSlowClient
	}
}

// Close tears down the connection. Safe to call more than once.
func (t *WSTransport) Close(reason string) error {
	t.closeOnce.Do(func() {
		close(t.closed)
		if t.pingTicker != nil {
			t.pingTicker.Stop()
		}
		_ = t.conn.Close()

		t.mu.RLock()
		onClose := t.onClose
		t.mu.RUnlock()
		if onClose != nil {
			onClose(reason)
		}
	})
	return nil
}

func (t *WSTransport) readLoop() {
	defer t.Close("read error")

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		t.mu.RLock()
		handler := t.onMessage
		t.mu.RUnlock()

		if handler != nil {
			handler(data)
		}
	}
}

func (t *WSTransport) writeLoop() {
	t.pingTicker = time.NewTicker(t.config.PingInterval)
	defer t.pingTicker.Stop()

	for {
		select {
		case frame := <-t.outgoing:
			if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.Close("write error")
				return
			}
		case <-t.pingTicker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.config.PingTimeout)); err != nil {
				t.Close("ping timeout")
				return
			}
		case <-t.closed:
			return
		}
	}
}
