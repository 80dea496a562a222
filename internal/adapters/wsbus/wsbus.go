// Package wsbus bridges bus.Event traffic to WebSocket-connected
// operator clients. It is a hostport.BusEventSink: cmd/kernelnode
// subscribes a bus.Receiver and forwards each event to Accept, which
// fans it out to every connected client.
package wsbus

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyonions/kernel/pkg/bus"
	"github.com/rustyonions/kernel/pkg/passport"
)

const (
	defaultSendQueue  = 64
	writeWait         = 5 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = pongWait * 9 / 10
	maxInboundMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wireEvent struct {
	Kind    string `json:"kind"`
	Service string `json:"service"`
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Hub fans out bus events to a set of WebSocket clients. Each client has
// a bounded outbound queue; when a client's queue is full the event is
// dropped for that client (and counted) rather than allowed to stall the
// hub. The client itself stays connected.
type Hub struct {
	mu        sync.Mutex
	conns     map[*clientConn]struct{}
	sendQueue int
	dropped   uint64
	rejected  uint64

	keys      passport.KeyDirectory
	verifyCfg passport.Config
}

// NewHub constructs an empty Hub. sendQueue bounds each client's
// outbound buffer; values below 1 fall back to defaultSendQueue. keys is
// consulted by ServeHTTP to gate the upgrade on a presented passport
// token; a nil keys leaves the event feed open, matching the nil-safe
// Observer convention elsewhere in this repo (used by tests and local
// dev when no capability directory is configured).
func NewHub(sendQueue int, keys passport.KeyDirectory) *Hub {
	if sendQueue < 1 {
		sendQueue = defaultSendQueue
	}
	return &Hub{
		conns:     make(map[*clientConn]struct{}),
		sendQueue: sendQueue,
		keys:      keys,
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// resulting connection as a broadcast target until it disconnects. When
// the hub was constructed with a non-nil KeyDirectory, the upgrade is
// refused unless the request presents a token that passport.Verify
// allows; every connected client receives the full unfiltered event feed,
// so gating happens once, here, at connect time.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.keys != nil && !h.authorized(r) {
		h.mu.Lock()
		h.rejected++
		h.mu.Unlock()
		http.Error(w, "capability required", http.StatusUnauthorized)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	cc := &clientConn{ws: ws, send: make(chan []byte, h.sendQueue)}
	h.register(cc)
	go h.writePump(cc)
	h.readPump(cc)
}

// authorized runs passport.Verify against the "cap" query-string token.
// Browsers cannot set arbitrary headers on a WebSocket handshake, so the
// token travels as a query parameter rather than Authorization.
func (h *Hub) authorized(r *http.Request) bool {
	tok := r.URL.Query().Get("cap")
	if tok == "" {
		return false
	}
	reqCtx := passport.RequestContext{
		Method:   r.Method,
		Path:     r.URL.Path,
		PeerAddr: peerHost(r.RemoteAddr),
	}
	dec := passport.Verify(h.verifyCfg, h.keys, []byte(tok), time.Now(), reqCtx, "")
	return dec.Allow
}

func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// Accept implements hostport.BusEventSink: it serializes ev and
// broadcasts it to every connected client, dropping on per-client
// backpressure rather than blocking the publisher.
func (h *Hub) Accept(ctx context.Context, ev bus.Event) error {
	b, err := json.Marshal(wireEvent{
		Kind:    string(ev.Kind),
		Service: ev.Service,
		Healthy: ev.Healthy,
		Version: ev.Version,
		Reason:  ev.Reason,
	})
	if err != nil {
		return err
	}
	h.broadcast(b)
	return nil
}

// ConnCount reports the number of currently registered clients.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Dropped reports the cumulative count of broadcasts dropped due to a
// full per-client outbound queue.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Rejected reports the cumulative count of upgrade attempts refused for
// failing capability verification.
func (h *Hub) Rejected() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejected
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cc := range h.conns {
		select {
		case cc.send <- b:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) register(cc *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[cc] = struct{}{}
}

func (h *Hub) unregister(cc *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[cc]; ok {
		delete(h.conns, cc)
		close(cc.send)
	}
}

type clientConn struct {
	ws   *websocket.Conn
	send chan []byte
}

func (h *Hub) writePump(cc *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cc.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-cc.send:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cc.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cc.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cc.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound client traffic; this surface is observer
// only. It exists to detect disconnects and keep the read deadline
// serviced so idle connections are reaped.
func (h *Hub) readPump(cc *clientConn) {
	defer h.unregister(cc)
	cc.ws.SetReadLimit(maxInboundMessage)
	_ = cc.ws.SetReadDeadline(time.Now().Add(pongWait))
	cc.ws.SetPongHandler(func(string) error {
		return cc.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cc.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Pump reads events from recv until ctx is done or the bus closes, and
// forwards each to Accept. Callers typically run this in its own
// goroutine against a dedicated bus.Receiver.
func (h *Hub) Pump(ctx context.Context, recv *bus.Receiver) error {
	for {
		ev, err := recv.Recv(ctx)
		if err != nil {
			return err
		}
		_ = h.Accept(ctx, ev)
	}
}
