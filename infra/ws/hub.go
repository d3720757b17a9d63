package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/fleetcmd/core/logger"
	"github.com/kilianp07/fleetcmd/core/protocol"
	"github.com/kilianp07/fleetcmd/core/registry"
)

// Coordinator is the session lifecycle the hub drives. *dispatch.Dispatcher
// implements it.
type Coordinator interface {
	Connect(conn registry.Conn) *registry.Session
	Disconnect(vehicleID string)
	ReconcileAck(vehicleID, ackToken string)
}

// Hub upgrades vehicle connections and feeds their acks to the coordinator.
type Hub struct {
	coord    Coordinator
	opts     Options
	log      logger.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub creates a Hub.
func NewHub(coord Coordinator, opts Options, log logger.Logger) *Hub {
	return &Hub{
		coord: coord,
		opts:  opts,
		log:   logger.OrNop(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// vehicles are not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	c := newConn(wsConn, h.opts, h.log)
	h.track(c, true)
	defer h.track(c, false)

	sess := h.coord.Connect(c)
	defer h.coord.Disconnect(sess.ID)

	go c.writePump()
	c.ReadLoop(func(data []byte) {
		env, err := protocol.Decode(data)
		if err != nil {
			h.log.Warnf("bad message from %s: %v", sess.ID, err)
			return
		}
		if env.Kind != protocol.KindAck {
			h.log.Warnf("unexpected %s from %s", env.Kind, sess.ID)
			return
		}
		h.coord.ReconcileAck(sess.ID, env.Token)
	})
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every open connection. Each session then disconnects through
// its own ServeHTTP goroutine.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *Hub) track(c *Conn, open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if open {
		h.conns[c] = struct{}{}
	} else {
		delete(h.conns, c)
	}
}
