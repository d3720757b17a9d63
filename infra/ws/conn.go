// Package ws carries protocol envelopes over WebSocket connections, both on
// the coordinator (Hub) and on the vehicle (Dial).
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/fleetcmd/core/logger"
	"github.com/kilianp07/fleetcmd/core/protocol"
)

var (
	// ErrSessionClosed is returned by Send once the connection is gone.
	ErrSessionClosed = errors.New("ws: session closed")
	// ErrSendTimeout is returned by Send when the queue stayed full until ctx ended.
	ErrSendTimeout = errors.New("ws: send timeout")
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultSendQueue      = 32
)

// Options tunes a connection. Zero values select defaults.
type Options struct {
	SendQueue      int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = defaultSendQueue
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	return o
}

// pingPeriod must stay below PongWait.
func (o Options) pingPeriod() time.Duration { return o.PongWait * 9 / 10 }

// Conn is one WebSocket connection with a bounded outbound queue drained by a
// single writer goroutine, so envelopes leave in the order they were queued.
type Conn struct {
	ws   *websocket.Conn
	opts Options
	log  logger.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, opts Options, log logger.Logger) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		ws:   ws,
		opts: opts,
		log:  logger.OrNop(log),
		send: make(chan []byte, opts.SendQueue),
		done: make(chan struct{}),
	}
}

// Send queues env. It waits for queue space until ctx ends and never blocks
// on the network.
func (c *Conn) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Kind, err)
	}
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSendTimeout, ctx.Err())
	}
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// ReadLoop calls handle for every text frame until the connection fails or is
// closed. The connection is closed when ReadLoop returns.
func (c *Conn) ReadLoop(handle func(data []byte)) {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warnf("read error: %v", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		handle(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warnf("write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
