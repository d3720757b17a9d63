package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/fleetcmd/core/logger"
)

// Dial connects a vehicle to the coordinator at url and starts the writer.
// The caller runs ReadLoop and closes the connection.
func Dial(ctx context.Context, url string, opts Options, log logger.Logger) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	wsConn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := newConn(wsConn, opts, log)
	go c.writePump()
	return c, nil
}
