package rtmt

import (
	"context"
	"io"

	"nhooyr.io/websocket"
)

// Conn carries realtime API messages. Each message is a single JSON document.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, msg []byte) error
}

// Realtime audio deltas are larger than the websocket package's default read limit.
const maxMessageSize = 16 << 20

// NewWebSocketConn wraps c as a Conn. A normal or going-away closure is reported as io.EOF.
func NewWebSocketConn(c *websocket.Conn) WebSocketConn {
	c.SetReadLimit(maxMessageSize)
	return WebSocketConn{c: c}
}

type WebSocketConn struct {
	c *websocket.Conn
}

func (wc WebSocketConn) Read(ctx context.Context) ([]byte, error) {
	_, msg, err := wc.c.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	return msg, nil
}

func (wc WebSocketConn) Write(ctx context.Context, msg []byte) error {
	return wc.c.Write(ctx, websocket.MessageText, msg)
}
