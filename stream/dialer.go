package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaipokrandt/iotsecuritydash/errors"
)

// Conn is the subset of a WebSocket connection the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn to the given URL.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// wsDialer wraps gorilla's dialer.
type wsDialer struct {
	dialer *websocket.Dialer
}

// NewDialer returns the production WebSocket dialer.
func NewDialer(handshakeTimeout time.Duration) Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 45 * time.Second
	}
	return &wsDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.WrapTransient(err, "stream", "DialContext", "open websocket")
	}
	return conn, nil
}
