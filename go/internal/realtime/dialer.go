package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the transport for one open channel. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to urlStr.
type Dialer interface {
	Dial(ctx context.Context, urlStr string, header http.Header) (Conn, error)
}

// HandshakeError reports a rejected upgrade with the HTTP status returned.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

type WebsocketDialer struct {
	dialer *websocket.Dialer
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, urlStr string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, urlStr, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// isAuthFailure reports whether err means the server rejected the credential:
// a 401/403 handshake, a policy-violation close, or a close reason naming 401/403.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	var hsErr *HandshakeError
	if errors.As(err, &hsErr) {
		return hsErr.StatusCode == http.StatusUnauthorized || hsErr.StatusCode == http.StatusForbidden
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.ClosePolicyViolation {
			return true
		}
		return strings.Contains(closeErr.Text, "401") || strings.Contains(closeErr.Text, "403")
	}

	return false
}
