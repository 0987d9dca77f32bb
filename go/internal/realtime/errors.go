package realtime

import "errors"

var (
	ErrAuthUnavailable      = errors.New("no credential available for connection")
	ErrAuthenticationFailed = errors.New("authentication failed, re-authenticate")
	ErrConnectTimeout       = errors.New("connection timed out")
	ErrNotConnected         = errors.New("not connected")
	ErrDisconnected         = errors.New("connection closed by disconnect")
	ErrReconnectExhausted   = errors.New("reconnect attempts exhausted")
)
