package transport

import "errors"

var (
	errConnClosed     = errors.New("transport: connection closed")
	errSendBufferFull = errors.New("transport: outbound buffer full")
)
