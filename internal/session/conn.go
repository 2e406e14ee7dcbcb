// ABOUTME: Transport contract a session writes frames to
// ABOUTME: Implemented by the gateway's websocket adapter and by test fakes

package session

import "errors"

// Close codes sent when a session ends the connection.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// ErrConnClosed is returned by Conn writes after Close.
var ErrConnClosed = errors.New("connection closed")

// Conn is the accepted duplex connection owned by one session. Writes may be
// called from several goroutines; implementations serialize them. Writes
// after Close fail with ErrConnClosed.
type Conn interface {
	WriteText(data []byte) error
	WriteBinary(data []byte) error
	Close(code int, reason string) error
}

// Message is one inbound frame.
type Message struct {
	Binary bool
	Data   []byte
}
