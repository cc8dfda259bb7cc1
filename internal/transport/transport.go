// Package transport defines the WebSocket collaborator used by a chat
// session: a connect primitive returning a Handle plus a Listener that
// receives lifecycle callbacks. WS implements it on gorilla/websocket.
package transport

import (
	"context"

	"github.com/pkg/errors"
)

// Close codes from RFC 6455 section 7.4.1.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseNoStatus      = 1005
	CloseAbnormal      = 1006
	maxCloseReasonSize = 123
)

var (
	// ErrCloseTimeout is reported through OnFailure when the peer does not
	// answer a close frame in time.
	ErrCloseTimeout = errors.New("timed out waiting for close frame from peer")
	// ErrShutdown is reported for connections requested after Shutdown.
	ErrShutdown = errors.New("transport is shut down")
)

// Listener receives the lifecycle of a single connection. Callbacks for one
// Handle are delivered sequentially, in network order, from a goroutine owned
// by the transport. Exactly one of OnClosed or OnFailure ends the sequence,
// unless the handle was cancelled.
type Listener interface {
	OnOpen(h Handle)
	OnMessage(h Handle, text string)
	// OnClosing fires when the peer's close frame arrives.
	OnClosing(h Handle, code int, reason string)
	// OnClosed fires once both sides have exchanged close frames.
	OnClosed(h Handle, code int, reason string)
	OnFailure(h Handle, err error)
}

// Handle is a live connection, possibly still handshaking.
type Handle interface {
	// Send queues a text frame. It reports false when the frame could not be
	// queued: the handle is closing or gone, or the send buffer is full.
	Send(text string) bool
	// Close starts the closing handshake after any queued frames. It reports
	// false if a close was already started or the arguments are invalid.
	Close(code int, reason string) bool
	// Cancel drops the connection immediately. No further callbacks are
	// delivered for this handle.
	Cancel()
}

// Transport opens connections.
type Transport interface {
	// Connect starts connecting to url in the background and returns the
	// handle right away; l observes the outcome.
	Connect(url string, l Listener) Handle
	// Shutdown waits for open handles to finish until ctx is done, then
	// cancels the rest.
	Shutdown(ctx context.Context) error
}
