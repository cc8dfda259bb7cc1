package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultCloseTimeout     = 5 * time.Second
	defaultSendBuffer       = 64
)

// Options tunes the gorilla/websocket transport. Zero values fall back to
// defaults, except PingInterval where zero disables keepalive pings.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
	PingInterval     time.Duration
	SendBuffer       int
	Header           http.Header
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = defaultCloseTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

// WS is a Transport backed by gorilla/websocket. Every connection runs one
// reader goroutine (which also delivers all callbacks), one writer goroutine
// and, when enabled, one ping goroutine.
type WS struct {
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	shut bool
}

// NewWS creates a transport with the given options.
func NewWS(opts Options, logger zerolog.Logger) *WS {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &WS{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect implements Transport.
func (t *WS) Connect(url string, l Listener) Handle {
	h := &wsHandle{
		t:        t,
		url:      url,
		l:        l,
		send:     make(chan string, t.opts.SendBuffer),
		closeReq: make(chan closeFrame, 1),
	}
	h.ctx, h.cancel = context.WithCancel(t.ctx)

	t.mu.Lock()
	if t.shut {
		t.mu.Unlock()
		h.state = stateDone
		h.cancel()
		go l.OnFailure(h, ErrShutdown)
		return h
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go h.run()
	return h
}

// Shutdown implements Transport.
func (t *WS) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.shut = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.log.Warn().Msg("shutdown deadline reached, cancelling open connections")
		t.cancel()
		<-done
		return errors.Wrap(ctx.Err(), "transport shutdown")
	}
}

type state int

const (
	stateConnecting state = iota
	stateOpen
	stateClosing
	stateDone
)

type closeFrame struct {
	code   int
	reason string
}

type wsHandle struct {
	t   *WS
	url string
	l   Listener

	// Cancelled by Cancel, by Shutdown, or when run returns. Callbacks are
	// suppressed once it is done.
	ctx    context.Context
	cancel context.CancelFunc

	send     chan string
	closeReq chan closeFrame

	mu           sync.Mutex
	state        state
	closeStarted bool
	closeSent    bool
	closeTimer   *time.Timer
	failure      error

	closeTimedOut atomic.Bool
}

// Send implements Handle.
func (h *wsHandle) Send(text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closeStarted || h.state >= stateClosing {
		return false
	}
	select {
	case h.send <- text:
		return true
	default:
		return false
	}
}

// Close implements Handle.
func (h *wsHandle) Close(code int, reason string) bool {
	if !validCloseCode(code) || len(reason) > maxCloseReasonSize {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closeStarted || h.state == stateDone {
		return false
	}
	h.closeStarted = true
	h.closeReq <- closeFrame{code: code, reason: reason}
	return true
}

// Cancel implements Handle.
func (h *wsHandle) Cancel() {
	h.cancel()
	h.mu.Lock()
	h.state = stateDone
	h.mu.Unlock()
}

func (h *wsHandle) emit(fn func()) {
	if h.ctx.Err() != nil {
		return
	}
	fn()
}

func (h *wsHandle) run() {
	defer h.t.wg.Done()
	defer h.cancel()

	log := h.t.log.With().Str("url", h.url).Logger()

	conn, _, err := h.t.dialer.DialContext(h.ctx, h.url, h.t.opts.Header)
	if err != nil {
		h.mu.Lock()
		h.state = stateDone
		h.mu.Unlock()
		log.Debug().Err(err).Msg("dial failed")
		h.emit(func() { h.l.OnFailure(h, errors.Wrapf(err, "dial %s", h.url)) })
		return
	}
	defer conn.Close()
	stop := context.AfterFunc(h.ctx, func() { _ = conn.Close() })
	defer stop()

	h.mu.Lock()
	if h.state == stateConnecting {
		h.state = stateOpen
	}
	h.mu.Unlock()

	log.Debug().Msg("connection open")
	h.emit(func() { h.l.OnOpen(h) })

	h.t.wg.Add(1)
	go h.writeLoop(conn)
	if h.t.opts.PingInterval > 0 {
		h.t.wg.Add(1)
		go h.pingLoop(conn)
	}

	h.readLoop(conn, log)
}

func (h *wsHandle) readLoop(conn *websocket.Conn, log zerolog.Logger) {
	var peer *closeFrame

	conn.SetCloseHandler(func(code int, text string) error {
		peer = &closeFrame{code: code, reason: text}
		h.emit(func() { h.l.OnClosing(h, code, text) })

		h.mu.Lock()
		h.state = stateClosing
		reply := !h.closeSent
		h.closeSent = true
		h.mu.Unlock()

		if reply {
			// WriteControl may run concurrently with the writer goroutine.
			msg := websocket.FormatCloseMessage(code, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.t.opts.WriteTimeout))
		}
		return nil
	})

	extend := func() {}
	if h.t.opts.PingInterval > 0 {
		pongWait := 2 * h.t.opts.PingInterval
		extend = func() { _ = conn.SetReadDeadline(time.Now().Add(pongWait)) }
		conn.SetPongHandler(func(string) error {
			extend()
			return nil
		})
		extend()
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			h.finish(err, peer, log)
			return
		}
		extend()
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			text := string(data)
			h.emit(func() { h.l.OnMessage(h, text) })
		}
	}
}

func (h *wsHandle) finish(readErr error, peer *closeFrame, log zerolog.Logger) {
	h.mu.Lock()
	h.state = stateDone
	if h.closeTimer != nil {
		h.closeTimer.Stop()
	}
	failure := h.failure
	h.mu.Unlock()

	switch {
	case h.closeTimedOut.Load():
		log.Debug().Msg("close handshake timed out")
		h.emit(func() { h.l.OnFailure(h, ErrCloseTimeout) })
	case peer != nil:
		log.Debug().Int("code", peer.code).Str("reason", peer.reason).Msg("connection closed")
		h.emit(func() { h.l.OnClosed(h, peer.code, peer.reason) })
	case failure != nil:
		log.Debug().Err(failure).Msg("connection failed")
		h.emit(func() { h.l.OnFailure(h, failure) })
	default:
		log.Debug().Err(readErr).Msg("connection failed")
		h.emit(func() { h.l.OnFailure(h, errors.Wrap(readErr, "read")) })
	}
}

func (h *wsHandle) writeLoop(conn *websocket.Conn) {
	defer h.t.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case text := <-h.send:
			if err := h.writeText(conn, text); err != nil {
				h.fail(conn, err)
				return
			}
		case cf := <-h.closeReq:
			// Frames queued before Close go out first.
			for drained := false; !drained; {
				select {
				case text := <-h.send:
					if err := h.writeText(conn, text); err != nil {
						h.fail(conn, err)
						return
					}
				default:
					drained = true
				}
			}
			h.writeClose(conn, cf)
			return
		}
	}
}

func (h *wsHandle) writeText(conn *websocket.Conn, text string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.t.opts.WriteTimeout))
	return errors.Wrap(conn.WriteMessage(websocket.TextMessage, []byte(text)), "write")
}

func (h *wsHandle) writeClose(conn *websocket.Conn, cf closeFrame) {
	h.mu.Lock()
	if h.closeSent {
		h.mu.Unlock()
		return
	}
	h.closeSent = true
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(cf.code, cf.reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.t.opts.WriteTimeout)); err != nil {
		h.fail(conn, errors.Wrap(err, "write close"))
		return
	}

	h.mu.Lock()
	if h.state != stateDone {
		h.closeTimer = time.AfterFunc(h.t.opts.CloseTimeout, func() {
			h.closeTimedOut.Store(true)
			_ = conn.Close()
		})
	}
	h.mu.Unlock()
}

// fail records the first write-side error and tears the socket down so the
// reader reports it.
func (h *wsHandle) fail(conn *websocket.Conn, err error) {
	h.mu.Lock()
	if h.failure == nil {
		h.failure = err
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// pingLoop sends periodic pings on the given connection. It exits when the
// handle is done or a close frame has been sent.
func (h *wsHandle) pingLoop(conn *websocket.Conn) {
	defer h.t.wg.Done()
	ticker := time.NewTicker(h.t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			sent := h.closeSent
			h.mu.Unlock()
			if sent {
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.t.opts.WriteTimeout))
			if err != nil {
				return
			}
		}
	}
}

func validCloseCode(code int) bool {
	switch code {
	case 1004, CloseNoStatus, CloseAbnormal, 1015:
		return false
	}
	return code >= CloseNormal && code < 5000
}
