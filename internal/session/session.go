// Package session holds the state of a single chat connection: it owns the
// transport handle, turns transport callbacks into status changes and log
// lines, and publishes both as observable values for a presentation layer.
//
// Commands (Connect, Send, Disconnect) and transport callbacks are both
// marshaled onto one event-loop goroutine, so session state is only ever
// touched from that goroutine.
package session

import (
	"context"
	"sync"

	"github.com/echo-chat/client/internal/observable"
	"github.com/echo-chat/client/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DisconnectReason accompanies the normal-closure frame sent by Disconnect.
const DisconnectReason = "Client disconnected"

const opsBuffer = 64

// Session is the chat session state holder. It implements
// transport.Listener; callbacks are queued onto the event loop.
type Session struct {
	id        string
	url       string
	transport transport.Transport
	log       zerolog.Logger

	status   *observable.Value[Status]
	messages *observable.Value[[]string]

	// Loop-owned.
	handle transport.Handle
	lines  []string

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Listener = (*Session)(nil)

// New creates a disconnected session for url and starts its event loop.
// The session takes ownership of t and shuts it down on Close.
func New(url string, t transport.Transport, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:        id,
		url:       url,
		transport: t,
		log:       logger.With().Str("session_id", id).Str("url", url).Logger(),
		status:    observable.New(Status{State: Disconnected}),
		messages:  observable.New([]string{}),
		ops:       make(chan func(), opsBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) ID() string  { return s.id }
func (s *Session) URL() string { return s.url }

// Status returns the current connection status.
func (s *Session) Status() Status {
	return s.status.Get()
}

// Messages returns a snapshot of the message log.
func (s *Session) Messages() []string {
	return s.messages.Get()
}

// SubscribeStatus streams status changes, starting with the current one.
func (s *Session) SubscribeStatus() (<-chan Status, func()) {
	return s.status.Subscribe()
}

// SubscribeMessages streams message-log snapshots, starting with the
// current one.
func (s *Session) SubscribeMessages() (<-chan []string, func()) {
	return s.messages.Subscribe()
}

// Connect opens a connection unless one already exists, in which case it
// does nothing.
func (s *Session) Connect() {
	s.do(s.connect)
}

// Send transmits text on the current connection. Failures are reported in
// the message log.
func (s *Session) Send(text string) {
	s.do(func() { s.send(text) })
}

// Disconnect starts a graceful close of the current connection and forgets
// it right away, without waiting for the close handshake.
func (s *Session) Disconnect() {
	s.do(s.disconnect)
}

// RequestConnect queues Connect without waiting for it. Requests made from
// one goroutine run on the event loop in the order they were made.
func (s *Session) RequestConnect() {
	s.post(s.connect)
}

// RequestSend queues Send without waiting for it.
func (s *Session) RequestSend(text string) {
	s.post(func() { s.send(text) })
}

// RequestDisconnect queues Disconnect without waiting for it.
func (s *Session) RequestDisconnect() {
	s.post(s.disconnect)
}

// Close disconnects, stops the event loop, shuts the transport down and ends
// all subscriptions. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.do(func() {
			if s.handle != nil {
				s.disconnect()
			}
		})
		close(s.quit)
		<-s.done

		err = s.transport.Shutdown(ctx)
		s.log.Debug().
			Int("status_subscribers", s.status.Subscribers()).
			Int("message_subscribers", s.messages.Subscribers()).
			Msg("ending subscriptions")
		s.status.Close()
		s.messages.Close()
		s.log.Debug().Msg("session closed")
	})
	return err
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the loop and waits for it. It reports false once the
// session is closed.
func (s *Session) do(fn func()) bool {
	ran := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(ran) }:
	case <-s.quit:
		return false
	}
	select {
	case <-ran:
		return true
	case <-s.done:
		return false
	}
}

// post queues fn on the loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.quit:
	}
}

func (s *Session) connect() {
	if s.handle != nil {
		s.log.Debug().Msg("connect ignored, connection already present")
		return
	}
	s.log.Info().Msg("connecting")
	s.status.Set(Status{State: Connecting})
	s.handle = s.transport.Connect(s.url, s)
}

func (s *Session) send(text string) {
	if s.handle == nil {
		s.appendLine(NoticeNotConnected)
		return
	}
	if !s.handle.Send(text) {
		s.log.Warn().Msg("transport refused message")
		s.appendLine(NoticeSendFailed)
		return
	}
	s.appendLine(SentPrefix + text)
}

func (s *Session) disconnect() {
	if s.handle == nil {
		s.appendLine(NoticeNotConnected)
		return
	}
	s.log.Info().Msg("disconnecting")
	if !s.handle.Close(transport.CloseNormal, DisconnectReason) {
		s.handle.Cancel()
	}
	s.handle = nil
}

// accepts reports whether a callback from h may change session state. A
// handle replaced by a newer connection is ignored; one that was dropped by
// Disconnect still reports the tail of its close handshake.
func (s *Session) accepts(h transport.Handle) bool {
	if s.handle == nil || s.handle == h {
		return true
	}
	s.log.Debug().Msg("ignoring callback from replaced connection")
	return false
}

func (s *Session) release(h transport.Handle) {
	if s.handle == h {
		s.handle = nil
	}
}

func (s *Session) appendLine(line string) {
	s.lines = append(s.lines, line)
	// Snapshots are capped so a reader's append can never write into the
	// backing array this loop keeps appending to.
	s.messages.Set(s.lines[:len(s.lines):len(s.lines)])
}

// OnOpen implements transport.Listener.
func (s *Session) OnOpen(h transport.Handle) {
	s.post(func() {
		if s.handle != h {
			s.log.Debug().Msg("ignoring open from stale connection")
			return
		}
		s.log.Info().Msg("connected")
		s.status.Set(Status{State: Connected})
		s.appendLine(NoticeConnected)
	})
}

// OnMessage implements transport.Listener.
func (s *Session) OnMessage(h transport.Handle, text string) {
	s.post(func() {
		if !s.accepts(h) {
			return
		}
		s.appendLine(ReceivedPrefix + text)
	})
}

// OnClosing implements transport.Listener.
func (s *Session) OnClosing(h transport.Handle, code int, reason string) {
	s.post(func() {
		if !s.accepts(h) {
			return
		}
		s.log.Debug().Int("code", code).Str("reason", reason).Msg("closing")
		s.status.Set(Status{State: Closing, Code: code, Reason: reason})
	})
}

// OnClosed implements transport.Listener.
func (s *Session) OnClosed(h transport.Handle, code int, reason string) {
	s.post(func() {
		if !s.accepts(h) {
			return
		}
		s.log.Info().Int("code", code).Str("reason", reason).Msg("closed")
		s.status.Set(Status{State: Disconnected})
		s.release(h)
	})
}

// OnFailure implements transport.Listener.
func (s *Session) OnFailure(h transport.Handle, err error) {
	s.post(func() {
		if !s.accepts(h) {
			return
		}
		s.log.Warn().Err(err).Msg("connection failed")
		s.status.Set(Status{State: Failed, Message: err.Error()})
		s.appendLine(FailureNotice(err.Error()))
		h.Cancel()
		s.release(h)
	})
}
