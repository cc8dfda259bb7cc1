package session

import (
	"context"
	"sync"

	"github.com/echo-chat/client/internal/transport"
)

type closeCall struct {
	code   int
	reason string
}

type fakeHandle struct {
	mu        sync.Mutex
	accept    bool
	sent      []string
	closes    []closeCall
	cancelled bool
}

func (h *fakeHandle) Send(text string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return false
	}
	h.sent = append(h.sent, text)
	return true
}

func (h *fakeHandle) Close(code int, reason string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes = append(h.closes, closeCall{code, reason})
	return len(h.closes) == 1
}

func (h *fakeHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
}

func (h *fakeHandle) snapshot() (sent []string, closes []closeCall, cancelled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...), append([]closeCall(nil), h.closes...), h.cancelled
}

type fakeTransport struct {
	mu        sync.Mutex
	rejectAll bool
	urls      []string
	handles   []*fakeHandle
	shutdowns int
}

func (f *fakeTransport) Connect(url string, _ transport.Listener) transport.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{accept: !f.rejectAll}
	f.urls = append(f.urls, url)
	f.handles = append(f.handles, h)
	return h
}

func (f *fakeTransport) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func (f *fakeTransport) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}
