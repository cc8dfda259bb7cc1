package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(opts, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEchoRoundTrip(t *testing.T) {
	s, srv := newTestServer(t, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.ConnCount() == 1 }, time.Second, 10*time.Millisecond)

	for _, msg := range []string{"hi", "", "ünïcode ✓", strings.Repeat("x", 4096)} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.Equal(t, msg, string(data))
	}

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2}))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{0, 1, 2}, data)
}

func TestEchoClientClose(t *testing.T) {
	s, srv := newTestServer(t, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.ConnCount() == 1 }, time.Second, 10*time.Millisecond)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return s.ConnCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPlainHTTPRejected(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTokenRequired(t *testing.T) {
	_, srv := newTestServer(t, Options{Token: "secret"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(wsURL(srv)+"/?token=secret", nil)
	require.NoError(t, err)
	conn.Close()
}

func TestAuthorize(t *testing.T) {
	s := NewServer(Options{Token: "tok"}, zerolog.Nop())

	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   bool
	}{
		{"none", func(*http.Request) {}, false},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=tok" }, true},
		{"header", func(r *http.Request) { r.Header.Set("X-Echo-Chat-Token", "tok") }, true},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") }, true},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.mutate(r)
			assert.Equal(t, tt.want, s.authorize(r))
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	open := NewServer(Options{}, zerolog.Nop())
	restricted := NewServer(Options{AllowedOrigins: []string{"https://chat.example.com", " "}}, zerolog.Nop())

	tests := []struct {
		name   string
		s      *Server
		origin string
		host   string
		want   bool
	}{
		{"no origin", open, "", "echo.local", true},
		{"same host", open, "http://echo.local:8080", "echo.local:8080", true},
		{"localhost", open, "http://localhost:3000", "echo.local", true},
		{"loopback v6", open, "http://[::1]:3000", "echo.local", true},
		{"foreign", open, "https://evil.example", "echo.local", false},
		{"allowed exact", restricted, "https://chat.example.com", "echo.local", true},
		{"allowed host other scheme", restricted, "http://chat.example.com", "echo.local", true},
		{"not allowed", restricted, "http://localhost:3000", "echo.local", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, tt.s.checkOrigin(r))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	s := NewServer(Options{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0", ready) }()

	var addr string
	select {
	case addr = <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.ConnCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
