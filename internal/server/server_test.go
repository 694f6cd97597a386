// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/config"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// fakeBackend replays a canned SSE body, or blocks until canceled when body
// is empty.
type fakeBackend struct {
	body    string
	pingErr error

	mu       sync.Mutex
	requests []completion.Request
	streamed chan context.Context
}

func newFakeBackend(body string) *fakeBackend {
	return &fakeBackend{body: body, streamed: make(chan context.Context, 8)}
}

func (b *fakeBackend) Stream(ctx context.Context, req completion.Request) (io.ReadCloser, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	b.streamed <- ctx

	if b.body != "" {
		return io.NopCloser(strings.NewReader(b.body)), nil
	}
	pr, pw := io.Pipe()
	context.AfterFunc(ctx, func() { pw.CloseWithError(ctx.Err()) })
	return pr, nil
}

func (b *fakeBackend) Ping(context.Context) error { return b.pingErr }

func (b *fakeBackend) lastRequest() completion.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func sse(deltas ...string) string {
	var sb strings.Builder
	for _, d := range deltas {
		payload, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": d}}},
		})
		sb.WriteString("data: " + string(payload) + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.UI.MaxFPS = 0
	return cfg
}

func newTestServer(t *testing.T, backend Backend) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(testConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBackendFactory(func(*config.Config) Backend { return backend }),
		WithVersion("test"),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil collects frames until one matches want.
func readUntil(t *testing.T, conn *websocket.Conn, want func(ServerFrame) bool) []ServerFrame {
	t.Helper()
	var frames []ServerFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f ServerFrame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if want(f) {
			return frames
		}
	}
}

func isType(typ string) func(ServerFrame) bool {
	return func(f ServerFrame) bool { return f.Type == typ }
}

func isState(state string) func(ServerFrame) bool {
	return func(f ServerFrame) bool { return f.Type == FrameState && f.State == state }
}

func isRole(role string) func(ServerFrame) bool {
	return func(f ServerFrame) bool { return f.Type == FrameMessage && f.Role == role }
}

// =============================================================================
// HTTP TESTS
// =============================================================================

func TestIndex(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("x")))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Mimo-7b-rl Chatbot")
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'self'")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestStaticAssets(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("x")))

	for _, path := range []string{"/static/app.js", "/static/app.css"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestHandleHealth(t *testing.T) {
	backend := newFakeBackend(sse("x"))
	_, ts := newTestServer(t, backend)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.EndpointStatus)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, completion.DefaultModel, health.Model)
}

func TestHandleHealth_EndpointDown(t *testing.T) {
	backend := newFakeBackend(sse("x"))
	backend.pingErr = errors.New("connection refused")
	_, ts := newTestServer(t, backend)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unavailable", health.EndpointStatus)
}

// =============================================================================
// WEBSOCKET TESTS
// =============================================================================

func TestWebSocket_Turn(t *testing.T) {
	backend := newFakeBackend(sse("The answer ", "is **4**."))
	_, ts := newTestServer(t, backend)
	conn := dial(t, ts)

	frames := readUntil(t, conn, isState("idle"))
	assert.Equal(t, FrameHistory, frames[0].Type)
	assert.Empty(t, frames[0].Messages, "system preamble is not shown")

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "What is 2+2?"}))

	frames = readUntil(t, conn, isRole("assistant"))
	var user, live *ServerFrame
	for i := range frames {
		switch {
		case isRole("user")(frames[i]):
			user = &frames[i]
		case frames[i].Type == FrameLive:
			live = &frames[i]
		}
	}
	require.NotNil(t, user)
	assert.Contains(t, user.HTML, "What is 2+2?")
	require.NotNil(t, live)

	assistant := frames[len(frames)-1]
	assert.Contains(t, assistant.HTML, "<strong>4</strong>")
	assert.NotEmpty(t, assistant.ID)

	readUntil(t, conn, isState("idle"))

	req := backend.lastRequest()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "What is 2+2?", req.Messages[1].Content)
	assert.True(t, req.Stream)
}

func TestWebSocket_UserTextIsEscaped(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("ok")))
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "<script>x</script>\nline two"}))
	frames := readUntil(t, conn, isRole("user"))
	html := frames[len(frames)-1].HTML
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "<br>line two")
}

func TestWebSocket_MathAndThink(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("<think>hmm</think>Area is \\(\\pi r^2\\).")))
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "area?"}))
	frames := readUntil(t, conn, isRole("assistant"))
	html := frames[len(frames)-1].HTML

	assert.Contains(t, html, "<details>")
	assert.Contains(t, html, `<span class="math inline">\(\pi r^2\)</span>`)
}

func TestWebSocket_Cancel(t *testing.T) {
	backend := newFakeBackend("")
	_, ts := newTestServer(t, backend)
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "long one"}))
	readUntil(t, conn, isState("streaming"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameCancel}))
	frames := readUntil(t, conn, isState("idle"))
	for _, f := range frames {
		assert.False(t, isRole("assistant")(f), "canceled turn must not commit")
		assert.NotEqual(t, FrameError, f.Type)
	}
}

func TestWebSocket_BusyRejected(t *testing.T) {
	backend := newFakeBackend("")
	_, ts := newTestServer(t, backend)
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "first"}))
	readUntil(t, conn, isState("streaming"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "second"}))
	frames := readUntil(t, conn, isType(FrameError))
	assert.Equal(t, "response in progress", frames[len(frames)-1].Text)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameCancel}))
	readUntil(t, conn, isState("idle"))
}

func TestWebSocket_CloseCancelsTurn(t *testing.T) {
	backend := newFakeBackend("")
	_, ts := newTestServer(t, backend)
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "hello"}))
	var streamCtx context.Context
	select {
	case streamCtx = <-backend.streamed:
	case <-time.After(5 * time.Second):
		t.Fatal("request never sent")
	}

	conn.Close()
	select {
	case <-streamCtx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("closing the socket did not cancel the request")
	}
}

func TestWebSocket_Reset(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("hi")))
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "hello"}))
	readUntil(t, conn, isRole("assistant"))
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameReset}))
	frames := readUntil(t, conn, isType(FrameHistory))
	assert.Empty(t, frames[len(frames)-1].Messages)
}

func TestWebSocket_EmptyResponseWarns(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse()))
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "hello"}))
	frames := readUntil(t, conn, isType(FrameWarning))
	assert.Equal(t, "Assistant did not generate any content.", frames[len(frames)-1].Text)
}

func TestWebSocket_UnknownFrame(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("x")))
	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: "dance"}))
	frames := readUntil(t, conn, isType(FrameError))
	assert.Contains(t, frames[len(frames)-1].Text, "dance")
}

func TestWebSocket_SessionsAreIsolated(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("reply")))
	a := dial(t, ts)
	b := dial(t, ts)
	readUntil(t, a, isState("idle"))
	readUntil(t, b, isState("idle"))

	require.NoError(t, a.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "only in a"}))
	readUntil(t, a, isRole("assistant"))
	readUntil(t, a, isState("idle"))

	require.NoError(t, b.WriteJSON(ClientFrame{Type: FrameReset}))
	frames := readUntil(t, b, isType(FrameHistory))
	assert.Empty(t, frames[len(frames)-1].Messages)
}

func TestWebSocket_NewConfigForNewConnections(t *testing.T) {
	backend := newFakeBackend(sse("ok"))
	srv, ts := newTestServer(t, backend)

	cfg := testConfig()
	cfg.Endpoint.Model = "swapped-model"
	srv.SetConfig(cfg)

	conn := dial(t, ts)
	readUntil(t, conn, isState("idle"))
	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubmit, Text: "hi"}))
	readUntil(t, conn, isRole("assistant"))

	assert.Equal(t, "swapped-model", backend.lastRequest().Model)
}

func TestWebSocket_ForeignOriginRejected(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend(sse("x")))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"no origin", "", nil, true},
		{"same host", "http://127.0.0.1:8501", nil, true},
		{"foreign", "http://evil.example", nil, false},
		{"listed", "http://localhost:3000", []string{"http://localhost:3000"}, true},
		{"wildcard", "http://evil.example", []string{"*"}, true},
		{"subdomain", "https://chat.example.com", []string{"*.example.com"}, true},
		{"subdomain miss", "https://example.org", []string{"*.example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8501/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, OriginPolicy{AllowedOrigins: tt.allowed}.Allowed(r))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestLoggingMiddleware_KeepsRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "fixed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "fixed", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestServe_ShutsDownOnCancel(t *testing.T) {
	backend := newFakeBackend(sse("x"))
	srv := New(testConfig(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBackendFactory(func(*config.Config) Backend { return backend }),
	)
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}
