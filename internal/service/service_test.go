package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/InsulaLabs/msdscript/internal/config"
	"github.com/InsulaLabs/msdscript/internal/history"
	"github.com/InsulaLabs/msdscript/internal/runner"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestServer(t *testing.T, mutate func(*Config)) (*httptest.Server, *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := runner.New(runner.Config{Logger: testLogger(), Concurrency: 4})
	t.Cleanup(r.Close)

	cfg := Config{
		Logger:                   testLogger(),
		Runner:                   r,
		WebSocketReadBufferSize:  1024,
		WebSocketWriteBufferSize: 1024,
		MaxConnections:           10,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(ctx, cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func post(t *testing.T, url string, body any) (*http.Response, EvalResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out EvalResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestNewService_RequiresRunner(t *testing.T) {
	_, err := NewService(context.Background(), Config{})
	assert.Error(t, err)
}

func TestEvalEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	testCases := []struct {
		path string
		src  string
		want string
	}{
		{"interp", "2 + 3 * 4", "14"},
		{"interp", "(_fun (x) x * x)(5)", "25"},
		{"interp", "_fun (x) x", "[function]"},
		{"print", "_let x = 5 _in x + 1", "(_let x=5 _in (x+1))"},
		{"pretty-print", "_if _true _then 1 _else 2", "_if _true\n_then 1\n_else 2"},
	}
	for _, tc := range testCases {
		t.Run(tc.path+" "+tc.src, func(t *testing.T) {
			resp, out := post(t, srv.URL+"/api/v1/"+tc.path, EvalRequest{Source: tc.src})
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Nil(t, out.Error)
			assert.Equal(t, tc.want, out.Result)
		})
	}
}

func TestEvalEndpoints_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, out := post(t, srv.URL+"/api/v1/interp", EvalRequest{Source: "1 +\n  $"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, out.Error)
	assert.Equal(t, "parse", out.Error.Kind)
	assert.Equal(t, 2, out.Error.Line)
	assert.Equal(t, 3, out.Error.Column)

	resp, out = post(t, srv.URL+"/api/v1/interp", EvalRequest{Source: "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, out.Error)
	assert.Equal(t, "runtime", out.Error.Kind)
	assert.Equal(t, "free-variable", out.Error.Reason)
	assert.Equal(t, "free variable: x", out.Error.Message)

	r, err := http.Post(srv.URL+"/api/v1/interp", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)

	r, err = http.Get(srv.URL + "/api/v1/interp")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestBatchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	data, err := json.Marshal(BatchRequest{Mode: "interp", Sources: []string{"1 + 1", "_true + 1", "3 * 3"}})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/batch", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out BatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Results, 3)
	assert.Equal(t, "2", out.Results[0].Result)
	require.NotNil(t, out.Results[1].Error)
	assert.Equal(t, "type", out.Results[1].Error.Reason)
	assert.Equal(t, "9", out.Results[2].Result)

	r, out2 := post(t, srv.URL+"/api/v1/batch", BatchRequest{Mode: "compile", Sources: []string{"1"}})
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	require.NotNil(t, out2.Error)
	assert.Equal(t, "request", out2.Error.Kind)
}

func TestPing(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/v1/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out PingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
	assert.Zero(t, out.ActiveSessions)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) {
		c.RateLimit = config.RateLimiterConfig{Limit: 0.001, Burst: 1}
	})

	resp, _ := post(t, srv.URL+"/api/v1/interp", EvalRequest{Source: "1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	r, err := http.Post(srv.URL+"/api/v1/interp", "application/json", strings.NewReader(`{"source":"1"}`))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, r.StatusCode)
}

func dialSession(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req SessionRequest) SessionReply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	var reply SessionReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestSessionWebSocket(t *testing.T) {
	store, err := history.Open(history.Config{Logger: testLogger(), InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	srv, _ := newTestServer(t, func(c *Config) { c.History = store })
	conn := dialSession(t, srv)

	var hello SessionReply
	require.NoError(t, conn.ReadJSON(&hello))
	require.NotEmpty(t, hello.Session)

	reply := roundTrip(t, conn, SessionRequest{Mode: "def", Name: "sq", Source: "_fun (x) x * x"})
	assert.Equal(t, "sq = [function]", reply.Result)

	reply = roundTrip(t, conn, SessionRequest{Mode: "interp", Source: "sq(7)"})
	assert.Equal(t, "49", reply.Result)

	reply = roundTrip(t, conn, SessionRequest{Mode: "print", Source: "sq(7)"})
	assert.Equal(t, "sq(7)", reply.Result)

	reply = roundTrip(t, conn, SessionRequest{Mode: "interp", Source: "nope"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, "free-variable", reply.Error.Reason)

	reply = roundTrip(t, conn, SessionRequest{Mode: "def", Name: "a_b", Source: "1"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, "request", reply.Error.Kind)

	reply = roundTrip(t, conn, SessionRequest{Mode: "compile", Source: "1"})
	require.NotNil(t, reply.Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	var bad SessionReply
	require.NoError(t, conn.ReadJSON(&bad))
	require.NotNil(t, bad.Error)

	entries, err := store.List(hello.Session, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sq(7)", entries[0].Source)
	assert.Equal(t, "49", entries[0].Output)
}

func TestSessionWebSocket_EveryFrameIsAnswered(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	conn := dialSession(t, srv)

	var hello SessionReply
	require.NoError(t, conn.ReadJSON(&hello))

	// Several times the send buffer, with replies large enough that the
	// server outpaces a client that reads slowly.
	frames := 4 * sendBufferSize
	bulk := strings.Repeat("1+", 2000) + "1"
	writeErr := make(chan error, 1)
	go func() {
		for i := 0; i < frames; i++ {
			req := SessionRequest{Mode: "print", Source: fmt.Sprintf("%d + %s", i, bulk)}
			if err := conn.WriteJSON(req); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- nil
	}()

	for i := 0; i < frames; i++ {
		var reply SessionReply
		require.NoError(t, conn.ReadJSON(&reply), "reply %d", i)
		require.Nil(t, reply.Error)
		require.True(t, strings.HasPrefix(reply.Result, fmt.Sprintf("(%d+(1+", i)), "reply %d out of order", i)
	}
	require.NoError(t, <-writeErr)
}

func TestSessionWebSocket_MaxConnections(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.MaxConnections = 1 })
	dialSession(t, srv)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/session"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
