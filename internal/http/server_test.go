package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundboard/internal/csvparse"
	"fundboard/internal/log"
	"fundboard/internal/middleware/ratelimit"
	"fundboard/internal/refresh"
	"fundboard/internal/source/memory"
	"fundboard/internal/storage"
)

const (
	sheetV1 = "Nom;Montant;Objectif;Dépense\r\nA;100,00 $;50 000;4000\r\n"
	sheetV2 = "Nom;Montant;Objectif;Dépense\r\nA;100,00 $;50 000;4000\r\nB;50;;\r\n"
)

type testEnv struct {
	srv   *Server
	src   *memory.Store
	orch  *refresh.Orchestrator
	store *storage.SQLiteRepository
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	src := memory.New(sheetV1)
	orch := refresh.New(src, store, refresh.Options{Logger: quietLogger()})

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	srv := NewServer(orch, store, opts)
	orch.Subscribe(srv)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, src: src, orch: orch, store: store}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeState(t *testing.T, rr *httptest.ResponseRecorder) StateResponse {
	t.Helper()
	var st StateResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
	return st
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "no data yet")
	assert.Contains(t, rr.Body.String(), "pending")

	_, err := env.orch.Refresh(context.Background())
	require.NoError(t, err)

	rr = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ready"`)
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.orch.Refresh(context.Background())
	require.NoError(t, err)

	rr := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `id="total"`)
	assert.Contains(t, body, `data-theme="night"`)
	assert.Contains(t, body, "50\u00a0000,00 $")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")
}

func TestState(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	st := decodeState(t, rr)
	assert.False(t, st.Ready)
	assert.Equal(t, "memory", st.Source)
	assert.Nil(t, st.Display)

	_, err := env.orch.Refresh(context.Background())
	require.NoError(t, err)

	st = decodeState(t, env.do(t, http.MethodGet, "/api/state", ""))
	assert.True(t, st.Ready)
	require.NotNil(t, st.Display)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Display.Total))
	assert.True(t, decimal.NewFromInt(50000).Equal(st.Display.Goal))
	assert.Equal(t, 1, st.Rows)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decodeState(t, rr)
	assert.True(t, st.Ready)
	assert.False(t, st.Changed, "first cycle adopts the baseline")

	env.src.SetText(sheetV2)
	st = decodeState(t, env.do(t, http.MethodPost, "/api/refresh", ""))
	assert.True(t, st.Changed)
	require.NotNil(t, st.Display)
	assert.True(t, st.Display.Celebrate)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Display.PreviousTotal))
	assert.True(t, decimal.NewFromInt(150).Equal(st.Display.Total))

	rr = env.do(t, http.MethodGet, "/api/refresh", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRefreshEndpoint_EmptyPayloadKeepsLatest(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.orch.Refresh(context.Background())
	require.NoError(t, err)

	env.src.SetText("")
	rr := env.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decodeState(t, rr)
	assert.True(t, st.Ready)
	require.NotNil(t, st.Display)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Display.Total))
}

type failingSource struct{}

func (failingSource) ReadRows(context.Context) ([]csvparse.Row, error) {
	return nil, errors.New(`fetch "https://docs.google.com/spreadsheets/d/secret-id/export?format=csv&t=1": upstream unavailable`)
}

func (failingSource) Name() string { return "csv" }

func TestRefreshEndpoint_SourceFailure(t *testing.T) {
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	orch := refresh.New(failingSource{}, store, refresh.Options{Logger: quietLogger()})
	srv := NewServer(orch, store, Options{Logger: quietLogger()})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "refresh failed")
	assert.NotContains(t, rr.Body.String(), "secret-id")
	assert.NotContains(t, rr.Body.String(), "upstream unavailable")
}

func TestRefreshEndpoint_RateLimited(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1}})

	rr := env.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// reads are not limited
	rr = env.do(t, http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, Options{HistoryLimit: 10})
	ctx := context.Background()

	var resp historyResponse
	rr := env.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 10, resp.Limit)
	assert.Empty(t, resp.Records)

	_, err := env.orch.Refresh(ctx)
	require.NoError(t, err)
	env.src.SetText(sheetV2)
	_, err = env.orch.Refresh(ctx)
	require.NoError(t, err)

	// the change invalidated the cached empty list
	rr = env.do(t, http.MethodGet, "/api/history", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Records, 1)
	assert.True(t, decimal.NewFromInt(150).Equal(resp.Records[0].Total))
	assert.True(t, decimal.NewFromInt(100).Equal(resp.Records[0].PreviousTotal))
	assert.True(t, resp.Records[0].Celebrate)

	for _, bad := range []string{"0", "-3", "abc"} {
		rr = env.do(t, http.MethodGet, "/api/history?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", bad)
	}

	rr = env.do(t, http.MethodGet, "/api/history?limit=5000", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, maxHistoryLimit, resp.Limit)
}

func TestTheme(t *testing.T) {
	env := newTestEnv(t, Options{})

	var resp themeResponse
	rr := env.do(t, http.MethodGet, "/api/theme", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, storage.ThemeNight, resp.Theme)

	rr = env.do(t, http.MethodPut, "/api/theme", `{"theme":"day"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/theme", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, storage.ThemeDay, resp.Theme)

	rr = env.do(t, http.MethodPut, "/api/theme", "theme=night")
	require.Equal(t, http.StatusOK, rr.Code)
	theme, err := env.store.Theme(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.ThemeNight, theme)

	for _, body := range []string{`{"theme":"dusk"}`, `{"theme":1}`, `{bad json`, ""} {
		rr = env.do(t, http.MethodPut, "/api/theme", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.do(t, http.MethodGet, "/healthz", "")

	rr := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "fundraising_ready 0")
	assert.Contains(t, body, "stream_subscribers 0")
}

func readEvent(t *testing.T, r *bufio.Reader) (string, StateResponse) {
	t.Helper()
	var evType, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			evType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && evType != "":
			var ev Event
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			return evType, ev.State
		}
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, Options{})
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	evType, st := readEvent(t, reader)
	assert.Equal(t, EventSnapshot, evType)
	assert.False(t, st.Ready)

	require.Eventually(t, func() bool { return env.srv.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	_, err = env.orch.Refresh(ctx)
	require.NoError(t, err)
	evType, st = readEvent(t, reader)
	assert.Equal(t, EventRefresh, evType)
	assert.True(t, st.Ready)

	env.src.SetText(sheetV2)
	_, err = env.orch.Refresh(ctx)
	require.NoError(t, err)
	evType, st = readEvent(t, reader)
	assert.Equal(t, EventCelebration, evType)
	assert.True(t, st.Changed)

	env.srv.hub.Close()
	require.Eventually(t, func() bool { return env.srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	h.Broadcast(Event{Type: EventRefresh})
	h.Broadcast(Event{Type: EventChange})

	sent, dropped := h.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(1), dropped)
	assert.Equal(t, EventRefresh, (<-ch).Type)

	h.Unsubscribe(id)
	assert.Zero(t, h.Count())

	h.Close()
	h.Close()
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 50, false},
		{"limit=", 50, false},
		{"limit=7", 7, false},
		{"limit=%207%20", 7, false},
		{"limit=2000", 1000, false},
		{"limit=0", 0, true},
		{"limit=-1", 0, true},
		{"limit=x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := ParseLimit(req.URL.Query(), 50, 1000)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		wantJSON bool
		wantErr  bool
	}{
		{name: "json", body: `{"theme":" day "}`, want: "day", wantJSON: true},
		{name: "json non-string", body: `{"theme":true}`, want: "", wantJSON: true},
		{name: "form", body: "theme=night", want: "night"},
		{name: "empty", body: "", want: ""},
		{name: "broken json", body: `{"theme":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tt.body))
			p := NewRequestBodyParser(httptest.NewRecorder(), req)
			err := p.Parse()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Get("theme"))
			assert.Equal(t, tt.wantJSON, p.IsJSON())
		})
	}
}
