package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/engine"
	"github.com/ChamsBouzaiene/polyrun/internal/history"
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM answers every chat with reply, or fails with err.
type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) Chat(_ context.Context, _ string, _ []engine.ChatMessage, _ engine.ChatOptions) (string, error) {
	return s.reply, s.err
}

type testEnv struct {
	server *Server
	store  *history.Store
}

func newTestEnv(t *testing.T, fixer Fixer, withHistory bool) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var hooks []engine.Hook
	var store *history.Store
	if withHistory {
		var err error
		store, err = history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		hooks = append(hooks, history.NewRecorder(store))
	}

	data, err := engine.NewDataStrategy("")
	require.NoError(t, err)
	d, err := engine.NewDispatcher([]engine.Strategy{data}, engine.WithHooks(hooks...))
	require.NoError(t, err)

	var hist History
	if store != nil {
		hist = store
	}
	return &testEnv{server: New(Config{}, d, fixer, hist, logger), store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

// recordingExecutor remembers the last request it was asked to run.
type recordingExecutor struct {
	last engine.ExecutionRequest
}

func (e *recordingExecutor) Languages() []workspace.Language {
	return []workspace.Language{workspace.LangJSON}
}

func (e *recordingExecutor) Execute(_ context.Context, req engine.ExecutionRequest) engine.ExecutionResult {
	e.last = req
	return engine.ExecutionResult{RunID: "r1", Language: req.Language, Outcome: engine.OutcomeCompleted}
}

func TestRun_Timeouts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		cfg  Config
		body string
		want time.Duration
	}{
		{name: "configured default", cfg: Config{DefaultTimeout: 5 * time.Second}, body: `{"code":"1","language":"json"}`, want: 5 * time.Second},
		{name: "request wins", cfg: Config{DefaultTimeout: 5 * time.Second}, body: `{"code":"1","language":"json","timeout_ms":1500}`, want: 1500 * time.Millisecond},
		{name: "engine default", cfg: Config{}, body: `{"code":"1","language":"json"}`, want: engine.DefaultTimeout},
		{name: "default above max", cfg: Config{DefaultTimeout: time.Hour, MaxTimeout: time.Minute}, body: `{"code":"1","language":"json"}`, want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			env := &testEnv{server: New(tt.cfg, exec, nil, nil, logger)}

			rr := env.do(t, http.MethodPost, "/api/run", tt.body)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, tt.want, exec.last.Timeout)
		})
	}
}

func TestHealthAndLanguages(t *testing.T) {
	env := newTestEnv(t, nil, false)

	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/languages", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"languages":[{"id":"json","name":"JSON"}]}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestRun(t *testing.T) {
	env := newTestEnv(t, nil, false)

	tests := []struct {
		name    string
		body    string
		status  int
		outcome engine.Outcome
		report  string
	}{
		{
			name:    "valid json",
			body:    `{"code":"{\"a\":1}","language":"json"}`,
			status:  http.StatusOK,
			outcome: engine.OutcomeCompleted,
			report:  "Valid JSON! Formatted output:\n\n{\n  \"a\": 1\n}\n",
		},
		{
			name:    "invalid json",
			body:    `{"code":"{\"a\":1,}","language":"JSON"}`,
			status:  http.StatusOK,
			outcome: engine.OutcomeInvalid,
		},
		{
			name:    "unsupported language",
			body:    `{"code":"puts 1","language":"ruby"}`,
			status:  http.StatusOK,
			outcome: engine.OutcomeUnsupported,
			report:  "Language 'ruby' is not supported for execution.\n",
		},
		{
			name:    "empty code",
			body:    `{"code":"   ","language":"json"}`,
			status:  http.StatusOK,
			outcome: engine.OutcomeEmpty,
			report:  "No code to run.\n",
		},
		{name: "malformed body", body: `{"code":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"source":"x"}`, status: http.StatusBadRequest},
		{name: "negative timeout", body: `{"code":"1","language":"json","timeout_ms":-5}`, status: http.StatusBadRequest},
		{name: "timeout too large", body: `{"code":"1","language":"json","timeout_ms":86400000}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/run", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status != http.StatusOK {
				var e ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
				assert.Equal(t, "validation_error", e.Error)
				return
			}

			var resp RunResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.outcome, resp.Result.Outcome)
			assert.NotEmpty(t, resp.Result.RunID)
			if tt.report != "" {
				assert.Equal(t, tt.report, resp.Report)
			}
		})
	}
}

func TestFix(t *testing.T) {
	t.Run("unavailable without a provider", func(t *testing.T) {
		var nilFixer *engine.Fixer
		env := newTestEnv(t, nilFixer, false)
		rr := env.do(t, http.MethodPost, "/api/fix", `{"code":"x","language":"python"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("returns the suggestion", func(t *testing.T) {
		env := newTestEnv(t, engine.NewFixer(stubLLM{reply: "```python\nprint(1)\n```"}, "m"), false)
		rr := env.do(t, http.MethodPost, "/api/fix", `{"code":"print(1","language":"python","report":"SyntaxError"}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp FixResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "print(1)", resp.Code)
		assert.True(t, resp.Changed)
	})

	t.Run("requires code", func(t *testing.T) {
		env := newTestEnv(t, engine.NewFixer(stubLLM{reply: "x"}, "m"), false)
		rr := env.do(t, http.MethodPost, "/api/fix", `{"code":"  ","language":"python"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		env := newTestEnv(t, engine.NewFixer(stubLLM{err: errors.New("status code: 401, invalid api key")}, "m"), false)
		rr := env.do(t, http.MethodPost, "/api/fix", `{"code":"x","language":"python"}`)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, nil, true)

	rr := env.do(t, http.MethodPost, "/api/run", `{"code":"{\"needle\": true}","language":"json"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var run RunResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&run))

	rr = env.do(t, http.MethodPost, "/api/run", `{"code":"[1,2,","language":"json"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var list struct {
		Runs []history.Run `json:"runs"`
	}

	rr = env.do(t, http.MethodGet, "/api/history?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Runs, 1)

	rr = env.do(t, http.MethodGet, "/api/history/search?q=needle", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.Result.RunID, list.Runs[0].ID)

	rr = env.do(t, http.MethodGet, "/api/history/"+run.Result.RunID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got history.Run
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, run.Report, got.Report)

	rr = env.do(t, http.MethodGet, "/api/history/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/history/search?q=zzzunmatched", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"runs":[]}`, rr.Body.String())
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, nil, false)
	for _, path := range []string{"/api/history", "/api/history/search?q=x", "/api/history/abc"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, nil, false)
	env.server.config.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Start(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
