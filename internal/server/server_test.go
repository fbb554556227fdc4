package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/sctran/internal"
	"github.com/valpere/sctran/internal/agent"
	"github.com/valpere/sctran/internal/audit"
	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/dataset"
	"github.com/valpere/sctran/internal/llm"
	"github.com/valpere/sctran/internal/metrics"
	"github.com/valpere/sctran/internal/pipeline"
	"github.com/valpere/sctran/internal/store"
)

type fakeTranslator struct {
	got pipeline.Request
	res *pipeline.Result
	err error
}

func (f *fakeTranslator) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.got = req
	return f.res, f.err
}

type fakeCompiler struct {
	available bool
	result    compiler.Result
}

func (f fakeCompiler) CheckCompilation(ctx context.Context, source string) compiler.Result {
	return f.result
}

func (f fakeCompiler) Available(context.Context) bool { return f.available }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h := New(&fakeTranslator{}, WithCompiler(fakeCompiler{available: true})).Router()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["compiler_available"])
}

func TestTranslate_Success(t *testing.T) {
	tr := &fakeTranslator{res: &pipeline.Result{
		RunID:        "run-1",
		SolidityCode: "contract Lease {}",
		Audit:        audit.Report{SeverityLevel: audit.SeverityLow, Approved: true},
		Iterations:   1,
		ABI:          json.RawMessage(`[]`),
	}}
	h := New(tr).Router()

	rec := do(t, h, http.MethodPost, "/api/translate",
		`{"contract_text": "The Lessor leases the flat.", "max_iterations": 3, "check_compilation": false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "contract Lease {}", body["solidity_code"])
	assert.EqualValues(t, 1, body["iterations"])

	require.NotNil(t, tr.got.MaxIterations)
	assert.Equal(t, 3, *tr.got.MaxIterations)
	require.NotNil(t, tr.got.CheckCompilation)
	assert.False(t, *tr.got.CheckCompilation)
}

func TestTranslate_BadRequests(t *testing.T) {
	h := New(&fakeTranslator{}).Router()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"contract_text":`},
		{"empty contract", `{"contract_text": "   "}`},
		{"negative iterations", `{"contract_text": "x", "max_iterations": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/translate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func TestTranslate_StageError(t *testing.T) {
	tr := &fakeTranslator{err: &pipeline.StageError{Stage: agent.StageAudit, Err: errors.New("rate limited")}}
	h := New(tr).Router()

	rec := do(t, h, http.MethodPost, "/api/translate", `{"contract_text": "x"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "audit", body["stage"])
	assert.Contains(t, body["error"], "rate limited")
}

// blockingBackend waits for the request context to end.
type blockingBackend struct{}

func (blockingBackend) Name() string { return "blocking" }

func (blockingBackend) Complete(ctx context.Context, req llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestTranslate_PipelineDeadline(t *testing.T) {
	tr := pipeline.New(agent.NewInvoker(blockingBackend{}, agent.Defaults(false), agent.DefaultTemperature))
	h := New(tr, WithTranslateTimeout(50*time.Millisecond)).Router()

	rec := do(t, h, http.MethodPost, "/api/translate", `{"contract_text": "Alice sells her car to Bob."}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "translation timed out", body["error"])
	assert.Equal(t, "parse", body["stage"])
}

func TestTranslate_Timeout(t *testing.T) {
	tr := &fakeTranslator{err: context.DeadlineExceeded}
	h := New(tr, WithTranslateTimeout(time.Second)).Router()

	rec := do(t, h, http.MethodPost, "/api/translate", `{"contract_text": "x"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCompile(t *testing.T) {
	compiles := false
	msg := "ParserError: Expected '{'"
	m := metrics.New()
	h := New(&fakeTranslator{},
		WithCompiler(fakeCompiler{result: compiler.Result{Compiles: &compiles, ErrorMessage: &msg, Warnings: []string{}}}),
		WithMetrics(m),
	).Router()

	rec := do(t, h, http.MethodPost, "/api/compile", `{"source": "contract A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Compilation failed: "+msg, body["summary"])
	comp := body["compilation"].(map[string]any)
	assert.Equal(t, false, comp["compiles"])

	rec = do(t, h, http.MethodPost, "/api/compile", `{"source": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompile_Disabled(t *testing.T) {
	h := New(&fakeTranslator{}).Router()
	rec := do(t, h, http.MethodPost, "/api/compile", `{"source": "contract A {}"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func newHistory(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.SaveRequest(ctx, internal.TranslationRequest{
		ID: "run-1", ContractText: "lease", SourceLang: "en", Provider: "openai", Model: "gpt-4o-mini",
		MaxIterations: 2, Timestamp: time.Now(),
	}))
	require.NoError(t, s.SaveAudit(ctx, "run-1", 0, audit.Report{Issues: []string{"reentrancy"}, SeverityLevel: audit.SeverityHigh}))
	require.NoError(t, s.CompleteRun(ctx, "run-1", store.Completion{Iterations: 1, Severity: audit.SeverityLow, Approved: true}))
	return s
}

func TestRuns(t *testing.T) {
	h := New(&fakeTranslator{}, WithHistory(newHistory(t))).Router()

	rec := do(t, h, http.MethodGet, "/api/runs?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeBody(t, rec)["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].(map[string]any)["id"])

	rec = do(t, h, http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["run"].(map[string]any)["status"])
	assert.Len(t, body["audits"], 1)

	rec = do(t, h, http.MethodGet, "/api/runs/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["total_runs"])

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/runs/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/runs?limit=abc", "").Code)
}

func TestSamples(t *testing.T) {
	data := `{"user_requirement": "An escrow for a house sale.", "code": "contract Escrow {}"}
{"user_requirement": "A monthly rental lease.", "code": "contract Lease {}"}
`
	ds, err := dataset.ReadAll(strings.NewReader(data))
	require.NoError(t, err)
	h := New(&fakeTranslator{}, WithSamples(ds)).Router()

	rec := do(t, h, http.MethodGet, "/api/samples?n=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["total"])
	assert.Len(t, body["samples"], 1)

	rec = do(t, h, http.MethodGet, "/api/samples?q=escrow", "")
	samples := decodeBody(t, rec)["samples"].([]any)
	require.Len(t, samples, 1)
	assert.Equal(t, "contract Escrow {}", samples[0].(map[string]any)["code"])

	rec = do(t, h, http.MethodGet, "/api/samples/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A monthly rental lease.", decodeBody(t, rec)["requirement"])

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/samples/7", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/samples/x", "").Code)
}

func TestCORS(t *testing.T) {
	h := New(&fakeTranslator{}, WithCORSOrigins("http://localhost:8000")).Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/translate", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:8000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := New(&fakeTranslator{}, WithMetrics(metrics.New())).Router()
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s := New(&fakeTranslator{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewHTTPServer(t *testing.T) {
	srv := NewHTTPServer(":0", http.NewServeMux())
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
}
