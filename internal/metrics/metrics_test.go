package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/valpere/sctran/internal/agent"
	"github.com/valpere/sctran/internal/audit"
	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/pipeline"
)

func TestObserveLLM(t *testing.T) {
	m := New()
	m.ObserveLLM("audit", 2*time.Second, nil)
	m.ObserveLLM("audit", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.LLMCalls.WithLabelValues("audit", "success")); got != 1 {
		t.Errorf("expected 1 successful call, got %v", got)
	}
	if got := testutil.ToFloat64(m.LLMCalls.WithLabelValues("audit", "error")); got != 1 {
		t.Errorf("expected 1 failed call, got %v", got)
	}
}

func TestPipelineObserver(t *testing.T) {
	m := New()
	var _ pipeline.Observer = m

	m.OnStage(pipeline.Event{Stage: agent.StageParse, Phase: pipeline.PhaseStarted})
	m.OnStage(pipeline.Event{Stage: agent.StageParse, Phase: pipeline.PhaseFinished, Duration: time.Second})
	m.OnStage(pipeline.Event{Stage: agent.StageGenerate, Phase: pipeline.PhaseFinished, Err: errors.New("down")})
	m.OnFailure("run-1", errors.New("down"))

	ok := false
	m.OnResult(&pipeline.Result{
		Iterations:  2,
		Audit:       audit.Report{SeverityLevel: audit.SeverityLow},
		Compilation: &compiler.Result{Compiles: &ok},
		Quality:     &pipeline.Quality{Overall: 7},
	})
	m.OnResult(&pipeline.Result{Cached: true})

	if got := testutil.ToFloat64(m.Runs.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("cached")); got != 1 {
		t.Errorf("expected 1 cached run, got %v", got)
	}
	if got := testutil.ToFloat64(m.FinalSeverity.WithLabelValues("low")); got != 1 {
		t.Errorf("expected low severity counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.Compilations.WithLabelValues("failure")); got != 1 {
		t.Errorf("expected compilation failure counted, got %v", got)
	}
	if n := testutil.CollectAndCount(m.StageDuration); n != 2 {
		t.Errorf("expected 2 stage series, got %d", n)
	}
}

func TestObserveCompilation_Unavailable(t *testing.T) {
	m := New()
	m.ObserveCompilation(compiler.Result{})
	if got := testutil.ToFloat64(m.Compilations.WithLabelValues("unavailable")); got != 1 {
		t.Errorf("expected unavailable counted, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveLLM("mcp", time.Second, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `sctran_llm_calls_total{outcome="success",stage="mcp"} 1`) {
		t.Error("expected LLM call counter in exposition")
	}
}
