// Package pipeline turns a legal contract into a Solidity contract, its ABI
// and an MCP server through a sequence of LLM stages with a bounded
// audit-and-refine loop.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/sctran/internal"
	"github.com/valpere/sctran/internal/agent"
	"github.com/valpere/sctran/internal/audit"
	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/postprocess"
	"github.com/valpere/sctran/internal/prompt"
	"github.com/valpere/sctran/internal/schema"
	"github.com/valpere/sctran/internal/store"
)

var (
	ErrEmptyContract = errors.New("pipeline: contract text is empty")
	ErrNoCode        = errors.New("pipeline: no code in model reply")
)

// StageError reports the stage whose LLM call failed after all retries.
type StageError struct {
	Stage agent.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is everything one translation produced.
type Result struct {
	RunID          string                          `json:"run_id"`
	SourceLanguage string                          `json:"source_language"`
	Contract       *schema.UniversalContractSchema `json:"contract,omitempty"`
	ParsedRaw      string                          `json:"parsed_raw"`
	SolidityCode   string                          `json:"solidity_code"`
	Audit          audit.Report                    `json:"audit"`
	AuditHistory   []audit.Report                  `json:"audit_history"`
	Iterations     int                             `json:"iterations"`
	ABI            json.RawMessage                 `json:"abi"`
	MCPServer      string                          `json:"mcp_server"`
	Compilation    *compiler.Result                `json:"compilation,omitempty"`
	Quality        *Quality                        `json:"quality,omitempty"`
	Cached         bool                            `json:"cached,omitempty"`
	StartedAt      time.Time                       `json:"started_at"`
	DurationMs     int64                           `json:"duration_ms"`
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Request is one translation job. Nil overrides fall back to the
// Translator's configuration.
type Request struct {
	ContractText     string
	MaxIterations    *int
	CheckCompilation *bool
	// Reference is a known-good Solidity implementation; when set the result
	// is scored against it.
	Reference string
	NoCache   bool
}

// Compiler checks generated code.
type Compiler interface {
	CheckCompilation(ctx context.Context, source string) compiler.Result
}

// Recorder persists run history.
type Recorder interface {
	SaveRequest(ctx context.Context, req internal.TranslationRequest) error
	SaveAudit(ctx context.Context, runID string, pass int, report audit.Report) error
	CompleteRun(ctx context.Context, runID string, c store.Completion) error
	FailRun(ctx context.Context, runID, stage string, cause error) error
	CachedResult(ctx context.Context, contractText, provider, model string, maxIterations int) ([]byte, bool, error)
}

// LanguageDetector returns the ISO 639-1 code of text.
type LanguageDetector interface {
	DetectISO(text string) (string, bool)
}

// PreTranslator renders a contract in English.
type PreTranslator interface {
	ToEnglish(ctx context.Context, text, sourceLang string) (string, error)
}

type Translator struct {
	invoker          *agent.Invoker
	maxIterations    int
	checkCompilation bool
	reuseResults     bool
	provider         string
	model            string

	compiler      Compiler
	recorder      Recorder
	detector      LanguageDetector
	pretranslator PreTranslator
	observers     []Observer
	logger        *slog.Logger

	newID func() string
	now   func() time.Time
}

// Option configures a Translator.
type Option func(*Translator)

func WithMaxIterations(n int) Option {
	return func(t *Translator) {
		if n >= 0 {
			t.maxIterations = n
		}
	}
}

// WithCompiler sets the checker; check enables it for every run by default.
func WithCompiler(c Compiler, check bool) Option {
	return func(t *Translator) {
		t.compiler = c
		t.checkCompilation = check
	}
}

// WithRecorder persists runs. reuse serves repeated contracts from history.
func WithRecorder(r Recorder, reuse bool) Option {
	return func(t *Translator) {
		t.recorder = r
		t.reuseResults = reuse
	}
}

func WithDetector(d LanguageDetector) Option {
	return func(t *Translator) { t.detector = d }
}

func WithPreTranslator(p PreTranslator) Option {
	return func(t *Translator) { t.pretranslator = p }
}

func WithObserver(o Observer) Option {
	return func(t *Translator) {
		if o != nil {
			t.observers = append(t.observers, o)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithModelInfo labels recorded runs and keys the result cache.
func WithModelInfo(provider, model string) Option {
	return func(t *Translator) {
		t.provider = provider
		t.model = model
	}
}

func New(invoker *agent.Invoker, opts ...Option) *Translator {
	t := &Translator{
		invoker:       invoker,
		maxIterations: audit.DefaultMaxIterations,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:         uuid.NewString,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate runs the pipeline with the Translator's defaults.
func (t *Translator) Translate(ctx context.Context, contractText string) (*Result, error) {
	return t.Run(ctx, Request{ContractText: contractText})
}

// Run executes parse, generate, audit, the refinement loop, ABI and MCP
// generation, then the optional compilation check and quality evaluation.
// Any stage failure aborts the run with a *StageError.
func (t *Translator) Run(ctx context.Context, req Request) (*Result, error) {
	text := strings.TrimSpace(req.ContractText)
	if text == "" {
		return nil, ErrEmptyContract
	}

	maxIter := t.maxIterations
	if req.MaxIterations != nil && *req.MaxIterations >= 0 {
		maxIter = *req.MaxIterations
	}
	if !t.invoker.Has(agent.StageRefine) {
		maxIter = 0
	}
	checkCompilation := t.checkCompilation
	if req.CheckCompilation != nil {
		checkCompilation = *req.CheckCompilation
	}

	if cached := t.cached(ctx, text, req, maxIter, checkCompilation && t.compiler != nil); cached != nil {
		t.notifyResult(cached)
		return cached, nil
	}

	res := &Result{
		RunID:          t.newID(),
		SourceLanguage: "en",
		AuditHistory:   []audit.Report{},
		StartedAt:      t.now(),
	}
	log := t.logger.With("run_id", res.RunID)

	working, promptLang := text, "en"
	if t.detector != nil {
		if lang, ok := t.detector.DetectISO(text); ok {
			res.SourceLanguage = lang
			promptLang = lang
		}
	}
	if res.SourceLanguage != "en" && t.pretranslator != nil {
		translated, err := t.pretranslator.ToEnglish(ctx, text, res.SourceLanguage)
		if err != nil {
			log.Warn("pre-translation failed, using original text", "lang", res.SourceLanguage, "error", err)
		} else {
			working, promptLang = translated, "en"
		}
	}

	t.record(log, func(r Recorder) error {
		return r.SaveRequest(ctx, internal.TranslationRequest{
			ID:            res.RunID,
			ContractText:  text,
			SourceLang:    res.SourceLanguage,
			Provider:      t.provider,
			Model:         t.model,
			MaxIterations: maxIter,
			Timestamp:     res.StartedAt,
		})
	})

	if err := t.execute(ctx, log, res, working, promptLang, maxIter); err != nil {
		t.fail(ctx, log, res.RunID, err)
		return nil, err
	}

	if checkCompilation && t.compiler != nil {
		comp := t.compiler.CheckCompilation(ctx, res.SolidityCode)
		res.Compilation = &comp
		log.Info("compilation checked", "summary", compiler.Summary(comp))
	}

	if req.Reference != "" {
		q, err := t.evaluate(ctx, res.RunID, text, res.SolidityCode, req.Reference)
		if err != nil {
			t.fail(ctx, log, res.RunID, err)
			return nil, err
		}
		res.Quality = q
	}

	res.DurationMs = t.now().Sub(res.StartedAt).Milliseconds()
	t.complete(ctx, log, res)
	t.notifyResult(res)

	log.Info("translation complete",
		"iterations", res.Iterations,
		"severity", res.Audit.SeverityLevel,
		"approved", res.Audit.Approved,
		"duration", res.Duration())
	return res, nil
}

func (t *Translator) execute(ctx context.Context, log *slog.Logger, res *Result, text, lang string, maxIter int) error {
	parsed, err := t.stage(ctx, res.RunID, agent.StageParse, 0, prompt.Parser(text, lang))
	if err != nil {
		return err
	}
	res.ParsedRaw = postprocess.Clean(parsed)
	if raw, err := postprocess.ExtractJSON(parsed); err != nil {
		log.Warn("parser reply has no JSON, passing raw text to generator", "error", err)
	} else if contract, err := schema.Parse([]byte(raw)); err != nil {
		log.Warn("parser reply does not match contract schema", "error", err)
	} else {
		res.Contract = contract
		res.ParsedRaw = raw
	}

	generated, err := t.stage(ctx, res.RunID, agent.StageGenerate, 0, prompt.Generator(text, res.Contract, res.ParsedRaw))
	if err != nil {
		return err
	}
	code := postprocess.ExtractCode(generated, "solidity", "sol")
	if strings.TrimSpace(code) == "" {
		return &StageError{Stage: agent.StageGenerate, Err: ErrNoCode}
	}

	report, err := t.audit(ctx, log, res, code, 0)
	if err != nil {
		return err
	}

	iterations := 0
	for audit.ShouldRefine(report, iterations, maxIter) {
		log.Info("refining contract", "iteration", iterations+1, "severity", report.SeverityLevel, "issues", len(report.Issues))

		refined, err := t.stage(ctx, res.RunID, agent.StageRefine, iterations+1, prompt.Refine(code, report))
		if err != nil {
			return err
		}
		if next := postprocess.ExtractCode(refined, "solidity", "sol"); strings.TrimSpace(next) != "" {
			code = next
		} else {
			log.Warn("refiner returned no code, keeping previous version", "iteration", iterations+1)
		}
		iterations++

		report, err = t.audit(ctx, log, res, code, iterations)
		if err != nil {
			return err
		}
	}
	res.SolidityCode = code
	res.Audit = report
	res.Iterations = iterations

	abiReply, err := t.stage(ctx, res.RunID, agent.StageABI, 0, prompt.ABI(code))
	if err != nil {
		return err
	}
	res.ABI = abiJSON(abiReply)

	mcpReply, err := t.stage(ctx, res.RunID, agent.StageMCP, 0, prompt.MCP(code, string(res.ABI)))
	if err != nil {
		return err
	}
	res.MCPServer = postprocess.ExtractCode(mcpReply, "python", "py")
	return nil
}

// audit runs one auditor pass. An unparseable reply yields the fallback
// report, which never triggers refinement.
func (t *Translator) audit(ctx context.Context, log *slog.Logger, res *Result, code string, pass int) (audit.Report, error) {
	reply, err := t.stage(ctx, res.RunID, agent.StageAudit, pass, prompt.Audit(code))
	if err != nil {
		return audit.Report{}, err
	}
	report, err := audit.ParseReport(reply)
	if err != nil {
		log.Warn("audit reply not parseable, treating severity as unknown", "pass", pass, "error", err)
	}
	res.AuditHistory = append(res.AuditHistory, report)
	t.record(log, func(r Recorder) error { return r.SaveAudit(ctx, res.RunID, pass, report) })
	return report, nil
}

func (t *Translator) stage(ctx context.Context, runID string, stage agent.Stage, iteration int, task string) (string, error) {
	t.notify(Event{RunID: runID, Stage: stage, Iteration: iteration, Phase: PhaseStarted})
	start := t.now()
	out, err := t.invoker.Invoke(ctx, stage, task)
	t.notify(Event{RunID: runID, Stage: stage, Iteration: iteration, Phase: PhaseFinished, Duration: t.now().Sub(start), Err: err})
	if err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	return out, nil
}

// abiJSON returns the ABI array from reply, or the cleaned reply as a JSON
// string when it holds no valid JSON.
func abiJSON(reply string) json.RawMessage {
	if raw, err := postprocess.ExtractJSON(reply); err == nil && json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	data, _ := json.Marshal(postprocess.Clean(reply))
	return data
}

// cached returns a completed run of the same text made under the same
// iteration budget, with a compilation result exactly when one is wanted.
func (t *Translator) cached(ctx context.Context, text string, req Request, maxIter int, compile bool) *Result {
	if t.recorder == nil || !t.reuseResults || req.NoCache || req.Reference != "" {
		return nil
	}
	data, ok, err := t.recorder.CachedResult(ctx, text, t.provider, t.model, maxIter)
	if err != nil {
		t.logger.Warn("result cache lookup failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.logger.Warn("cached result is corrupt, running pipeline", "error", err)
		return nil
	}
	if (res.Compilation != nil) != compile {
		t.logger.Debug("cached result differs in compilation check, running pipeline", "run_id", res.RunID)
		return nil
	}
	res.Cached = true
	t.logger.Info("served from history", "run_id", res.RunID)
	return &res
}

func (t *Translator) record(log *slog.Logger, fn func(Recorder) error) {
	if t.recorder == nil {
		return
	}
	if err := fn(t.recorder); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}

func (t *Translator) fail(ctx context.Context, log *slog.Logger, runID string, err error) {
	stage := ""
	var se *StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	log.Error("translation failed", "stage", stage, "error", err)
	t.notifyFailure(runID, err)
	// The request context may already be canceled; history is still written.
	t.record(log, func(r Recorder) error {
		return r.FailRun(context.WithoutCancel(ctx), runID, stage, err)
	})
}

func (t *Translator) complete(ctx context.Context, log *slog.Logger, res *Result) {
	if t.recorder == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		log.Warn("failed to encode result", "error", err)
		return
	}
	var compiles *bool
	if res.Compilation != nil {
		compiles = res.Compilation.Compiles
	}
	t.record(log, func(r Recorder) error {
		return r.CompleteRun(ctx, res.RunID, store.Completion{
			Iterations: res.Iterations,
			Severity:   res.Audit.SeverityLevel,
			Approved:   res.Audit.Approved,
			Compiles:   compiles,
			Result:     data,
			Duration:   res.Duration(),
		})
	})
}
