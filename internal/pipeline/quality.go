package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/valpere/sctran/internal/agent"
	"github.com/valpere/sctran/internal/postprocess"
	"github.com/valpere/sctran/internal/prompt"
)

// Quality scores a generated contract against a reference implementation.
// Scores range from 0 to 10.
type Quality struct {
	FunctionalCompleteness float64  `json:"functional_completeness"`
	StateMachineFidelity   float64  `json:"state_machine_fidelity"`
	Security               float64  `json:"security"`
	CodeQuality            float64  `json:"code_quality"`
	Overall                float64  `json:"overall"`
	MissingFeatures        []string `json:"missing_features"`
	Notes                  string   `json:"notes"`
}

// Evaluate scores generated against reference for the given requirement
// text.
func (t *Translator) Evaluate(ctx context.Context, requirement, generated, reference string) (*Quality, error) {
	return t.evaluate(ctx, "", requirement, generated, reference)
}

func (t *Translator) evaluate(ctx context.Context, runID, requirement, generated, reference string) (*Quality, error) {
	reply, err := t.stage(ctx, runID, agent.StageEvaluate, 0, prompt.QualityEvaluation(requirement, generated, reference))
	if err != nil {
		return nil, err
	}
	q, err := ParseQuality(reply)
	if err != nil {
		return nil, &StageError{Stage: agent.StageEvaluate, Err: err}
	}
	return q, nil
}

// ParseQuality decodes the evaluator's JSON reply. A missing overall score
// is the mean of the four dimensions.
func ParseQuality(reply string) (*Quality, error) {
	raw, err := postprocess.ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quality evaluation: %w", err)
	}
	var q Quality
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("failed to parse quality evaluation as JSON: %w", err)
	}
	for _, score := range []*float64{&q.FunctionalCompleteness, &q.StateMachineFidelity, &q.Security, &q.CodeQuality, &q.Overall} {
		*score = clamp(*score)
	}
	if q.Overall == 0 {
		q.Overall = (q.FunctionalCompleteness + q.StateMachineFidelity + q.Security + q.CodeQuality) / 4
	}
	if q.MissingFeatures == nil {
		q.MissingFeatures = []string{}
	}
	return &q, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}
