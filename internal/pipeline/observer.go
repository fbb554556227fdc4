package pipeline

import (
	"time"

	"github.com/valpere/sctran/internal/agent"
)

type Phase string

const (
	PhaseStarted  Phase = "started"
	PhaseFinished Phase = "finished"
)

// Event marks the start or end of one stage call. Iteration is the
// refinement pass the call belongs to, 0 before any refinement.
type Event struct {
	RunID     string
	Stage     agent.Stage
	Iteration int
	Phase     Phase
	Duration  time.Duration
	Err       error
}

// Observer receives progress from a run. Calls are made synchronously from
// the run's goroutine.
type Observer interface {
	OnStage(Event)
	OnResult(*Result)
	OnFailure(runID string, err error)
}

// StageFunc adapts a function to an Observer that ignores results.
type StageFunc func(Event)

func (f StageFunc) OnStage(e Event)         { f(e) }
func (f StageFunc) OnResult(*Result)        {}
func (f StageFunc) OnFailure(string, error) {}

func (t *Translator) notify(e Event) {
	for _, o := range t.observers {
		o.OnStage(e)
	}
}

func (t *Translator) notifyResult(res *Result) {
	for _, o := range t.observers {
		o.OnResult(res)
	}
}

func (t *Translator) notifyFailure(runID string, err error) {
	for _, o := range t.observers {
		o.OnFailure(runID, err)
	}
}
