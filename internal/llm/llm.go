// Package llm provides the text-completion backends the pipeline stages run on,
// plus middleware for retries, logging, caching and metrics.
package llm

import (
	"context"
	"errors"
	"net/http"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// PermanentError marks a failure that retrying cannot fix, such as a missing
// API key or a rejected request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// statusError wraps a non-200 provider answer. Client errors other than 408
// and 429 are permanent.
func statusError(err error, code int) error {
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return NewPermanentError(err)
	}
	return err
}

// Request is one completion call. Model overrides the backend's default when
// set. A nil Temperature leaves sampling to the provider; zero is sent as is.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature *float64
}

// Backend is an opaque text-in/text-out LLM.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

type ctxKeyStage struct{}

// WithStage tags ctx with the pipeline stage issuing the call, for logs and metrics.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxKeyStage{}, stage)
}

// StageFrom returns the stage set by WithStage, or "unknown".
func StageFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyStage{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
