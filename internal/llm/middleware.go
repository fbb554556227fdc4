package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Middleware decorates a Backend with a cross-cutting concern.
type Middleware func(Backend) Backend

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Backend, mws ...Middleware) Backend {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Retry with exponential backoff --------

// Retry calls Complete up to maxAttempts times in total, doubling the delay
// from baseDelay between attempts. A canceled context or a *PermanentError
// stops it immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return func(next Backend) Backend {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Backend
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Complete(ctx context.Context, req Request) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		last = err
		var pErr *PermanentError
		if errors.As(err, &pErr) || i == r.max-1 {
			break
		}
		timer := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", last
}

// -------- Logging --------

// WithLogging logs each call's stage, size, latency and error. A nil logger
// uses slog.Default().
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Backend) Backend {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Backend
	log  *slog.Logger
}

func (l *logging) Name() string { return l.next.Name() }

func (l *logging) Complete(ctx context.Context, req Request) (string, error) {
	stage := StageFrom(ctx)
	start := time.Now()
	l.log.DebugContext(ctx, "llm request", "stage", stage, "backend", l.next.Name(), "bytes", len(req.System)+len(req.Prompt))
	out, err := l.next.Complete(ctx, req)
	if err != nil {
		l.log.WarnContext(ctx, "llm error", "stage", stage, "backend", l.next.Name(), "error", err)
		return out, err
	}
	l.log.DebugContext(ctx, "llm response", "stage", stage, "bytes", len(out), "latency", time.Since(start))
	return out, nil
}

// -------- Response cache --------

// Cache memoises successful completions of identical requests in an LRU of
// the given size. size <= 0 disables caching.
func Cache(size int) Middleware {
	return func(next Backend) Backend {
		if size <= 0 {
			return next
		}
		c, err := lru.New[string, string](size)
		if err != nil {
			return next
		}
		return &cached{next: next, cache: c}
	}
}

type cached struct {
	next  Backend
	cache *lru.Cache[string, string]
}

func (c *cached) Name() string { return c.next.Name() }

func (c *cached) Complete(ctx context.Context, req Request) (string, error) {
	key := cacheKey(c.next.Name(), req)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	out, err := c.next.Complete(ctx, req)
	if err != nil {
		return out, err
	}
	c.cache.Add(key, out)
	return out, nil
}

func cacheKey(backend string, req Request) string {
	h := sha256.New()
	temp := "default"
	if req.Temperature != nil {
		temp = strconv.FormatFloat(*req.Temperature, 'f', -1, 64)
	}
	for _, part := range []string{backend, req.Model, temp, req.System, req.Prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// -------- Observation --------

// ObserveFunc receives the outcome of every call.
type ObserveFunc func(stage string, latency time.Duration, err error)

// Observe reports each call to fn, typically a metrics recorder.
func Observe(fn ObserveFunc) Middleware {
	return func(next Backend) Backend {
		if fn == nil {
			return next
		}
		return &observed{next: next, fn: fn}
	}
}

type observed struct {
	next Backend
	fn   ObserveFunc
}

func (o *observed) Name() string { return o.next.Name() }

func (o *observed) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := o.next.Complete(ctx, req)
	o.fn(StageFrom(ctx), time.Since(start), err)
	return out, err
}
