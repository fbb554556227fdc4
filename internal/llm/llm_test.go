package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOllamaBackend_New(t *testing.T) {
	b := NewOllamaBackend("llama3.2", "", 0)
	if b.baseURL != DefaultOllamaURL {
		t.Errorf("expected default base URL, got %q", b.baseURL)
	}
	if b.client == nil {
		t.Error("expected non-nil HTTP client")
	}
	if b.Name() != "ollama:llama3.2" {
		t.Errorf("unexpected name %q", b.Name())
	}
}

func TestOllamaBackend_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3.2" {
			t.Errorf("expected model 'llama3.2', got %q", req.Model)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		if req.System != "You are an auditor" {
			t.Errorf("unexpected system prompt %q", req.System)
		}
		if req.Options == nil || req.Options.Temperature != 0.7 {
			t.Error("expected temperature option 0.7")
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "contract A {}"})
	}))
	defer server.Close()

	temp := 0.7
	b := NewOllamaBackend("llama3.2", server.URL, time.Second)
	out, err := b.Complete(context.Background(), Request{System: "You are an auditor", Prompt: "audit", Temperature: &temp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "contract A {}" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOllamaBackend_Complete_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Model {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(ollamaResponse{Error: "model not found"})
		case "empty":
			json.NewEncoder(w).Encode(ollamaResponse{Response: "   "})
		}
	}))
	defer server.Close()

	b := NewOllamaBackend("missing", server.URL, time.Second)
	if _, err := b.Complete(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Error("expected error for 404")
	}

	_, err := b.Complete(context.Background(), Request{Prompt: "p", Model: "empty"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestChatBackend_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model %q", req.Model)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	b := NewChatBackend("openai", "sk-test", server.URL, "gpt-4o-mini", time.Second)
	out, err := b.Complete(context.Background(), Request{System: "sys", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestChatBackend_NoAPIKey(t *testing.T) {
	b := NewChatBackend("openai", "", "http://127.0.0.1:1", "gpt-4o-mini", time.Second)
	if _, err := b.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestChatBackend_ZeroTemperatureSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Errorf("expected temperature 0 on the wire, got %v", req.Temperature)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	zero := 0.0
	b := NewChatBackend("openai", "sk-test", server.URL, "gpt-4o-mini", time.Second)
	if _, err := b.Complete(context.Background(), Request{Prompt: "hi", Temperature: &zero}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestChatBackend_PermanentErrors(t *testing.T) {
	b := NewChatBackend("openai", "", "http://127.0.0.1:1", "gpt-4o-mini", time.Second)
	_, err := b.Complete(context.Background(), Request{Prompt: "hi"})
	var pErr *PermanentError
	if !errors.As(err, &pErr) {
		t.Errorf("expected missing key to be permanent, got %v", err)
	}

	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer server.Close()

	b = NewChatBackend("openai", "sk-test", server.URL, "gpt-4o-mini", time.Second)
	_, err = b.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.As(err, &pErr) {
		t.Errorf("expected 401 to be permanent, got %v", err)
	}

	status.Store(http.StatusTooManyRequests)
	_, err = b.Complete(context.Background(), Request{Prompt: "hi"})
	if errors.As(err, &pErr) {
		t.Errorf("expected 429 to be retryable, got %v", err)
	}
}

func TestChatBackend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	b := NewChatBackend("openrouter", "key", server.URL, "m", time.Second)
	_, err := b.Complete(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if want := "openrouter returned status 429: rate limited"; err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Options{Provider: "watson", Model: "m"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(context.Background(), Options{Provider: "openai"}); err == nil {
		t.Error("expected error without model")
	}
}

func TestNew_ResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	b, err := New(context.Background(), Options{Provider: "openai", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb, ok := b.(*ChatBackend)
	if !ok {
		t.Fatalf("expected *ChatBackend, got %T", b)
	}
	if cb.apiKey != "sk-env" {
		t.Errorf("expected key from env, got %q", cb.apiKey)
	}
	if cb.baseURL != DefaultOpenAIURL {
		t.Errorf("expected OpenAI base URL, got %q", cb.baseURL)
	}
}

type scriptedBackend struct {
	calls atomic.Int32
	fn    func(n int32, req Request) (string, error)
}

func (s *scriptedBackend) Name() string { return "scripted" }

func (s *scriptedBackend) Complete(ctx context.Context, req Request) (string, error) {
	n := s.calls.Add(1)
	return s.fn(n, req)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) {
		if n < 3 {
			return "", errors.New("temporary failure")
		}
		return "done", nil
	}}
	b := Wrap(inner, Retry(3, time.Millisecond))

	out, err := b.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Errorf("unexpected output %q", out)
	}
	if inner.calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls.Load())
	}
}

func TestRetry_GivesUp(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) {
		return "", errors.New("down")
	}}
	b := Wrap(inner, Retry(2, time.Millisecond))

	if _, err := b.Complete(context.Background(), Request{}); err == nil || err.Error() != "down" {
		t.Errorf("expected last error 'down', got %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls.Load())
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) {
		return "", NewPermanentError(errors.New("openai API key required"))
	}}
	b := Wrap(inner, Retry(3, time.Hour))

	_, err := b.Complete(context.Background(), Request{})
	if err == nil || err.Error() != "openai API key required" {
		t.Errorf("expected permanent error, got %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls.Load())
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) {
		return "", errors.New("down")
	}}
	b := Wrap(inner, Retry(5, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := b.Complete(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected a single call before cancel, got %d", inner.calls.Load())
	}
}

func TestCache_MemoisesSuccess(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) {
		return req.Prompt + "!", nil
	}}
	b := Wrap(inner, Cache(8))

	for i := 0; i < 3; i++ {
		if out, _ := b.Complete(context.Background(), Request{Prompt: "a"}); out != "a!" {
			t.Fatalf("unexpected output %q", out)
		}
	}
	b.Complete(context.Background(), Request{Prompt: "b"})

	if inner.calls.Load() != 2 {
		t.Errorf("expected 2 backend calls, got %d", inner.calls.Load())
	}
}

func TestCache_DoesNotStoreErrors(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) {
		if n == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}}
	b := Wrap(inner, Cache(8))

	if _, err := b.Complete(context.Background(), Request{Prompt: "a"}); err == nil {
		t.Fatal("expected first call to fail")
	}
	if out, err := b.Complete(context.Background(), Request{Prompt: "a"}); err != nil || out != "ok" {
		t.Errorf("expected retry to reach backend, got %q, %v", out, err)
	}
}

func TestCache_Disabled(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) { return "x", nil }}
	if b := Cache(0)(inner); b != Backend(inner) {
		t.Error("expected size 0 to return the inner backend")
	}
}

func TestObserve_ReportsStage(t *testing.T) {
	inner := &scriptedBackend{fn: func(n int32, req Request) (string, error) { return "x", nil }}
	var gotStage string
	b := Wrap(inner, Observe(func(stage string, latency time.Duration, err error) {
		gotStage = stage
	}))

	b.Complete(WithStage(context.Background(), "audit"), Request{})
	if gotStage != "audit" {
		t.Errorf("expected stage 'audit', got %q", gotStage)
	}
}

func TestStageFrom_Default(t *testing.T) {
	if got := StageFrom(context.Background()); got != "unknown" {
		t.Errorf("expected 'unknown', got %q", got)
	}
}
