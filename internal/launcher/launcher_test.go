package launcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeProcess struct {
	mu          sync.Mutex
	obeys       bool
	interrupted bool
	killed      bool
	exited      chan struct{}
	closeOnce   sync.Once
	exitErr     error
}

func newFakeProcess(obeys bool) *fakeProcess {
	return &fakeProcess{obeys: obeys, exited: make(chan struct{})}
}

func (p *fakeProcess) exit() { p.closeOnce.Do(func() { close(p.exited) }) }

func (p *fakeProcess) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *fakeProcess) Interrupt() error {
	p.mu.Lock()
	p.interrupted = true
	p.mu.Unlock()
	if p.obeys {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit()
	return nil
}

func (p *fakeProcess) state() (interrupted, killed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted, p.killed
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func demoDir(t *testing.T, withSampler bool) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "demo.html"), []byte("<h1>demo</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if withSampler {
		os.WriteFile(filepath.Join(dir, "sampler.html"), []byte("<h1>sampler</h1>"), 0o644)
	}
	return dir
}

func TestRun_MissingDemo(t *testing.T) {
	started := false
	err := Run(context.Background(), Config{
		Dir:      t.TempDir(),
		Addr:     "127.0.0.1:0",
		StartAPI: func() (Process, error) { started = true; return newFakeProcess(true), nil },
		Out:      io.Discard,
	})
	if !errors.Is(err, ErrMissingDemo) {
		t.Fatalf("expected ErrMissingDemo, got %v", err)
	}
	if started {
		t.Error("API must not start when demo.html is missing")
	}
}

func TestRun_ServesAndStopsGracefully(t *testing.T) {
	proc := newFakeProcess(true)
	opened := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			Dir:       demoDir(t, true),
			Addr:      "127.0.0.1:0",
			APIAddr:   "localhost:5000",
			StartAPI:  func() (Process, error) { return proc, nil },
			OpenDelay: 10 * time.Millisecond,
			Open:      func(url string) error { opened <- url; return nil },
			Out:       io.Discard,
		})
	}()

	var urls []string
	for len(urls) < 2 {
		select {
		case u := <-opened:
			urls = append(urls, u)
		case <-time.After(5 * time.Second):
			t.Fatal("browser was not opened")
		}
	}
	if !strings.HasSuffix(urls[0], "/demo.html") || !strings.HasSuffix(urls[1], "/sampler.html") {
		t.Fatalf("unexpected open order %v", urls)
	}

	resp, err := http.Get(urls[0])
	if err != nil {
		t.Fatalf("static server unreachable: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "demo") {
		t.Errorf("unexpected page %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("launcher did not stop")
	}
	if interrupted, killed := proc.state(); !interrupted || killed {
		t.Errorf("expected interrupt without kill, got interrupted=%v killed=%v", interrupted, killed)
	}
}

func TestRun_KillsAfterGracePeriod(t *testing.T) {
	proc := newFakeProcess(false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			Dir:         demoDir(t, false),
			Addr:        "127.0.0.1:0",
			StartAPI:    func() (Process, error) { return proc, nil },
			OpenDelay:   time.Hour,
			GracePeriod: 20 * time.Millisecond,
			Open:        func(string) error { return nil },
			Out:         io.Discard,
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("launcher did not stop")
	}
	if interrupted, killed := proc.state(); !interrupted || !killed {
		t.Errorf("expected interrupt then kill, got interrupted=%v killed=%v", interrupted, killed)
	}
}

func TestRun_APIExitsEarly(t *testing.T) {
	proc := newFakeProcess(true)
	proc.exitErr = errors.New("exit status 1")
	proc.exit()

	err := Run(context.Background(), Config{
		Dir:       demoDir(t, true),
		Addr:      "127.0.0.1:0",
		StartAPI:  func() (Process, error) { return proc, nil },
		OpenDelay: time.Hour,
		Out:       io.Discard,
	})
	if err == nil || !strings.Contains(err.Error(), "translation API exited") {
		t.Errorf("expected API exit error, got %v", err)
	}
}

func TestRun_StartFailure(t *testing.T) {
	err := Run(context.Background(), Config{
		Dir:      demoDir(t, true),
		Addr:     "127.0.0.1:0",
		StartAPI: func() (Process, error) { return nil, errors.New("no such file") },
		Out:      io.Discard,
	})
	if err == nil || !strings.Contains(err.Error(), "failed to start translation API") {
		t.Errorf("expected start error, got %v", err)
	}
}

func TestRun_OpenFailureIsWarning(t *testing.T) {
	out := &syncBuffer{}
	proc := newFakeProcess(true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			Dir:       demoDir(t, false),
			Addr:      "127.0.0.1:0",
			StartAPI:  func() (Process, error) { return proc, nil },
			OpenDelay: time.Millisecond,
			Open:      func(string) error { return errors.New("no display") },
			Out:       out,
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "Press Ctrl+C") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !strings.Contains(out.String(), "manually") {
		t.Errorf("expected manual-open hint, got %q", out.String())
	}
	if strings.Contains(out.String(), "sampler.html") {
		t.Error("sampler link must be omitted when the page is missing")
	}
}
