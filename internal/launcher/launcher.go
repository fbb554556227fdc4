// Package launcher starts the local demo: a static file server for the demo
// pages and a supervised translation API subprocess.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/sctran/internal/server"
)

const (
	DefaultAddr        = "localhost:8000"
	DefaultOpenDelay   = 3 * time.Second
	DefaultGracePeriod = 5 * time.Second

	demoPage    = "demo.html"
	samplerPage = "sampler.html"
)

var ErrMissingDemo = errors.New("launcher: demo.html not found")

// Process is a running API subprocess.
type Process interface {
	Wait() error
	Interrupt() error
	Kill() error
}

// StartFunc launches the API subprocess.
type StartFunc func() (Process, error)

type Config struct {
	Dir         string
	Addr        string
	APIAddr     string
	StartAPI    StartFunc
	OpenDelay   time.Duration
	GracePeriod time.Duration
	// Open defaults to OpenBrowser.
	Open   func(url string) error
	Out    io.Writer
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.OpenDelay == 0 {
		c.OpenDelay = DefaultOpenDelay
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.Open == nil {
		c.Open = OpenBrowser
	}
	if c.Out == nil {
		c.Out = os.Stderr
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Run serves the demo until ctx is cancelled or a component fails. A missing
// demo.html returns ErrMissingDemo before anything starts; a missing
// sampler.html only logs a warning.
func Run(ctx context.Context, cfg Config) error {
	cfg.defaults()
	if cfg.StartAPI == nil {
		return errors.New("launcher: no API start function")
	}

	if !exists(filepath.Join(cfg.Dir, demoPage)) {
		return fmt.Errorf("%w in %s", ErrMissingDemo, cfg.Dir)
	}
	hasSampler := exists(filepath.Join(cfg.Dir, samplerPage))
	if !hasSampler {
		cfg.Logger.Warn("sampler.html not found, dataset browser disabled", "dir", cfg.Dir)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	base := "http://" + ln.Addr().String()
	srv := server.NewHTTPServer(cfg.Addr, http.FileServer(http.Dir(cfg.Dir)))

	fmt.Fprintf(cfg.Out, "   [1/3] HTTP server starting on %s\n", base)
	proc, err := cfg.StartAPI()
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to start translation API: %w", err)
	}
	fmt.Fprintf(cfg.Out, "   [2/3] Translation API starting on http://%s\n", cfg.APIAddr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("static server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracePeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return supervise(gctx, proc, cfg.GracePeriod, cfg.Logger)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-time.After(cfg.OpenDelay):
		}
		fmt.Fprintf(cfg.Out, "   [3/3] Opening browser\n")
		pages := []string{demoPage}
		if hasSampler {
			pages = append(pages, samplerPage)
		}
		for _, p := range pages {
			url := base + "/" + p
			if err := cfg.Open(url); err != nil {
				cfg.Logger.Warn("failed to open browser", "url", url, "error", err)
				fmt.Fprintf(cfg.Out, "   Open %s manually\n", url)
			}
		}
		fmt.Fprintf(cfg.Out, "\n   Translation Demo: %s/%s\n", base, demoPage)
		if hasSampler {
			fmt.Fprintf(cfg.Out, "   Dataset Browser:  %s/%s\n", base, samplerPage)
		}
		fmt.Fprintf(cfg.Out, "   Translation API:  http://%s\n\n   Press Ctrl+C to stop\n", cfg.APIAddr)
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// supervise waits for the API to exit. On cancellation it interrupts the
// process and kills it if it outlives grace.
func supervise(ctx context.Context, proc Process, grace time.Duration, logger *slog.Logger) error {
	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	select {
	case err := <-exited:
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("translation API exited: %w", err)
		}
		return errors.New("translation API exited unexpectedly")
	case <-ctx.Done():
	}

	logger.Info("stopping translation API")
	if err := proc.Interrupt(); err != nil {
		logger.Warn("interrupt failed, killing translation API", "error", err)
		proc.Kill()
		<-exited
		return nil
	}
	select {
	case <-exited:
	case <-time.After(grace):
		logger.Warn("translation API did not stop in time, killing", "grace", grace)
		proc.Kill()
		<-exited
	}
	return nil
}

// ExecStarter runs name with args as the API process, streaming its output
// to out.
func ExecStarter(out io.Writer, name string, args ...string) StartFunc {
	return func() (Process, error) {
		cmd := exec.Command(name, args...)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &execProcess{cmd: cmd}, nil
	}
}

type execProcess struct {
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

func (p *execProcess) Wait() error {
	p.once.Do(func() { p.err = p.cmd.Wait() })
	return p.err
}

func (p *execProcess) Interrupt() error {
	if runtime.GOOS == "windows" {
		return p.cmd.Process.Kill()
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
