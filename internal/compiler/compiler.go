// Package compiler checks whether Solidity source compiles with a locally
// installed solc or solcjs.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCompileTimeout = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second

	// UnavailableMessage is reported when neither solc nor solcjs can be run.
	UnavailableMessage = "solc compiler not available. Install with: npm install -g solc"
)

// Result is the outcome of one compilation check. Compiles is nil when no
// compiler was available.
type Result struct {
	Compiles        *bool    `json:"compiles"`
	ErrorMessage    *string  `json:"error_message"`
	Warnings        []string `json:"warnings"`
	CompilerVersion *string  `json:"compiler_version"`
}

// Output is what a finished process produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts external commands. The returned error is reserved for
// failures to run the process at all; a non-zero exit is reported through
// Output.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}

// Checker detects the available compiler once and reuses it for every check.
// It is safe for concurrent use.
type Checker struct {
	runner         Runner
	compileTimeout time.Duration
	probeTimeout   time.Duration
	tempDir        string

	once    sync.Once
	command []string
}

// Option configures a Checker.
type Option func(*Checker)

func WithRunner(r Runner) Option { return func(c *Checker) { c.runner = r } }

func WithCompileTimeout(d time.Duration) Option {
	return func(c *Checker) { c.compileTimeout = d }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) { c.probeTimeout = d }
}

// WithTempDir sets the parent of the scratch files. Empty means os.TempDir().
func WithTempDir(dir string) Option { return func(c *Checker) { c.tempDir = dir } }

// New returns a Checker. Discovery is deferred until the first check.
func New(opts ...Option) *Checker {
	c := &Checker{
		runner:         ExecRunner{},
		compileTimeout: DefaultCompileTimeout,
		probeTimeout:   DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var candidates = [][]string{
	{"solc"},
	{"npx", "solcjs"},
}

// Available reports whether a compiler was found, probing on first use.
func (c *Checker) Available(ctx context.Context) bool {
	return len(c.detect(ctx)) > 0
}

// Command returns the detected compiler command, or nil.
func (c *Checker) Command(ctx context.Context) []string {
	return c.detect(ctx)
}

// detect probes under a context detached from the caller's cancellation, so
// a cancelled request cannot memoise a missing compiler.
func (c *Checker) detect(ctx context.Context) []string {
	c.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		for _, cand := range candidates {
			if _, ok := c.probe(ctx, cand); ok {
				c.command = cand
				return
			}
		}
	})
	return c.command
}

func (c *Checker) probe(ctx context.Context, command []string) (string, bool) {
	pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	args := append(append([]string{}, command[1:]...), "--version")
	out, err := c.runner.Run(pctx, command[0], args...)
	if err != nil || out.ExitCode != 0 {
		return "", false
	}
	return strings.TrimSpace(out.Stdout), true
}

// StripVersionPragma drops every line whose trimmed text starts with
// "pragma solidity" so any installed compiler version is accepted.
func StripVersionPragma(source string) string {
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "pragma solidity") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// CheckCompilation compiles source and reports the outcome. It never returns
// an error: missing tools, timeouts and process faults are all encoded in
// the Result.
func (c *Checker) CheckCompilation(ctx context.Context, source string) Result {
	command := c.detect(ctx)
	if command == nil {
		return Result{ErrorMessage: ptr(UnavailableMessage), Warnings: []string{}}
	}

	workDir, err := os.MkdirTemp(c.tempDir, "sctran-solc-")
	if err != nil {
		return unexpected(err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "Contract.sol")
	outDir := filepath.Join(workDir, "out")
	if err := os.WriteFile(srcPath, []byte(StripVersionPragma(source)), 0o600); err != nil {
		return unexpected(err)
	}
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return unexpected(err)
	}

	args := append([]string{}, command[1:]...)
	if command[0] == "npx" {
		args = append(args, "--bin", "--abi", "--output-dir", outDir, srcPath)
	} else {
		args = append(args, "--bin", "--abi", "-o", outDir, srcPath)
	}

	cctx, cancel := context.WithTimeout(ctx, c.compileTimeout)
	defer cancel()
	out, err := c.runner.Run(cctx, command[0], args...)
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return Result{
			Compiles:     ptr(false),
			ErrorMessage: ptr(fmt.Sprintf("Compilation timed out after %d seconds", int(c.compileTimeout.Seconds()))),
			Warnings:     []string{},
		}
	}
	if err != nil {
		return unexpected(err)
	}

	version := "unknown"
	if v, ok := c.probe(ctx, command); ok {
		version = v
	}

	if out.ExitCode != 0 {
		return Result{
			Compiles:        ptr(false),
			ErrorMessage:    ptr(strings.TrimSpace(out.Stderr)),
			Warnings:        []string{},
			CompilerVersion: ptr(version),
		}
	}
	return Result{
		Compiles:        ptr(true),
		Warnings:        warnings(out.Stderr),
		CompilerVersion: ptr(version),
	}
}

func warnings(stderr string) []string {
	out := []string{}
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(line, "Warning:") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

func unexpected(err error) Result {
	return Result{
		Compiles:     ptr(false),
		ErrorMessage: ptr(fmt.Sprintf("Unexpected error during compilation: %v", err)),
		Warnings:     []string{},
	}
}

// Summary renders a one-line human-readable status.
func Summary(r Result) string {
	switch {
	case r.Compiles == nil:
		return "Compiler not available - cannot check compilation"
	case *r.Compiles:
		if len(r.Warnings) > 0 {
			return fmt.Sprintf("Compiles successfully (%d warnings)", len(r.Warnings))
		}
		return "Compiles successfully"
	default:
		msg := ""
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		if runes := []rune(msg); len(runes) > 100 {
			msg = string(runes[:100]) + "..."
		}
		return "Compilation failed: " + msg
	}
}

func ptr[T any](v T) *T { return &v }
