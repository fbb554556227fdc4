// Package preflight reports which external capabilities sctran can use
// before a run starts.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/sctran/internal/llm"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusMissing Status = "missing"
)

// Check is one capability probe. Required checks that are missing fail the run.
type Check struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Required bool   `json:"required"`
	Detail   string `json:"detail"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

// OK reports whether every required check passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if c.Required && c.Status == StatusMissing {
			return false
		}
	}
	return true
}

func (r Report) Find(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// CompilerProbe is satisfied by *compiler.Checker.
type CompilerProbe interface {
	Available(ctx context.Context) bool
	Command(ctx context.Context) []string
}

type Options struct {
	Provider string
	APIKey   string
	Compiler CompilerProbe
	DemoDir  string
	DBPath   string
	Dataset  string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

const (
	CheckAPIKey   = "llm_api_key"
	CheckCompiler = "solidity_compiler"
	CheckDemo     = "demo.html"
	CheckSampler  = "sampler.html"
	CheckDB       = "database"
	CheckDataset  = "dataset"
)

// Run executes every probe that opts enables.
func Run(ctx context.Context, opts Options) Report {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	var r Report
	r.Checks = append(r.Checks, apiKey(opts))
	if opts.Compiler != nil {
		r.Checks = append(r.Checks, solidityCompiler(ctx, opts.Compiler))
	}
	if opts.DemoDir != "" {
		r.Checks = append(r.Checks,
			file(CheckDemo, filepath.Join(opts.DemoDir, "demo.html"), true),
			file(CheckSampler, filepath.Join(opts.DemoDir, "sampler.html"), false),
		)
	}
	if opts.DBPath != "" {
		r.Checks = append(r.Checks, database(opts.DBPath))
	}
	if opts.Dataset != "" {
		r.Checks = append(r.Checks, file(CheckDataset, opts.Dataset, false))
	}
	return r
}

func apiKey(opts Options) Check {
	c := Check{Name: CheckAPIKey, Required: true}
	env := llm.APIKeyEnv(opts.Provider)
	switch {
	case env == "":
		c.Status = StatusOK
		c.Detail = fmt.Sprintf("provider %s needs no API key", opts.Provider)
	case opts.APIKey != "" || opts.Getenv(env) != "":
		c.Status = StatusOK
		c.Detail = fmt.Sprintf("API key for %s is set", opts.Provider)
	default:
		c.Status = StatusMissing
		c.Detail = fmt.Sprintf("set %s or llm.api_key for provider %s", env, opts.Provider)
	}
	return c
}

func solidityCompiler(ctx context.Context, probe CompilerProbe) Check {
	c := Check{Name: CheckCompiler}
	if !probe.Available(ctx) {
		c.Status = StatusWarning
		c.Detail = "solc compiler not available. Install with: npm install -g solc"
		return c
	}
	c.Status = StatusOK
	c.Detail = "using " + strings.Join(probe.Command(ctx), " ")
	return c
}

func file(name, path string, required bool) Check {
	c := Check{Name: name, Required: required}
	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		c.Status = StatusOK
		c.Detail = path
	case required:
		c.Status = StatusMissing
		c.Detail = path + " not found"
	default:
		c.Status = StatusWarning
		c.Detail = path + " not found"
	}
	return c
}

func database(path string) Check {
	c := Check{Name: CheckDB}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Status = StatusWarning
		c.Detail = fmt.Sprintf("cannot create %s: %v", dir, err)
		return c
	}
	f, err := os.CreateTemp(dir, ".sctran-preflight-*")
	if err != nil {
		c.Status = StatusWarning
		c.Detail = fmt.Sprintf("%s is not writable: %v", dir, err)
		return c
	}
	f.Close()
	os.Remove(f.Name())
	c.Status = StatusOK
	c.Detail = path
	return c
}
