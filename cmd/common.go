/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/valpere/sctran/internal/agent"
	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/detector"
	"github.com/valpere/sctran/internal/llm"
	"github.com/valpere/sctran/internal/metrics"
	"github.com/valpere/sctran/internal/pipeline"
	"github.com/valpere/sctran/internal/pretranslate"
	"github.com/valpere/sctran/internal/store"
	"github.com/valpere/sctran/internal/validator"
)

const retryBaseDelay = time.Second

// app holds the wired components shared by commands.
type app struct {
	backend    llm.Backend
	profiles   agent.Profiles
	translator *pipeline.Translator
	checker    *compiler.Checker
	store      *store.Store
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

type appOptions struct {
	history   bool
	metrics   *metrics.Metrics
	observers []pipeline.Observer
}

// buildProfiles returns the default agent profiles overlaid with agents.file.
// Without reinforcement there is no refiner profile.
func buildProfiles() (agent.Profiles, error) {
	profiles := agent.Defaults(cfg.Pipeline.Reinforcement)
	if cfg.Agents.File != "" {
		loaded, err := agent.LoadFile(cfg.Agents.File, profiles)
		if err != nil {
			return nil, err
		}
		profiles = loaded
	}
	if !cfg.Pipeline.Reinforcement {
		delete(profiles, agent.StageRefine)
	}
	return profiles, nil
}

// buildBackend constructs the configured provider wrapped as
// Cache(Observe(Retry(Logging(provider)))).
func buildBackend(ctx context.Context, m *metrics.Metrics) (llm.Backend, error) {
	inner, err := llm.New(ctx, cfg.LLMOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM backend: %w", err)
	}
	mws := []llm.Middleware{llm.Cache(cfg.LLM.CacheSize)}
	if m != nil {
		mws = append(mws, llm.Observe(m.ObserveLLM))
	}
	mws = append(mws,
		llm.Retry(cfg.LLM.MaxAttempts, retryBaseDelay),
		llm.WithLogging(logger),
	)
	return llm.Wrap(inner, mws...), nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	backend, err := buildBackend(ctx, opts.metrics)
	if err != nil {
		return nil, err
	}
	profiles, err := buildProfiles()
	if err != nil {
		return nil, err
	}

	a := &app{
		backend:  backend,
		profiles: profiles,
		checker:  compiler.New(),
	}

	det := detector.New()
	popts := []pipeline.Option{
		pipeline.WithMaxIterations(cfg.Pipeline.MaxIterations),
		pipeline.WithCompiler(a.checker, cfg.Pipeline.CheckCompilation),
		pipeline.WithDetector(det),
		pipeline.WithLogger(logger),
		pipeline.WithModelInfo(cfg.LLM.Provider, cfg.LLM.Model),
	}
	if cfg.Pipeline.Pretranslate {
		google := pretranslate.NewGoogle(cfg.Google.Credentials, cfg.Google.Project)
		popts = append(popts, pipeline.WithPreTranslator(validator.New(det).Guard(google)))
	}
	if opts.history && cfg.DB.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := store.New(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.store = db
		popts = append(popts, pipeline.WithRecorder(db, cfg.Pipeline.ReuseResults))
	}
	if opts.metrics != nil {
		popts = append(popts, pipeline.WithObserver(opts.metrics))
	}
	for _, o := range opts.observers {
		popts = append(popts, pipeline.WithObserver(o))
	}

	a.translator = pipeline.New(agent.NewInvoker(backend, profiles, cfg.LLM.Temperature), popts...)
	return a, nil
}

func openStore() (*store.Store, error) {
	db, err := store.New(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// progress prints stage transitions to w.
func progress(w io.Writer) pipeline.Observer {
	return pipeline.StageFunc(func(e pipeline.Event) {
		label := string(e.Stage)
		if e.Iteration > 0 && (e.Stage == agent.StageRefine || e.Stage == agent.StageAudit) {
			label = fmt.Sprintf("%s (iteration %d)", e.Stage, e.Iteration)
		}
		switch {
		case e.Phase == pipeline.PhaseStarted:
			fmt.Fprintf(w, "Running %s...\n", label)
		case e.Err != nil:
			fmt.Fprintf(w, "Stage %s failed after %s: %v\n", label, e.Duration.Round(time.Millisecond), e.Err)
		default:
			fmt.Fprintf(w, "Finished %s in %s\n", label, e.Duration.Round(time.Millisecond))
		}
	})
}

// readInput reads path, or stdin when path is empty or "-".
func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

// writeOutput writes data to path, or stdout when path is empty or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
