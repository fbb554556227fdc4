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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/sctran/internal/dataset"
	"github.com/valpere/sctran/internal/metrics"
	"github.com/valpere/sctran/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the translation HTTP API",
	Long: `Serve the translation pipeline over HTTP.

Endpoints:
  GET  /health              liveness and compiler availability
  POST /api/translate       {"contract_text": "...", "max_iterations": 2, "check_compilation": true}
  POST /api/compile         {"source": "..."}
  GET  /api/runs            run history (?limit=N)
  GET  /api/runs/stats      run history summary
  GET  /api/runs/{id}       one run with its audit passes
  GET  /api/samples         random dataset entries (?n=N, ?q=search)
  GET  /api/samples/{index} one dataset entry
  GET  /metrics             Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		a, err := newApp(ctx, appOptions{history: true, metrics: m})
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []server.Option{
			server.WithCompiler(a.checker),
			server.WithMetrics(m),
			server.WithCORSOrigins(cfg.Server.CORSOrigins...),
			server.WithTranslateTimeout(cfg.Server.TranslateTimeout),
			server.WithLogger(logger),
		}
		if a.store != nil {
			opts = append(opts, server.WithHistory(a.store))
		}
		if cfg.Dataset.Path != "" {
			ds, err := dataset.Load(cfg.Dataset.Path)
			if err != nil {
				logger.Warn("dataset not loaded, /api/samples disabled", "path", cfg.Dataset.Path, "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "Loaded %d dataset entries from %s\n", ds.Len(), cfg.Dataset.Path)
				opts = append(opts, server.WithSamples(ds))
			}
		}

		fmt.Fprintf(os.Stderr, "Translation API listening on http://%s (provider %s, model %s)\n",
			cfg.Server.Addr, cfg.LLM.Provider, cfg.LLM.Model)
		return server.New(a.translator, opts...).ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "localhost:5000", "Listen address")
	serveCmd.Flags().String("dataset", "./data/requirement_fsm_code.jsonl", "JSONL dataset backing /api/samples")
	serveCmd.Flags().Duration("translate-timeout", 10*time.Minute, "Upper bound on one /api/translate run (0 disables)")

	bindFlags(v, serveCmd.Flags(), map[string]string{
		"addr":              "server.addr",
		"dataset":           "dataset.path",
		"translate-timeout": "server.translate_timeout",
	})
}
