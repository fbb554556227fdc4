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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/sctran/internal/config"
)

var version = "0.1.0"

var (
	v          = config.New()
	cfg        *config.Config
	logger     *slog.Logger
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sctran",
	Short: "Legal contract to Solidity translator",
	Long: `A CLI application that translates natural-language legal contracts into
Solidity smart contracts with a sequence of LLM agents.

Pipeline: parse -> generate -> audit -> (refine -> audit)* -> ABI -> MCP server

Supported LLM providers: openai, openrouter, ollama, gemini

Use "sctran translate --help" for translation options.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(verbose)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// bindFlags binds each flag name in fs to its config key.
func bindFlags(vp *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := vp.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: ./sctran.yaml or ~/.config/sctran/sctran.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pf.String("provider", "openai", "LLM provider: openai, openrouter, ollama, gemini")
	pf.String("model", "gpt-4o-mini", "LLM model name")
	pf.String("base-url", "", "LLM API base URL (provider default if empty)")
	pf.String("api-key", "", "LLM API key (default: provider env var, e.g. OPENAI_API_KEY)")
	pf.Int("max-attempts", 3, "Total LLM attempts per stage including the first (1 = no retries)")
	pf.String("agents", "", "YAML file overriding agent profiles")
	pf.String("db", "./data/sctran.db", "Database path for run history")

	bindFlags(v, pf, map[string]string{
		"provider":     "llm.provider",
		"model":        "llm.model",
		"base-url":     "llm.base_url",
		"api-key":      "llm.api_key",
		"max-attempts": "llm.max_attempts",
		"agents":       "agents.file",
		"db":           "db.path",
	})
}
