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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/pipeline"
	"github.com/valpere/sctran/internal/report"
)

var (
	inputFile     string
	outputFile    string
	outputFormat  string
	maxIterations int
	noCompile     bool
	noHistory     bool
	noCache       bool
	referenceFile string
	solidityFile  string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a legal contract into Solidity",
	Long: `Translate a natural-language legal contract into a Solidity smart contract.

The contract is parsed into a structured schema, turned into Solidity, audited
for security issues and refined until the auditor approves it or the iteration
limit is reached. An ABI and an MCP server wrapper are generated for the final
code, which is then checked with solc when available.

Output formats:
  - md     Markdown report (default)
  - html   HTML report
  - json   Full translation result

Reads from stdin when --input is omitted or "-".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" && inputFile != "-" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		text, err := readInput(inputFile)
		if err != nil {
			return err
		}

		req := pipeline.Request{ContractText: text, NoCache: noCache}
		if cmd.Flags().Changed("max-iterations") {
			req.MaxIterations = &maxIterations
		}
		if noCompile {
			off := false
			req.CheckCompilation = &off
		}
		if referenceFile != "" {
			ref, err := os.ReadFile(referenceFile)
			if err != nil {
				return fmt.Errorf("failed to read reference file: %w", err)
			}
			req.Reference = string(ref)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, appOptions{history: !noHistory, observers: []pipeline.Observer{progress(os.Stderr)}})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.translator.Run(ctx, req)
		if err != nil {
			return err
		}

		out, err := render(res, outputFormat)
		if err != nil {
			return err
		}
		if err := writeOutput(outputFile, out); err != nil {
			return err
		}
		if solidityFile != "" {
			if err := writeOutput(solidityFile, []byte(res.SolidityCode)); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stderr, "Translated contract (run %s)\n", res.RunID)
		if res.Cached {
			fmt.Fprintf(os.Stderr, "Result served from run history\n")
		}
		fmt.Fprintf(os.Stderr, "Audit: severity %s, approved %v, %d refinement iteration(s)\n",
			res.Audit.SeverityLevel, res.Audit.Approved, res.Iterations)
		if res.Compilation != nil {
			fmt.Fprintf(os.Stderr, "Compilation: %s\n", compiler.Summary(*res.Compilation))
		}
		if res.Quality != nil {
			fmt.Fprintf(os.Stderr, "Quality: %.1f/10\n", res.Quality.Overall)
		}
		return nil
	},
}

func render(res *pipeline.Result, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "md", "markdown":
		return []byte(report.Markdown(res)), nil
	case "html":
		return []byte(report.HTML(res)), nil
	case "json":
		return json.MarshalIndent(res, "", "  ")
	default:
		return nil, fmt.Errorf("unknown output format %q (want md, html or json)", format)
	}
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Contract text file (default: stdin)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for the report (default: stdout)")
	translateCmd.Flags().StringVarP(&outputFormat, "format", "f", "md", "Report format: md, html, json")
	translateCmd.Flags().StringVar(&solidityFile, "sol", "", "Also write the final Solidity code to this file")
	translateCmd.Flags().IntVar(&maxIterations, "max-iterations", 2, "Maximum refinement iterations (default from pipeline.max_iterations)")
	translateCmd.Flags().BoolVar(&noCompile, "no-compile", false, "Skip the solc compilation check")
	translateCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the database")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore previous results for identical contracts")
	translateCmd.Flags().StringVar(&referenceFile, "reference", "", "Reference Solidity implementation to score the result against")
	translateCmd.Flags().Bool("reinforcement", true, "Enable the audit/refine loop")
	translateCmd.Flags().Bool("pretranslate", false, "Machine-translate non-English contracts to English first (Google Cloud)")

	bindFlags(v, translateCmd.Flags(), map[string]string{
		"reinforcement": "pipeline.reinforcement",
		"pretranslate":  "pipeline.pretranslate",
	})
}
