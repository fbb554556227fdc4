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
	"math/rand/v2"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/sctran/internal/dataset"
	"github.com/valpere/sctran/internal/pipeline"
)

var (
	evalDataset   string
	evalCount     int
	evalIndexes   []int
	evalSeed      uint64
	evalOutput    string
	evalNoCompile bool
)

type evaluation struct {
	Index  int              `json:"index"`
	Error  string           `json:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score translations against reference implementations from the dataset",
	Long: `Translate requirements sampled from the JSONL dataset and score each
generated contract against the dataset's reference Solidity on functional
completeness, state machine fidelity, security and code quality (0-10).

Select entries with --index (repeatable) or sample --count of them at random.
Use --seed for a reproducible sample.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := evalDataset
		if path == "" {
			path = cfg.Dataset.Path
		}
		ds, err := dataset.Load(path)
		if err != nil {
			return err
		}
		if ds.Len() == 0 {
			return fmt.Errorf("dataset %s has no usable entries", path)
		}

		var entries []dataset.Entry
		if len(evalIndexes) > 0 {
			for _, i := range evalIndexes {
				e, err := ds.Get(i)
				if err != nil {
					return err
				}
				entries = append(entries, e)
			}
		} else {
			var rng *rand.Rand
			if evalSeed != 0 {
				rng = rand.New(rand.NewPCG(evalSeed, evalSeed))
			}
			entries = ds.Sample(evalCount, rng)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, appOptions{history: true, observers: []pipeline.Observer{progress(os.Stderr)}})
		if err != nil {
			return err
		}
		defer a.Close()

		check := !evalNoCompile
		results := make([]evaluation, 0, len(entries))
		for n, e := range entries {
			fmt.Fprintf(os.Stderr, "[%d/%d] Evaluating dataset entry %d\n", n+1, len(entries), e.Index)
			res, err := a.translator.Run(ctx, pipeline.Request{
				ContractText:     e.Requirement,
				Reference:        e.Code,
				CheckCompilation: &check,
				NoCache:          true,
			})
			ev := evaluation{Index: e.Index, Result: res}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(os.Stderr, "Entry %d failed: %v\n", e.Index, err)
				ev.Error = err.Error()
			}
			results = append(results, ev)
		}

		if evalOutput != "" {
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			if err := writeOutput(evalOutput, data); err != nil {
				return err
			}
		}
		return printEvaluations(results)
	},
}

func printEvaluations(results []evaluation) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSEVERITY\tITER\tCOMPILES\tFUNC\tFSM\tSEC\tCODE\tOVERALL")

	var total float64
	scored := 0
	for _, ev := range results {
		if ev.Result == nil {
			fmt.Fprintf(w, "%d\tfailed\t-\t-\t-\t-\t-\t-\t-\n", ev.Index)
			continue
		}
		res := ev.Result
		compiles := "-"
		if res.Compilation != nil && res.Compilation.Compiles != nil {
			compiles = fmt.Sprintf("%v", *res.Compilation.Compiles)
		}
		q := res.Quality
		if q == nil {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t-\t-\t-\t-\t-\n", ev.Index, res.Audit.SeverityLevel, res.Iterations, compiles)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			ev.Index, res.Audit.SeverityLevel, res.Iterations, compiles,
			q.FunctionalCompleteness, q.StateMachineFidelity, q.Security, q.CodeQuality, q.Overall)
		total += q.Overall
		scored++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if scored > 0 {
		fmt.Printf("\nMean overall score: %.2f over %d of %d entries\n", total/float64(scored), scored, len(results))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalDataset, "dataset", "", "JSONL dataset (default from dataset.path)")
	evaluateCmd.Flags().IntVarP(&evalCount, "count", "n", 3, "Number of entries to sample")
	evaluateCmd.Flags().IntSliceVar(&evalIndexes, "index", nil, "Dataset entry index to evaluate (repeatable)")
	evaluateCmd.Flags().Uint64Var(&evalSeed, "seed", 0, "Sampling seed (0 = random)")
	evaluateCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "Write full results as JSON to this file")
	evaluateCmd.Flags().BoolVar(&evalNoCompile, "no-compile", false, "Skip the solc compilation check")
}
