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
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valpere/sctran/internal/pipeline"
)

var (
	csvInputFile  string
	csvOutputFile string
	csvColumn     int
	csvHeader     bool
	csvNoCompile  bool
)

var csvResultHeader = []string{"run_id", "severity", "approved", "iterations", "compiles", "error", "solidity"}

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Translate a column of contracts in a CSV file",
	Long: `Translate every contract in one column of a CSV file.

Each output row is the input row followed by the run ID, final audit severity,
approval, refinement iterations, compilation status, error (if the run failed)
and the generated Solidity. A failed row does not stop the batch.

With pipeline.reuse_results enabled, rows already translated in an earlier run
are served from run history, so an interrupted batch can simply be re-run.

Example:
  sctran translate csv -i contracts.csv -o solidity.csv -l 2 --header`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if csvInputFile == csvOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		f, err := os.Open(csvInputFile)
		if err != nil {
			return fmt.Errorf("failed to open input CSV: %w", err)
		}
		defer f.Close()

		records, err := csv.NewReader(f).ReadAll()
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("CSV file is empty")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, appOptions{history: true})
		if err != nil {
			return err
		}
		defer a.Close()

		checkCompilation := !csvNoCompile
		out := make([][]string, 0, len(records))
		failed := 0
		for rowIdx, row := range records {
			if rowIdx == 0 && csvHeader {
				out = append(out, append(append([]string{}, row...), csvResultHeader...))
				continue
			}
			if ctx.Err() != nil {
				return fmt.Errorf("interrupted at row %d: %w", rowIdx, ctx.Err())
			}

			result := make([]string, len(csvResultHeader))
			if csvColumn >= len(row) || row[csvColumn] == "" {
				result[5] = "empty contract cell"
				out = append(out, append(append([]string{}, row...), result...))
				continue
			}

			fmt.Fprintf(os.Stderr, "Row %d/%d: translating...\n", rowIdx+1, len(records))
			res, err := a.translator.Run(ctx, pipeline.Request{
				ContractText:     row[csvColumn],
				CheckCompilation: &checkCompilation,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("interrupted at row %d: %w", rowIdx, err)
				}
				fmt.Fprintf(os.Stderr, "Row %d: %v, skipping\n", rowIdx+1, err)
				result[5] = err.Error()
				failed++
			} else {
				result[0] = res.RunID
				result[1] = string(res.Audit.SeverityLevel)
				result[2] = strconv.FormatBool(res.Audit.Approved)
				result[3] = strconv.Itoa(res.Iterations)
				if res.Compilation != nil && res.Compilation.Compiles != nil {
					result[4] = strconv.FormatBool(*res.Compilation.Compiles)
				}
				result[6] = res.SolidityCode
			}
			out = append(out, append(append([]string{}, row...), result...))
		}

		outFile, err := os.Create(csvOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output CSV: %w", err)
		}
		defer outFile.Close()

		writer := csv.NewWriter(outFile)
		if err := writer.WriteAll(out); err != nil {
			return fmt.Errorf("failed to write output CSV: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("failed to flush output CSV: %w", err)
		}

		fmt.Printf("CSV translated: %s (%d failed)\n", csvOutputFile, failed)
		return nil
	},
}

func init() {
	translateCmd.AddCommand(csvCmd)

	csvCmd.Flags().StringVarP(&csvInputFile, "input", "i", "", "Input CSV file (required)")
	csvCmd.Flags().StringVarP(&csvOutputFile, "output", "o", "", "Output CSV file (required)")
	csvCmd.Flags().IntVarP(&csvColumn, "column", "l", 0, "Column index holding the contract text (0-indexed)")
	csvCmd.Flags().BoolVar(&csvHeader, "header", false, "Treat the first row as a header")
	csvCmd.Flags().BoolVar(&csvNoCompile, "no-compile", false, "Skip the solc compilation check")

	csvCmd.MarkFlagRequired("input")
	csvCmd.MarkFlagRequired("output")
}
