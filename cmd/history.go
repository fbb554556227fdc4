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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the run history",
	Long:  `List, inspect, and clear translation runs recorded in the SQLite database.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tLANG\tMODEL\tITER\tSEVERITY\tAPPROVED\tCOMPILES\tTEXT")
		for _, r := range runs {
			snippet := strings.Join(strings.Fields(r.ContractText), " ")
			if len(snippet) > 40 {
				snippet = snippet[:37] + "..."
			}
			compiles := "-"
			if r.Compiles != nil {
				compiles = fmt.Sprintf("%v", *r.Compiles)
			}
			status := r.Status
			if r.FailedStage != "" {
				status += " (" + r.FailedStage + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%v\t%s\t%s\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), status, r.SourceLang,
				r.Provider+":"+r.Model, r.Iterations, r.Severity, r.Approved, compiles, snippet)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its audit passes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		run, err := db.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		if historyJSON {
			if len(run.Result) == 0 {
				return fmt.Errorf("run %s has no stored result", run.ID)
			}
			fmt.Println(string(run.Result))
			return nil
		}

		fmt.Printf("Run:         %s\n", run.ID)
		fmt.Printf("Created:     %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Status:      %s\n", run.Status)
		fmt.Printf("Model:       %s:%s\n", run.Provider, run.Model)
		fmt.Printf("Language:    %s\n", run.SourceLang)
		fmt.Printf("Iterations:  %d of %d\n", run.Iterations, run.MaxIterations)
		if run.Severity != "" {
			fmt.Printf("Severity:    %s (approved: %v)\n", run.Severity, run.Approved)
		}
		if run.Compiles != nil {
			fmt.Printf("Compiles:    %v\n", *run.Compiles)
		}
		if run.Error != "" {
			fmt.Printf("Failed:      %s: %s\n", run.FailedStage, run.Error)
		}
		fmt.Printf("Duration:    %dms\n", run.DurationMs)

		audits, err := db.ListAudits(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load audits: %w", err)
		}
		for _, a := range audits {
			fmt.Printf("\nAudit pass %d: severity %s, approved %v\n", a.Pass, a.Report.SeverityLevel, a.Report.Approved)
			for _, issue := range a.Report.Issues {
				fmt.Printf("  - %s\n", issue)
			}
		}
		return nil
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total runs:      %d\n", stats.TotalRuns)
		fmt.Printf("Completed:       %d\n", stats.Completed)
		fmt.Printf("Failed:          %d\n", stats.Failed)
		fmt.Printf("Approved:        %d\n", stats.Approved)
		fmt.Printf("Compiled:        %d\n", stats.Compiled)
		fmt.Printf("Avg iterations:  %.2f\n", stats.AvgIterations)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRun(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		fmt.Printf("Deleted run: %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearRuns(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %d runs from history.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the stored translation result as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
