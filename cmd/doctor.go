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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/preflight"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that external dependencies are available",
	Long: `Report whether the LLM API key, the Solidity compiler, the demo pages,
the run history database and the dataset are usable.

Exits with an error when a required check is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := preflight.Run(context.Background(), preflight.Options{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Compiler: compiler.New(),
			DemoDir:  cfg.Demo.Dir,
			DBPath:   cfg.DB.Path,
			Dataset:  cfg.Dataset.Path,
		})

		if doctorJSON {
			data, err := json.MarshalIndent(r, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tSTATUS\tREQUIRED\tDETAIL")
			for _, c := range r.Checks {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", c.Name, c.Status, c.Required, c.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if !r.OK() {
			return fmt.Errorf("required checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
}
