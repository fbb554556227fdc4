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

	"github.com/spf13/cobra"

	"github.com/valpere/sctran/internal/compiler"
)

var compileJSON bool

var compileCmd = &cobra.Command{
	Use:   "compile <file.sol>",
	Short: "Check whether a Solidity file compiles",
	Long: `Compile a Solidity file with solc, falling back to npx solcjs.

Version pragmas are stripped before compiling so any installed compiler
version is accepted. A missing compiler is reported, not treated as an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readInput(args[0])
		if err != nil {
			return err
		}

		res := compiler.New().CheckCompilation(context.Background(), source)
		if compileJSON {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			fmt.Println(compiler.Summary(res))
			if res.CompilerVersion != nil {
				fmt.Printf("Compiler: %s\n", *res.CompilerVersion)
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(os.Stderr, "%s\n", w)
			}
			if res.ErrorMessage != nil && res.Compiles != nil {
				fmt.Fprintf(os.Stderr, "%s\n", *res.ErrorMessage)
			}
		}
		if res.Compiles != nil && !*res.Compiles {
			return fmt.Errorf("compilation failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().BoolVar(&compileJSON, "json", false, "Print the compilation result as JSON")
}
