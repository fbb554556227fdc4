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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valpere/sctran/internal/launcher"
)

var demoAPIAddr string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Launch the browser demo",
	Long: `Start a static file server for the demo pages and the translation API,
then open demo.html and sampler.html in the browser.

demo.html is required; sampler.html is optional. Press Ctrl+C to stop both
servers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate sctran executable: %w", err)
		}
		apiArgs := []string{"serve", "--addr", demoAPIAddr}
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if rootCmd.PersistentFlags().Lookup(f.Name) != nil {
				apiArgs = append(apiArgs, "--"+f.Name+"="+f.Value.String())
			}
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Starting contract translator demo...\n\n")
		err = launcher.Run(ctx, launcher.Config{
			Dir:      cfg.Demo.Dir,
			Addr:     cfg.Demo.Addr,
			APIAddr:  demoAPIAddr,
			StartAPI: launcher.ExecStarter(os.Stderr, exe, apiArgs...),
			Out:      os.Stderr,
			Logger:   logger,
		})
		if errors.Is(err, launcher.ErrMissingDemo) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Demo stopped\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().String("dir", "./demo", "Directory holding demo.html and sampler.html")
	demoCmd.Flags().String("static-addr", "localhost:8000", "Static file server address")
	demoCmd.Flags().StringVar(&demoAPIAddr, "api-addr", "localhost:5000", "Translation API address")

	bindFlags(v, demoCmd.Flags(), map[string]string{
		"dir":         "demo.dir",
		"static-addr": "demo.addr",
	})
}
