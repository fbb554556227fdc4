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
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Print the effective agent profiles",
	Long: `Print the agent profile for each pipeline stage as YAML, after applying
the overrides from --agents (agents.file) and the reinforcement setting.

The output is a valid agents file and can be edited and passed back with
--agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := buildProfiles()
		if err != nil {
			return err
		}
		ordered := yaml.Node{Kind: yaml.MappingNode}
		for _, stage := range profiles.Stages() {
			var key, val yaml.Node
			if err := key.Encode(string(stage)); err != nil {
				return err
			}
			if err := val.Encode(profiles[stage]); err != nil {
				return err
			}
			ordered.Content = append(ordered.Content, &key, &val)
		}
		out, err := yaml.Marshal(&ordered)
		if err != nil {
			return fmt.Errorf("failed to encode profiles: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
