// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/jllopis/onyx/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as YAML (secrets omitted)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWith(loadOptions())
		if err != nil {
			return withHint(err, "check the --config file and --set values")
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
