// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/channel/terminal"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to onyx from the terminal",
	Long: `Start an interactive session. Lines starting with @NAME are sent to the
agent NAME. Type /quit to leave.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), loadOptions(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		t := terminal.New(os.Stdin, cmd.OutOrStdout(), channel.WithHistory(a.history), channel.WithLogger(a.logger))
		if err := a.addChannel(t); err != nil {
			return err
		}
		return t.Run(cmd.Context())
	},
}
