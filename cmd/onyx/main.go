// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the onyx command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jllopis/onyx/pkg/config"
)

var version = "dev"

var (
	flagConfig  string
	flagProfile string
	flagSet     []string
)

var rootCmd = &cobra.Command{
	Use:   "onyx",
	Short: "Task-planning agents behind your chat channels",
	Long: `Onyx answers messages received on its channels. Conversational messages
get a direct reply; requests for action are split into groups and each group
is handed to an agent that plans, acts through services and reports back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "profile overlay loaded next to the config file (config.<profile>.yaml)")
	rootCmd.PersistentFlags().StringArrayVar(&flagSet, "set", nil, "override a configuration key, key=value (repeatable)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadOptions() config.Options {
	return config.Options{Path: flagConfig, Profile: flagProfile, Overrides: flagSet}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}
