// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/onyx/pkg/mcp"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Work with Model Context Protocol servers",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the configured services as MCP tools",
	Long: `Publish every enabled service method as an MCP tool named SERVICE__METHOD.
Tools are served on stdio unless --http is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, loadOptions(), appOptions{servicesOnly: true})
		if err != nil {
			return err
		}
		defer a.Close()

		srv := mcp.NewServer("onyx", version)
		for _, m := range a.services.List() {
			if err := srv.AddModule(m); err != nil {
				return err
			}
		}
		if mcpHTTPAddr == "" {
			return srv.ServeStdio()
		}

		httpSrv := srv.StreamableHTTP()
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.Start(mcpHTTPAddr) }()
		a.logger.Info("mcp.listening", "addr", mcpHTTPAddr, "services", a.services.Len())
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		}
	},
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the methods of every configured service, MCP servers included",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), loadOptions(), appOptions{servicesOnly: true})
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tMETHOD\tDESCRIPTION")
		for _, m := range a.services.List() {
			for _, method := range m.Methods() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name(), method.Name, method.Description)
			}
		}
		return w.Flush()
	},
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	mcpCmd.AddCommand(mcpServeCmd, mcpToolsCmd)
}
