// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/onyx/pkg/channel"
	"github.com/jllopis/onyx/pkg/channel/discord"
	"github.com/jllopis/onyx/pkg/channel/server"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP channel, and Discord when a token is configured",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload agent settings when the config file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, loadOptions(), appOptions{watch: serveWatch})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(server.Options{Addr: addr, History: a.history, Agents: a.agents, Logger: a.logger})
	if err := a.addChannel(srv); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if token := a.cfg.Discord.Token; token != "" {
		d, err := discord.New(token, channel.WithHistory(a.history), channel.WithLogger(a.logger))
		if err != nil {
			return err
		}
		if err := a.addChannel(d); err != nil {
			return err
		}
		g.Go(func() error { return d.Run(gctx) })
	}

	a.logger.Info("onyx.serving", "addr", addr, "services", a.services.Len(), "channels", a.channels.Len())
	return g.Wait()
}
