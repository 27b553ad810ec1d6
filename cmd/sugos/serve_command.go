package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/sugos/shield"
	"github.com/hazyhaar/sugos/sugos"
)

var mcpImpl = &mcp.Implementation{Name: "sugos", Version: "1.0.0"}

func newServeCommand(ctx *commandContext, reg *prometheus.Registry) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			svc, err := ctx.service(sugos.WithRegisterer(reg))
			if err != nil {
				return err
			}
			defer svc.Close()

			if addr == "" {
				addr = svc.Config().Server.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           svc.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			ctx.logger.Info("sugos: listening", "addr", addr, "auth", svc.Config().Server.PasswordHash != "")

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}
			ctx.logger.Info("sugos: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from the configuration)")
	return cmd
}

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.service()
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := mcp.NewServer(mcpImpl, nil)
			svc.RegisterMCP(srv)
			ctx.logger.Info("sugos: mcp on stdio")
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print the bcrypt hash for server.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := shield.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
