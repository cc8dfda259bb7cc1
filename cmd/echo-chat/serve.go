package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/echo-chat/client/internal/echo"
	"github.com/echo-chat/client/internal/logging"
)

func newServeCmd(ro *rootOptions) *cobra.Command {
	var (
		addr    string
		token   string
		origins []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local WebSocket echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ro.cfg.Echo
			if cmd.Flags().Changed("addr") {
				opts.Addr = addr
			}
			if cmd.Flags().Changed("require-token") {
				opts.Token = token
			}
			if cmd.Flags().Changed("origin") {
				opts.AllowedOrigins = origins
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := echo.NewServer(echo.Options{
				AllowedOrigins: opts.AllowedOrigins,
				Token:          opts.Token,
			}, logging.Component("echo"))
			return serve(ctx, srv, opts.Addr, cmd)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().StringVar(&token, "require-token", "", "reject clients that do not present this token")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "allowed browser origin (repeatable)")
	return cmd
}

func serve(ctx context.Context, srv *echo.Server, addr string, cmd *cobra.Command) error {
	eg, ctx := errgroup.WithContext(ctx)
	ready := make(chan string, 1)

	eg.Go(func() error {
		return srv.ListenAndServe(ctx, addr, ready)
	})
	eg.Go(func() error {
		select {
		case bound := <-ready:
			fmt.Fprintf(cmd.OutOrStdout(), "echo server listening on ws://%s\n", bound)
		case <-ctx.Done():
		}
		return nil
	})

	return eg.Wait()
}
