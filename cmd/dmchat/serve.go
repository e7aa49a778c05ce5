package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/dmchat/internal/app"
	applog "github.com/vovakirdan/dmchat/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(os.Stdout)
			if err != nil {
				return err
			}
			logger := applog.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Bool("require_auth", cfg.RequireAuth).Msg("starting dmchat server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "HTTP listen address")
	flags.String("db", "", "SQLite database path")
	flags.Duration("read-header-timeout", 0, "HTTP read header timeout")
	flags.Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	flags.Bool("require-auth", false, "require a JWT in the websocket hello")
	_ = opts.v.BindPFlag("addr", flags.Lookup("addr"))
	_ = opts.v.BindPFlag("database_path", flags.Lookup("db"))
	_ = opts.v.BindPFlag("read_header_timeout", flags.Lookup("read-header-timeout"))
	_ = opts.v.BindPFlag("shutdown_timeout", flags.Lookup("shutdown-timeout"))
	_ = opts.v.BindPFlag("require_auth", flags.Lookup("require-auth"))

	return cmd
}
