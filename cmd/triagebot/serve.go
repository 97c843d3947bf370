package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the triage HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           a.server().Handler(),
				ReadHeaderTimeout: cfg.Server.ReadTimeout,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("listening",
					slog.String("addr", srv.Addr),
					slog.String("provider", cfg.LLM.Provider),
					slog.String("model", cfg.ModelConfig().Model),
					slog.String("store", cfg.Store.Driver),
				)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				logger.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				return a.pruneLoop(gctx)
			})

			runErr := g.Wait()

			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return errors.Join(runErr, a.close(closeCtx))
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 0, "listen port (default 3000)")
	flags.String("host", "", "listen host")
	flags.Bool("expose-errors", false, "include error details in 500 responses")
	_ = f.v.BindPFlag("server.port", flags.Lookup("port"))
	_ = f.v.BindPFlag("server.host", flags.Lookup("host"))
	_ = f.v.BindPFlag("server.expose_errors", flags.Lookup("expose-errors"))
	return cmd
}
