package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shy020501/Video-Automation/internal/api"
	"github.com/shy020501/Video-Automation/internal/models"
	"github.com/shy020501/Video-Automation/internal/queue"
	"github.com/shy020501/Video-Automation/internal/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and process queued runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(models.DefaultStages()); err != nil {
				return err
			}

			sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			q, err := queue.New(cfg.RedisURL)
			if err != nil {
				return err
			}
			defer q.Close()
			logger.Info("connected to redis queue")

			database, err := openLedger(sigCtx, cfg)
			if err != nil {
				return err
			}
			var ledger worker.Ledger
			var runs api.RunStore
			if database != nil {
				defer database.Close()
				ledger, runs = database, database
				logger.Info("run ledger enabled")
			}

			handler := api.NewHandler(runs, q, cfg.DatasetPath(), logger.Named("api"))
			router := api.NewRouter(handler, api.RouterConfig{
				BackendAPIKey:      cfg.BackendAPIKey,
				CorsAllowedOrigins: cfg.CorsAllowedOrigins,
			}, logger.Named("http"))
			if cfg.BackendAPIKey == "" {
				logger.Warn("no BACKEND_API_KEY set, API is unprotected")
			}

			server := &http.Server{
				Addr:              ":" + cfg.APIPort,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			w := worker.New(buildPipeline(cfg, logger), q, ledger, logger.Named("worker"))

			g, gctx := errgroup.WithContext(sigCtx)
			g.Go(func() error {
				logger.Info("api listening", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return w.Start(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
