package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-ingredients/internal/api"
	"github.com/sells-group/menu-ingredients/internal/config"
	"github.com/sells-group/menu-ingredients/internal/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs, ingredient snapshots and metrics over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		collector := monitoring.NewCollector(st)
		staleAfter := time.Duration(cfg.Server.StaleAfterHours) * time.Hour
		checker := monitoring.NewChecker(collector, time.Duration(cfg.Server.CheckIntervalSecs)*time.Second, staleAfter)
		go checker.Run(ctx)

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(st, api.Options{
				CORSOrigins: cfg.Server.CORSOrigins,
				Registry:    monitoring.NewRegistry(collector),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
