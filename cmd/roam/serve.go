package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/roam"
	"github.com/aretw0/roam/pkg/adapters/httpapi"
	"github.com/aretw0/roam/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP session server",
	Long:  `Starts the session engine behind a JSON API, with Prometheus metrics on a separate listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		metrics := observability.NewMetrics()
		engine, err := buildEngine(cfg, logger, roam.WithHooks(metrics.Hooks()))
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:    cfg.Server.Listen,
			Handler: httpapi.NewHandler(engine, logger),
		}
		metricsSrv := &http.Server{
			Addr:    cfg.Server.MetricsListen,
			Handler: metrics.Handler(),
		}

		serverErrors := make(chan error, 2)
		go func() {
			logger.Info("session server listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()
		go func() {
			logger.Info("metrics server listening", "addr", metricsSrv.Addr)
			serverErrors <- metricsSrv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			_ = metricsSrv.Close()
			return srv.Close()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
