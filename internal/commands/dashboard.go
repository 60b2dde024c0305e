package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tick-archive/internal/app"
)

var (
	dashboardPort int
	dashboardHost string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the read-only monitoring API",
	Long: `Start the dashboard HTTP API.

Endpoints:
  GET /api/checkpoint        current resume point (404 before the first unit)
  GET /api/symbols           catalog in iteration order
  GET /api/progress          per-symbol row counts and completion percentage
  GET /api/logs?lines=N      tail of the most recent run log
  GET /api/health            backing service status

Set SERVER_STATIC_DIR to also serve a front-end from /.

Examples:
  tick-archive dashboard
  tick-archive dashboard --port 9090`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().IntVarP(&dashboardPort, "port", "p", 0, "server port (default SERVER_PORT)")
	dashboardCmd.Flags().StringVarP(&dashboardHost, "host", "H", "", "server host (default SERVER_HOST)")

	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap("dashboard")
	if err != nil {
		return err
	}
	defer log.Close()

	if dashboardHost != "" {
		cfg.Server.Host = dashboardHost
	}
	if dashboardPort != 0 {
		cfg.Server.Port = dashboardPort
	}

	application, err := app.New(cfg, log.Logger)
	if err != nil {
		return err
	}
	if err := application.Initialize(); err != nil {
		log.WithError(err).Error("Failed to initialize application")
		return err
	}
	defer application.Close()

	server := application.NewDashboard()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case err := <-errCh:
		return err
	case sig := <-interrupt:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Dashboard shutdown error")
		return err
	}

	log.Info("Dashboard stopped")
	return nil
}
