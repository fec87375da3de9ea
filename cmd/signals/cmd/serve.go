package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/signals/api"
	"github.com/rustyeddy/signals/config"
	"github.com/rustyeddy/signals/ingest"
	"github.com/rustyeddy/signals/pubsub"
	"github.com/rustyeddy/signals/sim"
	"github.com/rustyeddy/signals/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signal ingestion service",
	Long: `Start the HTTP server: webhook ingestion, order queries, analytics
and the realtime WebSocket feed.

Example:
  signals serve --config config.yaml`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Default()
	if serveConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(serveConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if path := os.Getenv("SIGNALS_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if addr := os.Getenv("SIGNALS_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	log := newLogger(cfg.Logging)

	st, err := openStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	broker := pubsub.New()

	latency, _ := cfg.Sim.ParseExecutionLatency()
	holding, _ := cfg.Sim.ParseHoldingPeriod()
	engine := sim.New(st, broker, sim.Config{
		ExecutionLatency: latency,
		HoldingPeriod:    holding,
		WinMin:           cfg.Sim.WinMin,
		WinMax:           cfg.Sim.WinMax,
		LossMin:          cfg.Sim.LossMin,
		LossMax:          cfg.Sim.LossMax,
	}, log)

	handler := ingest.NewHandler(st, engine, log)
	server := api.NewServer(st, handler, broker, log, api.Options{
		WebhookRate:  cfg.Server.WebhookRate,
		WebhookBurst: cfg.Server.WebhookBurst,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case s := <-sigCh:
		log.WithField("signal", s.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}

	// In-flight lifecycle runs are cancelled, not awaited to completion:
	// interrupted orders stay PENDING or EXECUTED in the store.
	engine.Close()
	broker.Close()

	log.Info("stopped")
	return nil
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	if cfg.Driver == "memory" {
		return store.NewMemory(), nil
	}
	return store.NewSQLite(cfg.Path)
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}
