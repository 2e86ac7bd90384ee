package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/store"
	"github.com/jbweber/anvil/internal/tracing"
	"github.com/jbweber/anvil/internal/vm"
	"github.com/jbweber/anvil/internal/web"
)

const shutdownTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("db", "", "Path to the sqlite database (overrides config)")
	serveCmd.Flags().String("scripts-dir", "", "Directory holding the hypervisor scripts (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front end",
	Long: `Run the web front end.

This will:
- Open (and migrate) the sqlite database
- Probe the configured script interpreters
- Optionally connect to NATS for lifecycle events
- Serve the UI, the stats API, /healthz and /metrics until interrupted`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, serveOverrides(cmd))
		if err != nil {
			return err
		}

		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

func serveOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			c.Listen = v
		}
		if v, _ := cmd.Flags().GetString("db"); v != "" {
			c.Database = v
		}
		if v, _ := cmd.Flags().GetString("scripts-dir"); v != "" {
			c.ScriptsDir = v
		}
	}
}

// serve wires every component and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	// Step 1: Storage
	st, err := store.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("failed to close database")
		}
	}()

	// Step 2: Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Step 3: Script runner
	scriptsDir, err := cfg.ScriptsPath()
	if err != nil {
		return err
	}
	if interp, err := script.ResolveInterpreter(ctx, cfg.Interpreters, cfg.ProbeTimeout); err != nil {
		log.WithError(err).Warn("no script interpreter available yet, scripts will fail until one is installed")
	} else {
		log.WithField("interpreter", interp).Info("script interpreter found")
	}
	runner := script.NewRunner(script.Options{
		Dir:          scriptsDir,
		Interpreters: cfg.Interpreters,
		Timeout:      cfg.CommandTimeout,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       log,
		Metrics:      m,
	})

	// Step 4: Events
	var sink events.Sink = events.Nop{}
	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		sink = pub
		log.WithField("url", cfg.NATS.URL).Info("publishing lifecycle events")
	}

	// Step 5: Tracing
	shutdownTracing, err := tracing.Setup(cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}
	}()

	// Step 6: Workflows and web surface
	mgr := vm.NewManager(st, runner, vm.Options{
		Events:                       sink,
		Metrics:                      m,
		Logger:                       log,
		RecordUserOnProvisionFailure: cfg.RecordUserOnFailure(),
	})

	webOpts := web.Options{SessionSecret: cfg.SessionSecret, Logger: log}
	if cfg.MetricsEnabled() {
		webOpts.Gatherer = reg
	}
	srv, err := web.New(mgr, webOpts)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"listen":      cfg.Listen,
			"database":    cfg.Database,
			"scripts_dir": scriptsDir,
		}).Info("anvil listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
