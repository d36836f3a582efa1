package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoscalehub/autoscale/pkg/config"
	"github.com/autoscalehub/autoscale/pkg/ingest"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/metrics"
	"github.com/autoscalehub/autoscale/pkg/registry"
	"github.com/autoscalehub/autoscale/pkg/shutdown"
	"github.com/autoscalehub/autoscale/pkg/store"
)

var (
	cfgFile string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "ingest-server",
	Short:   "HTTP ingest endpoint for scale events",
	Long:    `ingest-server validates incoming scale events, resolves device identity, and writes events plus processing jobs to the store.`,
	Version: version,
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is none; env vars always override)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	logging.InitGlobal(logging.Config{Level: logging.Level(cfg.Framework.LogLevel), Format: logging.Format(cfg.Framework.LogFormat)})
	log := logging.New(logging.Config{Level: logging.Level(cfg.Framework.LogLevel), Format: logging.Format(cfg.Framework.LogFormat)})

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	st, err := store.NewPGStore(ctx, cfg.Store.URL)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	srv := ingest.NewServer(ingest.Config{
		Store:              st,
		Logger:             log,
		Metrics:            m,
		FunctionSecret:     cfg.Ingest.FunctionSecret,
		DefaultHouseholdID: cfg.Ingest.DefaultHouseholdID,
	})

	reg := registry.New(st)
	registerHandler := registry.NewHandler(registry.HandlerConfig{
		Registry:       reg,
		Logger:         log,
		Metrics:        m,
		FunctionSecret: cfg.Ingest.FunctionSecret,
	})

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	mux.Handle("/register", registerHandler)
	mux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{Addr: cfg.Ingest.ListenAddr, Handler: mux}

	drained := make(chan struct{})
	sc := shutdown.New()
	sc.WatchSignals()
	sc.OnShutdown(func() {
		defer close(drained)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	})

	log.With("addr", cfg.Ingest.ListenAddr).Info("ingest server listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-drained
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
