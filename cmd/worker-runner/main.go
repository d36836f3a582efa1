package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoscalehub/autoscale/pkg/config"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/metrics"
	"github.com/autoscalehub/autoscale/pkg/shutdown"
	"github.com/autoscalehub/autoscale/pkg/store"
	"github.com/autoscalehub/autoscale/pkg/worker"
)

var (
	cfgFile string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "worker-runner",
	Short:   "Worker loop draining the event processing job queue",
	Long:    `worker-runner exposes a single HTTP invocation per §6 that claims a batch of pending jobs, runs the plateau detector and consensus refiner, and writes results.`,
	Version: version,
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is none; env vars always override)")
}

// invocationHandler authenticates and runs one worker batch per request,
// matching the POST /?batch=<n> contract in §6.
type invocationHandler struct {
	w              *worker.Worker
	functionSecret string
	defaultBatch   int
}

func (h *invocationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-function-secret") != h.functionSecret || h.functionSecret == "" {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "Unauthorized"})
		return
	}

	batch := h.defaultBatch
	if v := r.URL.Query().Get("batch"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			batch = parsed
		}
	}

	picked, err := h.w.RunBatch(r.Context(), batch)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "picked": picked})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
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
	w := worker.New(st, log, m, cfg.Worker.ConsensusBandKg)

	mux := http.NewServeMux()
	mux.Handle("/", &invocationHandler{w: w, functionSecret: cfg.Worker.FunctionSecretProcessor, defaultBatch: cfg.Worker.DefaultBatchSize})
	mux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{Addr: cfg.Worker.ListenAddr, Handler: mux}

	drained := make(chan struct{})
	sc := shutdown.New()
	sc.WatchSignals()
	sc.OnShutdown(func() {
		defer close(drained)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	})

	log.With("addr", cfg.Worker.ListenAddr).Info("worker runner listening")
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
