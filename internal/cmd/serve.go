package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sentra-io/sentra/internal/boundary"
	"github.com/sentra-io/sentra/internal/config"
	"github.com/sentra-io/sentra/internal/drift"
	"github.com/sentra-io/sentra/internal/engine"
	"github.com/sentra-io/sentra/internal/llm"
	"github.com/sentra-io/sentra/internal/moral"
	"github.com/sentra-io/sentra/internal/pelm"
	"github.com/sentra-io/sentra/internal/phase"
	"github.com/sentra-io/sentra/internal/policy"
	"github.com/sentra-io/sentra/internal/provenance"
	"github.com/sentra-io/sentra/internal/server"
	"github.com/sentra-io/sentra/internal/snapshot"
	"github.com/sentra-io/sentra/internal/synaptic"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Sentra server with periodic snapshot persistence",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides SENTRA_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

// defaultDriftBudget applies when no policy bundle is configured. The
// threshold bounds come from the filter config so the clamp range matches.
func defaultDriftBudget(cfg moral.Config) drift.Budget {
	return drift.Budget{
		MaxDrift:     0.3,
		WarnAt:       0.1,
		DegradedAt:   0.2,
		MinThreshold: cfg.MinThreshold,
		MaxThreshold: cfg.MaxThreshold,
	}
}

// buildBackend resolves the generation provider and the embedder from config.
// The local embedder is the fallback whenever no OpenAI key is available.
func buildBackend(cfg *config.Config) (llm.Provider, llm.Embedder, error) {
	var provider llm.Provider
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("provider openai requires SENTRA_OPENAI_API_KEY")
		}
		provider = llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
	case "ollama":
		provider = llm.NewOllamaProvider(cfg.OllamaBaseURL)
	case "none":
		provider = nil
	}

	if cfg.Provider == "openai" && cfg.OpenAIAPIKey != "" {
		embedder, err := llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.Dimension)
		if err != nil {
			return nil, nil, fmt.Errorf("openai embedder: %w", err)
		}
		return provider, embedder, nil
	}
	embedder, err := llm.NewLocalEmbedder(cfg.Dimension)
	if err != nil {
		return nil, nil, fmt.Errorf("local embedder: %w", err)
	}
	return provider, embedder, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	admission := provenance.DefaultAdmissionPolicy()
	moralCfg := moral.DefaultConfig()
	budget := defaultDriftBudget(moralCfg)

	var policyEngine *policy.Engine
	if cfg.PolicyBundle != "" {
		bundle, err := policy.Load(cfg.PolicyBundle, cfg.SigningKey)
		if err != nil {
			return fmt.Errorf("loading policy bundle: %w", err)
		}
		admission = bundle.AdmissionPolicy()
		budget = bundle.DriftBudget()
		moralCfg.MinThreshold = budget.MinThreshold
		moralCfg.MaxThreshold = budget.MaxThreshold
		if moralCfg.InitialThreshold < moralCfg.MinThreshold || moralCfg.InitialThreshold > moralCfg.MaxThreshold {
			moralCfg.InitialThreshold = (moralCfg.MinThreshold + moralCfg.MaxThreshold) / 2
		}
		policyEngine, err = policy.NewEngine(ctx, bundle.Admission)
		if err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
		log.Info().Str("version", bundle.Version).Str("path", cfg.PolicyBundle).Msg("policy_bundle_loaded")
	}

	mem, err := synaptic.NewMemory(synaptic.DefaultConfig(cfg.Dimension))
	if err != nil {
		return fmt.Errorf("synaptic memory: %w", err)
	}
	ring, err := pelm.NewStore(cfg.Dimension, cfg.Capacity, admission)
	if err != nil {
		return fmt.Errorf("ring store: %w", err)
	}
	monitor, err := drift.NewMonitor(budget, moralCfg.InitialThreshold)
	if err != nil {
		return fmt.Errorf("drift monitor: %w", err)
	}
	filter, err := moral.NewFilter(moralCfg, monitor)
	if err != nil {
		return fmt.Errorf("moral filter: %w", err)
	}
	tracker, err := boundary.NewTracker(boundary.DefaultWindow, boundary.DefaultTrigger)
	if err != nil {
		return fmt.Errorf("boundary tracker: %w", err)
	}
	oracle, err := phase.NewCycle(cfg.PhasePeriod)
	if err != nil {
		return fmt.Errorf("phase oracle: %w", err)
	}

	provider, embedder, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	snapshots, err := snapshot.NewStore(cfg.SnapshotDBPath(), cfg.SnapshotKey)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	defer snapshots.Close()

	eng, err := engine.New(engine.Deps{
		Synaptic:        mem,
		Ring:            ring,
		Filter:          filter,
		Monitor:         monitor,
		Boundary:        tracker,
		Oracle:          oracle,
		Admission:       admission,
		Policy:          policyEngine,
		Embedder:        embedder,
		Provider:        provider,
		Snapshots:       snapshots,
		PhaseTolerance:  cfg.PhaseTolerance,
		GenerationModel: cfg.GenerationModel,
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	switch err := eng.RestoreLatest(ctx); {
	case err == nil:
		log.Info().Msg("state_restored_from_snapshot")
	case errors.Is(err, snapshot.ErrNoSnapshot):
		log.Info().Msg("no_snapshot_cold_start")
	default:
		return fmt.Errorf("restoring snapshot: %w", err)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.SnapshotSchedule, func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		id, err := eng.SaveSnapshot(saveCtx)
		if err != nil {
			log.Error().Err(err).Msg("scheduled_snapshot_failed")
			return
		}
		pruned, err := snapshots.Prune(saveCtx, cfg.SnapshotKeep)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot_prune_failed")
		}
		log.Info().Str("id", id).Int64("pruned", pruned).Msg("snapshot_saved")
	})
	if err != nil {
		return fmt.Errorf("snapshot schedule %q: %w", cfg.SnapshotSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiKeys, err := config.ParseAPIKeys(cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("parsing api keys: %w", err)
	}
	if len(apiKeys) == 0 {
		log.Warn().Msg("SENTRA_API_KEYS not set, all API endpoints will return 401. Set for production.")
	}

	srv := server.NewServer(eng, apiKeys,
		server.WithSnapshotStore(snapshots),
		server.WithRateLimiter(server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)),
		server.WithCORSOrigins([]string{"*"}),
	)

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Int("dimension", cfg.Dimension).
		Int("capacity", cfg.Capacity).
		Str("provider", cfg.Provider).
		Bool("policy_bundle", policyEngine != nil).
		Msg("sentra_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Final snapshot so a restart resumes from the freshest state.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSave()
	if id, err := eng.SaveSnapshot(saveCtx); err != nil {
		log.Warn().Err(err).Msg("final_snapshot_failed")
	} else {
		log.Info().Str("id", id).Msg("final_snapshot_saved")
	}

	log.Info().Msg("server_stopped")
	return nil
}
