package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emberfix/repaird/internal/belief"
	"github.com/emberfix/repaird/internal/config"
	"github.com/emberfix/repaird/internal/embeddings"
	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/httpapi"
	"github.com/emberfix/repaird/internal/keywordindex"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/learning"
	"github.com/emberfix/repaird/internal/logging"
	"github.com/emberfix/repaird/internal/question"
	"github.com/emberfix/repaird/internal/retrieval"
	"github.com/emberfix/repaird/internal/services"
	"github.com/emberfix/repaird/internal/session"
	"github.com/emberfix/repaird/internal/telemetry"
	"github.com/emberfix/repaird/internal/tutorials"
	"github.com/emberfix/repaird/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the diagnosis daemon",
	Long: `Start the repaird HTTP daemon.

Loads the diagnostic rule files, seeds the tutorial retrieval backends
and serves the session API until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()
	if tel.Degraded() {
		logger.Warn(ctx, "telemetry degraded, continuing without traces")
	}

	logger.Info(ctx, "starting repaird",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	// Diagnostic rules. Sessions pin the snapshot they start with; the
	// learning scheduler publishes newer ones.
	loader := knowledge.NewLoader(cfg.Knowledge.PatternsPath, cfg.Knowledge.QuestionsPath)
	snap, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading diagnostic rules: %w", err)
	}
	ks := knowledge.NewStore()
	ks.Publish(snap)
	logger.Info(ctx, "diagnostic rules loaded",
		zap.Int64("snapshot_version", snap.Version),
	)

	// Retrieval backends.
	embedder, err := embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
		Model:     cfg.Embeddings.Model,
		CacheDir:  cfg.Embeddings.CacheDir,
		MaxLength: cfg.Embeddings.MaxLength,
	})
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	dense, err := vectorstore.New(vectorstore.Options{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Chromem.Collection,
			VectorSize: cfg.VectorStore.Chromem.VectorSize,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			Collection: cfg.VectorStore.Qdrant.Collection,
			VectorSize: cfg.VectorStore.Qdrant.VectorSize,
		},
	}, embeddings.NewInstrumentedEmbedder(embedder, logger.Underlying()), logger.Underlying())
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() { _ = dense.Close() }()

	sparse := keywordindex.New(logger.Underlying())

	if cfg.Knowledge.TutorialsPath != "" {
		if err := seedTutorials(ctx, cfg.Knowledge.TutorialsPath, dense, sparse, logger); err != nil {
			return err
		}
	}

	fb, err := openFeedbackStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening feedback store: %w", err)
	}
	defer func() { _ = fb.Close() }()

	engine := retrieval.NewEngine(dense, sparse, fb, retrieval.Config{
		DenseTopK:      cfg.Retrieval.DenseTopK,
		SparseTopK:     cfg.Retrieval.SparseTopK,
		DenseWeight:    cfg.Retrieval.DenseWeight,
		SparseWeight:   cfg.Retrieval.SparseWeight,
		FeedbackWeight: cfg.Retrieval.FeedbackWeight,
		StageTimeout:   cfg.Retrieval.StageTimeout,
	}, logger.Underlying(), retrieval.NewMetrics(prometheus.DefaultRegisterer))

	// Diagnostic core.
	sessions := session.NewMemoryStore()
	orch := session.NewOrchestrator(
		ks,
		belief.NewEngine(
			belief.WithStaticWeight(cfg.Diagnosis.StaticWeight),
			belief.WithSupportScale(cfg.Diagnosis.LearnedSupportScale),
		),
		question.NewSelector(
			question.WithGainFloor(cfg.Diagnosis.GainFloor),
			question.WithSaturationThreshold(cfg.Diagnosis.SaturationThreshold),
			question.WithCloseGap(cfg.Diagnosis.CloseGap),
			question.WithBrandConfidenceThreshold(cfg.Diagnosis.BrandConfidenceThreshold),
		),
		engine,
		fb,
		sessions,
		session.Config{
			CompleteThreshold:   cfg.Diagnosis.CompleteThreshold,
			AcceptableThreshold: cfg.Diagnosis.AcceptableThreshold,
			MaxQuestions:        cfg.Diagnosis.MaxQuestions,
			StagnationWindow:    cfg.Diagnosis.StagnationWindow,
			StagnationDelta:     cfg.Diagnosis.StagnationDelta,
			CompleteResults:     cfg.Retrieval.CompleteResults,
			UncertainResults:    cfg.Retrieval.UncertainResults,
		},
		logger,
	)

	var scheduler *learning.Scheduler
	if cfg.Learning.Enabled {
		scheduler = learning.NewScheduler(
			learning.NewMiner(learning.Config{
				MinSupport:      cfg.Learning.MinSupport,
				MinSuccessRate:  cfg.Learning.MinSuccessRate,
				RequireApproval: cfg.Learning.RequireApproval,
			}),
			sessions, fb, loader, ks, logger,
			learning.WithInterval(cfg.Learning.Interval),
		)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("starting learning scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	registry := services.NewRegistry(services.Options{
		Orchestrator: orch,
		Knowledge:    ks,
		Loader:       loader,
		Retrieval:    engine,
		Feedback:     fb,
		Learning:     scheduler,
		VectorStore:  dense,
		KeywordIndex: sparse,
	})

	srv, err := httpapi.NewServer(registry.Orchestrator(), registry.Knowledge(), logger, httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	return logging.NewLogger(logCfg, nil)
}

func seedTutorials(ctx context.Context, path string, dense vectorstore.Store, sparse *keywordindex.Index, logger *logging.Logger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn(ctx, "tutorial catalog not found, retrieval starts empty",
			zap.String("path", path),
		)
		return nil
	}
	ts, err := tutorials.Load(path)
	if err != nil {
		return fmt.Errorf("loading tutorial catalog: %w", err)
	}
	if err := tutorials.Seed(ctx, ts, dense, sparse); err != nil {
		return fmt.Errorf("seeding tutorial catalog: %w", err)
	}
	logger.Info(ctx, "tutorial catalog seeded", zap.Int("tutorials", len(ts)))
	return nil
}

func openFeedbackStore(cfg *config.Config, logger *logging.Logger) (feedback.Store, error) {
	switch cfg.Feedback.Driver {
	case "sqlite":
		return feedback.NewSQLiteStore(cfg.Feedback.Path, logger.Underlying())
	default:
		return feedback.NewMemoryStore(), nil
	}
}
