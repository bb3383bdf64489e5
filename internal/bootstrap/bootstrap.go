package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/script-rating/internal/config"
	"github.com/kirillkom/script-rating/internal/core/ports"
	"github.com/kirillkom/script-rating/internal/core/usecase"
	"github.com/kirillkom/script-rating/internal/infrastructure/chunking"
	"github.com/kirillkom/script-rating/internal/infrastructure/embedding/ollama"
	"github.com/kirillkom/script-rating/internal/infrastructure/extractor"
	"github.com/kirillkom/script-rating/internal/infrastructure/lexicon"
	"github.com/kirillkom/script-rating/internal/infrastructure/queue/nats"
	"github.com/kirillkom/script-rating/internal/infrastructure/repository/memory"
	"github.com/kirillkom/script-rating/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/script-rating/internal/infrastructure/resilience"
	"github.com/kirillkom/script-rating/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/script-rating/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/script-rating/internal/observability/metrics"
)

// Options selects which process is being assembled.
type Options struct {
	Service string
	Logger  *slog.Logger
	// ConnectQueue forces a NATS connection even for inline dispatch
	// (the worker consumes requests).
	ConnectQueue bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Metrics       *metrics.AnalysisMetrics
	Parser        *extractor.Router
	KnowledgeBase *usecase.KnowledgeBaseUseCase
	Analysis      *usecase.AnalysisUseCase
	// Queue is nil unless dispatch goes through NATS or ConnectQueue is set.
	Queue *nats.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dispatch := usecase.DispatchMode(strings.ToLower(strings.TrimSpace(cfg.AnalysisDispatch)))
	if dispatch != usecase.DispatchInline && dispatch != usecase.DispatchQueue {
		return nil, fmt.Errorf("unknown ANALYSIS_DISPATCH %q", cfg.AnalysisDispatch)
	}
	mode, err := usecase.ParseRetrievalMode(cfg.RetrievalMode)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	analysisRepo, referenceRepo, db, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		closers = append(closers, func() { _ = db.Close() })
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load lexicon: %w", err)
	}

	analysisMetrics := metrics.NewAnalysisMetrics(opts.Service)
	rc := resilienceConfig(cfg)
	rc.Logger = logger
	rc.Observer = analysisMetrics
	executor := resilience.NewExecutor(rc)

	var embedder ports.Embedder
	var vectors ports.ExcerptVectorStore
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "ollama":
		embedder = ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.WithResilience(executor)))
		if cfg.QdrantURL != "" {
			vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
		}
	case "", "none":
	default:
		closeAll()
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", cfg.EmbeddingProvider)
	}

	kb := usecase.NewKnowledgeBaseUseCase(referenceRepo, embedder, vectors, usecase.KnowledgeBaseOptions{
		Mode:         mode,
		DefaultTopK:  cfg.RetrievalTopK,
		EmbedTimeout: cfg.EmbedTimeout,
		RRFK:         cfg.RetrievalRRFK,
		PoolSize:     cfg.RetrievalPoolSize,
		Logger:       logger.With("component", "knowledge_base"),
		Observer:     analysisMetrics,
	})
	if err := kb.Load(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("load reference corpus: %w", err)
	}

	var queue *nats.Queue
	var analysisQueue ports.AnalysisQueue
	var sinks []ports.ResultSink
	if dispatch == usecase.DispatchQueue || opts.ConnectQueue {
		queue, err = nats.New(cfg.NATSURL, nats.Options{
			RequestedSubject:   cfg.NATSRequestedSubject,
			CompletedSubject:   cfg.NATSCompletedSubject,
			ResilienceExecutor: executor,
			Logger:             logger.With("component", "queue"),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		analysisQueue = queue
		sinks = append(sinks, queue)
	}

	parser := extractor.NewRouter()
	classifier := usecase.NewBlockClassifier(lexicon.NewScorer(lex), kb, usecase.ClassifierOptions{
		CitationsPerCategory: cfg.CitationsPerCategory,
		UnflaggedTopK:        cfg.UnflaggedCitationsTopK,
		RetrievalTimeout:     cfg.RetrievalTimeout,
		Logger:               logger.With("component", "classifier"),
	})
	analysis := usecase.NewAnalysisUseCase(
		analysisRepo,
		storage,
		analysisQueue,
		parser,
		chunking.NewSegmenter(cfg.SegmentTargetWords, cfg.SegmentMinWords),
		classifier,
		usecase.AnalysisOptions{
			Dispatch:  dispatch,
			Timeout:   cfg.AnalysisTimeout,
			Retention: cfg.AnalysisRetention,
			Logger:    logger.With("component", "analysis"),
			Observer:  analysisMetrics,
			Sinks:     sinks,
		},
	)

	logger.Info("application assembled",
		"dispatch", dispatch,
		"retrieval_mode", mode,
		"embedding_provider", cfg.EmbeddingProvider,
		"vector_store", vectors != nil,
		"durable", db != nil,
		"lexicon_terms", lex.TermCount(),
	)

	return &App{
		Config:        cfg,
		Logger:        logger,
		Metrics:       analysisMetrics,
		Parser:        parser,
		KnowledgeBase: kb,
		Analysis:      analysis,
		Queue:         queue,
		closeFn:       closeAll,
	}, nil
}

// Shutdown lets inline runs finish, then releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Analysis.Shutdown(ctx)
	a.Close()
	return err
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
		a.closeFn = nil
	}
}

func openRepositories(ctx context.Context, cfg config.Config) (ports.AnalysisRepository, ports.ReferenceRepository, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return memory.NewAnalysisRepository(), memory.NewReferenceRepository(), nil, nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return postgres.NewAnalysisRepository(db), postgres.NewReferenceRepository(db), db, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceMaxRetries >= 0 {
		rc.RetryMaxAttempts = cfg.ResilienceMaxRetries + 1
	}
	rc.CallTimeout = cfg.ResilienceCallTimeout
	return rc
}
