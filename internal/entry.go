// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/aeshef/knowledge-bot/internal/api"
	"github.com/aeshef/knowledge-bot/internal/batch"
	"github.com/aeshef/knowledge-bot/internal/extract"
	"github.com/aeshef/knowledge-bot/internal/index"
	"github.com/aeshef/knowledge-bot/internal/ingest"
	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/mcpserver"
	"github.com/aeshef/knowledge-bot/internal/notetmpl"
	"github.com/aeshef/knowledge-bot/internal/pipeline"
	"github.com/aeshef/knowledge-bot/internal/session"
	"github.com/aeshef/knowledge-bot/internal/sse"
	"github.com/aeshef/knowledge-bot/internal/storage"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// services bundles the wired application stack.
type services struct {
	store     storage.Provider
	db        *index.DB
	vocab     *vocab.Store
	pipe      *pipeline.Pipeline
	extractor *extract.Service
	svc       *ingest.Service
	logger    *slog.Logger
}

// buildServices wires storage, index, pipeline and the ingest service from
// configuration. notifier may be nil. The caller owns db.Close.
func buildServices(cfg *Config, logger *slog.Logger, notifier ingest.Notifier) (*services, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	vocabStore := vocab.NewStore(cfg.Agent.Dir)
	if _, err := vocabStore.Get(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load agent config: %w", err)
	}

	gw := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		DefaultType: defaultType(vocabStore),
		Timeout:     cfg.LLM.Timeout(),
	}, llm.WithLogger(logger))

	renderer := notetmpl.New(filepath.Join(cfg.Agent.Dir, "templates"), vocabStore)
	pipe := pipeline.New(vocabStore, gw, renderer, logger)
	vault := storage.NewVault(store,
		storage.WithNotesDir(cfg.Vault.NotesDir))
	extractor := extract.NewService(nil, logger)

	var sessionOpts []session.StoreOption
	if ttl := cfg.Ingest.PendingTTL(); ttl > 0 {
		sessionOpts = append(sessionOpts, session.WithTTL(ttl))
	}

	ingestOpts := []ingest.Option{ingest.WithExtractor(extractor)}
	if notifier != nil {
		ingestOpts = append(ingestOpts, ingest.WithNotifier(notifier))
	}
	svc := ingest.New(vocabStore, pipe, renderer, vault, db,
		session.NewStore(sessionOpts...), logger, ingestOpts...)

	return &services{
		store:     store,
		db:        db,
		vocab:     vocabStore,
		pipe:      pipe,
		extractor: extractor,
		svc:       svc,
		logger:    logger,
	}, nil
}

func defaultType(store *vocab.Store) string {
	cfg, err := store.Get()
	if err != nil {
		return ""
	}
	return cfg.Types.DefaultType()
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// MCP talks JSON-RPC over stdout; keep logs off it.
	logOut := os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("agent_dir", cfg.Agent.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if app.mcp {
		return runMCP(cfg, logger)
	}
	return runHTTP(ctx, cfg, logger)
}

func runMCP(cfg *Config, logger *slog.Logger) error {
	s, err := buildServices(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.db.Close()

	if err := index.Sync(s.db, s.store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(s.svc, s.db, s.vocab).ServeStdio()
}

func runHTTP(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	broker := sse.NewBroker()
	defer broker.Close()

	s, err := buildServices(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer s.db.Close()

	if err := index.Sync(s.db, s.store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(s.svc, s.db, s.vocab,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the vault for out-of-band edits.
	g.Go(func() error {
		if err := index.Watch(gCtx, s.db, s.store, cfg.Vault.Path, logger, func(kind, path string) {
			broker.PublishNoteEvent(kind, path)
		}); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunBatch ingests every line of inputPath and commits the resulting notes
// directly, printing one line per note. A non-empty outputDir redirects the
// vault root (and its index) there instead of the configured vault, for dry
// runs against a scratch directory.
func RunBatch(ctx context.Context, cfg *Config, inputPath, outputDir string) error {
	if outputDir != "" {
		redirected := *cfg
		redirected.Vault.Path = outputDir
		redirected.SQLite.Path = filepath.Join(outputDir, ".batch-index.db")
		cfg = &redirected
	}

	logger := newCLILogger(cfg)
	s, err := buildServices(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.db.Close()

	runner := batch.NewRunner(s.pipe, s.svc, s.extractor, logger)
	entries, err := runner.Run(ctx, inputPath)
	if err != nil {
		return err
	}

	failed := 0
	fmt.Println("Created:")
	for _, e := range entries {
		if e.Err != nil {
			failed++
			fmt.Printf("- %s: FAILED (%v)\n", e.Input, e.Err)
			continue
		}
		fmt.Printf("- %s\n", e.Path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed", failed, len(entries))
	}
	return nil
}

// RunFillExamples fills the expected_* columns of an examples CSV.
func RunFillExamples(ctx context.Context, cfg *Config, inPath, outPath string, force bool) error {
	logger := newCLILogger(cfg)
	s, err := buildServices(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.db.Close()

	runner := batch.NewRunner(s.pipe, s.svc, s.extractor, logger)
	n, err := runner.FillExamples(ctx, inPath, outPath, force)
	if err != nil {
		return err
	}
	fmt.Printf("written: %s | rows processed: %d\n", outPath, n)
	return nil
}

// newCLILogger logs human-oriented text to stderr so command output stays
// parseable.
func newCLILogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
