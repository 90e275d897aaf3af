package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"webrag/features/page"
	"webrag/features/query"
	"webrag/internal/adapter/llm"
	"webrag/internal/config"
	"webrag/internal/index"
	"webrag/internal/indexer"
	"webrag/internal/middleware"
	"webrag/internal/pipeline"
	"webrag/internal/retrieval"
	"webrag/internal/settings"
	"webrag/internal/worker"
)

// Embedder is what the app needs from the embedding adapter.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the index capability plus the URL-scoped delete the
// indexer uses for overwrite semantics.
type VectorIndex interface {
	index.Index
	DeleteByURL(ctx context.Context, url string) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler       http.Handler
	IndexConsumer *worker.IndexConsumer

	port int
}

func New(cfg *config.Config, db *sql.DB, vecIndex VectorIndex, embedder Embedder, taskPub TaskPublisher) (*App, error) {
	// Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	settingsHandler := settings.NewHandler(settingsService)

	// Seed provider keys from the environment into the settings row when
	// the row is still blank.
	seedSettings(cfg, settingsService)

	// Retrieval core
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	var opts []retrieval.Option
	if cfg.StrictOrder {
		opts = append(opts, retrieval.WithStrictOrdering())
	}
	retriever := retrieval.NewRetriever(embedder, vecIndex, settingsService, queryLogger, opts...)

	// Generation
	generator := llm.NewClient(settingsService, llm.Fallback{
		Provider:    cfg.LLMProvider,
		DeepSeekKey: cfg.DeepSeekAPIKey,
		OpenAIKey:   cfg.OpenAIAPIKey,
	})
	ragPipeline := pipeline.NewPipeline(retriever, generator)

	// Indexing
	pageIndexer := indexer.New(embedder, vecIndex, vecIndex, cfg.ChunkSize, cfg.ChunkOverlap)
	indexConsumer := worker.NewIndexConsumer(pageIndexer)

	// Handlers
	queryHandler := query.NewHandler(retriever, ragPipeline)
	pageHandler := page.NewHandler(taskPub)

	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(queryHandler.Search)))
	mux.Handle("POST /search/keywords", middleware.CorrelationID(enableCORS(queryHandler.SearchKeywords)))
	mux.Handle("POST /ask", middleware.CorrelationID(enableCORS(queryHandler.Ask)))
	mux.Handle("GET /similar/{id}", middleware.CorrelationID(enableCORS(queryHandler.Similar)))
	mux.Handle("GET /info", middleware.CorrelationID(enableCORS(queryHandler.Info)))

	mux.Handle("POST /pages", middleware.CorrelationID(enableCORS(pageHandler.Submit)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:       mux,
		IndexConsumer: indexConsumer,
		port:          cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func seedSettings(cfg *config.Config, svc *settings.Service) {
	ctx := context.Background()
	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}

	changed := false
	if set.LLMProvider == "" && cfg.LLMProvider != "" {
		set.LLMProvider = cfg.LLMProvider
		changed = true
	}
	if set.DeepSeekAPIKey == "" && cfg.DeepSeekAPIKey != "" {
		set.DeepSeekAPIKey = cfg.DeepSeekAPIKey
		changed = true
	}
	if set.OpenAIAPIKey == "" && cfg.OpenAIAPIKey != "" {
		set.OpenAIAPIKey = cfg.OpenAIAPIKey
		changed = true
	}
	if set.SearchTopK == 0 {
		set.SearchTopK = cfg.TopKResults
		changed = true
	}

	if changed {
		if err := svc.Update(ctx, set); err != nil {
			slog.Warn("failed to seed settings", "error", err)
		} else {
			slog.Info("seeded settings from environment")
		}
	}
}
