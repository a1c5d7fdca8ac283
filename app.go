package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"sandbox/docsearch/pkg/config"
	"sandbox/docsearch/pkg/embeddings"
	"sandbox/docsearch/pkg/extract"
	"sandbox/docsearch/pkg/search"
)

// app is the wired service shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder embeddings.Embedder
	store    embeddings.Client
	svc      *search.Service
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	for _, w := range cfg.Validate() {
		logger.Warn("config", "warning", w)
	}
	return cfg, logger, nil
}

// newApp loads configuration, connects the embedder and store, and makes sure
// the collection exists.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	emb, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using embedder", "provider", cfg.Embedder.Provider, "model", emb.Model().Name())

	store, err := newStore(ctx, cfg, emb)
	if err != nil {
		return nil, err
	}

	metric, err := embeddings.DistanceMetricFromString(cfg.Store.Distance)
	if err != nil {
		store.Close()
		return nil, err
	}
	schema := &embeddings.SchemaConfig{
		IndexDim:       indexDim(cfg, emb),
		DistanceMetric: metric,
	}
	if err := store.CreateSchema(ctx, schema); err != nil {
		store.Close()
		return nil, fmt.Errorf("Failed to create collection %s: %w", cfg.Store.Collection, err)
	}
	logger.Info("using store",
		"backend", cfg.Store.Backend,
		"collection", cfg.Store.Collection,
		"dim", schema.IndexDim,
		"distance", metric,
	)

	svc := search.NewService(extract.New(), emb, store, search.Options{
		Workers: cfg.Ingest.Workers,
		Logger:  logger,
	})
	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: emb,
		store:    store,
		svc:      svc,
	}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embeddings.Embedder, error) {
	model := embeddings.Model(cfg.Embedder.Model)
	switch cfg.Embedder.Provider {
	case "ollama":
		e, err := embeddings.NewOllamaEmbedder(ctx, cfg.Embedder.Ollama.Addr, model, &http.Client{})
		if err != nil {
			return nil, err
		}
		logger.Info("connected to ollama", "version", e.Version())
		return e, nil
	case "openai":
		return embeddings.NewOpenAIEmbedder(cfg.Embedder.OpenAI.BaseURL, cfg.Embedder.OpenAI.APIKey, model), nil
	case "hash":
		return embeddings.NewHashEmbedder(cfg.Embedder.Hash.Dim), nil
	}
	return nil, fmt.Errorf("Unknown embedder provider: %s", cfg.Embedder.Provider)
}

func newStore(ctx context.Context, cfg *config.Config, emb embeddings.Embedder) (embeddings.Client, error) {
	sc := cfg.Store
	switch sc.Backend {
	case "chroma":
		return embeddings.NewChromaClient(sc.Chroma.Addr, sc.Collection, emb)
	case "redis":
		return embeddings.NewRedisClient(ctx, sc.Redis.Addr, sc.Collection)
	case "qdrant":
		return embeddings.NewQdrantClient(sc.Qdrant.Host, sc.Qdrant.Port, sc.Collection)
	case "sqlite":
		return embeddings.NewSQLiteClient(ctx, sc.SQLite.Path, sc.Collection)
	case "memory":
		return embeddings.NewMemoryClient(), nil
	}
	return nil, fmt.Errorf("Unknown store backend: %s", sc.Backend)
}

// indexDim prefers the configured dimension, then the model's known one.
func indexDim(cfg *config.Config, emb embeddings.Embedder) int {
	if cfg.Store.Dim > 0 {
		return cfg.Store.Dim
	}
	if h, ok := emb.(*embeddings.HashEmbedder); ok {
		return h.Dim()
	}
	if d := emb.Model().Dim(); d > 0 {
		return d
	}
	return embeddings.DefaultHashDim
}
