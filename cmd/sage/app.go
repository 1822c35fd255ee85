package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/composer"
	"github.com/kalambet/sage/internal/config"
	"github.com/kalambet/sage/internal/corpus"
	"github.com/kalambet/sage/internal/engine"
	"github.com/kalambet/sage/internal/ingest"
	"github.com/kalambet/sage/internal/intent"
	"github.com/kalambet/sage/internal/llm"
	"github.com/kalambet/sage/internal/orchestrator"
	"github.com/kalambet/sage/internal/pipeline"
	"github.com/kalambet/sage/internal/proxy"
	"github.com/kalambet/sage/internal/reranking"
	"github.com/kalambet/sage/internal/retrieval"
	"github.com/kalambet/sage/internal/storage"
)

// app holds the wired components shared by serve and index.
type app struct {
	cfg       config.Config
	store     *storage.Store
	corpus    *corpus.Cache
	engine    engine.Engine
	indexer   *ingest.Indexer
	responder *pipeline.Responder
}

func buildApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	manifest, err := corpus.LoadManifest(cfg.Corpus.Manifest)
	if err != nil {
		return nil, fmt.Errorf("loading corpus manifest: %w", err)
	}
	cache := corpus.NewCache(manifest, cfg.Corpus.CacheTTL, logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	eng, err := engine.Detect(engine.DetectConfig{
		OllamaBaseURL: cfg.Ollama.BaseURL,
		ChatModel:     cfg.Ollama.ChatModel,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}

	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	vectors := retrieval.NewSQLiteStore(store.DB())

	rerankModel := cfg.Reranking.Model
	if reranking.Mode(cfg.Reranking.Mode) == reranking.ModeLLM {
		rerankModel = cfg.Ollama.ChatModel
	}
	reranker := reranking.New(reranking.Options{
		Mode:    reranking.Mode(cfg.Reranking.Mode),
		URL:     cfg.Reranking.URL,
		APIKey:  cfg.Reranking.APIKey,
		Model:   rerankModel,
		Timeout: cfg.Reranking.Timeout,
		TopK:    cfg.Retrieval.TopK,
	}, eng, logger)

	rcfg := retrieval.DefaultConfig()
	rcfg.TopK = cfg.Retrieval.TopK
	rcfg.MinSimilarity = cfg.Retrieval.MinSimilarity
	rcfg.VerbatimSemanticWeight = cfg.Retrieval.VerbatimSemanticWeight
	rcfg.VerbatimKeywordWeight = cfg.Retrieval.VerbatimKeywordWeight
	rcfg.KeywordNorm = cfg.Retrieval.KeywordNorm
	retriever := retrieval.New(rcfg,
		retrieval.WithEmbedder(embedder),
		retrieval.WithStore(vectors),
		retrieval.WithReranker(reranker),
		retrieval.WithCorpus(cache),
		retrieval.WithLogger(logger),
	)

	registry, err := loadRegistry(cfg.Pipeline.Definitions)
	if err != nil {
		store.Close()
		return nil, err
	}

	comp := composer.New(0, 0)
	orch := orchestrator.New(newStreamer(cfg, eng), orchestrator.Config{
		Model:        cfg.ChatModel(),
		StallTimeout: cfg.LLM.StallTimeout,
	}, orchestrator.WithLogger(logger), orchestrator.WithComposer(comp))

	responder, err := pipeline.NewResponder(
		intent.NewClassifier(intent.DefaultConfig()),
		retriever,
		orch,
		registry,
		comp,
		pipeline.Config{DefaultVariant: cfg.Pipeline.Default},
		logger,
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		store:     store,
		corpus:    cache,
		engine:    eng,
		indexer:   ingest.NewIndexer(cache, store, embedder, vectors, ingest.Options{}, logger),
		responder: responder,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newStreamer picks the backend answering pipeline stages.
func newStreamer(cfg config.Config, eng engine.Engine) llm.Streamer {
	if cfg.LLM.Provider == config.ProviderOllama {
		return eng
	}
	return proxy.NewClient(cfg.LLM.OpenRouterAPIKey, cfg.LLM.Model)
}

// loadRegistry registers the built-in variants, then any from path, which
// may override built-ins by name.
func loadRegistry(path string) (*orchestrator.Registry, error) {
	variants := orchestrator.BuiltinVariants()
	if path != "" {
		extra, err := orchestrator.LoadVariantsFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading pipeline definitions: %w", err)
		}
		variants = append(variants, extra...)
	}
	reg, err := orchestrator.NewRegistry(variants...)
	if err != nil {
		return nil, fmt.Errorf("registering pipelines: %w", err)
	}
	return reg, nil
}
