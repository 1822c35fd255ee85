package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const keychainService = "sage"

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SAGE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SAGE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.rate_limit", typ: kFloat, env: "SAGE_SERVER_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Server.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Server.RateLimit },
	},
	{
		key: "server.rate_burst", typ: kInt, env: "SAGE_SERVER_RATE_BURST",
		apply:   func(cfg *Config, v any) { cfg.Server.RateBurst = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.RateBurst },
	},
	{
		key: "llm.provider", typ: kString, env: "SAGE_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.openrouter_api_key", typ: kString, env: "SAGE_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenRouterAPIKey },
	},
	{
		key: "llm.model", typ: kString, env: "SAGE_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.stall_timeout", typ: kDuration, env: "SAGE_LLM_STALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.StallTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.StallTimeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SAGE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "SAGE_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "SAGE_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SAGE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "corpus.manifest", typ: kString, env: "SAGE_CORPUS_MANIFEST",
		apply:   func(cfg *Config, v any) { cfg.Corpus.Manifest = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.Manifest },
	},
	{
		key: "corpus.cache_ttl", typ: kDuration, env: "SAGE_CORPUS_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Corpus.CacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Corpus.CacheTTL },
	},
	{
		key: "corpus.watch", typ: kBool, env: "SAGE_CORPUS_WATCH",
		apply:   func(cfg *Config, v any) { cfg.Corpus.Watch = v.(bool) },
		extract: func(cfg Config) any { return cfg.Corpus.Watch },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SAGE_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.min_similarity", typ: kFloat, env: "SAGE_RETRIEVAL_MIN_SIMILARITY",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinSimilarity = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinSimilarity },
	},
	{
		key: "retrieval.verbatim_semantic_weight", typ: kFloat, env: "SAGE_RETRIEVAL_VERBATIM_SEMANTIC_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.VerbatimSemanticWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.VerbatimSemanticWeight },
	},
	{
		key: "retrieval.verbatim_keyword_weight", typ: kFloat, env: "SAGE_RETRIEVAL_VERBATIM_KEYWORD_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.VerbatimKeywordWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.VerbatimKeywordWeight },
	},
	{
		key: "retrieval.keyword_norm", typ: kFloat, env: "SAGE_RETRIEVAL_KEYWORD_NORM",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.KeywordNorm = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.KeywordNorm },
	},
	{
		key: "reranking.mode", typ: kString, env: "SAGE_RERANKING_MODE",
		apply:   func(cfg *Config, v any) { cfg.Reranking.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranking.Mode },
	},
	{
		key: "reranking.url", typ: kString, env: "SAGE_RERANKING_URL",
		apply:   func(cfg *Config, v any) { cfg.Reranking.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranking.URL },
	},
	{
		key: "reranking.api_key", typ: kString, env: "SAGE_RERANKING_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Reranking.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranking.APIKey },
	},
	{
		key: "reranking.model", typ: kString, env: "SAGE_RERANKING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Reranking.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranking.Model },
	},
	{
		key: "reranking.timeout", typ: kDuration, env: "SAGE_RERANKING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Reranking.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Reranking.Timeout },
	},
	{
		key: "pipeline.default", typ: kString, env: "SAGE_PIPELINE_DEFAULT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Default = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Default },
	},
	{
		key: "pipeline.definitions", typ: kString, env: "SAGE_PIPELINE_DEFINITIONS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Definitions = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Definitions },
	},
	{
		key: "log.level", typ: kString, env: "SAGE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "SAGE_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "tracing.enabled", typ: kBool, env: "SAGE_TRACING_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Tracing.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Tracing.Enabled },
	},
	{
		key: "tracing.endpoint", typ: kString, env: "SAGE_TRACING_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Tracing.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Tracing.Endpoint },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw into the Go type of s.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
