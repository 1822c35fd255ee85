package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Corpus    CorpusConfig
	Retrieval RetrievalConfig
	Reranking RerankingConfig
	Pipeline  PipelineConfig
	Log       LogConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Port int
	// APIToken enables bearer auth on /v1 when set.
	APIToken string
	// RateLimit is the sustained ask rate per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

type LLMConfig struct {
	Provider         string
	OpenRouterAPIKey string
	Model            string
	// StallTimeout bounds the silence between two deltas of one stage.
	StallTimeout time.Duration
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type CorpusConfig struct {
	// Manifest defaults to <data_dir>/corpus.yaml.
	Manifest string
	CacheTTL time.Duration
	Watch    bool
}

type RetrievalConfig struct {
	TopK          int
	MinSimilarity float64
	// Verbatim requests fuse semantic and keyword scores with these.
	VerbatimSemanticWeight float64
	VerbatimKeywordWeight  float64
	KeywordNorm            float64
}

type RerankingConfig struct {
	Mode    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type PipelineConfig struct {
	Default string
	// Definitions is an optional YAML file of extra or overriding variants.
	Definitions string
}

type LogConfig struct {
	Level string
	File  string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      4100,
			RateLimit: 2,
			RateBurst: 4,
		},
		LLM: LLMConfig{
			Provider:     ProviderOpenRouter,
			Model:        "anthropic/claude-sonnet-4",
			StallTimeout: 60 * time.Second,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "qwen3",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Corpus: CorpusConfig{
			CacheTTL: 30 * time.Minute,
			Watch:    true,
		},
		Retrieval: RetrievalConfig{
			TopK:                   5,
			MinSimilarity:          0.3,
			VerbatimSemanticWeight: 0.4,
			VerbatimKeywordWeight:  0.6,
			KeywordNorm:            10,
		},
		Reranking: RerankingConfig{
			Mode:    "none",
			Model:   "jina-reranker-v2-base-multilingual",
			Timeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			Default: "deep",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Endpoint: "localhost:4318",
		},
	}
}

// Load reads configuration from the platform-native backend, an optional
// .env file in the working directory, environment variables, and the
// platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sage.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/sage/config.json
// and secrets fall back to $XDG_DATA_HOME/sage/secrets.json.
//
// Environment variables (SAGE_*) override backend values on all platforms.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), keychainReader{})
}

// loadDotEnv copies variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(st Settings, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applySettings(&cfg, st); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets not given in the environment come from the platform keychain.
	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if cfg.Corpus.Manifest == "" {
		cfg.Corpus.Manifest = filepath.Join(cfg.Storage.DataDir, "corpus.yaml")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter:
		if c.LLM.OpenRouterAPIKey == "" {
			return fmt.Errorf("missing required config: OpenRouter API key. "+
				"Set it via environment variable SAGE_OPENROUTER_API_KEY%s, "+
				"or use llm.provider=%s", apiKeyHint(), ProviderOllama)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("invalid llm.provider %q: want %s or %s", c.LLM.Provider, ProviderOpenRouter, ProviderOllama)
	}

	switch c.Reranking.Mode {
	case "none", "llm":
	case "cross-encoder":
		if c.Reranking.URL == "" {
			return fmt.Errorf("reranking.mode=cross-encoder requires reranking.url")
		}
	default:
		return fmt.Errorf("invalid reranking.mode %q: want none, cross-encoder or llm", c.Reranking.Mode)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be within [0,1]")
	}
	if c.Retrieval.VerbatimSemanticWeight < 0 || c.Retrieval.VerbatimKeywordWeight < 0 {
		return fmt.Errorf("retrieval weights must not be negative")
	}
	if c.Retrieval.VerbatimSemanticWeight+c.Retrieval.VerbatimKeywordWeight == 0 {
		return fmt.Errorf("retrieval weights must not both be zero")
	}
	if c.Retrieval.KeywordNorm <= 0 {
		return fmt.Errorf("retrieval.keyword_norm must be positive")
	}
	if c.LLM.StallTimeout <= 0 {
		return fmt.Errorf("llm.stall_timeout must be positive")
	}
	return nil
}

// ChatModel returns the model answering pipeline stages for the provider.
func (c Config) ChatModel() string {
	if c.LLM.Provider == ProviderOllama {
		return c.Ollama.ChatModel
	}
	return c.LLM.Model
}

// DBPath returns the SQLite database location.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "sage.db")
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
