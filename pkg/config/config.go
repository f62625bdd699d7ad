package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds connection details for the OpenAI-compatible endpoint
// used for both embeddings and generation. The API key itself is only ever
// read from the environment, never from the file.
type OpenAIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ChatModel      string  `yaml:"chat_model"`
	Temperature    float32 `yaml:"temperature"`
}

// EngineConfig selects and configures the vector index backend.
type EngineConfig struct {
	// Type is "chromem" or "postgres".
	Type          string `yaml:"type"`
	DBPath        string `yaml:"db_path"`
	Collection    string `yaml:"collection"`
	DatabaseURL   string `yaml:"database_url"`
	EmbeddingDims int    `yaml:"embedding_dims"`
}

// RetrievalConfig carries the per-query defaults used by the REPL and the
// API when the caller does not override them.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// MinScore is a pointer so an explicit zero threshold in the file is
	// distinguishable from an absent field. Load guarantees it is non-nil.
	MinScore *float64 `yaml:"min_score"`
	// Metric documents the distance metric the index is assumed to use.
	// Only cosine is supported; the 1 - distance similarity conversion is
	// meaningless for unbounded metrics.
	Metric string `yaml:"metric"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	ListenAddress string          `yaml:"listen_address"`
	AssetDir      string          `yaml:"asset_dir"`
	StateFile     string          `yaml:"state_file"`
	MaxChunkSize  int             `yaml:"max_chunk_size"`
	OpenAI        OpenAIConfig    `yaml:"openai"`
	Engine        EngineConfig    `yaml:"engine"`
	Retrieval     RetrievalConfig `yaml:"retrieval"`
}

// Load reads a config file, falling back to defaults when it is absent.
// Environment variables override the file for deployment-sensitive fields.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// APIKey resolves the generation-service credential. An empty result is a
// fatal configuration error for the caller.
func (c *AppConfig) APIKey() string {
	return os.Getenv(c.OpenAI.APIKeyEnv)
}

func defaultConfig() *AppConfig {
	minScore := 0.2
	return &AppConfig{
		ListenAddress: ":8080",
		AssetDir:      "assets",
		StateFile:     "library.json",
		MaxChunkSize:  1000,
		OpenAI: OpenAIConfig{
			APIKeyEnv:      "OPENAI_API_KEY",
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
			Temperature:    0.1,
		},
		Engine: EngineConfig{
			Type:       "chromem",
			DBPath:     "vector-db",
			Collection: "documents",
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: &minScore,
			Metric:   "cosine",
		},
	}
}

func applyDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if cfg.AssetDir == "" {
		cfg.AssetDir = def.AssetDir
	}
	if cfg.StateFile == "" {
		cfg.StateFile = def.StateFile
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = def.MaxChunkSize
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = def.OpenAI.APIKeyEnv
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = def.OpenAI.EmbeddingModel
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = def.OpenAI.ChatModel
	}
	if cfg.Engine.Type == "" {
		cfg.Engine.Type = def.Engine.Type
	}
	if cfg.Engine.DBPath == "" {
		cfg.Engine.DBPath = def.Engine.DBPath
	}
	if cfg.Engine.Collection == "" {
		cfg.Engine.Collection = def.Engine.Collection
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.MinScore == nil {
		cfg.Retrieval.MinScore = def.Retrieval.MinScore
	}
	if cfg.Retrieval.Metric == "" {
		cfg.Retrieval.Metric = def.Retrieval.Metric
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("OPENAI_API_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.OpenAI.EmbeddingModel = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Engine.DatabaseURL = v
	}
	if v := os.Getenv("VECTOR_ENGINE"); v != "" {
		cfg.Engine.Type = v
	}
	if v := os.Getenv("LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
}
