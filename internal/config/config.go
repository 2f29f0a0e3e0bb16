package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"kbchat/internal/domain"
)

// OpenAIConfig holds configuration for the OpenAI-compatible provider
// used for both embeddings and generation.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	EmbedModel  string `yaml:"embed_model"`
	ChatModel   string `yaml:"chat_model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// ProviderConfig selects and configures the embedding provider.
type ProviderConfig struct {
	Type   string        `yaml:"type"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// ChunkingConfig configures how documents are split into chunks.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig configures similarity search and answer assembly.
type RetrievalConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
	EmbedBatchSize      int     `yaml:"embed_batch_size"`
}

// ClassifierConfig configures the intent classifier fallback policy.
type ClassifierConfig struct {
	// FallbackCategory is used when the generation provider is unavailable
	// and no heuristic matches the message.
	FallbackCategory domain.Category `yaml:"fallback_category"`
}

// DiscoveryConfig configures auto-intent discovery.
type DiscoveryConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinGroupSize        int     `yaml:"min_group_size"`
	MaxExamples         int     `yaml:"max_examples"`
}

// Config is the root application configuration structure.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Provider   ProviderConfig   `yaml:"provider"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg, presentKeys(data))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setKeys marks keys whose zero value is a legal setting. An explicit
// zero in the file must survive defaulting; only an absent key gets the
// default.
type setKeys struct {
	chunkOverlap        bool
	similarityThreshold bool
}

func presentKeys(data []byte) setKeys {
	var shadow struct {
		Chunking struct {
			ChunkOverlap *int `yaml:"chunk_overlap"`
		} `yaml:"chunking"`
		Retrieval struct {
			SimilarityThreshold *float64 `yaml:"similarity_threshold"`
		} `yaml:"retrieval"`
	}
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return setKeys{}
	}
	return setKeys{
		chunkOverlap:        shadow.Chunking.ChunkOverlap != nil,
		similarityThreshold: shadow.Retrieval.SimilarityThreshold != nil,
	}
}

// LoadDefault tries ./kbchat.yaml first, then ~/.config/kbchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/kbchat/config.yaml and returns them.
func LoadDefault() (*Config, string, error) {
	cwdPath := "kbchat.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects parameter combinations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be > 0, got %d", domain.ErrInvalidConfiguration, c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", domain.ErrInvalidConfiguration, c.Chunking.ChunkOverlap)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be in [0,1], got %g", domain.ErrInvalidConfiguration, c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be > 0, got %d", domain.ErrInvalidConfiguration, c.Retrieval.TopK)
	}
	if !c.Classifier.FallbackCategory.Valid() {
		return fmt.Errorf("%w: unknown fallback_category %q", domain.ErrInvalidConfiguration, c.Classifier.FallbackCategory)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kbchat", "config.yaml"), nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg, setKeys{})
	return cfg
}

func applyDefaults(cfg *Config, set setKeys) {
	if cfg.DataDir == "" {
		cfg.DataDir = "kb"
	}
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = "openai"
	}
	if cfg.Provider.Type == "openai" {
		if cfg.Provider.OpenAI == nil {
			cfg.Provider.OpenAI = &OpenAIConfig{}
		}
		o := cfg.Provider.OpenAI
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.EmbedModel == "" {
			o.EmbedModel = "text-embedding-3-small"
		}
		if o.ChatModel == "" {
			o.ChatModel = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 900
	}
	if cfg.Chunking.ChunkOverlap == 0 && !set.chunkOverlap {
		cfg.Chunking.ChunkOverlap = 150
	}
	if cfg.Retrieval.SimilarityThreshold == 0 && !set.similarityThreshold {
		cfg.Retrieval.SimilarityThreshold = 0.40
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.EmbedBatchSize == 0 {
		cfg.Retrieval.EmbedBatchSize = 64
	}
	if cfg.Classifier.FallbackCategory == "" {
		cfg.Classifier.FallbackCategory = domain.CategoryFactualQuestion
	}
	if cfg.Discovery.SimilarityThreshold == 0 {
		cfg.Discovery.SimilarityThreshold = 0.60
	}
	if cfg.Discovery.MinGroupSize == 0 {
		cfg.Discovery.MinGroupSize = 2
	}
	if cfg.Discovery.MaxExamples == 0 {
		cfg.Discovery.MaxExamples = 4
	}
}
