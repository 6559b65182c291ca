package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pdfrag/internal/vectorstore"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Timestamps bool   `yaml:"timestamps"`
}

// ExtractorConfig selects how documents are turned into pages.
type ExtractorConfig struct {
	Type      string `yaml:"type"`
	PDFToText string `yaml:"pdftotext"`
}

// ChunkerConfig configures how pages are split into chunks.
type ChunkerConfig struct {
	Type              string  `yaml:"type"`
	Splitter          string  `yaml:"splitter"`
	SentencesPerChunk int     `yaml:"sentences_per_chunk"`
	MinTokenCount     float64 `yaml:"min_token_count"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// RedisConfig contains connection details for Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// CacheConfig selects the embedding cache backend.
type CacheConfig struct {
	Type    string       `yaml:"type"`
	TTLSecs int          `yaml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	Cache   CacheConfig            `yaml:"cache"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SQLiteConfig locates the local vector database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type      string        `yaml:"type"`
	IndexName string        `yaml:"index_name"`
	Metric    string        `yaml:"metric"`
	Qdrant    *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite    *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// IndexerConfig configures upsert batching.
type IndexerConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// RetrieverConfig configures query fan-out.
type RetrieverConfig struct {
	TopK        int `yaml:"top_k"`
	Parallelism int `yaml:"parallelism"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	UploadDir     string `yaml:"upload_dir"`
	DocumentRoot  string `yaml:"document_root,omitempty"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	EnableMetrics bool   `yaml:"enable_metrics"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Fields absent from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
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
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

// DataDir returns ~/.local/share/pdfrag, the home of local databases.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pdfrag"
	}
	return filepath.Join(home, ".local", "share", "pdfrag")
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Log:       LogConfig{Level: "info"},
		Extractor: ExtractorConfig{Type: "auto", PDFToText: "pdftotext"},
		Chunker:   ChunkerConfig{Type: "sentence", Splitter: "punkt", SentencesPerChunk: 10, MinTokenCount: 30},
		Embedder: EmbedderConfig{
			Type:    "hashing",
			Hashing: &HashingEmbedderConfig{Dimension: 512},
			Cache:   CacheConfig{Type: "none", TTLSecs: 7 * 24 * 3600},
		},
		VectorStore: VectorStoreConfig{
			Type:      "sqlite",
			IndexName: "pdfrag",
			Metric:    "cosine",
			SQLite:    &SQLiteConfig{Path: filepath.Join(DataDir(), "vectors.db")},
		},
		Indexer:    IndexerConfig{BatchSize: 128},
		Retriever:  RetrieverConfig{TopK: 1, Parallelism: 4},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Server:     ServerConfig{Addr: ":8080", MaxUploadMB: 32, TimeoutSecs: 120, EnableMetrics: true},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 10
	}
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 128
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 1
	}
	if cfg.Retriever.Parallelism == 0 {
		cfg.Retriever.Parallelism = 4
	}
	if cfg.VectorStore.IndexName == "" {
		cfg.VectorStore.IndexName = "pdfrag"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 96
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	}
	if cfg.Embedder.Cache.Type == "redis" && cfg.Embedder.Cache.Redis == nil {
		cfg.Embedder.Cache.Redis = &RedisConfig{Addr: "localhost:6379"}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
	}
	if cfg.VectorStore.Type == "sqlite" && (cfg.VectorStore.SQLite == nil || cfg.VectorStore.SQLite.Path == "") {
		cfg.VectorStore.SQLite = &SQLiteConfig{Path: filepath.Join(DataDir(), "vectors.db")}
	}
}

// Validate reports the first setting that cannot be used.
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	switch c.Extractor.Type {
	case "", "auto", "pdf", "text":
	default:
		return fmt.Errorf("unknown extractor: %s", c.Extractor.Type)
	}
	switch c.Chunker.Splitter {
	case "", "punkt", "regexp":
	default:
		return fmt.Errorf("unknown sentence splitter: %s", c.Chunker.Splitter)
	}
	if c.Chunker.SentencesPerChunk < 1 {
		return fmt.Errorf("chunker.sentences_per_chunk must be positive, got %d", c.Chunker.SentencesPerChunk)
	}
	if c.Chunker.MinTokenCount < 0 {
		return fmt.Errorf("chunker.min_token_count must not be negative, got %g", c.Chunker.MinTokenCount)
	}
	switch c.Embedder.Type {
	case "", "hashing", "openai":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	if o := c.Embedder.OpenAI; c.Embedder.Type == "openai" && o != nil && o.BatchSize < 1 {
		return fmt.Errorf("embedder.openai.batch_size must be positive, got %d", o.BatchSize)
	}
	switch c.Embedder.Cache.Type {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown embedding cache: %s", c.Embedder.Cache.Type)
	}
	switch c.VectorStore.Type {
	case "", "memory", "sqlite", "qdrant":
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	if _, err := vectorstore.ParseMetric(c.VectorStore.Metric); err != nil {
		return err
	}
	if c.Indexer.BatchSize < 1 {
		return fmt.Errorf("indexer.batch_size must be positive, got %d", c.Indexer.BatchSize)
	}
	if c.Retriever.TopK < 1 {
		return fmt.Errorf("retriever.top_k must be at least 1, got %d", c.Retriever.TopK)
	}
	if c.Retriever.Parallelism < 1 {
		return fmt.Errorf("retriever.parallelism must be positive, got %d", c.Retriever.Parallelism)
	}
	return nil
}
