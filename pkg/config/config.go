// Package config loads docsearch settings from a YAML file and DOCSEARCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix         = "DOCSEARCH"
	DefaultConfigName = "docsearch.yaml"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Embedder EmbedderConfig `mapstructure:"embedder" yaml:"embedder"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Ingest   IngestConfig   `mapstructure:"ingest" yaml:"ingest"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

type ServerConfig struct {
	Addr                string `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeoutSecs int    `mapstructure:"shutdown_timeout_secs" yaml:"shutdown_timeout_secs"`
}

type EmbedderConfig struct {
	// Provider is one of "ollama", "openai" or "hash".
	Provider string       `mapstructure:"provider" yaml:"provider"`
	Model    string       `mapstructure:"model" yaml:"model"`
	Ollama   OllamaConfig `mapstructure:"ollama" yaml:"ollama"`
	OpenAI   OpenAIConfig `mapstructure:"openai" yaml:"openai"`
	Hash     HashConfig   `mapstructure:"hash" yaml:"hash"`
}

type OllamaConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
}

type HashConfig struct {
	Dim int `mapstructure:"dim" yaml:"dim"`
}

type StoreConfig struct {
	// Backend is one of "chroma", "redis", "qdrant", "sqlite" or "memory".
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	Distance   string `mapstructure:"distance" yaml:"distance"`
	// Dim overrides the index dimension; 0 uses the model's known dimension.
	Dim    int          `mapstructure:"dim" yaml:"dim"`
	Chroma ChromaConfig `mapstructure:"chroma" yaml:"chroma"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis"`
	Qdrant QdrantConfig `mapstructure:"qdrant" yaml:"qdrant"`
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

type ChromaConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type QdrantConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type IngestConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

var (
	providers = []string{"ollama", "openai", "hash"}
	backends  = []string{"chroma", "redis", "qdrant", "sqlite", "memory"}
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8000",
			ShutdownTimeoutSecs: 10,
		},
		Embedder: EmbedderConfig{
			Provider: "ollama",
			Model:    "all-minilm",
			Ollama:   OllamaConfig{Addr: "http://127.0.0.1:11434"},
			Hash:     HashConfig{Dim: 384},
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			Collection: "documents",
			Distance:   "L2",
			Chroma:     ChromaConfig{Addr: "http://localhost:8001"},
			Redis:      RedisConfig{Addr: "localhost:6379"},
			Qdrant:     QdrantConfig{Host: "localhost", Port: 6334},
			SQLite:     SQLiteConfig{Path: filepath.Join("chromadb_data", "documents.db")},
		},
		Ingest:  IngestConfig{Workers: 4},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{SampleRate: 1.0},
	}
}

// Load reads configuration from path and the environment. An empty path
// looks for docsearch.yaml in the working directory. A missing file is not
// an error: defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(DefaultConfigName)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embedder.Provider == "openai" && c.Embedder.OpenAI.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
		warnings = append(warnings, "embedder provider 'openai' is configured but api_key is empty")
	}
	if c.Store.Backend == "memory" {
		warnings = append(warnings, "store backend 'memory' does not persist documents across restarts")
	}
	if c.Ingest.Workers <= 0 {
		warnings = append(warnings, fmt.Sprintf("ingest workers %d is not positive; using default", c.Ingest.Workers))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	if c.Store.Dim < 0 {
		warnings = append(warnings, fmt.Sprintf("store dim %d is negative; using the model dimension", c.Store.Dim))
	}

	return warnings
}

// check rejects settings no component can run with.
func (c *Config) check() error {
	if !contains(providers, c.Embedder.Provider) {
		return fmt.Errorf("unknown embedder provider %q (want one of %s)", c.Embedder.Provider, strings.Join(providers, ", "))
	}
	if !contains(backends, c.Store.Backend) {
		return fmt.Errorf("unknown store backend %q (want one of %s)", c.Store.Backend, strings.Join(backends, ", "))
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("store collection must not be empty")
	}
	switch strings.ToUpper(c.Store.Distance) {
	case "", "L2", "COSINE", "IP":
	default:
		return fmt.Errorf("unknown store distance %q", c.Store.Distance)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout_secs", d.Server.ShutdownTimeoutSecs)
	v.SetDefault("embedder.provider", d.Embedder.Provider)
	v.SetDefault("embedder.model", d.Embedder.Model)
	v.SetDefault("embedder.ollama.addr", d.Embedder.Ollama.Addr)
	v.SetDefault("embedder.openai.base_url", d.Embedder.OpenAI.BaseURL)
	v.SetDefault("embedder.openai.api_key", d.Embedder.OpenAI.APIKey)
	v.SetDefault("embedder.hash.dim", d.Embedder.Hash.Dim)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.collection", d.Store.Collection)
	v.SetDefault("store.distance", d.Store.Distance)
	v.SetDefault("store.dim", d.Store.Dim)
	v.SetDefault("store.chroma.addr", d.Store.Chroma.Addr)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)
	v.SetDefault("store.qdrant.host", d.Store.Qdrant.Host)
	v.SetDefault("store.qdrant.port", d.Store.Qdrant.Port)
	v.SetDefault("store.sqlite.path", d.Store.SQLite.Path)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
