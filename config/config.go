package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dream-ai/paperqa/internal/domain"
)

// Provider names accepted in the embeddings and generation sections.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config holds application configuration
type Config struct {
	APIKey     string `yaml:"api_key"`
	Embeddings struct {
		Provider          string  `yaml:"provider"`
		Model             string  `yaml:"model"`
		BatchSize         int     `yaml:"batch_size"`
		Concurrency       int     `yaml:"concurrency"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"embeddings"`
	Generation struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"generation"`
	Ollama struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"ollama"`
	OpenAI struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`
	Processing struct {
		ChunkSize          int `yaml:"chunk_size"`
		ChunkOverlap       int `yaml:"chunk_overlap"`
		TopK               int `yaml:"top_k"`
		CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	} `yaml:"processing"`
	Query struct {
		Template    string `yaml:"template"`
		Instruction string `yaml:"instruction"`
	} `yaml:"query"`
	Logging struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Dir returns the configuration directory, ~/.paperqa
func Dir() string {
	return filepath.Join(os.Getenv("HOME"), ".paperqa")
}

// Path returns the default configuration file path
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load loads configuration from the default path or returns defaults
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile loads configuration from path. A missing file yields defaults.
// Environment overrides are applied either way.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDotEnv reads KEY=value pairs from the given .env files (default ".")
// into the process environment. Missing files are ignored and existing
// variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("PAPERQA_API_KEY"); v != "" {
		c.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Ollama.BaseURL = v
	}
}

// Validate checks values that would otherwise fail deep in the pipeline.
func (c *Config) Validate() error {
	p := c.Processing
	if p.ChunkSize <= 0 {
		return fmt.Errorf("processing.chunk_size must be positive, got %d: %w", p.ChunkSize, domain.ErrConfiguration)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("processing.chunk_overlap must be in [0, %d), got %d: %w",
			p.ChunkSize, p.ChunkOverlap, domain.ErrConfiguration)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("processing.top_k must be positive, got %d: %w", p.TopK, domain.ErrConfiguration)
	}
	if p.CallTimeoutSeconds < 0 {
		return fmt.Errorf("processing.call_timeout_seconds must not be negative: %w", domain.ErrConfiguration)
	}
	for section, provider := range map[string]string{
		"embeddings": c.Embeddings.Provider,
		"generation": c.Generation.Provider,
	} {
		if provider != ProviderOllama && provider != ProviderOpenAI {
			return fmt.Errorf("%s.provider must be %q or %q, got %q: %w",
				section, ProviderOllama, ProviderOpenAI, provider, domain.ErrConfiguration)
		}
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model is required: %w", domain.ErrConfiguration)
	}
	return nil
}

// CallTimeout returns the per-call provider timeout, zero for none.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Processing.CallTimeoutSeconds) * time.Second
}

// Save saves configuration to the default path
func (c *Config) Save() error {
	return c.SaveFile(Path())
}

// SaveFile writes the configuration to path, creating its directory. The file
// may hold an API key, so it is readable by the owner only.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Embeddings.Provider = ProviderOllama
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.BatchSize = 32
	cfg.Embeddings.Concurrency = 4
	cfg.Generation.Provider = ProviderOllama
	cfg.Generation.Model = "llama3.2"
	cfg.Generation.Temperature = 0
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 100
	cfg.Processing.TopK = 4
	cfg.Processing.CallTimeoutSeconds = 120
	cfg.Query.Template = "Give me the title, summary, publication date, and authors of the research paper."
	cfg.Logging.Env = "prod"
	cfg.Logging.Level = "info"
	cfg.Logging.File = filepath.Join(Dir(), "paperqa.log")

	return cfg
}
