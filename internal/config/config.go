package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the querent API configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	ConfigStore   ConfigStoreConfig   `yaml:"configstore"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Summarize     SummarizeConfig     `yaml:"summarize"`
	LiveData      LiveDataConfig      `yaml:"livedata"`
	Search        SearchConfig        `yaml:"search"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ElasticsearchConfig holds search index connection settings.
type ElasticsearchConfig struct {
	Addrs      []string `yaml:"addrs"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Index      string   `yaml:"index"`
	ImageIndex string   `yaml:"image_index"`
	FTIndex    string   `yaml:"ft_index"`
}

// ConfigStoreConfig holds the configuration collaborator's store settings
// (scopes and live-data credentials, read-only).
type ConfigStoreConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding settings. Vectorizer names: standard,
// fine_tuned, image; the latter two are optional deployments.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	Protocol   string `yaml:"protocol"` // ollama (default), openai
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// VectorizerConfig binds a model name to a provider.
type VectorizerConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// SummarizeConfig holds the deep-search summarizer settings.
type SummarizeConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	PromptTemplate string `yaml:"prompt_template"`
	TimeoutSec     int    `yaml:"timeout_sec"`
}

// LiveDataConfig holds live-data enrichment settings.
type LiveDataConfig struct {
	FetchTimeoutSec int `yaml:"fetch_timeout_sec"`
}

// SearchConfig holds retrieval tuning settings.
type SearchConfig struct {
	DeepWorkers int `yaml:"deep_workers"` // level-2 fan-out bound
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Deep search streams for the duration of the summarization loop.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Elasticsearch.Index == "" {
		c.Elasticsearch.Index = "elements"
	}
	if c.Elasticsearch.ImageIndex == "" {
		c.Elasticsearch.ImageIndex = "images"
	}
	if c.Elasticsearch.FTIndex == "" {
		c.Elasticsearch.FTIndex = "ftelements"
	}
	if c.ConfigStore.KeyPrefix == "" {
		c.ConfigStore.KeyPrefix = "querent:"
	}
	if c.ConfigStore.ReadinessTimeout <= 0 {
		c.ConfigStore.ReadinessTimeout = 10
	}
	if c.Summarize.TimeoutSec <= 0 {
		c.Summarize.TimeoutSec = 120
	}
	if c.LiveData.FetchTimeoutSec <= 0 {
		c.LiveData.FetchTimeoutSec = 10
	}
	if c.Search.DeepWorkers <= 0 {
		c.Search.DeepWorkers = 4
	}
	for name, p := range c.Embedding.Providers {
		if p.Protocol == "" {
			p.Protocol = "ollama"
		}
		if p.TimeoutSec <= 0 {
			p.TimeoutSec = 30
		}
		c.Embedding.Providers[name] = p
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Elasticsearch.Addrs) == 0 {
		return fmt.Errorf("elasticsearch.addrs is required")
	}
	for name, p := range c.Embedding.Providers {
		switch p.Protocol {
		case "ollama", "openai":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.protocol must be \"ollama\" or \"openai\", got %q",
				name, p.Protocol,
			)
		}
	}
	if _, ok := c.Embedding.Vectorizers["standard"]; !ok {
		return fmt.Errorf("embedding.vectorizers.standard is required")
	}
	for name, v := range c.Embedding.Vectorizers {
		if _, ok := c.Embedding.Providers[v.Provider]; !ok {
			return fmt.Errorf("embedding.vectorizers.%s.provider %q is not defined", name, v.Provider)
		}
		if v.Model == "" {
			return fmt.Errorf("embedding.vectorizers.%s.model is required", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
