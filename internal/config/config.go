package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAppName      = "QuizzAI"
	DefaultAddress      = "127.0.0.1:8080"
	DefaultProvider     = "gemini"
	DefaultModel        = "gemini-2.5-pro"
	DefaultTemperature  = 0.7
	DefaultMaxPDFSize   = 10 << 20 // 10 MB
	DefaultPromptLimit  = 100
	DefaultMaxQuestions = 50
	DefaultRunTimeout   = 120 // seconds
	DefaultQueueSize    = 16
	DefaultWorkerIdle   = 5 // minutes
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Agent       AgentConfig               `json:"agent"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
}

type BasicConfig struct {
	AppName           string   `json:"app_name"`
	Environment       string   `json:"environment"`
	ServerAddress     string   `json:"server_address"`
	MaxPDFSize        int64    `json:"max_pdf_size"`
	PromptLimit       int      `json:"prompt_limit"`
	MaxQuestions      int      `json:"max_questions"`
	RunTimeout        int      `json:"run_timeout"`         // seconds
	QueueSize         int      `json:"queue_size"`          // pending runs per session
	WorkerIdleTimeout int      `json:"worker_idle_timeout"` // minutes
	SessionIdleTTL    int      `json:"session_idle_ttl"`    // minutes, 0 disables the reaper
	CleanInterval     int      `json:"clean_interval"`      // minutes
	TempDir           string   `json:"temp_dir"`
	Storage           string   `json:"storage"`
	EnableWebSearch   bool     `json:"enable_web_search"`
	CORSOrigins       []string `json:"cors_origins"`
}

// AgentConfig picks the provider and model every session agent runs on.
type AgentConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; environment overrides apply either way.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.BasicConfig.TempDir != "" && !filepath.IsAbs(cfg.BasicConfig.TempDir) {
		cfg.BasicConfig.TempDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.TempDir)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	setString(&c.BasicConfig.Environment, "ENVIRONMENT")
	setString(&c.BasicConfig.AppName, "APP_NAME")
	setString(&c.BasicConfig.ServerAddress, "QUIZZAI_ADDR")
	setString(&c.BasicConfig.Storage, "QUIZZAI_STORAGE")
	setString(&c.Agent.Provider, "QUIZZAI_PROVIDER")
	setString(&c.Agent.Model, "QUIZZAI_MODEL")
	if raw := strings.TrimSpace(os.Getenv("MAX_PDF_SIZE")); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			c.BasicConfig.MaxPDFSize = n
		} else {
			log.Printf("[config] ignoring invalid MAX_PDF_SIZE %q", raw)
		}
	}
	for provider, env := range map[string]string{
		"gemini": "GEMINI_API_KEY",
		"openai": "OPENAI_API_KEY",
		"claude": "ANTHROPIC_API_KEY",
	} {
		key := strings.TrimSpace(os.Getenv(env))
		if key == "" {
			continue
		}
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers[provider]
		p.APIKey = key
		c.Providers[provider] = p
	}
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.AppName == "" {
		b.AppName = DefaultAppName
	}
	if b.Environment == "" {
		b.Environment = "dev"
	}
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultAddress
	}
	if b.MaxPDFSize <= 0 {
		b.MaxPDFSize = DefaultMaxPDFSize
	}
	if b.PromptLimit <= 0 {
		b.PromptLimit = DefaultPromptLimit
	}
	if b.MaxQuestions <= 0 {
		b.MaxQuestions = DefaultMaxQuestions
	}
	if b.RunTimeout <= 0 {
		b.RunTimeout = DefaultRunTimeout
	}
	if b.QueueSize <= 0 {
		b.QueueSize = DefaultQueueSize
	}
	if b.WorkerIdleTimeout <= 0 {
		b.WorkerIdleTimeout = DefaultWorkerIdle
	}
	if b.Storage == "" {
		b.Storage = "memory"
	}
	if c.Agent.Provider == "" {
		c.Agent.Provider = DefaultProvider
	}
	if c.Agent.Model == "" {
		if p, ok := c.Providers[c.Agent.Provider]; ok && p.Model != "" {
			c.Agent.Model = p.Model
		} else if c.Agent.Provider == DefaultProvider {
			c.Agent.Model = DefaultModel
		}
	}
	if c.Agent.Temperature <= 0 {
		c.Agent.Temperature = DefaultTemperature
	}
}

// IsDev reports whether the service runs in the development environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.BasicConfig.Environment, "dev")
}

// AllowedOrigins returns the CORS origin list; dev allows every origin.
func (c *Config) AllowedOrigins() []string {
	if c.IsDev() {
		return []string{"*"}
	}
	if len(c.BasicConfig.CORSOrigins) > 0 {
		return c.BasicConfig.CORSOrigins
	}
	return []string{
		"http://localhost:3000",
		"http://localhost:5500",
		"http://localhost:5501",
		"http://127.0.0.1:5500",
		"http://127.0.0.1:5501",
	}
}

// APIKey returns the key configured for the agent provider.
func (c *Config) APIKey() string {
	return c.Providers[c.Agent.Provider].APIKey
}

// RunTimeout bounds a single agent execution.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.BasicConfig.RunTimeout) * time.Second
}

// Validate logs the effective configuration and warns about settings that will
// make agent runs fail later.
func (c *Config) Validate() {
	b := c.BasicConfig
	log.Printf("[config] app=%s env=%s addr=%s storage=%s", b.AppName, b.Environment, b.ServerAddress, b.Storage)
	log.Printf("[config] provider=%s model=%s max_pdf=%.1fMB prompt_limit=%d", c.Agent.Provider, c.Agent.Model,
		float64(b.MaxPDFSize)/(1<<20), b.PromptLimit)
	if c.APIKey() == "" {
		log.Printf("[config] WARNING: no API key configured for provider %s, agent runs will fail", c.Agent.Provider)
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}
