package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKey        = "pfe-local-key"
	DefaultServerAddress = ":8000"
	DefaultChunkSize     = 80
	DefaultModelID       = "echo-langgraph"
	DefaultModelOwner    = "local"
	DefaultDatabaseType  = "sqlite3"
	DefaultMaxSteps      = 16
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Processor   ProcessorConfig           `json:"processor"`
	Log         LogConfig                 `json:"log"`
	Metrics     MetricsConfig             `json:"metrics"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	APIKey            string `json:"api_key"`
	DatabaseType      string `json:"database_type"`
	ChunkSize         int    `json:"chunk_size"`
	ModelID           string `json:"model_id"`
	ModelOwner        string `json:"model_owner"`
	PublicModels      bool   `json:"public_models"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // seconds
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	CacheTTL int    `json:"cache_ttl"` // seconds
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// ProcessorConfig selects the conversation pipeline.
type ProcessorConfig struct {
	Engine   string   `json:"engine"` // native | eino
	Stages   []string `json:"stages"`
	Provider string   `json:"provider"` // used by the model stage
	Model    string   `json:"model"`
	MaxSteps int      `json:"max_steps"`
}

type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // text | json
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled  bool `json:"enabled"`
	Interval int  `json:"interval"` // seconds
}

// Default returns a configuration usable without any file: sqlite in ./data,
// the echo pipeline and the built-in API key.
func Default() *Config {
	cfg := &Config{
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "data/echogate.db"},
		},
		Providers: map[string]ProviderConfig{},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json),
// then overlays environment variables. A missing default file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		resolveSQLitePath(cfg, filepath.Dir(absPath))
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("API_KEY"); v != "" {
		c.BasicConfig.APIKey = v
	}
	if v := os.Getenv("ECHOGATE_ADDR"); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := os.Getenv("ECHOGATE_DB"); v != "" {
		c.BasicConfig.DatabaseType = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.BasicConfig.DatabaseType = "postgres"
		}
		dbType := c.BasicConfig.DatabaseType
		if dbType == "" {
			dbType = DefaultDatabaseType
		}
		if c.Databases == nil {
			c.Databases = map[string]DatabaseConfig{}
		}
		dbCfg := c.Databases[dbType]
		dbCfg.DSN = v
		c.Databases[dbType] = dbCfg
	}
	if v := os.Getenv("ECHOGATE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultServerAddress
	}
	if b.APIKey == "" {
		b.APIKey = DefaultAPIKey
	}
	if b.DatabaseType == "" {
		b.DatabaseType = DefaultDatabaseType
	}
	if b.ChunkSize == 0 {
		b.ChunkSize = DefaultChunkSize
	}
	if b.ModelID == "" {
		b.ModelID = DefaultModelID
	}
	if b.ModelOwner == "" {
		b.ModelOwner = DefaultModelOwner
	}
	if b.MaxWorkers == 0 {
		b.MaxWorkers = 32
	}
	if b.QueueSize == 0 {
		b.QueueSize = 256
	}
	if c.Processor.Engine == "" {
		c.Processor.Engine = "native"
	}
	if len(c.Processor.Stages) == 0 {
		c.Processor.Stages = []string{"echo"}
	}
	if c.Processor.MaxSteps == 0 {
		c.Processor.MaxSteps = DefaultMaxSteps
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 60
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 30
	}
}

// Validate checks invariants the rest of the process relies on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BasicConfig.APIKey) == "" {
		return errors.New("api_key must be configured")
	}
	if c.BasicConfig.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.BasicConfig.ChunkSize)
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		return fmt.Errorf("max_workers (%d) below min_workers (%d)", c.BasicConfig.MaxWorkers, c.BasicConfig.MinWorkers)
	}
	switch c.Processor.Engine {
	case "native", "eino":
	default:
		return fmt.Errorf("unknown processor engine: %s", c.Processor.Engine)
	}
	for _, stage := range c.Processor.Stages {
		switch stage {
		case "echo", "trim":
		case "model":
			if _, ok := c.Providers[c.Processor.Provider]; !ok {
				return fmt.Errorf("model stage: provider %q not configured", c.Processor.Provider)
			}
		default:
			return fmt.Errorf("unknown processor stage: %s", stage)
		}
	}
	if c.Processor.MaxSteps < len(c.Processor.Stages) {
		return fmt.Errorf("max_steps (%d) cannot cover %d stages", c.Processor.MaxSteps, len(c.Processor.Stages))
	}
	return nil
}

// WorkerIdle returns the idle timeout for pooled generation workers.
func (b BasicConfig) WorkerIdle() time.Duration {
	return time.Duration(b.WorkerIdleTimeout) * time.Second
}

func resolveSQLitePath(cfg *Config, baseDir string) {
	for _, key := range []string{"sqlite", "sqlite3"} {
		dbCfg, ok := cfg.Databases[key]
		if !ok || dbCfg.DSN == "" || strings.HasPrefix(dbCfg.DSN, "file:") || dbCfg.DSN == ":memory:" {
			continue
		}
		if !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(baseDir, dbCfg.DSN)
			cfg.Databases[key] = dbCfg
		}
	}
}
