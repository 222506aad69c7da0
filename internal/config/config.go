package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultPort       = 4173
	DefaultProvider   = "openrouter"
	DefaultBaseURL    = "https://openrouter.ai/api/v1"
	DefaultModel      = "openai/gpt-oss-120b"
	DefaultReferer    = "https://inquiry.institute/faculty.club"
	DefaultAppTitle   = "Faculty Club"
	DefaultDatabase   = "sqlite3"
	DefaultSQLiteDSN  = "roundtable.db"
	defaultConfigPath = "config.json"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Provider    string                    `json:"provider"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Log         LogConfig                 `json:"log"`
}

type ProviderConfig struct {
	BaseURL  string `json:"base_url"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	Referer  string `json:"referer"`
	AppTitle string `json:"app_title"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	Database          string `json:"database"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // seconds
	RoundLogTTL       int    `json:"round_log_ttl"`       // hours
	RoundLogInterval  int    `json:"round_log_interval"`  // minutes
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

// RedisConfig is optional; an empty Host disables the cluster-wide table lock.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type LogConfig struct {
	Level   string `json:"level"`
	Handler string `json:"handler"`
}

// Load reads configuration from the provided path (defaults to config.json),
// then applies environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := &Config{}
	loaded := false
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		loaded = true
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	// sqlite paths in a config file are relative to that file
	if db := cfg.Databases[DefaultDatabase]; loaded && isRelativeFile(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases[DefaultDatabase] = db
	}
	return cfg, nil
}

// ActiveProvider returns the selected provider name and its settings.
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	name := c.Provider
	if name == "" {
		name = DefaultProvider
	}
	return name, c.Providers[name]
}

// RedisEnabled reports whether a redis host is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Host) != ""
}

func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if v := os.Getenv("ROUNDTABLE_PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}
	name, prov := c.ActiveProvider()
	if v := os.Getenv("ROUNDTABLE_MODEL"); v != "" {
		prov.Model = v
	}
	c.Providers[name] = prov

	router := c.Providers[DefaultProvider]
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		router.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_REFERER"); v != "" {
		router.Referer = v
	}
	if v := os.Getenv("OPENROUTER_APP_TITLE"); v != "" {
		router.AppTitle = v
	}
	c.Providers[DefaultProvider] = router

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.BasicConfig.ServerAddress = fmt.Sprintf(":%d", port)
		}
	}
	if v := os.Getenv("ROUNDTABLE_DB"); v != "" {
		c.BasicConfig.Database = strings.ToLower(v)
	}
	if v := os.Getenv("ROUNDTABLE_REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("ROUNDTABLE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ROUNDTABLE_LOG_FORMAT"); v != "" {
		c.Log.Handler = v
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = fmt.Sprintf(":%d", DefaultPort)
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = DefaultDatabase
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 2
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 8
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = c.BasicConfig.MinWorkers
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.BasicConfig.WorkerIdleTimeout <= 0 {
		c.BasicConfig.WorkerIdleTimeout = 30
	}
	if c.BasicConfig.RoundLogTTL <= 0 {
		c.BasicConfig.RoundLogTTL = 24 * 7
	}
	if c.BasicConfig.RoundLogInterval <= 0 {
		c.BasicConfig.RoundLogInterval = 60
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if db := c.Databases[DefaultDatabase]; db.DSN == "" {
		db.DSN = DefaultSQLiteDSN
		c.Databases[DefaultDatabase] = db
	}

	router := c.Providers[DefaultProvider]
	if router.BaseURL == "" {
		router.BaseURL = DefaultBaseURL
	}
	if router.Model == "" {
		router.Model = DefaultModel
	}
	if router.Referer == "" {
		router.Referer = DefaultReferer
	}
	if router.AppTitle == "" {
		router.AppTitle = DefaultAppTitle
	}
	c.Providers[DefaultProvider] = router

	if c.RedisEnabled() && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Handler == "" {
		c.Log.Handler = "text"
	}
}

func isRelativeFile(dsn string) bool {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return false
	}
	return !filepath.IsAbs(dsn)
}
