package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration values for the EPG relay server.
// It covers the HTTP listener, the schedule source, upstream fetch behavior,
// guide rendering, and logging.
type Config struct {
	Port               int           `json:"port"`               // HTTP listen port
	BaseURL            string        `json:"baseURL"`            // Optional base URL override for playlist stream links
	SchedulePath       string        `json:"schedulePath"`       // Path to the externally generated schedule JSON
	ScheduleTTL        time.Duration `json:"scheduleTTL"`        // How long a loaded schedule snapshot stays fresh
	PlaceholderIconURL string        `json:"placeholderIconURL"` // Default icon for synthesized placeholder programmes
	UserAgent          string        `json:"userAgent"`          // User-Agent sent on upstream requests
	MaxRedirects       int           `json:"maxRedirects"`       // Redirect hop bound for upstream fetches
	UpstreamTimeout    time.Duration `json:"upstreamTimeout"`    // Connect/response-header timeout for upstream fetches
	ChunkSizeKB        int           `json:"chunkSizeKB"`        // Upstream read buffer size in KB
	WorkerThreads      int           `json:"workerThreads"`      // Size of the shared upstream pump worker pool
	CacheEnabled       bool          `json:"cacheEnabled"`       // Whether rendered guide documents are cached
	CacheDuration      time.Duration `json:"cacheDuration"`      // TTL for cached guide renders
	ObfuscateUrls      bool          `json:"obfuscateUrls"`      // Obfuscate upstream URLs in logs
	LogLevel           string        `json:"logLevel"`           // Minimum log level (DEBUG/INFO/WARN/ERROR)
	Debug              bool          `json:"debug"`              // Shortcut for LogLevel=DEBUG
}

// ConfigFile mirrors Config for JSON unmarshaling; duration fields are
// strings (e.g. "5s", "30s") and parsed into time.Duration afterwards.
// Booleans are pointers so an omitted key is distinguishable from an
// explicit false and cannot silently override a default.
type ConfigFile struct {
	Port               int    `json:"port"`
	BaseURL            string `json:"baseURL"`
	SchedulePath       string `json:"schedulePath"`
	ScheduleTTL        string `json:"scheduleTTL"`
	PlaceholderIconURL string `json:"placeholderIconURL"`
	UserAgent          string `json:"userAgent"`
	MaxRedirects       int    `json:"maxRedirects"`
	UpstreamTimeout    string `json:"upstreamTimeout"`
	ChunkSizeKB        int    `json:"chunkSizeKB"`
	WorkerThreads      int    `json:"workerThreads"`
	CacheEnabled       *bool  `json:"cacheEnabled"`
	CacheDuration      string `json:"cacheDuration"`
	ObfuscateUrls      *bool  `json:"obfuscateUrls"`
	LogLevel           string `json:"logLevel"`
	Debug              *bool  `json:"debug"`
}

var (
	configCache *Config
	configMutex sync.RWMutex
)

// DefaultConfigPath is where LoadConfig looks for the optional JSON config.
const DefaultConfigPath = "/settings/config.json"

// LoadConfig loads the configuration or returns the cached instance.
//
// Precedence, lowest to highest: built-in defaults, the JSON config file
// (if present), environment variables. The result is validated and cached
// for subsequent calls.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// double-check under the write lock
	if configCache != nil {
		return configCache
	}

	cfg := defaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}
	if fileCfg, err := loadFromFile(path); err == nil {
		mergeFile(cfg, fileCfg)
	} else if !os.IsNotExist(err) {
		log.Printf("Failed to load config from %s: %v", path, err)
		log.Printf("Continuing with defaults and environment overrides")
	}

	applyEnv(cfg)
	validateAndSetDefaults(cfg)

	configCache = cfg
	return cfg
}

// ClearConfigCache drops the cached configuration so the next LoadConfig
// re-reads file and environment. Used by tests and graceful reloads.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

func defaultConfig() *Config {
	return &Config{
		Port:            8080,
		SchedulePath:    "/output/schedule.json",
		ScheduleTTL:     5 * time.Second,
		UserAgent:       "Plex/1.0",
		MaxRedirects:    5,
		UpstreamTimeout: 30 * time.Second,
		ChunkSizeKB:     32,
		WorkerThreads:   64,
		CacheEnabled:    true,
		CacheDuration:   30 * time.Second,
		LogLevel:        "INFO",
	}
}

func loadFromFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fileCfg ConfigFile
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &fileCfg, nil
}

// mergeFile copies every value the file actually set onto the config.
func mergeFile(cfg *Config, f *ConfigFile) {
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.SchedulePath != "" {
		cfg.SchedulePath = f.SchedulePath
	}
	if d, err := time.ParseDuration(f.ScheduleTTL); err == nil && d > 0 {
		cfg.ScheduleTTL = d
	}
	if f.PlaceholderIconURL != "" {
		cfg.PlaceholderIconURL = f.PlaceholderIconURL
	}
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.MaxRedirects > 0 {
		cfg.MaxRedirects = f.MaxRedirects
	}
	if d, err := time.ParseDuration(f.UpstreamTimeout); err == nil && d > 0 {
		cfg.UpstreamTimeout = d
	}
	if f.ChunkSizeKB > 0 {
		cfg.ChunkSizeKB = f.ChunkSizeKB
	}
	if f.WorkerThreads > 0 {
		cfg.WorkerThreads = f.WorkerThreads
	}
	if f.CacheEnabled != nil {
		cfg.CacheEnabled = *f.CacheEnabled
	}
	if d, err := time.ParseDuration(f.CacheDuration); err == nil && d > 0 {
		cfg.CacheDuration = d
	}
	if f.ObfuscateUrls != nil {
		cfg.ObfuscateUrls = *f.ObfuscateUrls
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Debug != nil {
		cfg.Debug = *f.Debug
	}
}

// applyEnv overlays environment variables on top of file/default values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SCHEDULE_PATH"); v != "" {
		cfg.SchedulePath = v
	}
	if v := os.Getenv("SCHEDULE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ScheduleTTL = d
		}
	}
	if v := os.Getenv("PLACEHOLDER_ICON_URL"); v != "" {
		cfg.PlaceholderIconURL = v
	}
	if v := os.Getenv("UPSTREAM_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug, _ = strconv.ParseBool(v)
	}
}

// validateAndSetDefaults clamps out-of-range values back to safe defaults.
func validateAndSetDefaults(cfg *Config) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 8080
	}
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = 5 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.ChunkSizeKB <= 0 {
		cfg.ChunkSizeKB = 32
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 64
	}
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = 30 * time.Second
	}
	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}
}
