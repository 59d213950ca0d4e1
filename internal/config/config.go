// Package config provides configuration loading and structs for the pachat server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogFile   string          `yaml:"log_file"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Convert   ConvertConfig   `yaml:"convert"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Session   SessionConfig   `yaml:"session"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadMB caps multipart upload size.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// StorageConfig holds paths for the collection database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig selects and configures the embedder.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // ollama, onnx or mock
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	ModelPath  string        `yaml:"model_path"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SheetRule maps a sheet-name substring to the extraction script that handles it.
type SheetRule struct {
	SheetContains string `yaml:"sheet_contains"`
	Script        string `yaml:"script"`
}

// ConvertConfig describes the external conversion scripts and where their outputs land.
type ConvertConfig struct {
	Interpreter string `yaml:"interpreter"`
	ScriptDir   string `yaml:"script_dir"`
	// UploadDir receives uploaded files; OutputDir is the root the scripts write under.
	UploadDir string `yaml:"upload_dir"`
	OutputDir string `yaml:"output_dir"`
	// Timeout bounds each script run. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	PageScripts   []string    `yaml:"page_scripts"`
	SheetRules    []SheetRule `yaml:"sheet_rules"`
	DiagramScript string      `yaml:"diagram_script"`

	PagesDir   string `yaml:"pages_dir"`
	PageMapDir string `yaml:"page_map_dir"`
	APIListDir string `yaml:"api_list_dir"`
	APISpecDir string `yaml:"api_spec_dir"`
}

// ResolverConfig caps how many documents each join path reads.
type ResolverConfig struct {
	PageLimit    int `yaml:"page_limit"`
	APIListLimit int `yaml:"api_list_limit"`
	APISpecLimit int `yaml:"api_spec_limit"`
	DiagramLimit int `yaml:"diagram_limit"`
	RelatedLimit int `yaml:"related_limit"`

	// Related hints rank keyword candidates by these weights.
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.LogFile = expandPath(cfg.LogFile, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Convert.ScriptDir = expandPath(cfg.Convert.ScriptDir, configDir)
	cfg.Convert.UploadDir = expandPath(cfg.Convert.UploadDir, configDir)
	cfg.Convert.OutputDir = expandPath(cfg.Convert.OutputDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides selected fields from the environment (including values loaded from .env).
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PACHAT_OLLAMA_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("PACHAT_OLLAMA_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("PACHAT_SCRIPT_DIR"); v != "" {
		cfg.Convert.ScriptDir = v
	}
	if v := os.Getenv("PACHAT_DATA_DIR"); v != "" {
		cfg.Convert.UploadDir = v
		cfg.Convert.OutputDir = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
