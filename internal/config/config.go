// Package config loads and validates locus configuration.
//
// Settings resolve in precedence order: command-line flags, LOCUS_*
// environment variables, a repo-local locus.toml, .locus/config.json,
// then built-in defaults. Flag binding happens at the command layer;
// everything else is handled here.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	locuserrors "locus/internal/errors"
	"locus/internal/paths"
)

// OverridesFile is the repo-local TOML override file checked at the repo root.
const OverridesFile = "locus.toml"

// Config is the complete locus configuration (v1 schema)
type Config struct {
	Version  int    `json:"version" mapstructure:"version" toml:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot" toml:"repoRoot"`

	Scan    ScanConfig    `json:"scan" mapstructure:"scan" toml:"scan"`
	Index   IndexConfig   `json:"index" mapstructure:"index" toml:"index"`
	Search  SearchConfig  `json:"search" mapstructure:"search" toml:"search"`
	Cache   CacheConfig   `json:"cache" mapstructure:"cache" toml:"cache"`
	Watch   WatchConfig   `json:"watch" mapstructure:"watch" toml:"watch"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging" toml:"logging"`
}

// ScanConfig controls repository traversal during index builds
type ScanConfig struct {
	Extensions       []string `json:"extensions" mapstructure:"extensions" toml:"extensions"`
	SkipPatterns     []string `json:"skipPatterns" mapstructure:"skipPatterns" toml:"skipPatterns"`
	MaxDepth         int      `json:"maxDepth" mapstructure:"maxDepth" toml:"maxDepth"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes" toml:"maxFileSizeBytes"`
	RespectGitignore bool     `json:"respectGitignore" mapstructure:"respectGitignore" toml:"respectGitignore"`
	Workers          int      `json:"workers" mapstructure:"workers" toml:"workers"`
}

// IndexConfig controls text scoring and snapshot placement
type IndexConfig struct {
	BM25     BM25Config `json:"bm25" mapstructure:"bm25" toml:"bm25"`
	CacheDir string     `json:"cacheDir" mapstructure:"cacheDir" toml:"cacheDir"`
}

// BM25Config holds the Okapi BM25 tuning parameters
type BM25Config struct {
	K1 float64 `json:"k1" mapstructure:"k1" toml:"k1"`
	B  float64 `json:"b" mapstructure:"b" toml:"b"`
}

// SearchConfig controls retrieval behavior
type SearchConfig struct {
	TopK                int          `json:"topK" mapstructure:"topK" toml:"topK"`
	FuzzyThreshold      float64      `json:"fuzzyThreshold" mapstructure:"fuzzyThreshold" toml:"fuzzyThreshold"`
	MaxRelatedPerEntity int          `json:"maxRelatedPerEntity" mapstructure:"maxRelatedPerEntity" toml:"maxRelatedPerEntity"`
	Fusion              FusionConfig `json:"fusion" mapstructure:"fusion" toml:"fusion"`
}

// FusionConfig weights the signals merged by hybrid retrieval
type FusionConfig struct {
	TextWeight     float64 `json:"textWeight" mapstructure:"textWeight" toml:"textWeight"`
	GraphWeight    float64 `json:"graphWeight" mapstructure:"graphWeight" toml:"graphWeight"`
	AgreementBonus float64 `json:"agreementBonus" mapstructure:"agreementBonus" toml:"agreementBonus"`
}

// CacheConfig controls the in-process query cache
type CacheConfig struct {
	QueryCacheSize int `json:"queryCacheSize" mapstructure:"queryCacheSize" toml:"queryCacheSize"`
}

// WatchConfig controls filesystem watch mode
type WatchConfig struct {
	DebounceMs     int `json:"debounceMs" mapstructure:"debounceMs" toml:"debounceMs"`
	PollIntervalMs int `json:"pollIntervalMs" mapstructure:"pollIntervalMs" toml:"pollIntervalMs"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" toml:"format"`
	Level  string `json:"level" mapstructure:"level" toml:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Scan: ScanConfig{
			Extensions: []string{
				".py", ".js", ".jsx", ".ts", ".tsx", ".go",
				".md", ".markdown", ".html", ".htm", ".css",
			},
			SkipPatterns: []string{
				".git", ".locus", "node_modules", "__pycache__",
				".pytest_cache", "vendor", "dist", "build",
				".idea", ".vscode",
			},
			MaxDepth:         10,
			MaxFileSizeBytes: 1 << 20,
			RespectGitignore: true,
			Workers:          0, // 0 means one worker per CPU
		},
		Index: IndexConfig{
			BM25: BM25Config{
				K1: 1.2,
				B:  0.75,
			},
		},
		Search: SearchConfig{
			TopK:                10,
			FuzzyThreshold:      0.6,
			MaxRelatedPerEntity: 5,
			Fusion: FusionConfig{
				TextWeight:     0.6,
				GraphWeight:    0.4,
				AgreementBonus: 0.2,
			},
		},
		Cache: CacheConfig{
			QueryCacheSize: 256,
		},
		Watch: WatchConfig{
			DebounceMs:     2000,
			PollIntervalMs: 5000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig resolves the configuration for a repository. Missing files are
// not an error; whatever layers exist are merged over the defaults.
func LoadConfig(repoRoot string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, paths.DotDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, locuserrors.New(locuserrors.ConfigInvalid, "failed to read config.json", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, locuserrors.New(locuserrors.ConfigInvalid, "failed to parse config.json", err)
	}

	if err := applyTOMLOverrides(cfg, repoRoot); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLocal merges .locus/config.json over the defaults and stops there: no
// TOML layer, no environment. Config editing operates on this view so
// ephemeral overrides never get baked into the saved file.
func LoadLocal(repoRoot string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, paths.DotDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, locuserrors.New(locuserrors.ConfigInvalid, "failed to read config.json", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, locuserrors.New(locuserrors.ConfigInvalid, "failed to parse config.json", err)
	}
	return cfg, nil
}

// applyTOMLOverrides merges locus.toml over the current values. TOML decode
// only touches keys present in the document, so absent keys keep their layer
// below.
func applyTOMLOverrides(cfg *Config, repoRoot string) error {
	path := filepath.Join(repoRoot, OverridesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return locuserrors.New(locuserrors.ConfigInvalid, "failed to read "+OverridesFile, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return locuserrors.New(locuserrors.ConfigInvalid, "failed to parse "+OverridesFile, err)
	}
	return nil
}

// applyEnvOverrides applies the LOCUS_* environment knobs
func applyEnvOverrides(cfg *Config) {
	if s := os.Getenv("LOCUS_LOG_LEVEL"); s != "" {
		cfg.Logging.Level = s
	}
	if s := os.Getenv("LOCUS_LOG_FORMAT"); s != "" {
		cfg.Logging.Format = s
	}
	if s := os.Getenv("LOCUS_CACHE_DIR"); s != "" {
		cfg.Index.CacheDir = s
	}
	if s := os.Getenv("LOCUS_WORKERS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.Scan.Workers = n
		}
	}
}

// Save writes the configuration to .locus/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, paths.DotDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	fail := func(field, msg string) error {
		return locuserrors.New(locuserrors.ConfigInvalid, msg, nil).WithDetails(map[string]string{"field": field})
	}

	if c.Version != 1 {
		return fail("version", "unsupported config version")
	}
	if len(c.Scan.Extensions) == 0 {
		return fail("scan.extensions", "at least one extension is required")
	}
	if c.Scan.MaxDepth < 1 {
		return fail("scan.maxDepth", "maxDepth must be at least 1")
	}
	if c.Scan.MaxFileSizeBytes <= 0 {
		return fail("scan.maxFileSizeBytes", "maxFileSizeBytes must be positive")
	}
	if c.Index.BM25.K1 <= 0 {
		return fail("index.bm25.k1", "k1 must be positive")
	}
	if c.Index.BM25.B < 0 || c.Index.BM25.B > 1 {
		return fail("index.bm25.b", "b must be in [0, 1]")
	}
	if c.Search.TopK < 1 {
		return fail("search.topK", "topK must be at least 1")
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fail("search.fuzzyThreshold", "fuzzyThreshold must be in [0, 1]")
	}
	if c.Search.Fusion.TextWeight < 0 || c.Search.Fusion.GraphWeight < 0 || c.Search.Fusion.AgreementBonus < 0 {
		return fail("search.fusion", "fusion weights must be non-negative")
	}
	if c.Cache.QueryCacheSize < 1 {
		return fail("cache.queryCacheSize", "queryCacheSize must be at least 1")
	}
	if c.Watch.DebounceMs < 0 {
		return fail("watch.debounceMs", "debounceMs cannot be negative")
	}
	return nil
}

// Hash returns a stable digest of the configuration. Index snapshots record
// it so a changed config invalidates stale indexes.
func (c *Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
