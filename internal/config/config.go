// Package config implements semindex's layered configuration: hardcoded
// defaults, a user-global YAML file, a per-repository project YAML file,
// and environment variable overrides, applied in that order of increasing
// precedence. The persisted on-disk format is YAML; the config get/set
// command surface (internal/config serves cmd/semindex) serializes the
// same struct as JSON, matching the wire shape documented for the
// configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aman-cerp/semindex/internal/chunk"
	"github.com/aman-cerp/semindex/internal/embed"
	ierrors "github.com/aman-cerp/semindex/internal/errors"
	"github.com/aman-cerp/semindex/internal/pipeline"
	"github.com/aman-cerp/semindex/internal/scanner"
)

// ConfigFileName and its YAML alias are the project-level config file,
// searched for in a repository root.
const (
	ConfigFileName    = ".semindex.yaml"
	ConfigFileNameAlt = ".semindex.yml"
)

// Config is the complete semindex configuration, mirroring the schema
// documented for the persisted configuration file.
type Config struct {
	DefaultProvider string                    `yaml:"default_provider" json:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" json:"providers"`
	Performance     PerformanceConfig         `yaml:"performance" json:"performance"`
	Indexing        IndexingConfig            `yaml:"indexing" json:"indexing"`
}

// ProviderConfig configures one named embedding provider.
type ProviderConfig struct {
	// Type selects the provider implementation: "http" (remote API) or
	// "local" (local model-serving process).
	Type      string          `yaml:"type" json:"type"`
	APIKey    string          `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL   string          `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Model     string          `yaml:"model" json:"model"`
	Dimension int             `yaml:"dimension" json:"dimension"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds one provider's request rate and retry policy.
type RateLimitConfig struct {
	RequestsPerMinute  int         `yaml:"requests_per_minute" json:"requests_per_minute"`
	ConcurrentRequests int         `yaml:"concurrent_requests" json:"concurrent_requests"`
	Retry              RetryConfig `yaml:"retry" json:"retry"`
}

// RetryConfig is a per-provider retry policy in the config file's own
// field names (snake_case, milliseconds rather than time.Duration).
type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries" json:"max_retries"`
	BaseDelayMS       int     `yaml:"base_delay_ms" json:"base_delay_ms"`
	MaxDelayMS        int     `yaml:"max_delay_ms" json:"max_delay_ms"`
	Jitter            bool    `yaml:"jitter" json:"jitter"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// PerformanceConfig tunes the Embedding Pipeline and its memory ceiling.
type PerformanceConfig struct {
	Concurrency      int  `yaml:"concurrency" json:"concurrency"`
	BatchSize        int  `yaml:"batch_size" json:"batch_size"`
	MemoryLimitMB    int  `yaml:"memory_limit_mb" json:"memory_limit_mb"`
	AdaptiveBatching bool `yaml:"adaptive_batching" json:"adaptive_batching"`
}

// IndexingConfig tunes the File Walker.
type IndexingConfig struct {
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
	ExcludePatterns  []string `yaml:"exclude_patterns" json:"exclude_patterns"`
}

// defaultExcludePatterns are always excluded, regardless of user config.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
}

// New returns a Config populated with sensible defaults.
func New() *Config {
	return &Config{
		DefaultProvider: "",
		Providers:       map[string]ProviderConfig{},
		Performance: PerformanceConfig{
			Concurrency:      runtime.NumCPU(),
			BatchSize:        8,
			MemoryLimitMB:    0, // 0 disables the memory ceiling check
			AdaptiveBatching: true,
		},
		Indexing: IndexingConfig{
			MaxFileSizeBytes: 5 * 1024 * 1024,
			ExcludePatterns:  append([]string(nil), defaultExcludePatterns...),
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/semindex/config.yaml, if set
//   - ~/.config/semindex/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "semindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "semindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "semindex", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// FindProjectRoot walks up from startDir looking for a `.git` directory or
// a project config file, returning the first directory that has one. If
// neither is found by the filesystem root, it returns startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", startDir, err)
	}

	dir := absDir
	for {
		if isDir(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, ConfigFileName)) || fileExists(filepath.Join(dir, ConfigFileNameAlt)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

// Load builds a Config for the repository rooted at dir, applying, in
// order of increasing precedence: hardcoded defaults, the user/global
// config, the project config (dir/.semindex.yaml), then environment
// variable overrides. The result is validated before being returned.
func Load(dir string) (*Config, error) {
	cfg := New()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, ierrors.ConfigError(fmt.Sprintf("failed to load user config: %v", err), nil)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadUserConfig loads the user/global configuration file if present.
// A missing file is not an error.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := New()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// LoadUserConfig returns the user/global configuration, defaults merged
// with whatever ` + "`config.yaml`" + ` under the user config directory
// overrides. A missing file yields plain defaults, not an error; this is
// the config the `config get`/`config set` commands edit.
func LoadUserConfig() (*Config, error) {
	cfg, err := loadUserConfig()
	if err != nil {
		return nil, ierrors.ConfigError(fmt.Sprintf("failed to load user config: %v", err), nil)
	}
	if cfg == nil {
		return New(), nil
	}
	return cfg, nil
}

// ResetUserConfig overwrites the user/global configuration with defaults.
// If a config file already existed, it is copied aside to a
// timestamped ".bak" file first and that path is returned; resetting a
// config that didn't exist returns an empty backup path.
func ResetUserConfig() (string, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return "", New().WriteYAML(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read user config: %w", err)
	}
	backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to back up user config: %w", err)
	}
	if err := New().WriteYAML(path); err != nil {
		return "", err
	}
	return backupPath, nil
}

// loadFromFile loads dir's project config, trying .semindex.yaml then
// .semindex.yml. A missing file is not an error.
func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	if fileExists(path) {
		return c.loadYAML(path)
	}
	path = filepath.Join(dir, ConfigFileNameAlt)
	if fileExists(path) {
		return c.loadYAML(path)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays other's non-zero fields onto c.
func (c *Config) mergeWith(other *Config) {
	if other.DefaultProvider != "" {
		c.DefaultProvider = other.DefaultProvider
	}
	for name, p := range other.Providers {
		c.Providers[name] = p
	}

	if other.Performance.Concurrency != 0 {
		c.Performance.Concurrency = other.Performance.Concurrency
	}
	if other.Performance.BatchSize != 0 {
		c.Performance.BatchSize = other.Performance.BatchSize
	}
	if other.Performance.MemoryLimitMB != 0 {
		c.Performance.MemoryLimitMB = other.Performance.MemoryLimitMB
	}
	// AdaptiveBatching is boolean; a project file that sets it at all
	// (detected via any other performance field being present) wins.
	if other.Performance != (PerformanceConfig{}) {
		c.Performance.AdaptiveBatching = other.Performance.AdaptiveBatching
	}

	if other.Indexing.MaxFileSizeBytes != 0 {
		c.Indexing.MaxFileSizeBytes = other.Indexing.MaxFileSizeBytes
	}
	if len(other.Indexing.ExcludePatterns) > 0 {
		c.Indexing.ExcludePatterns = append(c.Indexing.ExcludePatterns, other.Indexing.ExcludePatterns...)
	}
}

// applyEnvOverrides applies the documented recognized environment
// variables. Env wins over any file; explicit command options (applied
// by the caller after Load) win over env.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEFAULT_PROVIDER"); v != "" {
		c.DefaultProvider = v
	}
	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.Concurrency = n
		}
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.BatchSize = n
		}
	}
	if v := os.Getenv("MEMORY_LIMIT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Performance.MemoryLimitMB = n
		}
	}

	// Per-provider overrides: <PROVIDER>_API_KEY, <PROVIDER>_BASE_URL,
	// <PROVIDER>_MODEL. Applied to every provider already named in
	// c.Providers, keyed by uppercasing the provider name.
	for name, p := range c.Providers {
		prefix := strings.ToUpper(name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			p.BaseURL = v
		}
		if v := os.Getenv(prefix + "_MODEL"); v != "" {
			p.Model = v
		}
		c.Providers[name] = p
	}
}

// Validate checks the configuration for internal consistency, returning a
// configuration-category IndexError (fatal, not retried) on failure.
func (c *Config) Validate() error {
	if c.Performance.Concurrency < 0 {
		return ierrors.ConfigError(fmt.Sprintf("performance.concurrency must be non-negative, got %d", c.Performance.Concurrency), nil)
	}
	if c.Performance.BatchSize < 0 {
		return ierrors.ConfigError(fmt.Sprintf("performance.batch_size must be non-negative, got %d", c.Performance.BatchSize), nil)
	}
	if c.Indexing.MaxFileSizeBytes < 0 {
		return ierrors.ConfigError(fmt.Sprintf("indexing.max_file_size_bytes must be non-negative, got %d", c.Indexing.MaxFileSizeBytes), nil)
	}
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return ierrors.ConfigError(fmt.Sprintf("default_provider %q is not configured under providers", c.DefaultProvider), nil)
		}
	}
	for name, p := range c.Providers {
		switch p.Type {
		case "http":
			if p.BaseURL == "" {
				return ierrors.ConfigError(fmt.Sprintf("provider %q: type http requires base_url", name), nil)
			}
		case "local":
			if p.BaseURL == "" {
				return ierrors.ConfigError(fmt.Sprintf("provider %q: type local requires base_url (endpoint)", name), nil)
			}
		default:
			return ierrors.ConfigError(fmt.Sprintf("provider %q: type must be 'http' or 'local', got %q", name, p.Type), nil)
		}
		if p.Dimension < 0 {
			return ierrors.ConfigError(fmt.Sprintf("provider %q: dimension must be non-negative, got %d", name, p.Dimension), nil)
		}
	}
	return nil
}

// WriteYAML persists c to path in YAML form, the on-disk source of truth.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MarshalJSON is what `config get` serializes: the same schema, JSON
// encoded, matching the documented configuration file's wire shape.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursive MarshalJSON
	return json.Marshal((*alias)(c))
}

// ScanOptions adapts Indexing into scanner.Options.
func (c *Config) ScanOptions() scanner.Options {
	opts := scanner.DefaultOptions()
	opts.ExcludePatterns = c.Indexing.ExcludePatterns
	if c.Indexing.MaxFileSizeBytes > 0 {
		opts.MaxFileSize = c.Indexing.MaxFileSizeBytes
	}
	return opts
}

// ChunkParams returns the documented chunk defaults; the configuration
// file has no chunking knobs, so this always returns chunk.DefaultParams.
func (c *Config) ChunkParams() chunk.Params {
	return chunk.DefaultParams()
}

// PipelineConfig adapts Performance into pipeline.Config. When
// AdaptiveBatching is disabled, MinBatchSize and MaxBatchSize are pinned
// to InitialBatch so the Dispatcher's adaptive step never moves the
// working batch size.
func (c *Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	if c.Performance.Concurrency > 0 {
		cfg.Concurrency = c.Performance.Concurrency
	}
	if c.Performance.BatchSize > 0 {
		cfg.InitialBatch = c.Performance.BatchSize
	}
	if c.Performance.MemoryLimitMB > 0 {
		cfg.MemoryLimitBytes = int64(c.Performance.MemoryLimitMB) * 1024 * 1024
	}
	if !c.Performance.AdaptiveBatching {
		cfg.MinBatchSize = cfg.InitialBatch
		cfg.MaxBatchSize = cfg.InitialBatch
	}
	return cfg
}

// BuildProvider constructs the embed.Provider named name, or an error if
// it isn't configured or names an unknown type.
func (c *Config) BuildProvider(name string) (embed.Provider, error) {
	p, ok := c.Providers[name]
	if !ok {
		return nil, ierrors.ConfigError(fmt.Sprintf("provider %q is not configured", name), nil)
	}
	limits := embed.Limits{
		MaxBatchSize:      c.Performance.BatchSize,
		RequestsPerMinute: p.RateLimit.RequestsPerMinute,
	}
	switch p.Type {
	case "http":
		return embed.NewHTTPProvider(embed.HTTPConfig{
			ProviderID: name,
			BaseURL:    p.BaseURL,
			APIKey:     p.APIKey,
			Model:      p.Model,
			Dimension:  p.Dimension,
			Limits:     limits,
		})
	case "local":
		return embed.NewLocalProvider(embed.LocalConfig{
			ProviderID: name,
			Endpoint:   p.BaseURL,
			Model:      p.Model,
			Dimension:  p.Dimension,
			Limits:     limits,
		})
	default:
		return nil, ierrors.ConfigError(fmt.Sprintf("provider %q: unknown type %q", name, p.Type), nil)
	}
}

// BuildProviders constructs every configured provider in fallback order:
// DefaultProvider first (if set), then the remaining providers in
// alphabetical name order, for a deterministic fallback chain across
// runs.
func (c *Config) BuildProviders() ([]embed.Provider, error) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		if name == c.DefaultProvider {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if c.DefaultProvider != "" {
		names = append([]string{c.DefaultProvider}, names...)
	}

	providers := make([]embed.Provider, 0, len(names))
	for _, name := range names {
		p, err := c.BuildProvider(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
