package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const appName = "bofip"

type APIConfig struct {
	URL      string            `yaml:"url"`
	PageSize int               `yaml:"page_size"`
	Lang     string            `yaml:"lang,omitempty"`
	Select   []string          `yaml:"select,omitempty"`
	Filters  map[string]string `yaml:"filters,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty"`
	MaxPages int               `yaml:"max_pages,omitempty"`
}

// FieldsConfig names the remote attributes read into a record.
type FieldsConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Subject     string `yaml:"subject"`
}

type KnowledgeConfig struct {
	Keywords  []string `yaml:"keywords"`
	Filter    bool     `yaml:"filter"`
	Template  string   `yaml:"template"` // "full" or "short"
	StripHTML bool     `yaml:"strip_html"`
}

type CacheConfig struct {
	Path           string `yaml:"path,omitempty"`
	PersistPartial bool   `yaml:"persist_partial"`
}

type HistoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Retention string `yaml:"retention,omitempty"`
}

type AIConfig struct {
	Provider string `yaml:"provider"` // "claude", "openai", "ollama" or "gemini"
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
}

type Config struct {
	API       APIConfig       `yaml:"api"`
	Fields    FieldsConfig    `yaml:"fields"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	AI        *AIConfig       `yaml:"ai,omitempty"`
}

// Endpoint returns the records endpoint, honoring BOFIP_API_URL.
func (c *Config) Endpoint() string {
	if u := os.Getenv("BOFIP_API_URL"); u != "" {
		return u
	}
	return c.API.URL
}

// AIKey returns the resolved API key (config or env var).
func (c *Config) AIKey() string {
	if c.AI != nil && c.AI.APIKey != "" {
		return c.AI.APIKey
	}
	return os.Getenv("BOFIP_AI_KEY")
}

func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.API.Timeout, 30*time.Second)
}

func (c *AIConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}

func (c *Config) RetentionDuration() time.Duration {
	return parseDuration(c.History.Retention, 90*24*time.Hour)
}

// CachePath returns the snapshot location, defaulting to the XDG cache dir.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(xdg.CacheHome, appName, "bofip_data.json")
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

func HistoryPath() string {
	return filepath.Join(xdg.CacheHome, appName, "history.db")
}

func LogPath() string {
	return filepath.Join(xdg.CacheHome, appName, "bofip.log")
}

// ParseDuration accepts Go durations plus an "Nd" day suffix.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path on top of the embedded defaults. Keys
// missing from the file keep their default value.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Write defaults to config path on first run. Non-fatal: the
		// embedded defaults are used either way.
		_ = writeDefaults(path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

var (
	validTemplates = map[string]bool{"": true, "full": true, "short": true}
	validProviders = map[string]bool{"claude": true, "openai": true, "ollama": true, "gemini": true}
	reservedParams = map[string]bool{"limit": true, "offset": true}
)

func validate(cfg *Config) error {
	// the resolved endpoint, so BOFIP_API_URL is checked too
	u, err := url.Parse(cfg.Endpoint())
	if err != nil {
		return fmt.Errorf("api: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api: url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api: url %q has no host", cfg.Endpoint())
	}
	if cfg.API.PageSize < 1 || cfg.API.PageSize > 100 {
		return fmt.Errorf("api: page_size must be between 1 and 100, got %d", cfg.API.PageSize)
	}
	for k := range cfg.API.Filters {
		if reservedParams[strings.ToLower(k)] {
			return fmt.Errorf("api: filter %q is reserved for pagination", k)
		}
	}
	if cfg.Fields.Title == "" || cfg.Fields.Description == "" || cfg.Fields.Subject == "" {
		return fmt.Errorf("fields: title, description and subject are required")
	}
	if !validTemplates[cfg.Knowledge.Template] {
		return fmt.Errorf("knowledge: unknown template %q (valid: full, short)", cfg.Knowledge.Template)
	}
	if cfg.AI != nil && !validProviders[cfg.AI.Provider] {
		return fmt.Errorf("ai: unknown provider %q (valid: claude, openai, ollama, gemini)", cfg.AI.Provider)
	}
	return nil
}
