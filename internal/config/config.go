// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/paper-archiver/internal/instapaper"
)

// Environment variables holding the account credentials. They are read
// without the ARCHIVER_ prefix.
const (
	UsernameEnv = "INSTAPAPER_USERNAME"
	PasswordEnv = "INSTAPAPER_PASSWORD"
)

// MissingCredentialsMessage is printed when either credential is absent.
const MissingCredentialsMessage = "You need to define the INSTAPAPER_USERNAME and INSTAPAPER_PASSWORD environment variables"

// ErrMissingCredentials is matched by a ConfigError raised for absent credentials.
var ErrMissingCredentials = errors.New("missing instapaper credentials")

// ConfigError reports an invalid or missing configuration value.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DefaultCategories are the folders archived when none are configured.
var DefaultCategories = []instapaper.Category{
	{Name: "react", ID: 4131451},
	{Name: "ruby", ID: 4131452},
	{Name: "tech", ID: 4131463},
	{Name: "food", ID: 4131464},
	{Name: "sports", ID: 4131465},
	{Name: "deno", ID: 4132578},
	{Name: "typescript", ID: 4134534},
	{Name: "golang", ID: 4137642},
	{Name: "photography", ID: 4202728},
	{Name: "career", ID: 4355149},
}

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Instapaper InstapaperConfig `mapstructure:"instapaper"`
	Output     OutputConfig     `mapstructure:"output"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Render     RenderConfig     `mapstructure:"render"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// InstapaperConfig identifies the account and the collections to archive.
type InstapaperConfig struct {
	BaseURL     string                `mapstructure:"base_url"`
	Username    string                `mapstructure:"username"`
	Password    string                `mapstructure:"password"`
	IncludeHome bool                  `mapstructure:"include_home"`
	Categories  []instapaper.Category `mapstructure:"categories"`
}

// OutputConfig sets where artifacts and the failure log are written.
type OutputConfig struct {
	Root       string `mapstructure:"root"`
	FailureLog string `mapstructure:"failure_log"`
}

// PipelineConfig governs pacing and conversion retries.
type PipelineConfig struct {
	MinInterval        time.Duration `mapstructure:"min_interval"`
	MaxConvertAttempts int           `mapstructure:"max_convert_attempts"`
}

// RenderConfig configures HTML to PDF conversion.
type RenderConfig struct {
	PageSize   string        `mapstructure:"page_size"`
	Margin     float64       `mapstructure:"margin_inches"`
	Stylesheet string        `mapstructure:"stylesheet"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ExecPath   string        `mapstructure:"exec_path"`
}

// HTTPConfig configures the authenticated session.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// StorageConfig enables the optional GCS mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig controls the end-of-run metrics export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env, disk and environment. Credentials are
// not checked here; call RequireCredentials before touching the network.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("instapaper.username", UsernameEnv); err != nil {
		return Config{}, fmt.Errorf("bind %s: %w", UsernameEnv, err)
	}
	if err := v.BindEnv("instapaper.password", PasswordEnv); err != nil {
		return Config{}, fmt.Errorf("bind %s: %w", PasswordEnv, err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Instapaper.BaseURL = normalizeBaseURL(cfg.Instapaper.BaseURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instapaper.base_url", instapaper.DefaultBaseURL)
	v.SetDefault("instapaper.include_home", true)
	categories := make([]map[string]any, 0, len(DefaultCategories))
	for _, c := range DefaultCategories {
		categories = append(categories, map[string]any{"name": c.Name, "id": c.ID})
	}
	v.SetDefault("instapaper.categories", categories)
	v.SetDefault("output.root", "./pdfs/homepage/")
	v.SetDefault("output.failure_log", "failed.txt")
	v.SetDefault("pipeline.min_interval", "1s")
	v.SetDefault("pipeline.max_convert_attempts", 10)
	v.SetDefault("render.page_size", "Letter")
	v.SetDefault("render.margin_inches", 0.75)
	v.SetDefault("render.stylesheet", "styles.css")
	v.SetDefault("render.timeout", "60s")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "paper-archiver/1.0")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Instapaper.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Key: "instapaper.base_url", Err: fmt.Errorf("must be an absolute URL, got %q", c.Instapaper.BaseURL)}
	}
	seen := make(map[string]struct{}, len(c.Instapaper.Categories))
	for _, cat := range c.Instapaper.Categories {
		if strings.TrimSpace(cat.Name) == "" || cat.ID <= 0 {
			return &ConfigError{Key: "instapaper.categories", Err: fmt.Errorf("category needs a name and a positive id: %+v", cat)}
		}
		if _, dup := seen[cat.Name]; dup {
			return &ConfigError{Key: "instapaper.categories", Err: fmt.Errorf("duplicate category %q", cat.Name)}
		}
		seen[cat.Name] = struct{}{}
	}
	if strings.TrimSpace(c.Output.Root) == "" {
		return &ConfigError{Key: "output.root", Err: errors.New("must be set")}
	}
	if strings.TrimSpace(c.Output.FailureLog) == "" {
		return &ConfigError{Key: "output.failure_log", Err: errors.New("must be set")}
	}
	if c.Pipeline.MinInterval < 0 {
		return &ConfigError{Key: "pipeline.min_interval", Err: errors.New("must be >= 0")}
	}
	if c.Pipeline.MaxConvertAttempts <= 0 {
		return &ConfigError{Key: "pipeline.max_convert_attempts", Err: errors.New("must be > 0")}
	}
	if c.Render.Margin < 0 {
		return &ConfigError{Key: "render.margin_inches", Err: errors.New("must be >= 0")}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return &ConfigError{Key: "http.timeout_seconds", Err: errors.New("must be > 0")}
	}
	return nil
}

// RequireCredentials fails with ErrMissingCredentials unless both the
// username and the password are set.
func (c Config) RequireCredentials() error {
	if strings.TrimSpace(c.Instapaper.Username) == "" {
		return &ConfigError{Key: "instapaper.username", Err: ErrMissingCredentials}
	}
	if c.Instapaper.Password == "" {
		return &ConfigError{Key: "instapaper.password", Err: ErrMissingCredentials}
	}
	return nil
}

// SelectCategories returns the configured categories whose names are in
// names, in configuration order. An empty names list selects all of them.
func (c Config) SelectCategories(names []string) ([]instapaper.Category, error) {
	if len(names) == 0 {
		return c.Instapaper.Categories, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = false
	}
	var out []instapaper.Category
	for _, cat := range c.Instapaper.Categories {
		if _, ok := wanted[cat.Name]; ok {
			wanted[cat.Name] = true
			out = append(out, cat)
		}
	}
	for name, found := range wanted {
		if !found {
			return nil, &ConfigError{Key: "instapaper.categories", Err: fmt.Errorf("unknown category %q", name)}
		}
	}
	return out, nil
}

// HTTPTimeout converts the session timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}
