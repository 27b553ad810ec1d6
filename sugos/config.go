package sugos

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sugos/render"
	"github.com/hazyhaar/sugos/sugos/internal/fetch"
)

// Environment overrides.
const (
	EnvConfig   = "SUGOS_CONFIG"
	EnvUsername = "SUGOS_USERNAME"
	EnvPassword = "SUGOS_PASSWORD"
	EnvLogLevel = "SUGOS_LOG_LEVEL"
)

// Duration is a time.Duration written as "30s", "2m" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML accepts duration strings.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// TenantConfig describes one remote environment.
type TenantConfig struct {
	DisplayName     string `yaml:"display_name" toml:"display_name" json:"display_name"`
	APIBaseURL      string `yaml:"api_base_url" toml:"api_base_url" json:"api_base_url"`
	DownloadBaseURL string `yaml:"download_base_url" toml:"download_base_url" json:"download_base_url,omitempty"`
	AppCFN          string `yaml:"app_cfn" toml:"app_cfn" json:"app_cfn"`
}

// Credentials are the default API credentials.
type Credentials struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// Timeouts bound each remote call.
type Timeouts struct {
	Auth     Duration `yaml:"auth" toml:"auth"`         // default 30s
	Lookup   Duration `yaml:"lookup" toml:"lookup"`     // default 60s
	Link     Duration `yaml:"link" toml:"link"`         // default 120s
	Download Duration `yaml:"download" toml:"download"` // default 180s
}

// Concurrency bounds parallel work. 1/1 is strictly sequential.
type Concurrency struct {
	// Lookup is the number of identifiers collected in parallel (default 4).
	Lookup int `yaml:"lookup" toml:"lookup"`
	// Process is the number of items normalized in parallel (default: NumCPU, max 8).
	Process int `yaml:"process" toml:"process"`
	// Window caps normalized payloads held in memory waiting for the writer
	// (default 2*Process).
	Window int `yaml:"window" toml:"window"`
}

// Limits caps resource usage.
type Limits struct {
	// MaxDownloadBytes caps one response body (default 512 MB).
	MaxDownloadBytes int64 `yaml:"max_download_bytes" toml:"max_download_bytes"`
}

// RenderConfig selects the HTML to PDF converters.
type RenderConfig struct {
	Mode        string   `yaml:"mode" toml:"mode"` // chrome | text | chain
	ChromeBin   string   `yaml:"chrome_bin" toml:"chrome_bin"`
	RemoteURL   string   `yaml:"remote_url" toml:"remote_url"`
	Sanitize    *bool    `yaml:"sanitize" toml:"sanitize"`
	PageTimeout Duration `yaml:"page_timeout" toml:"page_timeout"`
	MaxPages    int      `yaml:"max_pages" toml:"max_pages"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// Username and PasswordHash (bcrypt) enable Basic auth on /api routes.
	Username     string `yaml:"username" toml:"username"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// Config configures the service.
type Config struct {
	Tenants     map[string]TenantConfig `yaml:"tenants" toml:"tenants"`
	Credentials Credentials             `yaml:"credentials" toml:"credentials"`
	Timeouts    Timeouts                `yaml:"timeouts" toml:"timeouts"`
	Concurrency Concurrency             `yaml:"concurrency" toml:"concurrency"`
	Limits      Limits                  `yaml:"limits" toml:"limits"`
	Render      RenderConfig            `yaml:"render" toml:"render"`
	OutputDir   string                  `yaml:"output_dir" toml:"output_dir"`
	// HistoryDB is the SQLite run history. Empty disables history.
	HistoryDB string       `yaml:"history_db" toml:"history_db"`
	Server    ServerConfig `yaml:"server" toml:"server"`
	LogLevel  string       `yaml:"log_level" toml:"log_level"`
}

func (c *Config) defaults() {
	if c.Timeouts.Auth <= 0 {
		c.Timeouts.Auth = Duration(30 * time.Second)
	}
	if c.Timeouts.Lookup <= 0 {
		c.Timeouts.Lookup = Duration(60 * time.Second)
	}
	if c.Timeouts.Link <= 0 {
		c.Timeouts.Link = Duration(120 * time.Second)
	}
	if c.Timeouts.Download <= 0 {
		c.Timeouts.Download = Duration(180 * time.Second)
	}
	if c.Concurrency.Lookup <= 0 {
		c.Concurrency.Lookup = 4
	}
	if c.Concurrency.Process <= 0 {
		c.Concurrency.Process = min(runtime.NumCPU(), 8)
	}
	if c.Concurrency.Window < c.Concurrency.Process {
		c.Concurrency.Window = 2 * c.Concurrency.Process
	}
	if c.Limits.MaxDownloadBytes <= 0 {
		c.Limits.MaxDownloadBytes = 512 << 20
	}
	if c.Render.Mode == "" {
		c.Render.Mode = string(render.ModeChain)
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8420"
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for key, t := range c.Tenants {
		if t.DownloadBaseURL == "" {
			t.DownloadBaseURL = t.APIBaseURL
		}
		if t.DisplayName == "" {
			t.DisplayName = key
		}
		c.Tenants[key] = t
	}
}

// Validate checks every tenant. It does not require any tenant to exist.
func (c *Config) Validate() error {
	var errs []error
	for _, key := range c.TenantKeys() {
		if err := c.Tenants[key].validate(); err != nil {
			errs = append(errs, fmt.Errorf("tenant %q: %w", key, err))
		}
	}
	switch render.Mode(c.Render.Mode) {
	case render.ModeChrome, render.ModeText, render.ModeChain, "":
	default:
		errs = append(errs, fmt.Errorf("render.mode %q: want chrome, text or chain", c.Render.Mode))
	}
	return errors.Join(errs...)
}

func (t TenantConfig) validate() error {
	if t.APIBaseURL == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrTenantConfig)
	}
	if t.AppCFN == "" {
		return fmt.Errorf("%w: app_cfn is required", ErrTenantConfig)
	}
	if err := fetch.ValidateURL(t.APIBaseURL); err != nil {
		return fmt.Errorf("%w: api_base_url: %v", ErrTenantConfig, err)
	}
	if t.DownloadBaseURL != "" {
		if err := fetch.ValidateURL(t.DownloadBaseURL); err != nil {
			return fmt.Errorf("%w: download_base_url: %v", ErrTenantConfig, err)
		}
	}
	return nil
}

// TenantKeys returns the configured tenant keys, sorted.
func (c *Config) TenantKeys() []string {
	keys := make([]string, 0, len(c.Tenants))
	for k := range c.Tenants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tenant returns the configuration of key.
func (c *Config) Tenant(key string) (TenantConfig, error) {
	t, ok := c.Tenants[key]
	if !ok {
		return TenantConfig{}, fmt.Errorf("%w: %q", ErrUnknownTenant, key)
	}
	if err := t.validate(); err != nil {
		return TenantConfig{}, fmt.Errorf("tenant %q: %w", key, err)
	}
	return t, nil
}

func (c *Config) renderConfig(logger *slog.Logger) render.Config {
	return render.Config{
		Mode:        render.Mode(c.Render.Mode),
		ChromeBin:   c.Render.ChromeBin,
		RemoteURL:   c.Render.RemoteURL,
		Sanitize:    c.Render.Sanitize,
		PageTimeout: c.Render.PageTimeout.D(),
		MaxPages:    c.Render.MaxPages,
		Logger:      logger,
	}
}

// ApplyEnv overrides credentials and log level from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvUsername); v != "" {
		c.Credentials.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Credentials.Password = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or TOML (.toml) file, applies
// environment overrides and defaults, and validates the result.
//
// A TOML file without a [tenants] table is read in the secrets layout:
// every top-level table carrying display_name and api_base_url is a tenant,
// and [api_credentials] holds the default credentials.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sugos: read config: %w", err)
	}
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(data, cfg)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("sugos: config %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("sugos: parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sugos: config %s: %w", path, err)
	}
	return cfg, nil
}

// FindConfig returns the config path to use: explicit, then $SUGOS_CONFIG,
// then the first of sugos.yaml, sugos.toml, secrets.toml in the working
// directory. An empty result means none was found.
func FindConfig(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvConfig); v != "" {
		return v
	}
	for _, name := range []string{"sugos.yaml", "sugos.yml", "sugos.toml", "secrets.toml"} {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name
		}
	}
	return ""
}

func decodeTOML(data []byte, cfg *Config) error {
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return err
	}
	if len(cfg.Tenants) > 0 {
		return nil
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, v := range raw {
		section, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if key == "api_credentials" {
			if cfg.Credentials.Username == "" {
				cfg.Credentials.Username, _ = section["username"].(string)
			}
			if cfg.Credentials.Password == "" {
				cfg.Credentials.Password, _ = section["password"].(string)
			}
			continue
		}
		name, _ := section["display_name"].(string)
		api, _ := section["api_base_url"].(string)
		if name == "" || api == "" {
			continue
		}
		if cfg.Tenants == nil {
			cfg.Tenants = make(map[string]TenantConfig)
		}
		dl, _ := section["download_base_url"].(string)
		cfn, _ := section["app_cfn"].(string)
		cfg.Tenants[key] = TenantConfig{DisplayName: name, APIBaseURL: api, DownloadBaseURL: dl, AppCFN: cfn}
	}
	return nil
}
