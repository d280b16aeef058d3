// Package config loads Simonini-isms settings from YAML, the environment and
// built-in defaults, and validates them against an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Environments.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds all application settings.
type Config struct {
	Env    string `yaml:"env" json:"env"`
	Listen string `yaml:"listen" json:"listen"`

	Database     DatabaseConfig `yaml:"database" json:"database"`
	DemoDatabase DatabaseConfig `yaml:"demo_database" json:"demo_database"`

	Session SessionConfig `yaml:"session" json:"session"`

	LoginURL    string   `yaml:"login_url" json:"login_url"`
	AppURL      string   `yaml:"app_url" json:"app_url"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	JobTread JobTreadConfig `yaml:"jobtread" json:"jobtread"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Importer ImporterConfig `yaml:"importer" json:"importer"`
}

// DatabaseConfig locates a SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SessionConfig configures the shared login cookies.
type SessionConfig struct {
	CookieName     string `yaml:"cookie_name" json:"cookie_name"`
	DemoCookieName string `yaml:"demo_cookie_name" json:"demo_cookie_name"`
	CookieDomain   string `yaml:"cookie_domain" json:"cookie_domain"`
	CookieSecure   bool   `yaml:"cookie_secure" json:"cookie_secure"`
	TTL            string `yaml:"ttl" json:"ttl"` // lifetime of sessions issued locally
}

// JobTreadConfig configures the JobTread Pave API client.
type JobTreadConfig struct {
	APIKey          string `yaml:"api_key" json:"api_key"`
	BaseURL         string `yaml:"base_url" json:"base_url"`
	OrganizationID  string `yaml:"organization_id" json:"organization_id"`
	PhaseSpecsJobID string `yaml:"phase_specs_job_id" json:"phase_specs_job_id"`
	Timeout         string `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, console
}

// ImporterConfig configures the offline spec importer.
type ImporterConfig struct {
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Env:    EnvProduction,
		Listen: ":5000",

		Database: DatabaseConfig{Path: "data/isms.db"},

		Session: SessionConfig{
			CookieName:     "session_token",
			DemoCookieName: "demo_session",
			CookieDomain:   ".ruff.uno",
			CookieSecure:   true,
			TTL:            "24h",
		},

		LoginURL: "https://ash.ruff.uno/login",
		AppURL:   "https://isms.ruff.uno",
		CORSOrigins: []string{
			"https://isms.ruff.uno",
			"https://ash.ruff.uno",
			"http://localhost:5000",
			"http://localhost:8082",
		},

		JobTread: JobTreadConfig{
			BaseURL: "https://api.jobtread.com/pave",
			Timeout: "30s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		Importer: ImporterConfig{Concurrency: 4},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment overrides, then
// the environment profile. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.applyProfile()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ISMS_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DEMO_DB_PATH"); v != "" {
		c.DemoDatabase.Path = v
	}
	if v, ok := os.LookupEnv("COOKIE_DOMAIN"); ok {
		c.Session.CookieDomain = v
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		c.Session.CookieSecure = secure
	}
	if v := os.Getenv("RUFF_LOGIN_URL"); v != "" {
		c.LoginURL = v
	}
	if v := os.Getenv("APP_URL"); v != "" {
		c.AppURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("JOBTREAD_API_KEY"); v != "" {
		c.JobTread.APIKey = v
	}
	if v := os.Getenv("JOBTREAD_API_BASE_URL"); v != "" {
		c.JobTread.BaseURL = v
	}
	if v := os.Getenv("JOBTREAD_ORGANIZATION_ID"); v != "" {
		c.JobTread.OrganizationID = v
	}
	if v := os.Getenv("PHASE_SPECS_JOB_ID"); v != "" {
		c.JobTread.PhaseSpecsJobID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// applyProfile adjusts settings for local development: cookies are neither
// secure nor scoped to a domain, and logs are human readable.
func (c *Config) applyProfile() {
	if !c.IsDevelopment() {
		return
	}
	c.Session.CookieSecure = false
	c.Session.CookieDomain = ""
	c.Logging.Format = "console"
}

// IsDevelopment reports whether the development profile is active.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.Session.TTL, 24*time.Hour)
}

// JobTreadTimeout returns the JobTread request timeout as a duration.
func (c *Config) JobTreadTimeout() time.Duration {
	return parseDuration(c.JobTread.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.CORSOrigins = append([]string(nil), c.CORSOrigins...)
	if out.JobTread.APIKey != "" {
		out.JobTread.APIKey = "****"
	}
	return &out
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
