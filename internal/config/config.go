package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. Tenants, templates,
// URL aliases and display defaults live in YAML; admin secrets come from the
// environment only and are never written to disk.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	BaseURL   string              `yaml:"base_url"`
	Build     string              `yaml:"build"`
	Contract  string              `yaml:"contract"`
	Database  DatabaseConfig      `yaml:"database"`
	Redis     RedisConfig         `yaml:"redis"`
	Analytics AnalyticsConfig     `yaml:"analytics"`
	QR        QRConfig            `yaml:"qr"`
	Tenants   []Tenant            `yaml:"tenants"`
	Templates []Template          `yaml:"templates"`
	Aliases   map[string]Alias    `yaml:"aliases"`
	Display   DisplayConfig       `yaml:"display"`
	Origins   OriginConfig        `yaml:"origins"`

	// AdminSecrets maps tenant ID to shared secret. Populated from
	// ADMIN_SECRET_<TENANT> environment variables in LoadFromEnv.
	AdminSecrets map[string]string `yaml:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional Redis settings. An empty Addr selects the
// in-memory cache and the PG advisory lock fallback.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AnalyticsConfig holds the optional SQS ingest pipeline settings. An empty
// QueueURL makes analytics writes go straight to the store.
type AnalyticsConfig struct {
	QueueURL string `yaml:"queue_url"`
}

// QRConfig holds the external QR image API settings.
type QRConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Tenant is an isolated namespace (brand) with its own hostnames, scopes,
// secret and storage partition. Read-only at runtime.
type Tenant struct {
	ID            string      `yaml:"id"`
	Name          string      `yaml:"name"`
	Hostnames     []string    `yaml:"hostnames"`
	ScopesAllowed []string    `yaml:"scopes_allowed"`
	Store         TenantStore `yaml:"store"`
	Type          string      `yaml:"type"` // "leaf" or "parent"
	ChildBrands   []string    `yaml:"child_brands"`

	IncludeInPortfolioReports bool `yaml:"include_in_portfolio_reports"`
}

// TenantStore names the tenant's storage partition.
type TenantStore struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
}

// AllowsScope reports whether the tenant may serve the given scope.
func (t Tenant) AllowsScope(scope string) bool {
	for _, s := range t.ScopesAllowed {
		if s == scope {
			return true
		}
	}
	return false
}

// MatchesHost reports whether host is one of the tenant's hostnames
// (case-insensitive exact match, port stripped by the caller).
func (t Tenant) MatchesHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range t.Hostnames {
		if strings.ToLower(h) == host {
			return true
		}
	}
	return false
}

// TemplateField declares one field an event template accepts on update.
type TemplateField struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"` // "string", "url", ...
	Required bool   `yaml:"required"`
}

// Template is an event template: identity plus its declared fields. Updates
// may only touch declared fields.
type Template struct {
	ID     string          `yaml:"id"`
	Name   string          `yaml:"name"`
	Fields []TemplateField `yaml:"fields"`
}

// Field returns the declared field with the given id, if any.
func (t Template) Field(id string) (TemplateField, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return TemplateField{}, false
}

// Alias maps a friendly URL segment to an API action or an HTML page.
type Alias struct {
	Target string `yaml:"target"`
	Kind   string `yaml:"kind"` // "api" or "page"
}

// DisplayConfig holds global display-surface defaults plus per-template
// layout overrides.
type DisplayConfig struct {
	RotationMs   int                     `yaml:"rotation_ms"`
	SponsorSlots int                     `yaml:"sponsor_slots"`
	Layout       LayoutConfig            `yaml:"layout"`
	Overrides    map[string]LayoutConfig `yaml:"overrides"` // keyed by template ID
}

// LayoutConfig describes the display surface layout.
type LayoutConfig struct {
	HasSidePane bool   `yaml:"has_side_pane"`
	Emphasis    string `yaml:"emphasis"` // "scores", "sponsors" or "hero"
}

// OriginConfig lists additional hosts accepted by the POST origin check
// beyond localhost and tenant hostnames.
type OriginConfig struct {
	ProviderHosts []string `yaml:"provider_hosts"`
}

// RootTenantID is the fallback tenant when neither the brand parameter nor
// the Host header resolves.
const RootTenantID = "root"

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://%s:%d/", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Build == "" {
		cfg.Build = "dev"
	}
	if cfg.Contract == "" {
		cfg.Contract = "v2"
	}
	if cfg.QR.BaseURL == "" {
		cfg.QR.BaseURL = "https://api.qrserver.com/v1/create-qr-code/"
	}
	if cfg.QR.TimeoutSeconds == 0 {
		cfg.QR.TimeoutSeconds = 5
	}
	if cfg.Display.RotationMs == 0 {
		cfg.Display.RotationMs = 8000
	}
	if cfg.Display.SponsorSlots == 0 {
		cfg.Display.SponsorSlots = 3
	}
	if cfg.Display.Layout.Emphasis == "" {
		cfg.Display.Layout.Emphasis = "scores"
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]Alias{}
	}
	if cfg.AdminSecrets == nil {
		cfg.AdminSecrets = map[string]string{}
	}

	if !cfg.hasTenant(RootTenantID) {
		return nil, fmt.Errorf("config: tenant %q must be defined", RootTenantID)
	}

	return &cfg, nil
}

func (c *Config) hasTenant(id string) bool {
	for _, t := range c.Tenants {
		if t.ID == id {
			return true
		}
	}
	return false
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SQS_ANALYTICS_QUEUE_URL"); v != "" {
		cfg.Analytics.QueueURL = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("BUILD_VERSION"); v != "" {
		cfg.Build = v
	}

	// Admin secrets: ADMIN_SECRET_<TENANT>, tenant ID uppercased with
	// dashes mapped to underscores. These never appear in YAML.
	for _, t := range cfg.Tenants {
		envKey := "ADMIN_SECRET_" + strings.ToUpper(strings.ReplaceAll(t.ID, "-", "_"))
		if v := os.Getenv(envKey); v != "" {
			cfg.AdminSecrets[t.ID] = v
		}
	}

	return cfg, nil
}
