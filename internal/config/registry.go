package config

import (
	"strings"
	"sync/atomic"
)

// Snapshot is an immutable, indexed view of the configuration. Handlers
// resolve one snapshot per request and never observe a partial reload.
type Snapshot struct {
	cfg           *Config
	tenantsByID   map[string]Tenant
	tenantsByHost map[string]Tenant
	templatesByID map[string]Template
}

func newSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{
		cfg:           cfg,
		tenantsByID:   make(map[string]Tenant, len(cfg.Tenants)),
		tenantsByHost: make(map[string]Tenant),
		templatesByID: make(map[string]Template, len(cfg.Templates)),
	}
	for _, t := range cfg.Tenants {
		s.tenantsByID[t.ID] = t
		for _, h := range t.Hostnames {
			s.tenantsByHost[strings.ToLower(h)] = t
		}
	}
	for _, tpl := range cfg.Templates {
		s.templatesByID[tpl.ID] = tpl
	}
	return s
}

// Tenant looks a tenant up by ID.
func (s *Snapshot) Tenant(id string) (Tenant, bool) {
	t, ok := s.tenantsByID[id]
	return t, ok
}

// TenantByHost looks a tenant up by hostname (case-insensitive, no port).
func (s *Snapshot) TenantByHost(host string) (Tenant, bool) {
	t, ok := s.tenantsByHost[strings.ToLower(host)]
	return t, ok
}

// Root returns the fallback tenant. Load guarantees it exists.
func (s *Snapshot) Root() Tenant {
	return s.tenantsByID[RootTenantID]
}

// Tenants returns all configured tenants.
func (s *Snapshot) Tenants() []Tenant { return s.cfg.Tenants }

// Template looks a template up by ID.
func (s *Snapshot) Template(id string) (Template, bool) {
	t, ok := s.templatesByID[id]
	return t, ok
}

// Templates returns all configured templates.
func (s *Snapshot) Templates() []Template { return s.cfg.Templates }

// Alias resolves a friendly URL segment.
func (s *Snapshot) Alias(segment string) (Alias, bool) {
	a, ok := s.cfg.Aliases[strings.ToLower(segment)]
	return a, ok
}

// AdminSecret returns the shared secret for a tenant, empty if unset.
func (s *Snapshot) AdminSecret(tenantID string) string {
	return s.cfg.AdminSecrets[tenantID]
}

// IsTenantHost reports whether host belongs to any configured tenant.
func (s *Snapshot) IsTenantHost(host string) bool {
	_, ok := s.tenantsByHost[strings.ToLower(host)]
	return ok
}

// ProviderHosts returns extra hosts accepted by the origin check.
func (s *Snapshot) ProviderHosts() []string { return s.cfg.Origins.ProviderHosts }

// BaseURL returns the public base URL, always with a trailing slash removed.
func (s *Snapshot) BaseURL() string { return strings.TrimRight(s.cfg.BaseURL, "/") }

// Build returns the build identifier.
func (s *Snapshot) Build() string { return s.cfg.Build }

// Contract returns the wire contract version.
func (s *Snapshot) Contract() string { return s.cfg.Contract }

// QRBaseURL returns the external QR image API base URL.
func (s *Snapshot) QRBaseURL() string { return s.cfg.QR.BaseURL }

// Display returns the display-surface defaults.
func (s *Snapshot) Display() DisplayConfig { return s.cfg.Display }

// LayoutFor merges the global layout with the per-template override.
func (s *Snapshot) LayoutFor(templateID string) LayoutConfig {
	layout := s.cfg.Display.Layout
	if o, ok := s.cfg.Display.Overrides[templateID]; ok {
		layout = o
		if layout.Emphasis == "" {
			layout.Emphasis = s.cfg.Display.Layout.Emphasis
		}
	}
	return layout
}

// Registry is the process-wide configuration holder. Reloads swap the active
// snapshot pointer atomically; readers keep the snapshot they started with.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry builds a registry from an initial config.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{}
	r.current.Store(newSnapshot(cfg))
	return r
}

// Snapshot returns the current immutable configuration view.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Swap replaces the active configuration atomically.
func (r *Registry) Swap(cfg *Config) {
	r.current.Store(newSnapshot(cfg))
}
