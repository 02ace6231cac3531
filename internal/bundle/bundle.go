// Package bundle composes read-only, surface-specific views of an event:
// public, display, poster, sponsor, shared-report and admin. Every bundle
// carries an ETag so callers can revalidate cheaply with ifNoneMatch.
package bundle

import (
	"context"
	"net/url"
	"time"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/event"
	"github.com/bracketline/eventserve/internal/store"
)

// Service composes bundles from the event service, the report aggregator and
// the configuration registry.
type Service struct {
	events   *event.Service
	reporter *analytics.Reporter
	registry *config.Registry
}

func New(events *event.Service, reporter *analytics.Reporter, reg *config.Registry) *Service {
	return &Service{events: events, reporter: reporter, registry: reg}
}

// BrandInfo is the per-tenant block embedded in public-facing bundles.
type BrandInfo struct {
	AppTitle  string `json:"appTitle"`
	BrandID   string `json:"brandId"`
	BrandName string `json:"brandName"`
}

// PublicBundle is the full event plus the brand header block.
type PublicBundle struct {
	Event  *event.Event `json:"event"`
	Config BrandInfo    `json:"config"`
}

// Public composes the public page bundle.
func (s *Service) Public(ctx context.Context, tenant config.Tenant, id string) (*PublicBundle, string, error) {
	e, _, err := s.events.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, "", err
	}
	b := &PublicBundle{
		Event: e,
		Config: BrandInfo{
			AppTitle:  tenant.Name,
			BrandID:   tenant.ID,
			BrandName: tenant.Name,
		},
	}
	return b, event.ETag(b), nil
}

// Rotation drives the sponsor carousel on the display surface.
type Rotation struct {
	SponsorSlots int `json:"sponsorSlots"`
	RotationMs   int `json:"rotationMs"`
}

// Layout describes the display surface arrangement.
type Layout struct {
	HasSidePane bool   `json:"hasSidePane"`
	Emphasis    string `json:"emphasis"`
}

// DisplayBundle is the event plus rotation and layout computed from global
// defaults merged with the per-template override.
type DisplayBundle struct {
	Event    *event.Event `json:"event"`
	Rotation Rotation     `json:"rotation"`
	Layout   Layout       `json:"layout"`
}

// Display composes the venue-screen bundle.
func (s *Service) Display(ctx context.Context, tenant config.Tenant, id string) (*DisplayBundle, string, error) {
	e, _, err := s.events.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, "", err
	}
	snap := s.registry.Snapshot()
	disp := snap.Display()
	layout := snap.LayoutFor(e.TemplateID)

	b := &DisplayBundle{
		Event:    e,
		Rotation: Rotation{SponsorSlots: disp.SponsorSlots, RotationMs: disp.RotationMs},
		Layout:   Layout{HasSidePane: layout.HasSidePane, Emphasis: layout.Emphasis},
	}
	return b, event.ETag(b), nil
}

// PrintLines are the pre-formatted poster text lines.
type PrintLines struct {
	DateLine  string `json:"dateLine"`
	VenueLine string `json:"venueLine"`
}

// QRCodeURLs point at the external QR image API; posters embed the image
// URL directly instead of a data URI.
type QRCodeURLs struct {
	Public string `json:"public"`
	Signup string `json:"signup"`
}

// PosterBundle is the event plus printable QR image URLs and text lines.
type PosterBundle struct {
	Event   *event.Event `json:"event"`
	QRCodes QRCodeURLs   `json:"qrCodes"`
	Print   PrintLines   `json:"print"`
}

// Poster composes the print bundle.
func (s *Service) Poster(ctx context.Context, tenant config.Tenant, id string) (*PosterBundle, string, error) {
	e, _, err := s.events.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, "", err
	}
	qrBase := s.registry.Snapshot().QRBaseURL()

	b := &PosterBundle{
		Event: e,
		QRCodes: QRCodeURLs{
			Public: qrImageURL(qrBase, e.Links.PublicURL),
			Signup: qrImageURL(qrBase, e.Links.SignupURL),
		},
		Print: PrintLines{
			DateLine:  formatDateLine(e.StartDateISO),
			VenueLine: e.Venue,
		},
	}
	return b, event.ETag(b), nil
}

// ThinEvent is the reduced event shape used by sponsor-facing bundles.
type ThinEvent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DateTime string `json:"dateTime"`
	Location string `json:"location"`
	BrandID  string `json:"brandId"`
}

// SponsorStats is one sponsor's aggregate for this event.
type SponsorStats struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Tier        string  `json:"tier,omitempty"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

// SponsorBundle is the thin event plus per-sponsor aggregates.
type SponsorBundle struct {
	Event    ThinEvent      `json:"event"`
	Sponsors []SponsorStats `json:"sponsors"`
}

// Sponsor composes the sponsor dashboard bundle.
func (s *Service) Sponsor(ctx context.Context, tenant config.Tenant, id string) (*SponsorBundle, string, error) {
	e, _, err := s.events.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, "", err
	}
	rep, err := s.reporter.EventReport(ctx, id)
	if err != nil {
		return nil, "", err
	}

	b := &SponsorBundle{
		Event:    thin(e, tenant.ID),
		Sponsors: []SponsorStats{},
	}
	for _, sp := range e.Sponsors {
		stats := SponsorStats{ID: sp.ID, Name: sp.Name, Tier: sp.Tier}
		if agg, ok := rep.Sponsors[sp.ID]; ok {
			stats.Impressions = agg.Impressions
			stats.Clicks = agg.Clicks
			stats.CTR = agg.CTR
		}
		b.Sponsors = append(b.Sponsors, stats)
	}
	return b, event.ETag(b), nil
}

// SharedReportBundle is the thin event plus the read-only metrics block
// shared with sponsors and organizers.
type SharedReportBundle struct {
	Event     ThinEvent                      `json:"event"`
	Metrics   *analytics.SharedReportMetrics `json:"metrics"`
	ReportURL string                         `json:"reportUrl,omitempty"`
}

// SharedReport composes the shared-report bundle.
func (s *Service) SharedReport(ctx context.Context, tenant config.Tenant, id string) (*SharedReportBundle, string, error) {
	e, _, err := s.events.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, "", err
	}
	metrics, err := s.reporter.SharedReport(ctx, id)
	if err != nil {
		return nil, "", err
	}

	b := &SharedReportBundle{
		Event:     thin(e, tenant.ID),
		Metrics:   metrics,
		ReportURL: e.Links.SharedReportURL,
	}
	return b, event.ETag(b), nil
}

// Diagnostics summarizes an event's auxiliary state for the admin surface.
type Diagnostics struct {
	HasForm         bool   `json:"hasForm"`
	HasShortlinks   bool   `json:"hasShortlinks"`
	LastPublishedAt string `json:"lastPublishedAt"`
}

// BrandConfig is the tenant block exposed to authenticated admins.
type BrandConfig struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Hostnames     []string `json:"hostnames"`
	ScopesAllowed []string `json:"scopesAllowed"`
	Type          string   `json:"type"`
	ChildBrands   []string `json:"childBrands,omitempty"`
}

// TemplateInfo is the admin view of an event template.
type TemplateInfo struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// AdminBundle is the full event plus tenant configuration, templates,
// diagnostics and the tenant's sponsor roster. Auth is enforced by the
// caller before composing it.
type AdminBundle struct {
	Mode        string          `json:"mode"`
	Event       *event.Event    `json:"event"`
	BrandConfig BrandConfig     `json:"brandConfig"`
	Templates   []TemplateInfo  `json:"templates"`
	Diagnostics *Diagnostics    `json:"diagnostics,omitempty"`
	AllSponsors []event.Sponsor `json:"allSponsors,omitempty"`
}

// Admin composes the admin bundle. mode "advanced" includes diagnostics and
// the full sponsor roster; anything else yields the lighter wizard view.
func (s *Service) Admin(ctx context.Context, tenant config.Tenant, id, mode string) (*AdminBundle, string, error) {
	e, _, err := s.events.Get(ctx, tenant.ID, id)
	if err != nil {
		return nil, "", err
	}
	snap := s.registry.Snapshot()

	if mode != "advanced" {
		mode = "wizard"
	}

	b := &AdminBundle{
		Mode:  mode,
		Event: e,
		BrandConfig: BrandConfig{
			ID:            tenant.ID,
			Name:          tenant.Name,
			Hostnames:     tenant.Hostnames,
			ScopesAllowed: tenant.ScopesAllowed,
			Type:          tenant.Type,
			ChildBrands:   tenant.ChildBrands,
		},
	}
	for _, tpl := range snap.Templates() {
		info := TemplateInfo{ID: tpl.ID, Name: tpl.Name, Fields: []string{}}
		for _, f := range tpl.Fields {
			info.Fields = append(info.Fields, f.ID)
		}
		b.Templates = append(b.Templates, info)
	}

	if mode == "advanced" {
		st := s.events.Store()

		nLinks, err := st.CountShortlinksForEvent(ctx, id)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.Internal, "Failed to load diagnostics", err)
		}
		b.Diagnostics = &Diagnostics{
			HasForm:         hasForm(e),
			HasShortlinks:   nLinks > 0,
			LastPublishedAt: e.UpdatedAtISO,
		}

		sponsors, err := st.ListSponsors(ctx, tenant.ID)
		if err != nil {
			return nil, "", apperr.Wrap(apperr.Internal, "Failed to load sponsors", err)
		}
		b.AllSponsors = toSponsors(sponsors)
	}

	return b, event.ETag(b), nil
}

func thin(e *event.Event, tenantID string) ThinEvent {
	return ThinEvent{
		ID:       e.ID,
		Name:     e.Name,
		DateTime: e.StartDateISO,
		Location: e.Venue,
		BrandID:  tenantID,
	}
}

func hasForm(e *event.Event) bool {
	if e.ExternalData == nil {
		return false
	}
	v, ok := e.ExternalData["formUrl"].(string)
	return ok && v != ""
}

func toSponsors(rows []store.SponsorRow) []event.Sponsor {
	out := make([]event.Sponsor, 0, len(rows))
	for _, r := range rows {
		out = append(out, event.Sponsor{
			ID: r.ID, Name: r.Name, Tier: r.Tier, LogoURL: r.LogoURL, LinkURL: r.LinkURL,
		})
	}
	return out
}

func qrImageURL(base, target string) string {
	return base + "?size=300x300&format=png&data=" + url.QueryEscape(target)
}

// formatDateLine renders startDateISO as a long human date. Unparseable
// input falls back to the raw value.
func formatDateLine(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format("Monday, January 2, 2006")
}
