// Package shortlink mints trackable redirect tokens and serves the redirect
// endpoint. Shortlinks are created once and never mutated; a redirect is a
// read with a fire-and-forget analytics side effect.
package shortlink

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/pkg/logger"
	"github.com/bracketline/eventserve/internal/security"
	"github.com/bracketline/eventserve/internal/store"
)

// Created is the createShortlink response.
type Created struct {
	Token     string `json:"token"`
	Shortlink string `json:"shortlink"`
}

// CreateInput carries the attribution recorded alongside the target.
type CreateInput struct {
	TargetURL string
	EventID   string
	SponsorID string
	Surface   string
	TenantID  string
}

// Service mints tokens and handles redirects.
type Service struct {
	store    *store.Store
	registry *config.Registry
	ingest   *analytics.Ingest
	now      func() time.Time
}

func New(st *store.Store, reg *config.Registry, ing *analytics.Ingest) *Service {
	return &Service{store: st, registry: reg, ingest: ing, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create validates the target and appends a new shortlink row. Tokens are
// full UUID v4, globally unique across tenants.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	if !security.IsURL(in.TargetURL) {
		return nil, apperr.New(apperr.BadInput, "Invalid target URL")
	}
	if in.EventID != "" && !security.ValidUUIDv4(in.EventID) {
		return nil, apperr.New(apperr.BadInput, "Invalid eventId")
	}

	token := uuid.NewString()
	row := store.ShortlinkRow{
		Token:     token,
		TargetURL: in.TargetURL,
		EventID:   in.EventID,
		SponsorID: security.Sanitize(in.SponsorID, 100),
		Surface:   security.Sanitize(in.Surface, 50),
		CreatedAt: s.now().UTC(),
		TenantID:  in.TenantID,
	}
	if err := s.store.AppendShortlink(ctx, row); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Failed to store shortlink", err)
	}

	snap := s.registry.Snapshot()
	return &Created{
		Token:     token,
		Shortlink: snap.BaseURL() + "?p=r&t=" + url.QueryEscape(token),
	}, nil
}

// Redirect serves the ?page=r endpoint. It always answers with a small HTML
// page: an error page for bad tokens, a meta-refresh for targets on a
// configured tenant host, or a warning interstitial for external domains.
func (s *Service) Redirect(w http.ResponseWriter, r *http.Request, token string) {
	if token == "" || !security.ValidUUIDv4(token) {
		writeErrorPage(w, http.StatusBadRequest, "Invalid shortlink",
			"This link is malformed or incomplete.")
		return
	}

	row, err := s.store.GetShortlink(r.Context(), token)
	if err != nil {
		logger.Error("shortlink lookup failed", "error", err)
		writeErrorPage(w, http.StatusInternalServerError, "Something went wrong",
			"Please try the link again in a moment.")
		return
	}
	if row == nil {
		writeErrorPage(w, http.StatusNotFound, "Shortlink not found",
			"This link may have expired or never existed.")
		return
	}

	// Targets are validated at mint time but the denylist may have grown
	// since, so re-check before forwarding anyone.
	if !security.IsURL(row.TargetURL) {
		writeErrorPage(w, http.StatusBadRequest, "Invalid destination",
			"The destination of this link is no longer allowed.")
		return
	}

	s.ingest.LogClick(r.Context(), row.EventID, row.Surface, row.SponsorID, row.Token)

	if s.isTenantHost(row.TargetURL) {
		writeRedirectPage(w, row.TargetURL)
		return
	}
	writeWarningPage(w, row.TargetURL)
}

// isTenantHost reports whether the target's host belongs to any configured
// tenant. Matching is case-insensitive and exact.
func (s *Service) isTenantHost(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	return s.registry.Snapshot().IsTenantHost(host)
}
