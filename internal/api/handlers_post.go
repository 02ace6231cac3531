package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/auth"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/event"
	"github.com/bracketline/eventserve/internal/pkg/httputil"
	"github.com/bracketline/eventserve/internal/shortlink"
)

const maxBodyBytes = 1 << 20

// Actions that must present valid credentials.
var authActions = map[string]bool{
	"create":                 true,
	"update":                 true,
	"updateEventData":        true,
	"getReport":              true,
	"getAdminBundle":         true,
	"createShortlink":        true,
	"listFormTemplates":      true,
	"createFormFromTemplate": true,
	"generateFormShortlink":  true,
	"getSponsorAnalytics":    true,
	"getSponsorROI":          true,
}

// State-changing actions that additionally consume a CSRF token when called
// from a browser session.
var csrfActions = map[string]bool{
	"create":                 true,
	"update":                 true,
	"updateEventData":        true,
	"createShortlink":        true,
	"createFormFromTemplate": true,
	"generateFormShortlink":  true,
}

// handleRootPost is the action dispatch: decode, gate (lockout, rate limit,
// origin, auth, CSRF), then route to the owning service.
func (s *Server) handleRootPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.ErrKind(w, apperr.BadInput, "Invalid JSON body")
		return
	}
	if req.Action == "" {
		httputil.ErrKind(w, apperr.BadInput, "Missing action")
		return
	}

	snap := s.registry.Snapshot()
	tenant := resolveTenant(snap, r, req.BrandID)
	ip := clientIP(r)
	ctx := r.Context()

	if s.limiter.LockedOut(ctx, tenant.ID, ip) {
		httputil.ErrKind(w, apperr.RateLimited, "Too many failed attempts")
		return
	}
	if err := s.limiter.Allow(ctx, tenant.ID, ip); err != nil {
		httputil.Err(w, err)
		return
	}

	creds := credsFrom(r, req.AdminKey)
	if err := auth.CheckOrigin(snap, r.Header.Get("Origin"), creds.Bearer != "" || creds.APIKey != ""); err != nil {
		httputil.Err(w, err)
		return
	}

	if authActions[req.Action] {
		if _, err := auth.Resolve(snap, tenant.ID, creds, s.now()); err != nil {
			s.limiter.RecordAuthFailure(ctx, tenant.ID, ip)
			s.logFailure(r, err)
			httputil.Err(w, err)
			return
		}
	}

	// Shared-secret and API-key callers are not browser sessions; the CSRF
	// requirement applies to the interactive paths.
	if csrfActions[req.Action] && creds.AdminKey == "" && creds.APIKey == "" {
		token := req.CSRFToken
		if token == "" {
			token = r.Header.Get("X-CSRF-Token")
		}
		if err := s.csrf.Validate(ctx, csrfUserKey(tenant.ID, ip), token); err != nil {
			httputil.Err(w, err)
			return
		}
	}

	s.dispatch(w, r, tenant, req)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, tenant config.Tenant, req rpcRequest) {
	ctx := r.Context()

	switch req.Action {
	case "create":
		e, err := s.events.Create(ctx, tenant, event.CreateInput{
			ID:           req.ID,
			Slug:         req.Slug,
			Name:         req.Name,
			StartDateISO: req.StartDateISO,
			Venue:        req.Venue,
			TemplateID:   req.TemplateID,
			Scope:        req.Scope,
			IdemKey:      req.IdemKey,
			Data:         req.Data,
		})
		if err != nil {
			s.logFailure(r, err)
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, e, event.ETag(e))

	case "update", "updateEventData":
		e, etag, err := s.events.Update(ctx, tenant, event.UpdateInput{ID: req.ID, Data: req.Data})
		s.respond(w, r, e, etag, req.IfNoneMatch, err)

	case "logEvents":
		if err := s.ingest.LogEvents(ctx, req.Items); err != nil {
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, map[string]int{"accepted": len(req.Items)}, "")

	case "logExternalClick":
		err := s.ingest.LogExternalClick(ctx, analytics.ExternalClick{
			EventID:           req.EventID,
			LinkType:          req.LinkType,
			Surface:           req.Surface,
			SessionID:         req.SessionID,
			VisibleSponsorIDs: req.VisibleSponsorIDs,
		})
		if err != nil {
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, map[string]bool{"logged": true}, "")

	case "getReport":
		// Resolve through the tenant first so cross-tenant probes read as
		// missing rather than forbidden.
		if _, _, err := s.events.Get(ctx, tenant.ID, req.ID); err != nil {
			s.logFailure(r, err)
			httputil.Err(w, err)
			return
		}
		rep, err := s.reporter.EventReport(ctx, req.ID)
		if err != nil {
			s.logFailure(r, err)
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, rep, event.ETag(rep))

	case "getAdminBundle":
		b, etag, err := s.bundles.Admin(ctx, tenant, req.ID, req.Mode)
		s.respond(w, r, b, etag, req.IfNoneMatch, err)

	case "createShortlink":
		created, err := s.shortlinks.Create(ctx, shortlink.CreateInput{
			TargetURL: req.TargetURL,
			EventID:   req.EventID,
			SponsorID: req.SponsorID,
			Surface:   req.Surface,
			TenantID:  tenant.ID,
		})
		if err != nil {
			s.logFailure(r, err)
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, created, "")

	case "listFormTemplates":
		templates, err := s.forms.ListTemplates(ctx, tenant.ID)
		if err != nil {
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, map[string]interface{}{"templates": templates}, "")

	case "createFormFromTemplate":
		s.handleCreateForm(w, r, tenant, req)

	case "generateFormShortlink":
		s.handleFormShortlink(w, r, tenant, req)

	case "getSponsorAnalytics":
		s.handleSponsorAnalytics(w, r, req)

	case "getSponsorROI":
		s.handleSponsorROI(w, r, req)

	default:
		httputil.ErrKind(w, apperr.BadInput, "Unknown action: "+req.Action)
	}
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request, tenant config.Tenant, req rpcRequest) {
	ctx := r.Context()

	created, err := s.forms.CreateFromTemplate(ctx, tenant.ID, req.FormTemplateID, req.EventID, req.Title)
	if err != nil {
		s.logFailure(r, err)
		httputil.Err(w, err)
		return
	}

	// Attach the live form to the event so bundles and shortlinks find it.
	if req.EventID != "" {
		if err := s.events.SetExternalData(ctx, tenant.ID, req.EventID, "formUrl", created.FormURL); err != nil {
			s.logFailure(r, err)
			httputil.Err(w, err)
			return
		}
	}
	httputil.OK(w, created, "")
}

func (s *Server) handleFormShortlink(w http.ResponseWriter, r *http.Request, tenant config.Tenant, req rpcRequest) {
	ctx := r.Context()

	e, _, err := s.events.Get(ctx, tenant.ID, req.EventID)
	if err != nil {
		s.logFailure(r, err)
		httputil.Err(w, err)
		return
	}
	formURL, _ := e.ExternalData["formUrl"].(string)
	if formURL == "" {
		httputil.ErrKind(w, apperr.BadInput, "No form attached to this event")
		return
	}

	created, err := s.shortlinks.Create(ctx, shortlink.CreateInput{
		TargetURL: formURL,
		EventID:   req.EventID,
		Surface:   "form",
		TenantID:  tenant.ID,
	})
	if err != nil {
		s.logFailure(r, err)
		httputil.Err(w, err)
		return
	}
	httputil.OK(w, created, "")
}

func (s *Server) handleSponsorAnalytics(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	from, to, err := parseWindow(req.DateFrom, req.DateTo)
	if err != nil {
		httputil.Err(w, err)
		return
	}
	rows, err := s.reporter.SponsorRows(r.Context(), req.SponsorID, from, to)
	if err != nil {
		s.logFailure(r, err)
		httputil.Err(w, err)
		return
	}

	res := analytics.CalculateROI(rows, analytics.ROIInput{
		SponsorID: req.SponsorID, DateFrom: from, DateTo: to,
	})
	httputil.OK(w, map[string]interface{}{
		"sponsorId": req.SponsorID,
		"period":    res.Period,
		"metrics":   res.Metrics,
		"rows":      len(rows),
	}, "")
}

func (s *Server) handleSponsorROI(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	from, to, err := parseWindow(req.DateFrom, req.DateTo)
	if err != nil {
		httputil.Err(w, err)
		return
	}
	rows, err := s.reporter.SponsorRows(r.Context(), req.SponsorID, from, to)
	if err != nil {
		s.logFailure(r, err)
		httputil.Err(w, err)
		return
	}

	res := analytics.CalculateROI(rows, analytics.ROIInput{
		SponsorID:           req.SponsorID,
		SponsorshipCost:     req.SponsorshipCost,
		CostPerClick:        req.CostPerClick,
		ConversionRate:      req.ConversionRate,
		AvgTransactionValue: req.AvgTransactionValue,
		DateFrom:            from,
		DateTo:              to,
	})
	httputil.OK(w, res, "")
}

// parseWindow accepts RFC 3339 timestamps or bare dates for the optional
// report bounds.
func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = parseFlexibleTime(fromStr); err != nil {
			return from, to, apperr.New(apperr.BadInput, "Invalid dateFrom")
		}
	}
	if toStr != "" {
		if to, err = parseFlexibleTime(toStr); err != nil {
			return from, to, apperr.New(apperr.BadInput, "Invalid dateTo")
		}
	}
	return from, to, nil
}

func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// logFailure records internal failures to the diagnostic log; validation
// errors are not worth a row.
func (s *Server) logFailure(r *http.Request, err error) {
	if s.diag == nil {
		return
	}
	if apperr.KindOf(err) != apperr.Internal {
		return
	}
	s.diag.Log(r.Context(), "error", r.Method+" "+r.URL.Path, err.Error(), map[string]interface{}{
		"action": r.URL.Query().Get("action"),
	})
}
