package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/pkg/httputil"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok", "build": s.registry.Snapshot().Build()}, "")
}

// handleRootGet is the public read surface: ?action= endpoints, the
// shortlink redirect page, and ?page= bundle routes. Falls through to the
// public listing.
func (s *Server) handleRootGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap := s.registry.Snapshot()
	tenant := resolveTenant(snap, r, q.Get("brand"))
	ip := clientIP(r)

	// The redirect page answers with HTML, before any envelope machinery.
	// Minted shortlinks use the compact ?p= form; ?page= works too. The page
	// runs on its own looser budget since every hit appends a click row.
	if p := redirectParam(q); p == "r" || p == "redirect" {
		if err := s.limiter.AllowRedirect(r.Context(), tenant.ID, ip); err != nil {
			httputil.Err(w, err)
			return
		}
		token := q.Get("t")
		if token == "" {
			token = q.Get("token")
		}
		s.shortlinks.Redirect(w, r, token)
		return
	}

	if s.limiter.LockedOut(r.Context(), tenant.ID, ip) {
		httputil.ErrKind(w, apperr.RateLimited, "Too many failed attempts")
		return
	}
	if err := s.limiter.Allow(r.Context(), tenant.ID, ip); err != nil {
		httputil.Err(w, err)
		return
	}

	action := q.Get("action")
	if action == "" {
		if page := q.Get("page"); page != "" {
			action = actionForPage(page)
		}
	}
	if action == "" {
		action = "list"
	}

	ifNoneMatch := q.Get("etag")
	if ifNoneMatch == "" {
		ifNoneMatch = q.Get("ifNoneMatch")
	}

	switch action {
	case "status":
		s.writeStatus(w, r, tenant)

	case "config":
		s.writeConfig(w, tenant)

	case "generateCSRFToken":
		token, err := s.csrf.Issue(r.Context(), csrfUserKey(tenant.ID, ip))
		if err != nil {
			httputil.Err(w, err)
			return
		}
		httputil.OK(w, map[string]string{"csrfToken": token}, "")

	case "list":
		if scope := q.Get("scope"); scope != "" && !tenant.AllowsScope(scope) {
			httputil.ErrKind(w, apperr.BadInput, "Scope not allowed: "+scope)
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		result, etag, err := s.events.List(r.Context(), tenant.ID, limit, offset)
		s.respond(w, r, result, etag, ifNoneMatch, err)

	case "get":
		e, etag, err := s.events.Get(r.Context(), tenant.ID, q.Get("id"))
		s.respond(w, r, e, etag, ifNoneMatch, err)

	case "getPublicBundle":
		b, etag, err := s.bundles.Public(r.Context(), tenant, q.Get("id"))
		s.respond(w, r, b, etag, ifNoneMatch, err)

	case "getDisplayBundle":
		b, etag, err := s.bundles.Display(r.Context(), tenant, q.Get("id"))
		s.respond(w, r, b, etag, ifNoneMatch, err)

	case "getPosterBundle":
		b, etag, err := s.bundles.Poster(r.Context(), tenant, q.Get("id"))
		s.respond(w, r, b, etag, ifNoneMatch, err)

	case "getSponsorBundle":
		b, etag, err := s.bundles.Sponsor(r.Context(), tenant, q.Get("id"))
		s.respond(w, r, b, etag, ifNoneMatch, err)

	case "getSharedReportBundle":
		b, etag, err := s.bundles.SharedReport(r.Context(), tenant, q.Get("id"))
		s.respond(w, r, b, etag, ifNoneMatch, err)

	default:
		httputil.ErrKind(w, apperr.BadInput, "Unknown action: "+action)
	}
}

// redirectParam reads the redirect-page selector from either query form:
// the long ?page= or the compact ?p= that minted shortlinks carry.
func redirectParam(q url.Values) string {
	if p := q.Get("page"); p != "" {
		return p
	}
	return q.Get("p")
}

// actionForPage maps HTML page names onto their backing bundle action. The
// core serves JSON; page rendering happens elsewhere.
func actionForPage(page string) string {
	switch page {
	case "events", "signup":
		return "getPublicBundle"
	case "display":
		return "getDisplayBundle"
	case "poster":
		return "getPosterBundle"
	case "sponsor":
		return "getSponsorBundle"
	case "report":
		return "getSharedReportBundle"
	default:
		return "list"
	}
}

// respond finishes a read request: error, notModified or the value.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, value interface{}, etag, ifNoneMatch string, err error) {
	if err != nil {
		s.logFailure(r, err)
		httputil.Err(w, err)
		return
	}
	if ifNoneMatch != "" && ifNoneMatch == etag {
		httputil.NotModified(w, etag)
		return
	}
	httputil.OK(w, value, etag)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, tenant config.Tenant) {
	snap := s.registry.Snapshot()
	dbOK := s.store.Ping(r.Context()) == nil
	httputil.OK(w, map[string]interface{}{
		"build":    snap.Build(),
		"contract": snap.Contract(),
		"brand":    tenant.ID,
		"time":     s.now().UTC().Format(time.RFC3339),
		"db": map[string]interface{}{
			"ok": dbOK,
			"id": tenant.Store.SpreadsheetID,
		},
	}, "")
}

func (s *Server) writeConfig(w http.ResponseWriter, tenant config.Tenant) {
	snap := s.registry.Snapshot()

	brands := []map[string]string{}
	for _, t := range snap.Tenants() {
		brands = append(brands, map[string]string{"id": t.ID, "name": t.Name})
	}
	templates := []map[string]interface{}{}
	for _, tpl := range snap.Templates() {
		fields := []string{}
		for _, f := range tpl.Fields {
			fields = append(fields, f.ID)
		}
		templates = append(templates, map[string]interface{}{
			"id": tpl.ID, "name": tpl.Name, "fields": fields,
		})
	}

	httputil.OK(w, map[string]interface{}{
		"brands":    brands,
		"templates": templates,
		"build":     snap.Build(),
	}, "")
}

// handleAlias serves /<alias> and /<brand>/<alias>. API targets answer JSON
// directly; page targets redirect to the canonical query form.
func (s *Server) handleAlias(w http.ResponseWriter, r *http.Request) {
	seg1 := chi.URLParam(r, "seg1")
	seg2 := chi.URLParam(r, "seg2")
	snap := s.registry.Snapshot()

	brand := ""
	aliasSeg := seg1
	if seg2 != "" {
		brand = seg1
		aliasSeg = seg2
	}
	tenant := resolveTenant(snap, r, brand)

	alias, ok := snap.Alias(aliasSeg)
	if !ok {
		httputil.ErrKind(w, apperr.NotFound, "Unknown path")
		return
	}

	if alias.Kind == "api" {
		s.handleAliasAPI(w, r, tenant, alias.Target)
		return
	}

	// Page aliases resolve to the canonical query form.
	target := snap.BaseURL() + "?page=" + alias.Target + "&brand=" + tenant.ID
	if id := r.URL.Query().Get("id"); id != "" {
		target += "&id=" + id
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleAliasAPI(w http.ResponseWriter, r *http.Request, tenant config.Tenant, target string) {
	snap := s.registry.Snapshot()

	switch target {
	case "status":
		s.writeStatus(w, r, tenant)

	case "setup":
		httputil.OK(w, map[string]interface{}{
			"brand":         tenant.ID,
			"hasSecret":     snap.AdminSecret(tenant.ID) != "",
			"hostnames":     tenant.Hostnames,
			"scopesAllowed": tenant.ScopesAllowed,
			"templates":     len(snap.Templates()),
		}, "")

	case "permissions":
		httputil.OK(w, map[string]interface{}{
			"brand":         tenant.ID,
			"authMethods":   []string{"adminKey", "jwt", "apiKey"},
			"scopesAllowed": tenant.ScopesAllowed,
		}, "")

	case "docs":
		httputil.OK(w, map[string]interface{}{
			"contract": snap.Contract(),
			"reads": []string{
				"status", "config", "generateCSRFToken", "list", "get",
				"getPublicBundle", "getDisplayBundle", "getPosterBundle",
				"getSponsorBundle", "getSharedReportBundle",
			},
			"writes": []string{
				"create", "update", "logEvents", "logExternalClick",
				"getReport", "getAdminBundle", "createShortlink",
				"listFormTemplates", "createFormFromTemplate",
				"generateFormShortlink", "getSponsorAnalytics", "getSponsorROI",
			},
		}, "")

	default:
		httputil.ErrKind(w, apperr.NotFound, "Unknown path")
	}
}
