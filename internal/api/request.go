package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/bracketline/eventserve/internal/analytics"
	"github.com/bracketline/eventserve/internal/auth"
	"github.com/bracketline/eventserve/internal/config"
)

// rpcRequest is the POST body. One struct covers every action; handlers read
// only the fields their action defines.
type rpcRequest struct {
	Action    string `json:"action"`
	BrandID   string `json:"brandId,omitempty"`
	AdminKey  string `json:"adminKey,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`

	ID           string                 `json:"id,omitempty"`
	Scope        string                 `json:"scope,omitempty"`
	Slug         string                 `json:"slug,omitempty"`
	Name         string                 `json:"name,omitempty"`
	StartDateISO string                 `json:"startDateISO,omitempty"`
	Venue        string                 `json:"venue,omitempty"`
	TemplateID   string                 `json:"templateId,omitempty"`
	IdemKey      string                 `json:"idemKey,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	IfNoneMatch  string                 `json:"ifNoneMatch,omitempty"`
	Mode         string                 `json:"mode,omitempty"`

	Items             []analytics.Item `json:"items,omitempty"`
	LinkType          string           `json:"linkType,omitempty"`
	SessionID         string           `json:"sessionId,omitempty"`
	VisibleSponsorIDs []string         `json:"visibleSponsorIds,omitempty"`

	TargetURL string `json:"targetUrl,omitempty"`
	EventID   string `json:"eventId,omitempty"`
	SponsorID string `json:"sponsorId,omitempty"`
	Surface   string `json:"surface,omitempty"`

	FormTemplateID string `json:"formTemplateId,omitempty"`
	Title          string `json:"title,omitempty"`

	SponsorshipCost     float64 `json:"sponsorshipCost,omitempty"`
	CostPerClick        float64 `json:"costPerClick,omitempty"`
	ConversionRate      float64 `json:"conversionRate,omitempty"`
	AvgTransactionValue float64 `json:"avgTransactionValue,omitempty"`
	DateFrom            string  `json:"dateFrom,omitempty"`
	DateTo              string  `json:"dateTo,omitempty"`
}

// resolveTenant picks the tenant for a request: explicit brand parameter
// first, then the Host header, then root.
func resolveTenant(snap *config.Snapshot, r *http.Request, brandParam string) config.Tenant {
	if brandParam != "" {
		if t, ok := snap.Tenant(brandParam); ok {
			return t
		}
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if t, ok := snap.TenantByHost(host); ok {
		return t
	}
	return snap.Root()
}

// clientIP trusts middleware.RealIP to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// credsFrom gathers every authentication method present on the request.
func credsFrom(r *http.Request, adminKey string) auth.Credentials {
	creds := auth.Credentials{AdminKey: adminKey, APIKey: r.Header.Get("X-API-Key")}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		creds.Bearer = strings.TrimPrefix(h, "Bearer ")
	}
	if creds.AdminKey == "" {
		creds.AdminKey = r.URL.Query().Get("adminKey")
	}
	return creds
}

// csrfUserKey scopes CSRF tokens to a caller. Brand plus IP is the closest
// stable identity the unauthenticated token-issue path has.
func csrfUserKey(tenantID, ip string) string {
	return tenantID + ":" + ip
}
