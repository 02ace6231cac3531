// Package event owns the canonical event contract (v2), hydration of legacy
// records into it, and the event service: create, read, list, update with
// idempotency and slug-collision handling.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Event is the canonical contract shape (v2). Links and QR codes are always
// derived at read time from (baseUrl, tenantId, id); persisting them is
// forbidden.
type Event struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	StartDateISO string `json:"startDateISO"`
	Venue        string `json:"venue"`
	TemplateID   string `json:"templateId"`

	Links Links `json:"links"`
	QR    QR    `json:"qr"`

	Schedule     []interface{}          `json:"schedule,omitempty"`
	Standings    []interface{}          `json:"standings,omitempty"`
	Bracket      interface{}            `json:"bracket,omitempty"`
	Sponsors     []Sponsor              `json:"sponsors,omitempty"`
	Media        map[string]interface{} `json:"media,omitempty"`
	ExternalData map[string]interface{} `json:"externalData,omitempty"`

	CTAs     CTAs     `json:"ctas"`
	Settings Settings `json:"settings"`

	CreatedAtISO string `json:"createdAtISO"`
	UpdatedAtISO string `json:"updatedAtISO"`
}

// Links are the derived per-surface URLs for an event.
type Links struct {
	PublicURL       string `json:"publicUrl"`
	DisplayURL      string `json:"displayUrl"`
	PosterURL       string `json:"posterUrl"`
	SignupURL       string `json:"signupUrl"`
	SharedReportURL string `json:"sharedReportUrl,omitempty"`
}

// QR carries base64 PNG data URIs. Empty on render failure, never an error.
type QR struct {
	Public string `json:"public"`
	Signup string `json:"signup"`
}

// CTA is a single call-to-action.
type CTA struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// CTAs groups the required primary and optional secondary call-to-action.
type CTAs struct {
	Primary   CTA  `json:"primary"`
	Secondary *CTA `json:"secondary,omitempty"`
}

// Settings holds the per-section visibility toggles.
type Settings struct {
	Show map[string]bool `json:"show"`
}

// Sponsor is a hydrated sponsor reference on an event.
type Sponsor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tier    string `json:"tier,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
	LinkURL string `json:"linkUrl,omitempty"`
}

// DeriveLinks computes all surface URLs from the base URL, tenant and id.
func DeriveLinks(baseURL, tenantID, id string) Links {
	page := func(p string) string {
		return baseURL + "?page=" + p + "&brand=" + tenantID + "&id=" + id
	}
	return Links{
		PublicURL:       page("events"),
		DisplayURL:      page("display"),
		PosterURL:       page("poster"),
		SignupURL:       page("signup"),
		SharedReportURL: page("report"),
	}
}

// ETag computes a strong validator over the canonical JSON serialization of
// v. Identical state yields an identical tag.
func ETag(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
