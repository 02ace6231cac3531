package event

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bracketline/eventserve/internal/qr"
	"github.com/bracketline/eventserve/internal/store"
)

// defaultShow are the section toggles a new event starts with.
var defaultShow = map[string]bool{
	"schedule":  true,
	"standings": true,
	"bracket":   true,
	"sponsors":  true,
}

// ParseDoc decodes a stored event document.
func ParseDoc(dataJSON string) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if err := json.Unmarshal([]byte(dataJSON), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Hydrate maps a stored row to the canonical contract. Legacy aliases are
// accepted on the way in (dateISO/dateTime, location/venueName, ctaLabels,
// sections.*.enabled); output is always canonical. Links are derived, never
// read from the document. renderer may be qr.Null for cheap hydration;
// sponsors may be nil to skip sponsor expansion (list path).
func Hydrate(ctx context.Context, row *store.EventRow, doc map[string]interface{},
	baseURL string, renderer qr.Renderer, sponsors []store.SponsorRow) *Event {

	links := DeriveLinks(baseURL, row.TenantID, row.ID)

	e := &Event{
		ID:         row.ID,
		Slug:       row.Slug,
		TemplateID: row.TemplateID,
		Links:      links,

		Name:         docString(doc, "name"),
		StartDateISO: hydrateStartDate(doc),
		Venue:        hydrateVenue(doc),
		CTAs:         hydrateCTAs(doc, links),
		Settings:     hydrateSettings(doc),

		CreatedAtISO: docString(doc, "createdAtISO"),
		UpdatedAtISO: docString(doc, "updatedAtISO"),
	}
	if e.CreatedAtISO == "" {
		e.CreatedAtISO = row.CreatedAt.UTC().Format(time.RFC3339)
	}
	if e.UpdatedAtISO == "" {
		e.UpdatedAtISO = e.CreatedAtISO
	}

	if v, ok := doc["schedule"].([]interface{}); ok {
		e.Schedule = v
	}
	if v, ok := doc["standings"].([]interface{}); ok {
		e.Standings = v
	}
	if v, ok := doc["bracket"]; ok {
		e.Bracket = v
	}
	if v, ok := doc["media"].(map[string]interface{}); ok {
		e.Media = v
	}
	if v, ok := doc["externalData"].(map[string]interface{}); ok {
		e.ExternalData = v
	}

	for _, row := range sponsors {
		e.Sponsors = append(e.Sponsors, Sponsor{
			ID:      row.ID,
			Name:    row.Name,
			Tier:    row.Tier,
			LogoURL: row.LogoURL,
			LinkURL: row.LinkURL,
		})
	}

	e.QR = QR{
		Public: renderer.DataURI(ctx, links.PublicURL),
		Signup: renderer.DataURI(ctx, links.SignupURL),
	}

	return e
}

// SponsorIDs extracts the persisted sponsor references from a document.
func SponsorIDs(doc map[string]interface{}) []string {
	raw, ok := doc["sponsorIds"].([]interface{})
	if !ok {
		return nil
	}
	var ids []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

func hydrateStartDate(doc map[string]interface{}) string {
	if v := docString(doc, "startDateISO"); v != "" {
		return v
	}
	// Legacy contracts stored dateISO, or a full dateTime.
	if v := docString(doc, "dateISO"); v != "" {
		return v
	}
	if v := docString(doc, "dateTime"); len(v) >= 10 {
		return v[:10]
	}
	return ""
}

func hydrateVenue(doc map[string]interface{}) string {
	if v := docString(doc, "venue"); v != "" {
		return v
	}
	if v := docString(doc, "location"); v != "" {
		return v
	}
	return docString(doc, "venueName")
}

func hydrateCTAs(doc map[string]interface{}, links Links) CTAs {
	if m, ok := doc["ctas"].(map[string]interface{}); ok {
		out := CTAs{Primary: ctaFrom(m["primary"])}
		if sec := ctaFrom(m["secondary"]); sec.Label != "" || sec.URL != "" {
			out.Secondary = &sec
		}
		if out.Primary.URL == "" {
			out.Primary.URL = links.SignupURL
		}
		if out.Primary.Label == "" {
			out.Primary.Label = "Sign Up"
		}
		return out
	}

	// Legacy ctaLabels[]: first label is the primary, second the secondary.
	if labels, ok := doc["ctaLabels"].([]interface{}); ok && len(labels) > 0 {
		out := CTAs{Primary: CTA{Label: asString(labels[0]), URL: links.SignupURL}}
		if len(labels) > 1 {
			out.Secondary = &CTA{Label: asString(labels[1]), URL: links.PublicURL}
		}
		return out
	}

	return CTAs{Primary: CTA{Label: "Sign Up", URL: links.SignupURL}}
}

func hydrateSettings(doc map[string]interface{}) Settings {
	show := map[string]bool{}
	for k, v := range defaultShow {
		show[k] = v
	}

	if m, ok := doc["settings"].(map[string]interface{}); ok {
		if sm, ok := m["show"].(map[string]interface{}); ok {
			for k, v := range sm {
				if b, ok := v.(bool); ok {
					show[normalizeSection(k)] = b
				}
			}
			return Settings{Show: show}
		}
	}

	// Legacy sections.<name>.enabled.
	if m, ok := doc["sections"].(map[string]interface{}); ok {
		for name, v := range m {
			if sec, ok := v.(map[string]interface{}); ok {
				if enabled, ok := sec["enabled"].(bool); ok {
					show[name] = enabled
				}
			}
		}
	}

	return Settings{Show: show}
}

// normalizeSection maps toggle keys to lowercase section names, accepting
// both "schedule" and legacy "showSchedule" spellings.
func normalizeSection(k string) string {
	k = strings.TrimPrefix(k, "show")
	if k == "" {
		return k
	}
	return strings.ToLower(k[:1]) + k[1:]
}

func ctaFrom(v interface{}) CTA {
	m, ok := v.(map[string]interface{})
	if !ok {
		return CTA{}
	}
	return CTA{Label: asString(m["label"]), URL: asString(m["url"])}
}

func docString(doc map[string]interface{}, key string) string {
	return asString(doc[key])
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
