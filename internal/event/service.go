package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/config"
	"github.com/bracketline/eventserve/internal/pkg/distlock"
	"github.com/bracketline/eventserve/internal/qr"
	"github.com/bracketline/eventserve/internal/security"
	"github.com/bracketline/eventserve/internal/store"
)

const (
	idemTTL       = 10 * time.Minute
	writeLockWait = 10 * time.Second
	writeLockKey  = "events:write"

	// DefaultLimit and MaxLimit bound list pagination.
	DefaultLimit = 100
	MaxLimit     = 1000
)

// LockFactory builds the process-wide event write lock.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// Service implements the event lifecycle. It holds no mutable state beyond
// its caches and locks.
type Service struct {
	store    *store.Store
	registry *config.Registry
	cache    cache.Cache
	locks    LockFactory
	renderer qr.Renderer
	now      func() time.Time
}

// NewService wires the event service.
func NewService(st *store.Store, reg *config.Registry, c cache.Cache, locks LockFactory, renderer qr.Renderer) *Service {
	return &Service{
		store:    st,
		registry: reg,
		cache:    c,
		locks:    locks,
		renderer: renderer,
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateInput is the accepted create payload. ID and Slug are optional;
// Data carries optional content fields keyed by the canonical contract.
type CreateInput struct {
	ID           string
	Slug         string
	Name         string
	StartDateISO string
	Venue        string
	TemplateID   string
	Scope        string
	IdemKey      string
	Data         map[string]interface{}
}

// Create validates, claims the idempotency key, takes the write lock,
// resolves a unique slug and appends the event. Returns the hydrated event.
func (s *Service) Create(ctx context.Context, tenant config.Tenant, in CreateInput) (*Event, error) {
	scope := in.Scope
	if scope == "" {
		scope = "events"
	}
	if !tenant.AllowsScope(scope) {
		return nil, apperr.Newf(apperr.BadInput, "Scope not allowed: %s", scope)
	}

	name := security.Sanitize(in.Name, 200)
	if name == "" {
		return nil, apperr.New(apperr.BadInput, "Missing required field: name")
	}
	if !security.ValidDateISO(in.StartDateISO) {
		return nil, apperr.New(apperr.BadInput, "Invalid startDateISO")
	}
	venue := security.Sanitize(in.Venue, 200)
	if venue == "" {
		return nil, apperr.New(apperr.BadInput, "Missing required field: venue")
	}

	id := in.ID
	if id != "" {
		if !security.ValidUUIDv4(id) {
			return nil, apperr.New(apperr.BadInput, "Invalid event id")
		}
	} else {
		id = uuid.NewString()
	}

	templateID := in.TemplateID
	if templateID == "" {
		templateID = "custom"
	}

	if in.IdemKey != "" {
		if !security.ValidIdemKey(in.IdemKey) {
			return nil, apperr.New(apperr.BadInput, "Invalid idempotency key")
		}
		key := fmt.Sprintf("idem:%s:%s:%s", tenant.ID, scope, in.IdemKey)
		created, err := s.cache.SetNX(ctx, key, id, idemTTL)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "Idempotency check failed", err)
		}
		if !created {
			return nil, apperr.New(apperr.BadInput, "Duplicate create")
		}
	}

	now := s.now().UTC()

	doc := composeDoc(in, name, venue, now)

	lock := s.locks(writeLockKey, writeLockWait)
	ok, err := distlock.AcquireWait(ctx, lock, writeLockWait)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Event lock error", err)
	}
	if !ok {
		return nil, apperr.New(apperr.Internal, "Event store is busy")
	}
	defer lock.Release(ctx)

	slug, err := s.resolveSlug(ctx, tenant.ID, in.Slug, name)
	if err != nil {
		return nil, err
	}

	dataJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Could not serialize event", err)
	}

	row := store.EventRow{
		ID:         id,
		TenantID:   tenant.ID,
		TemplateID: templateID,
		DataJSON:   string(dataJSON),
		CreatedAt:  now,
		Slug:       slug,
	}
	if err := s.store.AppendEvent(ctx, row); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Could not store event", err)
	}

	return s.hydrateRow(ctx, &row, doc, true), nil
}

// composeDoc builds the canonical persisted document with CTA and settings
// defaults. Derived links and QR never enter the document.
func composeDoc(in CreateInput, name, venue string, now time.Time) map[string]interface{} {
	doc := map[string]interface{}{
		"name":         name,
		"startDateISO": in.StartDateISO,
		"venue":        venue,
		"createdAtISO": now.Format(time.RFC3339),
		"updatedAtISO": now.Format(time.RFC3339),
	}
	for k, v := range in.Data {
		switch k {
		case "name", "startDateISO", "venue", "createdAtISO", "updatedAtISO", "links", "qr":
			continue
		}
		if s, ok := v.(string); ok {
			v = security.Sanitize(s, 0)
		}
		doc[k] = v
	}
	return doc
}

// resolveSlug picks the provided or derived slug, then appends -2, -3, ...
// until it is unique within the tenant. Must run under the write lock.
func (s *Service) resolveSlug(ctx context.Context, tenantID, provided, name string) (string, error) {
	base := Slugify(provided)
	if base == "" {
		base = Slugify(name)
	}
	if base == "" {
		base = "event"
	}

	existing, err := s.store.ListSlugs(ctx, tenantID)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "Could not scan slugs", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, slug := range existing {
		taken[slug] = true
	}

	slug := base
	for n := 2; taken[slug]; n++ {
		suffix := fmt.Sprintf("-%d", n)
		trimmed := base
		if len(trimmed)+len(suffix) > 50 {
			trimmed = trimmed[:50-len(suffix)]
		}
		slug = trimmed + suffix
	}
	return slug, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9-]+`)
var slugSqueeze = regexp.MustCompile(`-{2,}`)

// Slugify lowercases s and reduces it to [a-z0-9-]{0,50}.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSqueeze.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.Trim(s[:50], "-")
	}
	return s
}

// Get returns the hydrated event with its ETag. A row under another tenant
// is NOT_FOUND — the same code an absent row gets, so existence never leaks
// across tenants.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Event, string, error) {
	if !security.ValidUUIDv4(id) {
		return nil, "", apperr.New(apperr.BadInput, "Invalid event id")
	}
	row, err := s.store.GetEvent(ctx, tenantID, id)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Could not read event", err)
	}
	if row == nil {
		return nil, "", apperr.New(apperr.NotFound, "Event not found")
	}

	doc, err := ParseDoc(row.DataJSON)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Corrupt event record", err)
	}

	e := s.hydrateRow(ctx, row, doc, true)
	return e, ETag(e), nil
}

// ListResult is the paginated list envelope.
type ListResult struct {
	Items      []*Event   `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes the window a list call returned.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// List returns a page of the tenant's events. Items are hydrated without
// sponsor expansion or QR rendering for speed.
func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) (*ListResult, string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		return nil, "", apperr.New(apperr.BadInput, "Invalid offset")
	}

	rows, total, err := s.store.ListEvents(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Could not list events", err)
	}

	result := &ListResult{
		Items: make([]*Event, 0, len(rows)),
		Pagination: Pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(rows) < total,
		},
	}
	for i := range rows {
		doc, err := ParseDoc(rows[i].DataJSON)
		if err != nil {
			continue
		}
		result.Items = append(result.Items, Hydrate(ctx, &rows[i], doc, s.baseURL(), qr.Null{}, nil))
	}

	return result, ETag(result), nil
}

// UpdateInput carries the fields submitted to update.
type UpdateInput struct {
	ID   string
	Data map[string]interface{}
}

// Update merges template-declared fields into the stored document under the
// write lock and returns the re-read event. Unknown fields are rejected;
// url-typed fields must pass URL validation.
func (s *Service) Update(ctx context.Context, tenant config.Tenant, in UpdateInput) (*Event, string, error) {
	if !security.ValidUUIDv4(in.ID) {
		return nil, "", apperr.New(apperr.BadInput, "Invalid event id")
	}
	if len(in.Data) == 0 {
		return nil, "", apperr.New(apperr.BadInput, "Nothing to update")
	}

	lock := s.locks(writeLockKey, writeLockWait)
	ok, err := distlock.AcquireWait(ctx, lock, writeLockWait)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Event lock error", err)
	}
	if !ok {
		return nil, "", apperr.New(apperr.Internal, "Event store is busy")
	}
	defer lock.Release(ctx)

	row, err := s.store.GetEvent(ctx, tenant.ID, in.ID)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Could not read event", err)
	}
	if row == nil {
		return nil, "", apperr.New(apperr.NotFound, "Event not found")
	}

	snap := s.registry.Snapshot()
	tpl, ok2 := snap.Template(row.TemplateID)
	if !ok2 {
		// A row whose template is no longer configured accepts no updates.
		return nil, "", apperr.Newf(apperr.BadInput, "Unknown template: %s", row.TemplateID)
	}

	doc, err := ParseDoc(row.DataJSON)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Corrupt event record", err)
	}

	for k, v := range in.Data {
		field, declared := tpl.Field(k)
		if !declared {
			return nil, "", apperr.Newf(apperr.BadInput, "Unknown field: %s", k)
		}
		if str, isStr := v.(string); isStr {
			if field.Type == "url" {
				if !security.IsURL(str) {
					return nil, "", apperr.Newf(apperr.BadInput, "Invalid URL for field: %s", k)
				}
			} else {
				v = security.Sanitize(str, 0)
			}
		}
		doc[k] = v
	}
	doc["updatedAtISO"] = s.now().UTC().Format(time.RFC3339)

	dataJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "Could not serialize event", err)
	}
	if err := s.store.UpdateEventData(ctx, tenant.ID, in.ID, string(dataJSON)); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", apperr.New(apperr.NotFound, "Event not found")
		}
		return nil, "", apperr.Wrap(apperr.Internal, "Could not store event", err)
	}

	row.DataJSON = string(dataJSON)
	e := s.hydrateRow(ctx, row, doc, true)
	return e, ETag(e), nil
}

// SetExternalData writes one key into the event's externalData block under
// the write lock. Used by integrations (form attachment) that manage state
// outside the template-declared fields.
func (s *Service) SetExternalData(ctx context.Context, tenantID, id, key string, value interface{}) error {
	if !security.ValidUUIDv4(id) {
		return apperr.New(apperr.BadInput, "Invalid event id")
	}

	lock := s.locks(writeLockKey, writeLockWait)
	ok, err := distlock.AcquireWait(ctx, lock, writeLockWait)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "Event lock error", err)
	}
	if !ok {
		return apperr.New(apperr.Internal, "Event store is busy")
	}
	defer lock.Release(ctx)

	row, err := s.store.GetEvent(ctx, tenantID, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "Could not read event", err)
	}
	if row == nil {
		return apperr.New(apperr.NotFound, "Event not found")
	}

	doc, err := ParseDoc(row.DataJSON)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "Corrupt event record", err)
	}

	ext, _ := doc["externalData"].(map[string]interface{})
	if ext == nil {
		ext = map[string]interface{}{}
	}
	ext[key] = value
	doc["externalData"] = ext
	doc["updatedAtISO"] = s.now().UTC().Format(time.RFC3339)

	dataJSON, err := json.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "Could not serialize event", err)
	}
	if err := s.store.UpdateEventData(ctx, tenantID, id, string(dataJSON)); err != nil {
		return apperr.Wrap(apperr.Internal, "Could not store event", err)
	}
	return nil
}

// hydrateRow assembles the canonical event, expanding sponsors when asked.
func (s *Service) hydrateRow(ctx context.Context, row *store.EventRow, doc map[string]interface{}, expandSponsors bool) *Event {
	var sponsors []store.SponsorRow
	if expandSponsors {
		if ids := SponsorIDs(doc); len(ids) > 0 {
			sponsors, _ = s.store.GetSponsors(ctx, row.TenantID, ids)
		}
	}
	return Hydrate(ctx, row, doc, s.baseURL(), s.renderer, sponsors)
}

func (s *Service) baseURL() string {
	return s.registry.Snapshot().BaseURL()
}

// Store exposes the underlying store for the bundle service diagnostics.
func (s *Service) Store() *store.Store { return s.store }
