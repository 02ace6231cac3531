// Package analytics ingests impression/click batches and aggregates them
// into per-event reports and sponsor ROI. The ingest path is append-only:
// rows are never rewritten or deleted here.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/pkg/logger"
	"github.com/bracketline/eventserve/internal/security"
	"github.com/bracketline/eventserve/internal/store"
)

// Metrics accepted on the ingest path.
var validMetrics = map[string]bool{
	"impression":     true,
	"click":          true,
	"dwellSec":       true,
	"view":           true,
	"external_click": true,
}

// External link types accepted by LogExternalClick.
var validLinkTypes = map[string]bool{
	"schedule":   true,
	"standings":  true,
	"bracket":    true,
	"stats":      true,
	"scoreboard": true,
	"stream":     true,
}

const (
	maxUserAgentLen      = 200
	maxVisibleSponsorIDs = 20
	maxBatchSize         = 500
)

// Item is one ingest record as submitted by a surface.
type Item struct {
	TS                string   `json:"ts,omitempty"`
	EventID           string   `json:"eventId"`
	Surface           string   `json:"surface"`
	Metric            string   `json:"metric"`
	SponsorID         string   `json:"sponsorId,omitempty"`
	Value             float64  `json:"value,omitempty"`
	Token             string   `json:"token,omitempty"`
	UserAgent         string   `json:"userAgent,omitempty"`
	SessionID         string   `json:"sessionId,omitempty"`
	VisibleSponsorIDs []string `json:"visibleSponsorIds,omitempty"`
}

// ExternalClick is the payload for LogExternalClick.
type ExternalClick struct {
	EventID           string   `json:"eventId"`
	LinkType          string   `json:"linkType"`
	Surface           string   `json:"surface,omitempty"`
	SessionID         string   `json:"sessionId,omitempty"`
	VisibleSponsorIDs []string `json:"visibleSponsorIds,omitempty"`
}

// Ingest validates batches and hands them to the pipeline: the SQS publisher
// when one is configured, otherwise a direct store append.
type Ingest struct {
	store *store.Store
	pub   *Publisher
	now   func() time.Time
}

// NewIngest creates the ingest service. pub may be nil for direct writes.
func NewIngest(st *store.Store, pub *Publisher) *Ingest {
	return &Ingest{store: st, pub: pub, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (in *Ingest) SetClock(now func() time.Time) { in.now = now }

// LogEvents validates and ingests a batch. Validation errors are BAD_INPUT;
// storage failures are logged and swallowed — analytics never fails a
// request.
func (in *Ingest) LogEvents(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return apperr.New(apperr.BadInput, "Empty analytics batch")
	}
	if len(items) > maxBatchSize {
		return apperr.New(apperr.BadInput, "Analytics batch too large")
	}

	rows := make([]store.AnalyticsRow, 0, len(items))
	for _, item := range items {
		row, err := in.toRow(item)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	in.write(ctx, rows)
	return nil
}

// LogExternalClick records one outbound-link click with session attribution.
// The link type rides in the sponsorId column by contract.
func (in *Ingest) LogExternalClick(ctx context.Context, click ExternalClick) error {
	if !security.ValidID(click.EventID) && !security.ValidUUIDv4(click.EventID) {
		return apperr.New(apperr.BadInput, "Invalid eventId")
	}
	if !validLinkTypes[click.LinkType] {
		return apperr.Newf(apperr.BadInput, "Invalid linkType: %s", click.LinkType)
	}
	if len(click.VisibleSponsorIDs) > maxVisibleSponsorIDs {
		click.VisibleSponsorIDs = click.VisibleSponsorIDs[:maxVisibleSponsorIDs]
	}
	surface := click.Surface
	if surface == "" {
		surface = "public"
	}

	visible := []byte(nil)
	if len(click.VisibleSponsorIDs) > 0 {
		visible, _ = json.Marshal(click.VisibleSponsorIDs)
	}

	row := store.AnalyticsRow{
		TS:                in.now().UTC(),
		EventID:           security.EscapeCell(click.EventID),
		Surface:           security.EscapeCell(security.Sanitize(surface, 50)),
		Metric:            "external_click",
		SponsorID:         security.EscapeCell(click.LinkType),
		Value:             1,
		SessionID:         security.EscapeCell(security.Sanitize(click.SessionID, 100)),
		VisibleSponsorIDs: string(visible),
	}

	in.write(ctx, []store.AnalyticsRow{row})
	return nil
}

// LogClick records a shortlink redirect click. Fire-and-forget.
func (in *Ingest) LogClick(ctx context.Context, eventID, surface, sponsorID, token string) {
	if surface == "" {
		surface = "shortlink"
	}
	row := store.AnalyticsRow{
		TS:        in.now().UTC(),
		EventID:   security.EscapeCell(eventID),
		Surface:   security.EscapeCell(surface),
		Metric:    "click",
		SponsorID: security.EscapeCell(sponsorID),
		Value:     1,
		Token:     security.EscapeCell(token),
	}
	in.write(ctx, []store.AnalyticsRow{row})
}

func (in *Ingest) toRow(item Item) (store.AnalyticsRow, error) {
	var zero store.AnalyticsRow

	if item.EventID == "" || (!security.ValidID(item.EventID) && !security.ValidUUIDv4(item.EventID)) {
		return zero, apperr.New(apperr.BadInput, "Invalid eventId")
	}
	if !validMetrics[item.Metric] {
		return zero, apperr.Newf(apperr.BadInput, "Invalid metric: %s", item.Metric)
	}

	ts := in.now().UTC()
	if item.TS != "" {
		parsed, err := time.Parse(time.RFC3339, item.TS)
		if err != nil {
			return zero, apperr.New(apperr.BadInput, "Invalid ts")
		}
		ts = parsed.UTC()
	}

	ua := security.Sanitize(item.UserAgent, maxUserAgentLen)

	ids := item.VisibleSponsorIDs
	if len(ids) > maxVisibleSponsorIDs {
		ids = ids[:maxVisibleSponsorIDs]
	}
	visible := ""
	if len(ids) > 0 {
		b, _ := json.Marshal(ids)
		visible = string(b)
	}

	value := item.Value
	if value == 0 {
		value = 1
	}

	return store.AnalyticsRow{
		TS:                ts,
		EventID:           security.EscapeCell(item.EventID),
		Surface:           security.EscapeCell(security.Sanitize(item.Surface, 50)),
		Metric:            item.Metric,
		SponsorID:         security.EscapeCell(security.Sanitize(item.SponsorID, 100)),
		Value:             value,
		Token:             security.EscapeCell(security.Sanitize(item.Token, 100)),
		UserAgent:         security.EscapeCell(ua),
		SessionID:         security.EscapeCell(security.Sanitize(item.SessionID, 100)),
		VisibleSponsorIDs: visible,
	}, nil
}

// write sends rows down the pipeline. Failures are logged, never returned.
func (in *Ingest) write(ctx context.Context, rows []store.AnalyticsRow) {
	if in.pub != nil {
		in.pub.Publish(ctx, rows)
		return
	}
	if err := in.store.AppendAnalytics(ctx, rows); err != nil {
		logger.Error("analytics append failed", "rows", len(rows), "error", err)
	}
}
