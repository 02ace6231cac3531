package analytics

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/bracketline/eventserve/internal/apperr"
	"github.com/bracketline/eventserve/internal/store"
)

// Totals are the whole-event counters.
type Totals struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	DwellSec    float64 `json:"dwellSec"`
	Views       int     `json:"views"`
}

// SurfaceAgg groups counters by rendering surface.
type SurfaceAgg struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

// SponsorAgg groups counters by sponsor.
type SponsorAgg struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	DwellSec    float64 `json:"dwellSec"`
	CTR         float64 `json:"ctr"`
	Engagement  float64 `json:"engagement"`
}

// TokenAgg groups clicks by shortlink token.
type TokenAgg struct {
	Clicks int `json:"clicks"`
}

// Report is the on-demand aggregation of one event's analytics rows.
type Report struct {
	EventID  string                 `json:"eventId"`
	Totals   Totals                 `json:"totals"`
	Surfaces map[string]*SurfaceAgg `json:"surfaces"`
	Sponsors map[string]*SponsorAgg `json:"sponsors"`
	Tokens   map[string]*TokenAgg   `json:"tokens"`
}

// Reporter aggregates stored rows into reports and ROI summaries.
type Reporter struct {
	store *store.Store
}

func NewReporter(st *store.Store) *Reporter {
	return &Reporter{store: st}
}

// EventReport scans all rows for the event and tallies totals plus
// per-surface, per-sponsor and per-token groups. Group keys that are empty
// in the row land under "-". Aggregation is commutative, so row order does
// not matter.
func (r *Reporter) EventReport(ctx context.Context, eventID string) (*Report, error) {
	rows, err := r.store.ScanAnalytics(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Failed to load analytics", err)
	}

	rep := &Report{
		EventID:  eventID,
		Surfaces: map[string]*SurfaceAgg{},
		Sponsors: map[string]*SponsorAgg{},
		Tokens:   map[string]*TokenAgg{},
	}

	for _, row := range rows {
		Accumulate(rep, row)
	}

	Finalize(rep)
	return rep, nil
}

// Accumulate folds one row into the report. Exposed for the shared-report
// bundle which tallies from the same scan.
func Accumulate(rep *Report, row store.AnalyticsRow) {
	surface := orDash(row.Surface)
	sponsor := orDash(row.SponsorID)
	token := orDash(row.Token)

	sAgg := rep.Surfaces[surface]
	if sAgg == nil {
		sAgg = &SurfaceAgg{}
		rep.Surfaces[surface] = sAgg
	}
	spAgg := rep.Sponsors[sponsor]
	if spAgg == nil {
		spAgg = &SponsorAgg{}
		rep.Sponsors[sponsor] = spAgg
	}

	switch row.Metric {
	case "impression":
		rep.Totals.Impressions++
		sAgg.Impressions++
		spAgg.Impressions++
	case "click", "external_click":
		rep.Totals.Clicks++
		sAgg.Clicks++
		spAgg.Clicks++
		tAgg := rep.Tokens[token]
		if tAgg == nil {
			tAgg = &TokenAgg{}
			rep.Tokens[token] = tAgg
		}
		tAgg.Clicks++
	case "dwellSec":
		rep.Totals.DwellSec += row.Value
		spAgg.DwellSec += row.Value
	case "view":
		rep.Totals.Views++
	}
}

// Finalize computes the derived rates once all rows are folded in.
func Finalize(rep *Report) {
	for _, agg := range rep.Surfaces {
		agg.CTR = CTR(agg.Clicks, agg.Impressions)
	}
	for _, agg := range rep.Sponsors {
		agg.CTR = CTR(agg.Clicks, agg.Impressions)
		agg.Engagement = EngagementScore(agg.Clicks, agg.Impressions, agg.DwellSec)
	}
}

// CTR is clicks/impressions rounded to 4 decimals, 0 when there are no
// impressions.
func CTR(clicks, impressions int) float64 {
	if impressions == 0 {
		return 0
	}
	return math.Round(float64(clicks)/float64(impressions)*10000) / 10000
}

// EngagementScore blends click-through with dwell time per impression:
// 0.6*ctr*100 + 0.4*min(dwellPerImp/5, 1)*100, clamped to [0, 100].
func EngagementScore(clicks, impressions int, dwellSec float64) float64 {
	ctr := CTR(clicks, impressions)
	dwellPerImp := 0.0
	if impressions > 0 {
		dwellPerImp = dwellSec / float64(impressions)
	}
	dwellFactor := dwellPerImp / 5
	if dwellFactor > 1 {
		dwellFactor = 1
	}
	score := 0.6*ctr*100 + 0.4*dwellFactor*100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return math.Round(score*100) / 100
}

// SharedReportMetrics is the aggregate block of the shared-report bundle.
type SharedReportMetrics struct {
	Views           int                    `json:"views"`
	UniqueViews     int                    `json:"uniqueViews"`
	SignupClicks    int                    `json:"signupClicks"`
	CheckinClicks   int                    `json:"checkinClicks"`
	FeedbackClicks  int                    `json:"feedbackClicks"`
	Sponsors        map[string]*SponsorAgg `json:"sponsors"`
	AvgSponsorCTR   float64                `json:"avgSponsorCtr"`
	LeagueClicks    map[string]int         `json:"leagueClicks"`
	BroadcastClicks map[string]int         `json:"broadcastClicks"`
}

var leagueLinks = map[string]bool{"schedule": true, "standings": true, "bracket": true}
var broadcastLinks = map[string]bool{"stats": true, "scoreboard": true, "stream": true}

// SharedReport computes the read-only metrics surfaced to sponsors and
// organizers on the shared report page.
func (r *Reporter) SharedReport(ctx context.Context, eventID string) (*SharedReportMetrics, error) {
	rows, err := r.store.ScanAnalytics(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Failed to load analytics", err)
	}

	m := &SharedReportMetrics{
		Sponsors:        map[string]*SponsorAgg{},
		LeagueClicks:    map[string]int{},
		BroadcastClicks: map[string]int{},
	}
	sessions := map[string]bool{}

	for _, row := range rows {
		switch row.Metric {
		case "view":
			m.Views++
			if row.SessionID != "" {
				sessions[row.SessionID] = true
			}
		case "click":
			switch row.Surface {
			case "signup":
				m.SignupClicks++
			case "checkin":
				m.CheckinClicks++
			case "feedback":
				m.FeedbackClicks++
			}
		case "external_click":
			// Link type rides in the sponsorId column.
			if leagueLinks[row.SponsorID] {
				m.LeagueClicks[row.SponsorID]++
			}
			if broadcastLinks[row.SponsorID] {
				m.BroadcastClicks[row.SponsorID]++
			}
		}

		if row.SponsorID != "" && !leagueLinks[row.SponsorID] && !broadcastLinks[row.SponsorID] {
			agg := m.Sponsors[row.SponsorID]
			if agg == nil {
				agg = &SponsorAgg{}
				m.Sponsors[row.SponsorID] = agg
			}
			switch row.Metric {
			case "impression":
				agg.Impressions++
			case "click":
				agg.Clicks++
			case "dwellSec":
				agg.DwellSec += row.Value
			}
		}

		// Impressions may also carry visible sponsor attribution.
		if row.Metric == "impression" && row.VisibleSponsorIDs != "" {
			var visible []string
			if err := json.Unmarshal([]byte(row.VisibleSponsorIDs), &visible); err == nil {
				for _, id := range visible {
					if id == "" || id == row.SponsorID {
						continue
					}
					agg := m.Sponsors[id]
					if agg == nil {
						agg = &SponsorAgg{}
						m.Sponsors[id] = agg
					}
					agg.Impressions++
				}
			}
		}
	}

	m.UniqueViews = len(sessions)

	ctrSum := 0.0
	for _, agg := range m.Sponsors {
		agg.CTR = CTR(agg.Clicks, agg.Impressions)
		agg.Engagement = EngagementScore(agg.Clicks, agg.Impressions, agg.DwellSec)
		ctrSum += agg.CTR
	}
	if n := len(m.Sponsors); n > 0 {
		m.AvgSponsorCTR = math.Round(ctrSum/float64(n)*10000) / 10000
	}

	return m, nil
}

// SponsorRows returns the raw rows for one sponsor in an optional time
// window (zero bounds mean unbounded), for getSponsorAnalytics and the ROI
// calculator.
func (r *Reporter) SponsorRows(ctx context.Context, sponsorID string, from, to time.Time) ([]store.AnalyticsRow, error) {
	rows, err := r.store.ScanSponsorAnalytics(ctx, sponsorID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "Failed to load analytics", err)
	}
	return rows, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
