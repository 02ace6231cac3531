package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/bracketline/eventserve/internal/store"
)

// ROIInput carries the sponsor's commercial assumptions. Absent values
// default to zero; the calculator never divides by them unguarded.
type ROIInput struct {
	SponsorID           string    `json:"sponsorId"`
	SponsorshipCost     float64   `json:"sponsorshipCost,omitempty"`
	CostPerClick        float64   `json:"costPerClick,omitempty"`
	ConversionRate      float64   `json:"conversionRate,omitempty"`
	AvgTransactionValue float64   `json:"avgTransactionValue,omitempty"`
	DateFrom            time.Time `json:"-"`
	DateTo              time.Time `json:"-"`
}

// ROIPeriod is the analyzed window in ISO form; empty bounds mean all time.
type ROIPeriod struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// ROIMetrics are the observed counters for the sponsor in the window.
type ROIMetrics struct {
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	DwellSec    float64 `json:"dwellSec"`
	CTR         float64 `json:"ctr"`
	Engagement  float64 `json:"engagement"`
}

// ROIFinancials are the modeled economics.
type ROIFinancials struct {
	TotalCost            float64 `json:"totalCost"`
	CostPerClick         float64 `json:"costPerClick"`
	CPM                  float64 `json:"cpm"`
	EstimatedConversions float64 `json:"estimatedConversions"`
	EstimatedRevenue     float64 `json:"estimatedRevenue"`
	ROI                  float64 `json:"roi"`
}

// ROIResult is the full calculator output.
type ROIResult struct {
	SponsorID  string        `json:"sponsorId"`
	Period     ROIPeriod     `json:"period"`
	Metrics    ROIMetrics    `json:"metrics"`
	Financials ROIFinancials `json:"financials"`
	Insights   []string      `json:"insights"`
}

// CalculateROI is a pure function over the sponsor's rows and commercial
// inputs. ROI = (revenue - cost) / cost * 100; CPM = cost / impressions *
// 1000. Every undefined quantity is 0, never NaN.
func CalculateROI(rows []store.AnalyticsRow, in ROIInput) *ROIResult {
	res := &ROIResult{SponsorID: in.SponsorID, Insights: []string{}}

	if !in.DateFrom.IsZero() {
		res.Period.From = in.DateFrom.UTC().Format(time.RFC3339)
	}
	if !in.DateTo.IsZero() {
		res.Period.To = in.DateTo.UTC().Format(time.RFC3339)
	}

	for _, row := range rows {
		switch row.Metric {
		case "impression":
			res.Metrics.Impressions++
		case "click", "external_click":
			res.Metrics.Clicks++
		case "dwellSec":
			res.Metrics.DwellSec += row.Value
		}
	}
	res.Metrics.CTR = CTR(res.Metrics.Clicks, res.Metrics.Impressions)
	res.Metrics.Engagement = EngagementScore(res.Metrics.Clicks, res.Metrics.Impressions, res.Metrics.DwellSec)

	clicks := float64(res.Metrics.Clicks)
	impressions := float64(res.Metrics.Impressions)

	cost := in.SponsorshipCost + in.CostPerClick*clicks
	res.Financials.TotalCost = round2(cost)

	if clicks > 0 {
		res.Financials.CostPerClick = round2(cost / clicks)
	}
	if impressions > 0 {
		res.Financials.CPM = round2(cost / impressions * 1000)
	}

	conversions := clicks * in.ConversionRate
	revenue := conversions * in.AvgTransactionValue
	res.Financials.EstimatedConversions = round2(conversions)
	res.Financials.EstimatedRevenue = round2(revenue)

	if cost > 0 {
		res.Financials.ROI = round2((revenue - cost) / cost * 100)
	}

	res.Insights = roiInsights(res)
	return res
}

func roiInsights(res *ROIResult) []string {
	var out []string

	if res.Metrics.Impressions == 0 {
		out = append(out, "No impressions recorded in this period; placement may not be live yet.")
		return out
	}

	if res.Metrics.CTR >= 0.05 {
		out = append(out, fmt.Sprintf("Strong click-through rate of %.2f%%, well above the 1-2%% typical range.", res.Metrics.CTR*100))
	} else if res.Metrics.CTR < 0.005 {
		out = append(out, "Click-through rate is under 0.5%; consider refreshing the creative or placement.")
	}

	if res.Metrics.Engagement >= 70 {
		out = append(out, "High engagement score; attendees are dwelling on this sponsor's placements.")
	}

	switch {
	case res.Financials.TotalCost == 0:
		out = append(out, "No cost inputs provided; ROI reflects exposure only.")
	case res.Financials.ROI > 0:
		out = append(out, fmt.Sprintf("Positive estimated ROI of %.1f%% at the given conversion assumptions.", res.Financials.ROI))
	default:
		out = append(out, "Estimated revenue does not cover cost yet; revisit conversion assumptions or extend the run.")
	}

	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
