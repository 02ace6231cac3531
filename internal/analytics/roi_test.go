package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/bracketline/eventserve/internal/store"
)

func roiRows(impressions, clicks int, dwellSec float64) []store.AnalyticsRow {
	var rows []store.AnalyticsRow
	for i := 0; i < impressions; i++ {
		rows = append(rows, store.AnalyticsRow{Metric: "impression", SponsorID: "sp-1"})
	}
	for i := 0; i < clicks; i++ {
		rows = append(rows, store.AnalyticsRow{Metric: "click", SponsorID: "sp-1"})
	}
	if dwellSec > 0 {
		rows = append(rows, store.AnalyticsRow{Metric: "dwellSec", SponsorID: "sp-1", Value: dwellSec})
	}
	return rows
}

func TestCalculateROI(t *testing.T) {
	res := CalculateROI(roiRows(10, 2, 10), ROIInput{
		SponsorID:           "sp-1",
		SponsorshipCost:     100,
		CostPerClick:        0.5,
		ConversionRate:      0.1,
		AvgTransactionValue: 500,
	})

	if res.SponsorID != "sp-1" {
		t.Errorf("sponsorId = %q", res.SponsorID)
	}
	if res.Metrics.Impressions != 10 || res.Metrics.Clicks != 2 || res.Metrics.DwellSec != 10 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
	if res.Metrics.CTR != 0.2 {
		t.Errorf("ctr = %v", res.Metrics.CTR)
	}

	// cost = 100 + 0.5*2 = 101
	f := res.Financials
	if f.TotalCost != 101 {
		t.Errorf("totalCost = %v", f.TotalCost)
	}
	if f.CostPerClick != 50.5 {
		t.Errorf("costPerClick = %v", f.CostPerClick)
	}
	if f.CPM != 10100 {
		t.Errorf("cpm = %v", f.CPM)
	}
	if f.EstimatedConversions != 0.2 || f.EstimatedRevenue != 100 {
		t.Errorf("conversions = %v, revenue = %v", f.EstimatedConversions, f.EstimatedRevenue)
	}
	// roi = (100 - 101) / 101 * 100
	if f.ROI != -0.99 {
		t.Errorf("roi = %v", f.ROI)
	}
}

func TestCalculateROI_ZeroGuards(t *testing.T) {
	res := CalculateROI(nil, ROIInput{SponsorID: "sp-1"})

	f := res.Financials
	if f.TotalCost != 0 || f.CostPerClick != 0 || f.CPM != 0 || f.ROI != 0 {
		t.Errorf("financials = %+v", f)
	}
	if res.Metrics.CTR != 0 || res.Metrics.Engagement != 0 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
	if len(res.Insights) == 0 || !strings.Contains(res.Insights[0], "No impressions") {
		t.Errorf("insights = %v", res.Insights)
	}
}

func TestCalculateROI_Period(t *testing.T) {
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	res := CalculateROI(nil, ROIInput{SponsorID: "sp-1", DateFrom: from, DateTo: to})
	if res.Period.From != "2025-08-01T00:00:00Z" || res.Period.To != "2025-09-01T00:00:00Z" {
		t.Errorf("period = %+v", res.Period)
	}

	res = CalculateROI(nil, ROIInput{SponsorID: "sp-1"})
	if res.Period.From != "" || res.Period.To != "" {
		t.Errorf("unbounded period = %+v", res.Period)
	}
}

func TestROIInsights(t *testing.T) {
	t.Run("strong ctr and positive roi", func(t *testing.T) {
		res := CalculateROI(roiRows(10, 1, 0), ROIInput{
			SponsorID:           "sp-1",
			SponsorshipCost:     10,
			ConversionRate:      0.5,
			AvgTransactionValue: 100,
		})
		joined := strings.Join(res.Insights, "\n")
		if !strings.Contains(joined, "Strong click-through") {
			t.Errorf("missing strong-CTR insight: %v", res.Insights)
		}
		if !strings.Contains(joined, "Positive estimated ROI") {
			t.Errorf("missing positive-ROI insight: %v", res.Insights)
		}
	})

	t.Run("weak ctr", func(t *testing.T) {
		res := CalculateROI(roiRows(1000, 1, 0), ROIInput{SponsorID: "sp-1"})
		joined := strings.Join(res.Insights, "\n")
		if !strings.Contains(joined, "under 0.5%") {
			t.Errorf("missing weak-CTR insight: %v", res.Insights)
		}
		if !strings.Contains(joined, "exposure only") {
			t.Errorf("missing no-cost insight: %v", res.Insights)
		}
	})

	t.Run("negative roi", func(t *testing.T) {
		res := CalculateROI(roiRows(100, 2, 0), ROIInput{
			SponsorID:       "sp-1",
			SponsorshipCost: 1000,
		})
		joined := strings.Join(res.Insights, "\n")
		if !strings.Contains(joined, "does not cover cost") {
			t.Errorf("missing negative-ROI insight: %v", res.Insights)
		}
	})
}
