package export

import (
	"strings"
	"testing"
	"time"

	"github.com/zapcampanha/console/internal/model"
)

var testTime = time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)

func TestFilenamePattern(t *testing.T) {
	got := Filename("analytics", "csv", testTime)
	want := "analytics_20260830_140500.csv"
	if got != want {
		t.Fatalf("expected %q got %q", want, got)
	}
}

func TestDailyStatsCSV(t *testing.T) {
	stats := []model.DailyStat{
		{Date: "2026-08-29", Sent: 100, Delivered: 95, Read: 60},
		{Date: "2026-08-30", Sent: 50, Delivered: 48, Read: 30},
	}

	artifact, err := DailyStatsCSV(stats, testTime)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if artifact.MIME != "text/csv" {
		t.Fatalf("unexpected mime %q", artifact.MIME)
	}
	if !strings.HasSuffix(artifact.Filename, ".csv") {
		t.Fatalf("unexpected filename %q", artifact.Filename)
	}

	content := string(artifact.Content)
	if !strings.HasPrefix(content, "date,sent,delivered,read") {
		t.Fatalf("unexpected header: %q", strings.SplitN(content, "\n", 2)[0])
	}
	if !strings.Contains(content, "2026-08-29,100,95,60") {
		t.Fatalf("missing row in csv: %q", content)
	}
}

func TestAnalyticsHTML(t *testing.T) {
	analytics := model.Analytics{
		Overview:   model.AnalyticsOverview{TotalMessages: 150, DeliveryRate: 95.5, ReadRate: 60.0},
		DailyStats: []model.DailyStat{{Date: "2026-08-30", Sent: 50, Delivered: 48, Read: 30}},
	}

	artifact, err := AnalyticsHTML(analytics, testTime)
	if err != nil {
		t.Fatalf("html: %v", err)
	}

	content := string(artifact.Content)
	if !strings.Contains(content, "150") || !strings.Contains(content, "95.5") {
		t.Fatalf("overview missing from html")
	}
	if !strings.Contains(content, "2026-08-30") {
		t.Fatalf("daily stats missing from html")
	}
}

func TestCampaignsTXT(t *testing.T) {
	campaigns := []model.Campaign{
		{
			ID:        "C1",
			Name:      "promo natal",
			AccountID: "A1",
			Status:    "running",
			Progress:  model.CampaignProgress{Total: 100, Sent: 40, Failed: 2, Pending: 58},
		},
	}

	artifact := CampaignsTXT(campaigns, testTime)
	content := string(artifact.Content)

	if !strings.Contains(content, "promo natal [running]") {
		t.Fatalf("campaign line missing: %q", content)
	}
	if !strings.Contains(content, "40/100 enviadas, 2 falhas, 58 pendentes") {
		t.Fatalf("progress line missing: %q", content)
	}
	if !strings.HasPrefix(artifact.Filename, "campanhas_") {
		t.Fatalf("unexpected filename %q", artifact.Filename)
	}
}
