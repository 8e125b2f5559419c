package services

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"listings-pipeline/models"
)

func goldListing(i int, title, category string, price float64, score int) *models.FeatureListing {
	return &models.FeatureListing{
		CleanedListing: models.CleanedListing{
			URL:          fmt.Sprintf("https://example.com/car/%d", i),
			SourceFields: models.SourceFields{Title: models.StringPtr(title)},
			PriceInEUR:   models.FloatPtr(price),
		},
		ModelCategory: category,
		ListingScore:  score,
	}
}

func sampleListings() []*models.FeatureListing {
	return []*models.FeatureListing{
		goldListing(1, "911 Carrera 2.7 RS", "911", 600000, 60),
		goldListing(2, "Boxster S", "Boxster", 30000, 25),
		goldListing(3, "911 Turbo", "911", 150000, 45),
		goldListing(4, "Carrera GT", "Supercar", 1200000, 70),
		goldListing(5, "Cayenne GTS", "SUV", 20000, 10),
		goldListing(6, "Macan", "SUV", 40000, 35),
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.TotalListings != 6 {
		t.Errorf("TotalListings: got %d, want 6", r.TotalListings)
	}
	if r.ByCategory["911"] != 2 {
		t.Errorf("911 count: got %d, want 2", r.ByCategory["911"])
	}
	if r.ByCategory["SUV"] != 2 {
		t.Errorf("SUV count: got %d, want 2", r.ByCategory["SUV"])
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.AveragePrice != 340000 {
		t.Errorf("AveragePrice: got %.2f, want 340000", r.AveragePrice)
	}
	if r.MedianPrice != 95000 {
		t.Errorf("MedianPrice: got %.2f, want 95000", r.MedianPrice)
	}
	if r.MinPrice != 20000 {
		t.Errorf("MinPrice: got %.2f, want 20000", r.MinPrice)
	}
	if r.MaxPrice != 1200000 {
		t.Errorf("MaxPrice: got %.2f, want 1200000", r.MaxPrice)
	}
	if r.AveragePriceBy["911"] != 375000 {
		t.Errorf("AveragePriceBy[911]: got %.2f, want 375000", r.AveragePriceBy["911"])
	}
	if r.PriceStdDev <= 0 {
		t.Errorf("PriceStdDev: got %.2f, want > 0", r.PriceStdDev)
	}
}

func TestInsightMostExpensive(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.MostExpensive == nil {
		t.Fatal("MostExpensive should not be nil")
	}
	if *r.MostExpensive.Title != "Carrera GT" {
		t.Errorf("MostExpensive: got %q, want %q", *r.MostExpensive.Title, "Carrera GT")
	}
}

func TestInsightTopScored(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if len(r.TopScored) != 5 {
		t.Fatalf("TopScored len: got %d, want 5", len(r.TopScored))
	}
	if r.TopScored[0].ListingScore != 70 {
		t.Errorf("TopScored[0].ListingScore: got %d, want 70", r.TopScored[0].ListingScore)
	}
	if r.TopScored[4].ListingScore != 25 {
		t.Errorf("TopScored[4].ListingScore: got %d, want 25", r.TopScored[4].ListingScore)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(nil)
	if r.TotalListings != 0 {
		t.Errorf("TotalListings: got %d, want 0", r.TotalListings)
	}
	if r.MostExpensive != nil {
		t.Error("MostExpensive should be nil for empty input")
	}

	var buf bytes.Buffer
	svc.Print(&buf, r)
	if !strings.Contains(buf.String(), "No price data available") {
		t.Errorf("empty report should say there is no price data, got:\n%s", buf.String())
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	var buf bytes.Buffer
	svc.Print(&buf, svc.Generate(sampleListings()))

	out := buf.String()
	for _, want := range []string{"GOLD LISTING INSIGHTS", "€340000.00", "Carrera GT", "Supercar", "LISTINGS BY MODEL CATEGORY"} {
		if !strings.Contains(out, want) {
			t.Errorf("printed report missing %q", want)
		}
	}
}

func TestPrintStageReport(t *testing.T) {
	r := &models.StageReport{RunID: "run-1", Stage: StageBronzeToSilver, Input: "in.csv", Output: "out.csv", RateSource: "static", Duration: 1500 * time.Millisecond}
	r.Record("loaded", 10)
	r.Record("dedupe", 8)

	var buf bytes.Buffer
	NewInsightService(newTestLogger()).PrintStageReport(&buf, r)

	// footers are upper-cased by the table style
	out := strings.ToLower(buf.String())
	for _, want := range []string{"run-1", "dedupe", "rates: static", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("stage report missing %q:\n%s", want, out)
		}
	}
}
