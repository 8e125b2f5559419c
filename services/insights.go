package services

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

const topScoredCount = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarizes the Gold listings: price statistics in EUR, the most expensive
// listing, the best scored listings and the count and average price per category.
func (s *InsightService) Generate(listings []*models.FeatureListing) *models.InsightReport {
	report := &models.InsightReport{
		ByCategory:     make(map[string]int),
		AveragePriceBy: make(map[string]float64),
	}
	if len(listings) == 0 {
		return report
	}
	report.TotalListings = len(listings)

	prices := make([]float64, 0, len(listings))
	sums := make(map[string]float64)
	priced := make(map[string]int)
	for _, l := range listings {
		report.ByCategory[l.ModelCategory]++
		if l.PriceInEUR == nil {
			continue
		}
		p := *l.PriceInEUR
		prices = append(prices, p)
		sums[l.ModelCategory] += p
		priced[l.ModelCategory]++
		if report.MostExpensive == nil || p > *report.MostExpensive.PriceInEUR {
			report.MostExpensive = l
		}
	}

	if len(prices) > 0 {
		report.AveragePrice = round2(stat.Mean(prices, nil))
		report.MinPrice = round2(floats.Min(prices))
		report.MaxPrice = round2(floats.Max(prices))
		report.MedianPrice = round2(median(prices))
		if len(prices) > 1 {
			report.PriceStdDev = round2(stat.StdDev(prices, nil))
		}
	}
	for cat, sum := range sums {
		report.AveragePriceBy[cat] = round2(sum / float64(priced[cat]))
	}

	ranked := make([]*models.FeatureListing, len(listings))
	copy(ranked, listings)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ListingScore > ranked[j].ListingScore
	})
	if len(ranked) > topScoredCount {
		ranked = ranked[:topScoredCount]
	}
	report.TopScored = ranked

	s.logger.Debug("[insights] Summarized %d listings (%d priced, %d categories)",
		report.TotalListings, len(prices), len(report.ByCategory))
	return report
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Print renders the insight report as tables.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	t := newTable(w, "GOLD LISTING INSIGHTS")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Total listings", r.TotalListings})
	if r.AveragePrice > 0 {
		t.AppendRow(table.Row{"Average price", euros(r.AveragePrice)})
		t.AppendRow(table.Row{"Median price", euros(r.MedianPrice)})
		t.AppendRow(table.Row{"Minimum price", euros(r.MinPrice)})
		t.AppendRow(table.Row{"Maximum price", euros(r.MaxPrice)})
		t.AppendRow(table.Row{"Std deviation", euros(r.PriceStdDev)})
	} else {
		t.AppendRow(table.Row{"Prices", "No price data available"})
	}
	if r.MostExpensive != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Most expensive", truncate(title(r.MostExpensive), 50)})
	}
	t.Render()

	if len(r.TopScored) > 0 {
		t = newTable(w, fmt.Sprintf("TOP %d BY LISTING SCORE", len(r.TopScored)))
		t.AppendHeader(table.Row{"#", "Listing", "Category", "Score", "Price"})
		for i, l := range r.TopScored {
			t.AppendRow(table.Row{i + 1, truncate(title(l), 40), l.ModelCategory, l.ListingScore, priceCell(l)})
		}
		t.Render()
	}

	if len(r.ByCategory) > 0 {
		type catCount struct {
			cat   string
			count int
		}
		cats := make([]catCount, 0, len(r.ByCategory))
		for c, n := range r.ByCategory {
			cats = append(cats, catCount{c, n})
		}
		sort.Slice(cats, func(i, j int) bool {
			if cats[i].count != cats[j].count {
				return cats[i].count > cats[j].count
			}
			return cats[i].cat < cats[j].cat
		})

		t = newTable(w, "LISTINGS BY MODEL CATEGORY")
		t.AppendHeader(table.Row{"Category", "Listings", "Average price"})
		for _, c := range cats {
			t.AppendRow(table.Row{c.cat, c.count, euros(r.AveragePriceBy[c.cat])})
		}
		t.AppendFooter(table.Row{"Total", r.TotalListings, ""})
		t.Render()
	}
}

// PrintStageReport renders the per-step row counts of one stage run.
func (s *InsightService) PrintStageReport(w io.Writer, r *models.StageReport) {
	t := newTable(w, fmt.Sprintf("%s  run %s", r.Stage, r.RunID))
	t.AppendHeader(table.Row{"Step", "Rows", "Dropped"})
	for _, st := range r.Steps {
		t.AppendRow(table.Row{st.Step, st.Rows, st.Dropped})
	}
	footer := fmt.Sprintf("%s → %s", r.Input, r.Output)
	if r.RateSource != "" {
		footer += fmt.Sprintf(" (rates: %s)", r.RateSource)
	}
	t.AppendFooter(table.Row{"Done in " + r.Duration.Round(time.Millisecond).String(), footer, ""})
	t.Render()
}

func newTable(w io.Writer, heading string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(heading)
	return t
}

func title(l *models.FeatureListing) string {
	if l.Title != nil && *l.Title != "" {
		return *l.Title
	}
	return l.URL
}

func priceCell(l *models.FeatureListing) string {
	if l.PriceInEUR == nil {
		return "-"
	}
	return euros(*l.PriceInEUR)
}

func euros(v float64) string {
	return fmt.Sprintf("€%.2f", v)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
