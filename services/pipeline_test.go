package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listings-pipeline/models"
	"listings-pipeline/storage"
)

type fixedRates struct {
	rates Rates
	calls int
}

func (f *fixedRates) GetRates(ctx context.Context, base string, symbols []string, useCache bool) (Rates, RateSource) {
	f.calls++
	return f.rates, RateSourceCache
}

type recordingSink struct {
	written []*models.FeatureListing
	err     error
}

func (s *recordingSink) Write(ctx context.Context, listings []*models.FeatureListing) error {
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, listings...)
	return nil
}

func (s *recordingSink) Close() error { return nil }

const bronzeCSV = `url,Title,Model,Series,Year of construction,Mileage,Condition,Paint-to-Sample (PTS),Matching numbers,Number of vehicle owners,Interior color,Exterior color,price,currency,License documents (Click to open)
https://www.elferspot.com/en/car/1,911 Carrera RS,911 Carrera RS,,1973,"42,000 km",Fully restored,Yes,Yes,3,Black,White,"650,000",EUR,doc
https://www.elferspot.com/en/car/2,Boxster S,Boxster S,987 (Boxster/Cayman),2006,"61,000 mi",Good,No,,,Grey,,"35,000",USD,doc
https://www.elferspot.com/en/car/1,duplicate,911,,,"1 km",,,,,,,1,EUR,
https://www.elferspot.com/en/car/3,Carrera GT,Carrera GT,,2005,,fully restored,no,Yes,1,,Silver,"1,200,000",GBP,
https://www.elferspot.com/en/car/4,Cayenne,Cayenne Turbo,,2010,unknown,Good,,,,,,"20,000",CHF,
https://www.elferspot.com/en/shop/poster,Poster,,,,"1 km",,,,,,,50,EUR,
https://www.elferspot.com/en/car/5,Macan,Macan GTS,,2019,"12,500 km",,,,2,,,,EUR,
https://www.elferspot.com/en/car/6,Taycan,Taycan 4S,,2021,"9,000 km",Like new,,,1,Red,Red,"95,000",EUR,
`

func newTestPipeline(sinks ...storage.GoldWriter) (*Pipeline, *fixedRates) {
	rates := &fixedRates{rates: Rates{"EUR": 1.0, "USD": 0.9, "GBP": 1.2, "CHF": 1.05, "JPY": 0.006}}
	logger := newTestLogger()
	p := NewPipeline(PipelineConfig{
		RatesBase:           "EUR",
		UseRatesCache:       true,
		RemovePriceOutliers: true,
		OutlierStd:          3,
	}, rates, newTestCleaner(), NewFeatureEngineer(nil, logger), sinks, logger)
	return p, rates
}

func writeBronze(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bronze", "listings.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(bronzeCSV), 0644))
	return path
}

func TestBronzeToSilver(t *testing.T) {
	dir := t.TempDir()
	p, rates := newTestPipeline()

	silver, report, err := p.BronzeToSilver(context.Background(), writeBronze(t, dir), filepath.Join(dir, "silver", "listings.csv"))

	require.NoError(t, err)
	assert.Equal(t, 1, rates.calls, "rates are fetched once per run")
	assert.Equal(t, string(RateSourceCache), report.RateSource)
	assert.NotEmpty(t, report.RunID)

	// duplicate, shop link and unparseable mileage rows are gone
	urls := make([]string, 0, silver.Len())
	for _, l := range silver.Rows {
		urls = append(urls, l.URL)
	}
	assert.Equal(t, []string{
		"https://www.elferspot.com/en/car/1",
		"https://www.elferspot.com/en/car/2",
		"https://www.elferspot.com/en/car/3",
		"https://www.elferspot.com/en/car/5",
		"https://www.elferspot.com/en/car/6",
	}, urls)

	boxster := silver.Rows[1]
	assert.Equal(t, "987", *boxster.Series)
	assert.InDelta(t, 61000*kmPerMile, boxster.MileageKM, 1e-6)
	assert.InDelta(t, 31500.0, *boxster.PriceInEUR, 1e-6)
	assert.Equal(t, models.Unknown, boxster.MatchingNumbers)

	gt := silver.Rows[2]
	assert.Equal(t, 1.0, gt.MileageKM)
	assert.Equal(t, 1, gt.IsFullyRestored)

	assert.Nil(t, silver.Rows[3].PriceInEUR, "missing price stays null")

	written, err := storage.ReadTable(filepath.Join(dir, "silver", "listings.csv"))
	require.NoError(t, err)
	assert.NotContains(t, written.Columns, "License documents (Click to open)")
	assert.Contains(t, written.Columns, models.ColMileageKM)
	assert.Len(t, written.Rows, 5)
}

func TestSilverToGold(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	p, _ := newTestPipeline(sink)
	silverPath := filepath.Join(dir, "silver.csv")
	goldPath := filepath.Join(dir, "gold.csv")

	_, _, err := p.BronzeToSilver(context.Background(), writeBronze(t, dir), silverPath)
	require.NoError(t, err)
	gold, report, err := p.SilverToGold(context.Background(), silverPath, goldPath)
	require.NoError(t, err)

	assert.Equal(t, 4, gold.Len(), "the listing without a price is dropped")
	assert.Len(t, sink.written, 4)

	categories := map[string]string{}
	for _, f := range gold.Rows {
		categories[f.URL] = f.ModelCategory
		assert.Greater(t, f.LogPrice, 0.0)
		assert.NotNil(t, f.InteriorColor)
		assert.NotNil(t, f.Series)
	}
	assert.Equal(t, "911", categories["https://www.elferspot.com/en/car/1"])
	assert.Equal(t, "Boxster", categories["https://www.elferspot.com/en/car/2"])
	assert.Equal(t, "Supercar", categories["https://www.elferspot.com/en/car/3"])
	assert.Equal(t, "Electric", categories["https://www.elferspot.com/en/car/6"])

	steps := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		steps = append(steps, s.Step)
	}
	assert.Equal(t, []string{"loaded", "dedupe", "missing prices", "outliers", "features"}, steps)

	written, err := storage.ReadTable(goldPath)
	require.NoError(t, err)
	assert.Contains(t, written.Columns, models.ColListingScore)
	assert.Len(t, written.Rows, 4)
}

func TestStagesAreIdempotent(t *testing.T) {
	for _, ext := range []string{".csv", ".xlsx"} {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			p, _ := newTestPipeline()
			bronze := writeBronze(t, dir)

			run := func(n string) ([]byte, *models.Table) {
				silver := filepath.Join(dir, "silver"+n+ext)
				gold := filepath.Join(dir, "gold"+n+".csv")
				_, _, err := p.BronzeToSilver(context.Background(), bronze, silver)
				require.NoError(t, err)
				_, _, err = p.SilverToGold(context.Background(), silver, gold)
				require.NoError(t, err)

				g, err := os.ReadFile(gold)
				require.NoError(t, err)
				s, err := storage.ReadTable(silver)
				require.NoError(t, err)
				return g, s
			}

			gold1, silver1 := run("1")
			gold2, silver2 := run("2")
			assert.Equal(t, string(gold1), string(gold2))
			assert.Equal(t, silver1, silver2)
		})
	}
}

func TestSilverToGoldTwiceOnSameInput(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestPipeline()
	silver := filepath.Join(dir, "silver.csv")
	_, _, err := p.BronzeToSilver(context.Background(), writeBronze(t, dir), silver)
	require.NoError(t, err)

	var outputs [2][]byte
	for i := range outputs {
		gold := filepath.Join(dir, "gold.csv")
		_, _, err := p.SilverToGold(context.Background(), silver, gold)
		require.NoError(t, err)
		outputs[i], err = os.ReadFile(gold)
		require.NoError(t, err)
	}
	assert.Equal(t, outputs[0], outputs[1])
}

func TestSilverToGoldDedupesInput(t *testing.T) {
	dir := t.TempDir()
	silver := filepath.Join(dir, "silver.csv")
	require.NoError(t, os.WriteFile(silver, []byte(
		"url,Model,mileage_km,price_in_eur\n"+
			"a,911,100,50000\n"+
			"a,912,200,60000\n"+
			"b,Cayman,300,40000\n"), 0644))
	p, _ := newTestPipeline()

	gold, _, err := p.SilverToGold(context.Background(), silver, filepath.Join(dir, "gold.csv"))

	require.NoError(t, err)
	require.Equal(t, 2, gold.Len())
	assert.Equal(t, "911", gold.Rows[0].ModelCategory)
	assert.Equal(t, "Cayman", gold.Rows[1].ModelCategory)
}

func TestSilverToGoldRequiresColumns(t *testing.T) {
	dir := t.TempDir()
	silver := filepath.Join(dir, "silver.csv")
	require.NoError(t, os.WriteFile(silver, []byte("url,mileage_km\na,1\n"), 0644))
	p, _ := newTestPipeline()

	_, _, err := p.SilverToGold(context.Background(), silver, filepath.Join(dir, "gold.csv"))

	assert.ErrorIs(t, err, models.ErrMissingColumn)
}

func TestSilverToGoldFailsWhenSinkFails(t *testing.T) {
	dir := t.TempDir()
	sinkErr := errors.New("connection refused")
	p, _ := newTestPipeline(&recordingSink{err: sinkErr})
	silver := filepath.Join(dir, "silver.csv")
	_, _, err := p.BronzeToSilver(context.Background(), writeBronze(t, dir), silver)
	require.NoError(t, err)

	_, _, err = p.SilverToGold(context.Background(), silver, filepath.Join(dir, "gold.csv"))

	assert.ErrorIs(t, err, sinkErr)
}

func TestBronzeToSilverUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestPipeline()

	_, _, err := p.BronzeToSilver(context.Background(), writeBronze(t, dir), filepath.Join(dir, "silver.parquet"))

	assert.ErrorIs(t, err, storage.ErrUnsupportedFormat)
}

func TestBronzeToSilverMissingURLColumn(t *testing.T) {
	dir := t.TempDir()
	bronze := filepath.Join(dir, "bronze.csv")
	require.NoError(t, os.WriteFile(bronze, []byte("Title,Mileage\nx,1 km\n"), 0644))
	p, _ := newTestPipeline()

	_, _, err := p.BronzeToSilver(context.Background(), bronze, filepath.Join(dir, "silver.csv"))

	assert.ErrorIs(t, err, models.ErrMissingColumn)
}
