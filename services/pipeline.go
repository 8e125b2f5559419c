package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"listings-pipeline/models"
	"listings-pipeline/storage"
	"listings-pipeline/utils"
)

const (
	StageBronzeToSilver = "bronze → silver"
	StageSilverToGold   = "silver → gold"
)

// RatesGetter resolves a currency → EUR mapping. RateProvider is the production implementation.
type RatesGetter interface {
	GetRates(ctx context.Context, base string, symbols []string, useCache bool) (Rates, RateSource)
}

// PipelineConfig holds the per-run options of the stage orchestrators.
type PipelineConfig struct {
	RatesBase     string
	RatesSymbols  []string
	UseRatesCache bool

	RemovePriceOutliers bool
	OutlierStd          float64
}

// Pipeline drives the Bronze → Silver and Silver → Gold stages.
type Pipeline struct {
	cfg      PipelineConfig
	rates    RatesGetter
	cleaner  *Cleaner
	outliers *OutlierFilter
	engineer *FeatureEngineer
	sinks    []storage.GoldWriter
	logger   *utils.Logger
}

// NewPipeline wires the stage components. Gold listings are published to every sink
// after the Gold table has been written.
func NewPipeline(
	cfg PipelineConfig,
	rates RatesGetter,
	cleaner *Cleaner,
	engineer *FeatureEngineer,
	sinks []storage.GoldWriter,
	logger *utils.Logger,
) *Pipeline {
	if cfg.OutlierStd <= 0 {
		cfg.OutlierStd = 3.0
	}
	return &Pipeline{
		cfg:      cfg,
		rates:    rates,
		cleaner:  cleaner,
		outliers: NewOutlierFilter(logger),
		engineer: engineer,
		sinks:    sinks,
		logger:   logger,
	}
}

func newStageReport(stage, in, out string) *models.StageReport {
	return &models.StageReport{
		RunID:     uuid.NewString(),
		Stage:     stage,
		Input:     in,
		Output:    out,
		StartedAt: time.Now(),
	}
}

// BronzeToSilver reads the raw table at in, cleans it and writes the Silver table to out.
// Rates are fetched once per run.
func (p *Pipeline) BronzeToSilver(ctx context.Context, in, out string) (*models.CleanedTable, *models.StageReport, error) {
	report := newStageReport(StageBronzeToSilver, in, out)
	log := p.logger.With("run_id", report.RunID)
	log.Info("[pipeline] Starting %s: %s → %s", report.Stage, in, out)

	t, err := storage.ReadTable(in)
	if err != nil {
		return nil, report, fmt.Errorf("pipeline: read bronze: %w", err)
	}
	raw, err := models.DecodeRaw(t)
	if err != nil {
		return nil, report, fmt.Errorf("pipeline: %w", err)
	}

	rates, source := p.rates.GetRates(ctx, p.cfg.RatesBase, p.cfg.RatesSymbols, p.cfg.UseRatesCache)
	report.RateSource = string(source)
	log.Info("[pipeline] Using %d exchange rates (source: %s)", len(rates), source)

	cleaned := p.cleaner.Clean(raw, rates, report)

	if err := ctx.Err(); err != nil {
		return nil, report, fmt.Errorf("pipeline: %w", err)
	}
	if err := storage.WriteTable(out, models.EncodeCleaned(cleaned)); err != nil {
		return nil, report, fmt.Errorf("pipeline: write silver: %w", err)
	}

	report.Duration = time.Since(report.StartedAt)
	log.Info("[pipeline] Saved %d rows to silver: %s", cleaned.Len(), out)
	return cleaned, report, nil
}

// SilverToGold reads the Silver table at in, derives the modeling features and writes
// the Gold table to out, then publishes it to the configured sinks.
func (p *Pipeline) SilverToGold(ctx context.Context, in, out string) (*models.FeatureTable, *models.StageReport, error) {
	report := newStageReport(StageSilverToGold, in, out)
	log := p.logger.With("run_id", report.RunID)
	log.Info("[pipeline] Starting %s: %s → %s", report.Stage, in, out)

	t, err := storage.ReadTable(in)
	if err != nil {
		return nil, report, fmt.Errorf("pipeline: read silver: %w", err)
	}
	silver, err := models.DecodeCleaned(t, models.ColPriceInEUR)
	if err != nil {
		return nil, report, fmt.Errorf("pipeline: %w", err)
	}
	if silver.Rejected > 0 {
		log.Warn("[pipeline] Rejected %d silver rows without a valid url or mileage_km", silver.Rejected)
	}
	report.Record("loaded", silver.Len())

	silver.Rows = uniqueByURL(silver.Rows, log)
	report.Record("dedupe", silver.Len())

	silver.Rows = withPrice(silver.Rows)
	report.Record("missing prices", silver.Len())
	log.Info("[pipeline] After removing missing prices: %d rows", silver.Len())

	if p.cfg.RemovePriceOutliers {
		silver, err = p.outliers.RemoveOutliers(silver, models.ColPriceInEUR, p.cfg.OutlierStd, true)
		if err != nil {
			return nil, report, fmt.Errorf("pipeline: %w", err)
		}
		report.Record("outliers", silver.Len())
	}

	gold, err := p.engineer.Engineer(silver)
	if err != nil {
		return nil, report, fmt.Errorf("pipeline: %w", err)
	}
	report.Record("features", gold.Len())

	if err := ctx.Err(); err != nil {
		return nil, report, fmt.Errorf("pipeline: %w", err)
	}
	if err := storage.WriteTable(out, models.EncodeFeatures(gold)); err != nil {
		return nil, report, fmt.Errorf("pipeline: write gold: %w", err)
	}
	log.Info("[pipeline] Saved %d rows to gold: %s", gold.Len(), out)

	for _, sink := range p.sinks {
		if err := sink.Write(ctx, gold.Rows); err != nil {
			return nil, report, fmt.Errorf("pipeline: publish gold: %w", err)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	return gold, report, nil
}

// uniqueByURL keeps the first row for every url.
func uniqueByURL(rows []*models.CleanedListing, log *utils.Logger) []*models.CleanedListing {
	seen := utils.NewURLSet()
	out := make([]*models.CleanedListing, 0, len(rows))
	for _, l := range rows {
		if seen.Add(l.URL) {
			out = append(out, l)
		}
	}
	if dups := len(rows) - len(out); dups > 0 {
		log.Warn("[pipeline] Removed %d duplicate URLs from silver input", dups)
	}
	return out
}

func withPrice(rows []*models.CleanedListing) []*models.CleanedListing {
	out := make([]*models.CleanedListing, 0, len(rows))
	for _, l := range rows {
		if l.PriceInEUR != nil {
			out = append(out, l)
		}
	}
	return out
}
