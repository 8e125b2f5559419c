package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

const kmPerMile = 1.60934

var (
	// mileageRegexp captures a number with thousands separators and an optional unit
	mileageRegexp = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(km|mi)?`)
)

// DefaultSeriesMap collapses verbose series names to their short codes.
var DefaultSeriesMap = map[string]string{
	"982 (718 Boxster/Cayman)": "982",
	"987 (Boxster/Cayman)":     "987",
	"981 (Boxster/Cayman)":     "981",
}

// CleanerConfig controls the optional Bronze → Silver policies.
type CleanerConfig struct {
	DropShopLinks bool
	ShopURLPrefix string
	DropColumns   []string
	SeriesMap     map[string]string
}

// Cleaner transforms raw Bronze listings into validated Silver listings.
type Cleaner struct {
	cfg    CleanerConfig
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given policies and logger.
func NewCleaner(cfg CleanerConfig, logger *utils.Logger) *Cleaner {
	if cfg.SeriesMap == nil {
		cfg.SeriesMap = DefaultSeriesMap
	}
	return &Cleaner{cfg: cfg, logger: logger}
}

// Clean runs the Bronze → Silver steps in order: dedupe, drop columns, shop-link filter,
// mileage, condition and series normalization, derived flags, price conversion.
// rates must be fetched once by the caller so every row converts with the same mapping.
// Steps are recorded in report when it is non-nil.
func (c *Cleaner) Clean(raw *models.RawTable, rates Rates, report *models.StageReport) *models.CleanedTable {
	record(report, "loaded", len(raw.Rows))

	rows := c.dedupe(raw.Rows)
	record(report, "dedupe", len(rows))

	c.dropColumns(raw)

	if c.cfg.DropShopLinks {
		rows = c.filterShopLinks(rows)
		record(report, "shop links", len(rows))
	}

	out := &models.CleanedTable{Columns: raw.Columns.Clone()}
	out.Columns.Add(models.ColCondition, models.ColMatchingNumbers, models.ColOwners, models.ColPTS)

	out.Rows = c.cleanMileage(rows)
	record(report, "mileage", len(out.Rows))

	for _, l := range out.Rows {
		c.standardizeSeries(l)
		deriveFlags(l)
	}

	c.convertPrices(out, raw.Columns, rates)
	record(report, "price conversion", len(out.Rows))

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(raw.Rows), len(out.Rows), len(raw.Rows)-len(out.Rows))
	return out
}

func record(report *models.StageReport, step string, rows int) {
	if report != nil {
		report.Record(step, rows)
	}
}

// dedupe keeps the first row for every url. Rows without a url cannot be keyed and are dropped.
func (c *Cleaner) dedupe(raw []*models.RawListing) []*models.RawListing {
	seen := utils.NewURLSet()
	out := make([]*models.RawListing, 0, len(raw))
	empty, dups := 0, 0

	for _, r := range raw {
		if r.URL == "" {
			empty++
			continue
		}
		if !seen.Add(r.URL) {
			dups++
			continue
		}
		out = append(out, r)
	}

	if empty > 0 {
		c.logger.Warn("[cleaner] Dropped %d listings with empty URL", empty)
	}
	c.logger.Info("[cleaner] Removed %d duplicate URLs", dups)
	return out
}

func (c *Cleaner) dropColumns(raw *models.RawTable) {
	for _, col := range c.cfg.DropColumns {
		if raw.DropColumn(col) {
			c.logger.Debug("[cleaner] Dropped column %q", col)
		}
	}
	if len(raw.Ignored) > 0 {
		c.logger.Debug("[cleaner] Ignoring unknown columns: %s", strings.Join(raw.Ignored, ", "))
	}
}

func (c *Cleaner) filterShopLinks(rows []*models.RawListing) []*models.RawListing {
	if c.cfg.ShopURLPrefix == "" {
		return rows
	}
	out := make([]*models.RawListing, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(r.URL, c.cfg.ShopURLPrefix) {
			continue
		}
		out = append(out, r)
	}
	c.logger.Info("[cleaner] Filtered out %d shop links", len(rows)-len(out))
	return out
}

// cleanMileage parses the mileage text of every row into kilometers. Rows without a
// number are kept only when the condition says the car is fully restored, with a
// mileage of 1.
func (c *Cleaner) cleanMileage(rows []*models.RawListing) []*models.CleanedListing {
	out := make([]*models.CleanedListing, 0, len(rows))

	for _, r := range rows {
		value, unit, ok := parseMileage(r.Mileage)
		if !ok {
			if r.Condition == nil || !models.IsFullyRestored(*r.Condition) {
				c.logger.Debug("[cleaner] Dropping %s: unparseable mileage", r.URL)
				continue
			}
			value, unit = 1, "km"
		}

		km := value
		if unit == "mi" {
			km = value * kmPerMile
		}

		out = append(out, &models.CleanedListing{
			URL:             r.URL,
			SourceFields:    r.SourceFields,
			Mileage:         r.Mileage,
			Condition:       orUnknown(r.Condition),
			MatchingNumbers: orUnknown(r.MatchingNumbers),
			Owners:          orUnknown(r.Owners),
			PTS:             parsePTS(r.PTS),
			Price:           parsePrice(r.Price),
			Currency:        normalizeCurrency(r.Currency),
			MileageValue:    km,
			MileageUnit:     unit,
			MileageKM:       km,
		})
	}

	c.logger.Info("[cleaner] Cleaned mileage for %d listings (dropped %d)", len(out), len(rows)-len(out))
	return out
}

// parseMileage extracts the first number and its unit. A missing unit means km.
func parseMileage(raw *string) (float64, string, bool) {
	if raw == nil {
		return 0, "", false
	}
	m := mileageRegexp.FindStringSubmatch(*raw)
	if len(m) < 3 {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v < 0 {
		return 0, "", false
	}
	unit := strings.ToLower(m[2])
	if unit == "" {
		unit = "km"
	}
	return v, unit, true
}

func orUnknown(s *string) string {
	if models.IsBlank(s) {
		return models.Unknown
	}
	return *s
}

func parsePTS(s *string) int {
	if s != nil && strings.EqualFold(strings.TrimSpace(*s), "yes") {
		return 1
	}
	return 0
}

func parsePrice(s *string) *float64 {
	if s == nil {
		return nil
	}
	return models.ParseNumber(*s)
}

func normalizeCurrency(s *string) *string {
	if models.IsBlank(s) {
		return nil
	}
	c := strings.ToUpper(strings.TrimSpace(*s))
	return &c
}

func (c *Cleaner) standardizeSeries(l *models.CleanedListing) {
	if l.Series == nil {
		return
	}
	if short, ok := c.cfg.SeriesMap[*l.Series]; ok {
		l.Series = &short
	}
}

func deriveFlags(l *models.CleanedListing) {
	l.OwnersKnown = 1
	if l.Owners == models.Unknown {
		l.OwnersKnown = 0
	}
	l.IsFullyRestored = 0
	if models.IsFullyRestored(l.Condition) {
		l.IsFullyRestored = 1
	}
}

// convertPrices fills price_in_eur for every row with both a price and a currency.
func (c *Cleaner) convertPrices(t *models.CleanedTable, present models.ColumnSet, rates Rates) {
	if !present.Has(models.ColPrice) || !present.Has(models.ColCurrency) {
		c.logger.Warn("[cleaner] Price or currency column missing, skipping conversion")
		return
	}

	converted, unknown := 0, 0
	for _, l := range t.Rows {
		l.PriceInEUR = nil
		if l.Price == nil || l.Currency == nil {
			continue
		}
		if !IsKnownCurrency(*l.Currency, rates) {
			unknown++
		}
		eur := ToEUR(*l.Price, *l.Currency, rates)
		if math.IsNaN(eur) || math.IsInf(eur, 0) {
			continue
		}
		l.PriceInEUR = &eur
		converted++
	}

	if unknown > 0 {
		c.logger.Warn("[cleaner] %d prices in unknown currencies were taken as EUR", unknown)
	}
	c.logger.Info("[cleaner] Converted %d prices to EUR", converted)
}
