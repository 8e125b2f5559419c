package services

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

// OtherCategory is assigned when no rule matches a model name.
const OtherCategory = "Other"

// CategoryRule maps a model-name keyword to a category label.
type CategoryRule struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

// DefaultCategoryRules returns the built-in rule table. Order matters: the first
// matching keyword wins.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{Keyword: "911", Category: "911"},
		{Keyword: "912", Category: "912"},
		{Keyword: "914", Category: "914"},
		{Keyword: "924", Category: "924"},
		{Keyword: "928", Category: "928"},
		{Keyword: "944", Category: "944"},
		{Keyword: "968", Category: "968"},
		{Keyword: "Boxster", Category: "Boxster"},
		{Keyword: "Cayman", Category: "Cayman"},
		{Keyword: "Carrera GT", Category: "Supercar"},
		{Keyword: "918", Category: "Supercar"},
		{Keyword: "Cayenne", Category: "SUV"},
		{Keyword: "Macan", Category: "SUV"},
		{Keyword: "Panamera", Category: "Sedan"},
		{Keyword: "Taycan", Category: "Electric"},
	}
}

type categoryRuleFile struct {
	Rules []CategoryRule `yaml:"rules"`
}

// LoadCategoryRules reads an ordered rule table from a YAML file of the form
//
//	rules:
//	  - keyword: "911"
//	    category: "911"
func LoadCategoryRules(path string) ([]CategoryRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("features: read category rules: %w", err)
	}
	var f categoryRuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("features: parse category rules %s: %w", path, err)
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Keyword) == "" || strings.TrimSpace(r.Category) == "" {
			return nil, fmt.Errorf("features: category rule %d in %s needs keyword and category", i+1, path)
		}
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("features: no category rules in %s", path)
	}
	return f.Rules, nil
}

// Classify returns the category of the first rule whose keyword occurs in model,
// ignoring case. A nil model or no match gives OtherCategory.
func Classify(model *string, rules []CategoryRule) string {
	if model == nil {
		return OtherCategory
	}
	m := strings.ToLower(*model)
	for _, r := range rules {
		if strings.Contains(m, strings.ToLower(r.Keyword)) {
			return r.Category
		}
	}
	return OtherCategory
}

// Score weights.
const (
	scoreMatchingNumbers = 10
	scoreOwnersKnown     = 10
	scoreInteriorColor   = 5
	scoreExteriorColor   = 5
	scorePTS             = 15
	scoreFullyRestored   = 20
	scoreLowMileage      = 10

	lowMileageKM = 50000
)

// FeatureEngineer derives the Gold modeling features from Silver listings.
type FeatureEngineer struct {
	rules  []CategoryRule
	logger *utils.Logger
}

// NewFeatureEngineer creates a FeatureEngineer. A nil rule table uses DefaultCategoryRules.
func NewFeatureEngineer(rules []CategoryRule, logger *utils.Logger) *FeatureEngineer {
	if rules == nil {
		rules = DefaultCategoryRules()
	}
	return &FeatureEngineer{rules: rules, logger: logger}
}

// Engineer computes transforms, category, score and year for every row, then fills
// categorical nulls with Unknown. Every row must carry a positive price_in_eur and a
// non-negative mileage_km.
func (e *FeatureEngineer) Engineer(t *models.CleanedTable) (*models.FeatureTable, error) {
	out := &models.FeatureTable{Columns: t.Columns.Clone(), Rows: make([]*models.FeatureListing, 0, len(t.Rows))}

	for _, l := range t.Rows {
		f, err := e.transform(l)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, f)
	}

	categories := make(map[string]int)
	minScore, maxScore := math.MaxInt, 0
	for _, f := range out.Rows {
		f.ModelCategory = Classify(f.Model, e.rules)
		categories[f.ModelCategory]++

		f.ListingScore = score(f, t.Columns)
		minScore = min(minScore, f.ListingScore)
		maxScore = max(maxScore, f.ListingScore)

		f.YearOfConstruction = nil
		if f.Year != nil {
			f.YearOfConstruction = models.ParseNumber(*f.Year)
		}
	}
	fillCategoricals(out)

	e.logger.Info("[features] Engineered %d listings across %d model categories", len(out.Rows), len(categories))
	if len(out.Rows) > 0 {
		e.logger.Info("[features] Listing scores range: %d - %d", minScore, maxScore)
	}
	return out, nil
}

func (e *FeatureEngineer) transform(l *models.CleanedListing) (*models.FeatureListing, error) {
	if l.PriceInEUR == nil {
		return nil, fmt.Errorf("features: %w: price_in_eur is null for %s", ErrNonPositiveLog, l.URL)
	}
	price := *l.PriceInEUR
	if price <= 0 {
		return nil, fmt.Errorf("features: %w: price_in_eur=%v for %s", ErrNonPositiveLog, price, l.URL)
	}
	if l.MileageKM < 0 {
		return nil, fmt.Errorf("features: %w: mileage_km=%v for %s", ErrNonPositiveLog, l.MileageKM, l.URL)
	}

	return &models.FeatureListing{
		CleanedListing: *l,
		LogPrice:       math.Log(price),
		LogMileage:     math.Log1p(l.MileageKM),
		MileageSq:      l.MileageKM * l.MileageKM,
	}, nil
}

// score sums the completeness signals whose source columns are present.
func score(f *models.FeatureListing, present models.ColumnSet) int {
	s := 0
	if present.Has(models.ColMatchingNumbers) && f.MatchingNumbers != models.Unknown {
		s += scoreMatchingNumbers
	}
	if present.Has(models.ColOwners) && f.OwnersKnown == 1 {
		s += scoreOwnersKnown
	}
	if present.Has(models.ColInteriorColor) && !models.IsBlank(f.InteriorColor) {
		s += scoreInteriorColor
	}
	if present.Has(models.ColExteriorColor) && !models.IsBlank(f.ExteriorColor) {
		s += scoreExteriorColor
	}
	if present.Has(models.ColPTS) && f.PTS == 1 {
		s += scorePTS
	}
	if f.IsFullyRestored == 1 {
		s += scoreFullyRestored
	}
	if f.MileageKM < lowMileageKM {
		s += scoreLowMileage
	}
	return s
}

func fillCategoricals(t *models.FeatureTable) {
	for _, col := range models.CategoricalColumns {
		if !t.Columns.Has(col) {
			continue
		}
		for _, f := range t.Rows {
			if p := f.Field(col); p != nil && models.IsBlank(*p) {
				*p = models.StringPtr(models.Unknown)
			}
		}
	}
}
