package models

import (
	"errors"
	"strings"
)

// ErrMissingColumn is returned when a stage input lacks a column the stage requires.
var ErrMissingColumn = errors.New("missing required column")

// Unknown is the sentinel stored for categorical fields that could not be determined.
const Unknown = "Unknown"

// Column names. These are the contract between stages; renaming one is a breaking change.
const (
	ColURL             = "url"
	ColTitle           = "Title"
	ColModel           = "Model"
	ColSeries          = "Series"
	ColYear            = "Year of construction"
	ColMileage         = "Mileage"
	ColCondition       = "Condition"
	ColPTS             = "Paint-to-Sample (PTS)"
	ColMatchingNumbers = "Matching numbers"
	ColOwners          = "Number of vehicle owners"
	ColInteriorColor   = "Interior color"
	ColExteriorColor   = "Exterior color"
	ColTransmission    = "Transmission"
	ColDrive           = "Drive"
	ColReadyToDrive    = "Ready to drive"
	ColCarLocation     = "Car location"
	ColPrice           = "price"
	ColCurrency        = "currency"
	ColScrapedAt       = "scraped_at"

	ColMileageValue    = "mileage_value"
	ColMileageUnit     = "mileage_unit"
	ColMileageKM       = "mileage_km"
	ColOwnersKnown     = "owners_known"
	ColIsFullyRestored = "is_fully_restored"
	ColPriceInEUR      = "price_in_eur"

	ColLogPrice      = "log_price"
	ColLogMileage    = "log_mileage"
	ColMileageSq     = "mileage_sq"
	ColModelCategory = "model_category"
	ColListingScore  = "listing_score"
)

// sourceColumns are the scraped columns in output order. They are only written
// when present in the stage input.
var sourceColumns = []string{
	ColTitle, ColModel, ColSeries, ColYear, ColMileage, ColCondition, ColPTS,
	ColMatchingNumbers, ColOwners, ColInteriorColor, ColExteriorColor,
	ColTransmission, ColDrive, ColReadyToDrive, ColCarLocation,
	ColPrice, ColCurrency, ColScrapedAt,
}

var silverDerivedColumns = []string{
	ColMileageValue, ColMileageUnit, ColMileageKM, ColOwnersKnown, ColIsFullyRestored, ColPriceInEUR,
}

var goldDerivedColumns = []string{
	ColLogPrice, ColLogMileage, ColMileageSq, ColModelCategory, ColListingScore,
}

// CategoricalColumns are filled with Unknown before the Gold table is persisted.
var CategoricalColumns = []string{
	ColSeries, ColModel, ColTransmission, ColDrive, ColReadyToDrive,
	ColCarLocation, ColInteriorColor, ColExteriorColor,
}

// headerAliases maps a normalized header to its canonical column name.
var headerAliases = func() map[string]string {
	m := map[string]string{
		"listing_url":     ColURL,
		"interior colour": ColInteriorColor,
		"exterior colour": ColExteriorColor,
	}
	all := append([]string{ColURL}, sourceColumns...)
	all = append(all, silverDerivedColumns...)
	all = append(all, goldDerivedColumns...)
	for _, c := range all {
		m[normalizeHeader(c)] = c
	}
	return m
}()

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// CanonicalColumn resolves a file header to a known column name.
func CanonicalColumn(header string) (string, bool) {
	c, ok := headerAliases[normalizeHeader(header)]
	return c, ok
}

// ColumnSet records which known columns a stage table carries.
type ColumnSet map[string]struct{}

// NewColumnSet builds a set from the given column names.
func NewColumnSet(cols ...string) ColumnSet {
	s := make(ColumnSet, len(cols))
	for _, c := range cols {
		s[c] = struct{}{}
	}
	return s
}

func (s ColumnSet) Has(col string) bool {
	_, ok := s[col]
	return ok
}

func (s ColumnSet) Add(cols ...string) {
	for _, c := range cols {
		s[c] = struct{}{}
	}
}

func (s ColumnSet) Remove(col string) {
	delete(s, col)
}

// Clone returns an independent copy.
func (s ColumnSet) Clone() ColumnSet {
	out := make(ColumnSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}
