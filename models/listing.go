package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceFields holds the scraped free-text attributes that every stage carries through
// without reinterpreting them.
type SourceFields struct {
	Title         *string
	Model         *string
	Series        *string
	Year          *string
	InteriorColor *string
	ExteriorColor *string
	Transmission  *string
	Drive         *string
	ReadyToDrive  *string
	CarLocation   *string
	ScrapedAt     *string
}

var sourceTextFields = []struct {
	col string
	ptr func(*SourceFields) **string
}{
	{ColTitle, func(s *SourceFields) **string { return &s.Title }},
	{ColModel, func(s *SourceFields) **string { return &s.Model }},
	{ColSeries, func(s *SourceFields) **string { return &s.Series }},
	{ColYear, func(s *SourceFields) **string { return &s.Year }},
	{ColInteriorColor, func(s *SourceFields) **string { return &s.InteriorColor }},
	{ColExteriorColor, func(s *SourceFields) **string { return &s.ExteriorColor }},
	{ColTransmission, func(s *SourceFields) **string { return &s.Transmission }},
	{ColDrive, func(s *SourceFields) **string { return &s.Drive }},
	{ColReadyToDrive, func(s *SourceFields) **string { return &s.ReadyToDrive }},
	{ColCarLocation, func(s *SourceFields) **string { return &s.CarLocation }},
	{ColScrapedAt, func(s *SourceFields) **string { return &s.ScrapedAt }},
}

// Field returns a pointer to the named source field, or nil if col is not a source text column.
func (s *SourceFields) Field(col string) **string {
	for _, f := range sourceTextFields {
		if f.col == col {
			return f.ptr(s)
		}
	}
	return nil
}

func (s *SourceFields) decode(t *Table, r int, idx map[string]int) {
	for _, f := range sourceTextFields {
		if i, ok := idx[f.col]; ok {
			*f.ptr(s) = nullable(t.Cell(r, i))
		}
	}
}

// RawListing holds one unprocessed scraped record (Bronze).
type RawListing struct {
	URL string
	SourceFields

	Mileage         *string
	Condition       *string
	PTS             *string
	MatchingNumbers *string
	Owners          *string
	Price           *string
	Currency        *string
}

// RawTable is the decoded Bronze table.
type RawTable struct {
	Columns ColumnSet
	// Ignored lists input headers that match no known column.
	Ignored []string
	Rows    []*RawListing
}

var rawExtraFields = []struct {
	col string
	ptr func(*RawListing) **string
}{
	{ColMileage, func(l *RawListing) **string { return &l.Mileage }},
	{ColCondition, func(l *RawListing) **string { return &l.Condition }},
	{ColPTS, func(l *RawListing) **string { return &l.PTS }},
	{ColMatchingNumbers, func(l *RawListing) **string { return &l.MatchingNumbers }},
	{ColOwners, func(l *RawListing) **string { return &l.Owners }},
	{ColPrice, func(l *RawListing) **string { return &l.Price }},
	{ColCurrency, func(l *RawListing) **string { return &l.Currency }},
}

// DecodeRaw validates the header and converts a Bronze file table into typed records.
func DecodeRaw(t *Table) (*RawTable, error) {
	idx, ignored := t.headerIndex()
	urlIdx, ok := idx[ColURL]
	if !ok {
		return nil, fmt.Errorf("models: decode raw: %w: %s", ErrMissingColumn, ColURL)
	}

	out := &RawTable{Columns: NewColumnSet(), Ignored: ignored, Rows: make([]*RawListing, 0, len(t.Rows))}
	for col := range idx {
		out.Columns.Add(col)
	}

	for r := range t.Rows {
		l := &RawListing{URL: strings.TrimSpace(t.Cell(r, urlIdx))}
		l.SourceFields.decode(t, r, idx)
		for _, f := range rawExtraFields {
			if i, ok := idx[f.col]; ok {
				*f.ptr(l) = nullable(t.Cell(r, i))
			}
		}
		out.Rows = append(out.Rows, l)
	}
	return out, nil
}

// DropColumn removes a column from the table, clearing its values. It returns false
// when the column is not part of the table.
func (t *RawTable) DropColumn(name string) bool {
	for i, ig := range t.Ignored {
		if strings.EqualFold(ig, strings.TrimSpace(name)) {
			t.Ignored = append(t.Ignored[:i], t.Ignored[i+1:]...)
			return true
		}
	}

	col, ok := CanonicalColumn(name)
	if !ok || col == ColURL || !t.Columns.Has(col) {
		return false
	}
	t.Columns.Remove(col)
	for _, l := range t.Rows {
		if p := l.SourceFields.Field(col); p != nil {
			*p = nil
			continue
		}
		for _, f := range rawExtraFields {
			if f.col == col {
				*f.ptr(l) = nil
			}
		}
	}
	return true
}

// CleanedListing is a validated Silver record.
type CleanedListing struct {
	URL string
	SourceFields

	Mileage         *string
	Condition       string
	MatchingNumbers string
	Owners          string
	PTS             int
	Price           *float64
	Currency        *string

	MileageValue    float64
	MileageUnit     string
	MileageKM       float64
	OwnersKnown     int
	IsFullyRestored int
	PriceInEUR      *float64
}

// CleanedTable is the Silver table.
type CleanedTable struct {
	Columns ColumnSet
	Rows    []*CleanedListing
	// Rejected counts input rows dropped during decoding because a required value was invalid.
	Rejected int
}

// Len returns the number of rows.
func (t *CleanedTable) Len() int { return len(t.Rows) }

// SilverColumns returns the header written for a Silver table carrying the given source columns.
func SilverColumns(present ColumnSet) []string {
	cols := []string{ColURL}
	for _, c := range sourceColumns {
		if present.Has(c) {
			cols = append(cols, c)
		}
	}
	return append(cols, silverDerivedColumns...)
}

func (l *CleanedListing) cell(col string) string {
	if p := l.SourceFields.Field(col); p != nil {
		return optString(*p)
	}
	switch col {
	case ColURL:
		return l.URL
	case ColMileage:
		return optString(l.Mileage)
	case ColCondition:
		return l.Condition
	case ColPTS:
		return strconv.Itoa(l.PTS)
	case ColMatchingNumbers:
		return l.MatchingNumbers
	case ColOwners:
		return l.Owners
	case ColPrice:
		return formatOptFloat(l.Price)
	case ColCurrency:
		return optString(l.Currency)
	case ColMileageValue:
		return FormatFloat(l.MileageValue)
	case ColMileageUnit:
		return l.MileageUnit
	case ColMileageKM:
		return FormatFloat(l.MileageKM)
	case ColOwnersKnown:
		return strconv.Itoa(l.OwnersKnown)
	case ColIsFullyRestored:
		return strconv.Itoa(l.IsFullyRestored)
	case ColPriceInEUR:
		return formatOptFloat(l.PriceInEUR)
	}
	return ""
}

// EncodeCleaned converts a Silver table to its file form.
func EncodeCleaned(t *CleanedTable) *Table {
	cols := SilverColumns(t.Columns)
	out := &Table{Columns: cols, Rows: make([][]string, 0, len(t.Rows))}
	for _, l := range t.Rows {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = l.cell(c)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// DecodeCleaned validates and converts a Silver file table. The url and mileage_km
// columns are always required; callers may require more. Rows whose required values
// are blank or invalid are counted in Rejected rather than kept.
func DecodeCleaned(t *Table, required ...string) (*CleanedTable, error) {
	idx, _ := t.headerIndex()
	required = append([]string{ColURL, ColMileageKM}, required...)
	var missing []string
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("models: decode cleaned: %w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	out := &CleanedTable{Columns: NewColumnSet(), Rows: make([]*CleanedListing, 0, len(t.Rows))}
	for _, c := range sourceColumns {
		if _, ok := idx[c]; ok {
			out.Columns.Add(c)
		}
	}

	get := func(r int, col string) (string, bool) {
		i, ok := idx[col]
		if !ok {
			return "", false
		}
		return t.Cell(r, i), true
	}

	for r := range t.Rows {
		url, _ := get(r, ColURL)
		url = strings.TrimSpace(url)
		kmCell, _ := get(r, ColMileageKM)
		km := ParseNumber(kmCell)
		if url == "" || km == nil || *km < 0 {
			out.Rejected++
			continue
		}

		l := &CleanedListing{URL: url, MileageKM: *km, MileageValue: *km, MileageUnit: "km"}
		l.SourceFields.decode(t, r, idx)

		if v, ok := get(r, ColMileage); ok {
			l.Mileage = nullable(v)
		}
		l.Condition = sentinel(get(r, ColCondition))
		l.MatchingNumbers = sentinel(get(r, ColMatchingNumbers))
		l.Owners = sentinel(get(r, ColOwners))
		if v, ok := get(r, ColPTS); ok {
			l.PTS = parseFlag(v)
		}
		if v, ok := get(r, ColPrice); ok {
			l.Price = ParseNumber(v)
		}
		if v, ok := get(r, ColCurrency); ok {
			l.Currency = nullable(strings.TrimSpace(v))
		}
		if v, ok := get(r, ColMileageValue); ok {
			if f := ParseNumber(v); f != nil {
				l.MileageValue = *f
			}
		}
		if v, ok := get(r, ColMileageUnit); ok && strings.TrimSpace(v) != "" {
			l.MileageUnit = strings.ToLower(strings.TrimSpace(v))
		}
		if v, ok := get(r, ColOwnersKnown); ok {
			l.OwnersKnown = parseFlag(v)
		} else if l.Owners != Unknown {
			l.OwnersKnown = 1
		}
		if v, ok := get(r, ColIsFullyRestored); ok {
			l.IsFullyRestored = parseFlag(v)
		} else if IsFullyRestored(l.Condition) {
			l.IsFullyRestored = 1
		}
		if v, ok := get(r, ColPriceInEUR); ok {
			l.PriceInEUR = ParseNumber(v)
		}

		out.Rows = append(out.Rows, l)
	}
	return out, nil
}

// IsFullyRestored reports whether a condition text marks the vehicle as fully restored.
func IsFullyRestored(condition string) bool {
	return strings.Contains(strings.ToLower(condition), "fully restored")
}

func sentinel(v string, _ bool) string {
	if strings.TrimSpace(v) == "" {
		return Unknown
	}
	return v
}

func parseFlag(v string) int {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "1.0", "true", "yes":
		return 1
	}
	return 0
}

// FeatureListing is a Gold record: a cleaned listing plus model features.
type FeatureListing struct {
	CleanedListing

	YearOfConstruction *float64
	LogPrice           float64
	LogMileage         float64
	MileageSq          float64
	ModelCategory      string
	ListingScore       int
}

// FeatureTable is the Gold table.
type FeatureTable struct {
	Columns ColumnSet
	Rows    []*FeatureListing
}

// Len returns the number of rows.
func (t *FeatureTable) Len() int { return len(t.Rows) }

// GoldColumns returns the header written for a Gold table carrying the given source columns.
func GoldColumns(present ColumnSet) []string {
	return append(SilverColumns(present), goldDerivedColumns...)
}

func (l *FeatureListing) cell(col string) string {
	switch col {
	case ColYear:
		return formatOptFloat(l.YearOfConstruction)
	case ColLogPrice:
		return FormatFloat(l.LogPrice)
	case ColLogMileage:
		return FormatFloat(l.LogMileage)
	case ColMileageSq:
		return FormatFloat(l.MileageSq)
	case ColModelCategory:
		return l.ModelCategory
	case ColListingScore:
		return strconv.Itoa(l.ListingScore)
	}
	return l.CleanedListing.cell(col)
}

// EncodeFeatures converts a Gold table to its file form.
func EncodeFeatures(t *FeatureTable) *Table {
	cols := GoldColumns(t.Columns)
	out := &Table{Columns: cols, Rows: make([][]string, 0, len(t.Rows))}
	for _, l := range t.Rows {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = l.cell(c)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
