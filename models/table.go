package models

import (
	"math"
	"strconv"
	"strings"
)

// Table is the file-level form of a stage table: an ordered header and string cells.
// Storage backends read and write Tables; the Decode/Encode functions convert them
// to and from the typed per-stage records.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Cell returns the value at row r for column index i, or "" when the row is short.
func (t *Table) Cell(r, i int) string {
	if i < 0 || r < 0 || r >= len(t.Rows) || i >= len(t.Rows[r]) {
		return ""
	}
	return t.Rows[r][i]
}

// headerIndex maps each canonical column found in the header to its position.
// Headers that match no known column are returned as ignored.
func (t *Table) headerIndex() (map[string]int, []string) {
	idx := make(map[string]int, len(t.Columns))
	var ignored []string
	for i, h := range t.Columns {
		col, ok := CanonicalColumn(h)
		if !ok {
			ignored = append(ignored, strings.TrimSpace(h))
			continue
		}
		if _, dup := idx[col]; !dup {
			idx[col] = i
		}
	}
	return idx, ignored
}

// ParseNumber parses a numeric cell, tolerating thousands separators and surrounding
// whitespace. It returns nil for blank or unparseable input.
func ParseNumber(s string) *float64 {
	s = strings.NewReplacer(",", "", " ", "", "'", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FormatFloat renders floats in the shortest form that round-trips, so re-running a
// stage produces identical bytes.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return FormatFloat(*f)
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable treats an empty cell as missing.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsBlank reports whether a nullable string is missing or only whitespace.
func IsBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// StringPtr is a convenience for building records in code and tests.
func StringPtr(s string) *string { return &s }

// FloatPtr is a convenience for building records in code and tests.
func FloatPtr(f float64) *float64 { return &f }
