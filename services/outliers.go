package services

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"listings-pipeline/models"
	"listings-pipeline/utils"
)

var (
	// ErrUnknownColumn is returned when a numeric operation names an unsupported column.
	ErrUnknownColumn = errors.New("unknown numeric column")
	// ErrNonPositiveLog is returned when a log transform meets a value it is not defined for.
	ErrNonPositiveLog = errors.New("log of non-positive value")
)

// numericColumns are the Silver columns the outlier filter can band.
var numericColumns = map[string]func(*models.CleanedListing) *float64{
	models.ColPriceInEUR:   func(l *models.CleanedListing) *float64 { return l.PriceInEUR },
	models.ColPrice:        func(l *models.CleanedListing) *float64 { return l.Price },
	models.ColMileageKM:    func(l *models.CleanedListing) *float64 { return &l.MileageKM },
	models.ColMileageValue: func(l *models.CleanedListing) *float64 { return &l.MileageValue },
}

// OutlierFilter removes rows outside a standard-deviation band.
type OutlierFilter struct {
	logger *utils.Logger
}

// NewOutlierFilter creates an OutlierFilter.
func NewOutlierFilter(logger *utils.Logger) *OutlierFilter {
	return &OutlierFilter{logger: logger}
}

// RemoveOutliers keeps the rows whose value in column (or its natural log when useLog
// is set) lies within mean ± nStd·std, bounds included. Mean and sample standard
// deviation are computed once over the input; the filter is not iterated.
//
// Rows with a null value are dropped. A non-positive value under useLog is an error.
// With fewer than two values, or no spread at all, every non-null row is kept.
func (f *OutlierFilter) RemoveOutliers(t *models.CleanedTable, column string, nStd float64, useLog bool) (*models.CleanedTable, error) {
	get, ok := numericColumns[column]
	if !ok {
		return nil, fmt.Errorf("outliers: %w: %s", ErrUnknownColumn, column)
	}

	rows := make([]*models.CleanedListing, 0, len(t.Rows))
	values := make([]float64, 0, len(t.Rows))
	for _, l := range t.Rows {
		v := get(l)
		if v == nil {
			continue
		}
		x := *v
		if useLog {
			if x <= 0 {
				return nil, fmt.Errorf("outliers: %w: %s=%v for %s", ErrNonPositiveLog, column, x, l.URL)
			}
			x = math.Log(x)
		}
		rows = append(rows, l)
		values = append(values, x)
	}
	if nulls := len(t.Rows) - len(rows); nulls > 0 {
		f.logger.Warn("[outliers] Dropped %d rows with null %s", nulls, column)
	}

	out := &models.CleanedTable{Columns: t.Columns, Rejected: t.Rejected}
	if len(values) < 2 {
		out.Rows = rows
		return out, nil
	}

	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 {
		out.Rows = rows
		return out, nil
	}
	lo, hi := mean-nStd*std, mean+nStd*std

	out.Rows = make([]*models.CleanedListing, 0, len(rows))
	for i, l := range rows {
		if values[i] >= lo && values[i] <= hi {
			out.Rows = append(out.Rows, l)
		}
	}

	removed := len(rows) - len(out.Rows)
	f.logger.Info("[outliers] Removed %d outliers from %s (±%.1f std, log=%t, %.1f%%)",
		removed, column, nStd, useLog, 100*float64(removed)/float64(len(rows)))
	return out, nil
}
