package storage

import (
	"listings-pipeline/models"
)

// goldColumns is the column order shared by the SQL sinks.
var goldColumns = []string{
	"url", "title", "model", "series", "year_of_construction", "mileage_km",
	"condition", "matching_numbers", "owners", "pts", "interior_color", "exterior_color",
	"transmission", "drive", "car_location", "price", "currency", "price_in_eur",
	"log_price", "log_mileage", "mileage_sq", "model_category", "listing_score",
}

// goldArgs returns the values of l in goldColumns order.
func goldArgs(l *models.FeatureListing) []any {
	return []any{
		l.URL, nullString(l.Title), nullString(l.Model), nullString(l.Series),
		nullFloat(l.YearOfConstruction), l.MileageKM,
		l.Condition, l.MatchingNumbers, l.Owners, int64(l.PTS),
		nullString(l.InteriorColor), nullString(l.ExteriorColor),
		nullString(l.Transmission), nullString(l.Drive), nullString(l.CarLocation),
		nullFloat(l.Price), nullString(l.Currency), nullFloat(l.PriceInEUR),
		l.LogPrice, l.LogMileage, l.MileageSq, l.ModelCategory, int64(l.ListingScore),
	}
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
