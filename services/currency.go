package services

// ToEUR converts amount in currency to EUR. EUR amounts are returned unchanged without
// consulting rates. Otherwise the multiplier comes from rates, then the static table,
// and finally defaults to 1.0: an unknown currency is treated as EUR rather than an
// error. Use IsKnownCurrency to detect that case.
func ToEUR(amount float64, currency string, rates Rates) float64 {
	if currency == "EUR" {
		return amount
	}
	return amount * multiplier(currency, rates)
}

// IsKnownCurrency reports whether currency resolves through rates or the static table.
func IsKnownCurrency(currency string, rates Rates) bool {
	if currency == "EUR" {
		return true
	}
	if _, ok := rates[currency]; ok {
		return true
	}
	_, ok := staticRates[currency]
	return ok
}

func multiplier(currency string, rates Rates) float64 {
	if m, ok := rates[currency]; ok {
		return m
	}
	if m, ok := staticRates[currency]; ok {
		return m
	}
	return 1.0
}
