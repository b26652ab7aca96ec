package ml

import (
	"errors"
	"fmt"
)

var ErrDivisionUndefined = errors.New("division undefined")

// DerivedMetrics are the affordability ratios reported alongside a
// prediction. Median income is stored in units of $10,000, so the
// price-to-income ratio rescales it to dollars first.
type DerivedMetrics struct {
	PricePerRoom      float64 `json:"price_per_room"`
	PricePerBedroom   float64 `json:"price_per_bedroom"`
	PriceToIncome     float64 `json:"price_to_income_ratio"`
	PricePerPerson    float64 `json:"price_per_person"`
	PopulationDensity float64 `json:"population_density"`
}

// ComputeDerivedMetrics computes the ratios for a predicted value. A
// validated record cannot produce a zero divisor, but the function is
// usable standalone, so degenerate divisors are an explicit error rather
// than a silent Inf or NaN.
func ComputeDerivedMetrics(value float64, record HousingRecord) (DerivedMetrics, error) {
	if record.TotalRooms == 0 {
		return DerivedMetrics{}, fmt.Errorf("%w: total_rooms is zero", ErrDivisionUndefined)
	}
	if record.TotalBedrooms == 0 {
		return DerivedMetrics{}, fmt.Errorf("%w: total_bedrooms is zero", ErrDivisionUndefined)
	}
	if record.MedianIncome == 0 {
		return DerivedMetrics{}, fmt.Errorf("%w: median_income is zero", ErrDivisionUndefined)
	}
	if record.Population == 0 {
		return DerivedMetrics{}, fmt.Errorf("%w: population is zero", ErrDivisionUndefined)
	}
	if record.Households == 0 {
		return DerivedMetrics{}, fmt.Errorf("%w: households is zero", ErrDivisionUndefined)
	}

	return DerivedMetrics{
		PricePerRoom:      value / float64(record.TotalRooms),
		PricePerBedroom:   value / float64(record.TotalBedrooms),
		PriceToIncome:     value / (record.MedianIncome * 10000),
		PricePerPerson:    value / float64(record.Population),
		PopulationDensity: float64(record.Population) / float64(record.Households),
	}, nil
}
