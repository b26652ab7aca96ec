package ml

import (
	"errors"
	"math"
	"testing"
)

func TestComputeDerivedMetrics(t *testing.T) {
	record := validRecord()
	metrics, err := ComputeDerivedMetrics(350000, record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if metrics.PricePerRoom != 175 {
		t.Fatalf("unexpected price_per_room: %v", metrics.PricePerRoom)
	}
	if metrics.PricePerBedroom != 700 {
		t.Fatalf("unexpected price_per_bedroom: %v", metrics.PricePerBedroom)
	}
	if math.Abs(metrics.PriceToIncome-10) > 1e-9 {
		t.Fatalf("unexpected price_to_income_ratio: %v", metrics.PriceToIncome)
	}
	if metrics.PricePerPerson != 350 {
		t.Fatalf("unexpected price_per_person: %v", metrics.PricePerPerson)
	}
	if metrics.PopulationDensity != 2.5 {
		t.Fatalf("unexpected population_density: %v", metrics.PopulationDensity)
	}
}

func TestComputeDerivedMetricsZeroDivisor(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*HousingRecord)
	}{
		{"rooms", func(r *HousingRecord) { r.TotalRooms = 0 }},
		{"bedrooms", func(r *HousingRecord) { r.TotalBedrooms = 0 }},
		{"income", func(r *HousingRecord) { r.MedianIncome = 0 }},
		{"population", func(r *HousingRecord) { r.Population = 0 }},
		{"households", func(r *HousingRecord) { r.Households = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := validRecord()
			tc.mutate(&record)
			_, err := ComputeDerivedMetrics(100000, record)
			if !errors.Is(err, ErrDivisionUndefined) {
				t.Fatalf("expected ErrDivisionUndefined, got %v", err)
			}
		})
	}
}
