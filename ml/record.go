package ml

import (
	"errors"
	"fmt"
	"strconv"
)

// OceanProximity is the categorical location class the feature pipeline was
// fitted against. The literal strings must match the training data exactly.
type OceanProximity string

const (
	LessThanHourOcean OceanProximity = "<1H OCEAN"
	Inland            OceanProximity = "INLAND"
	Island            OceanProximity = "ISLAND"
	NearBay           OceanProximity = "NEAR BAY"
	NearOcean         OceanProximity = "NEAR OCEAN"
)

func OceanProximityValues() []OceanProximity {
	return []OceanProximity{LessThanHourOcean, Inland, Island, NearBay, NearOcean}
}

func ParseOceanProximity(s string) (OceanProximity, error) {
	for _, v := range OceanProximityValues() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Field ranges the serving schema accepts. They mirror the input domain the
// artifacts were fitted on.
const (
	MinLongitude = -125.0
	MaxLongitude = -114.0
	MinLatitude  = 32.0
	MaxLatitude  = 42.0

	MinHousingMedianAge = 1
	MaxHousingMedianAge = 52
	MinTotalRooms       = 1
	MaxTotalRooms       = 20000
	MinTotalBedrooms    = 1
	MaxTotalBedrooms    = 5000
	MinPopulation       = 1
	MaxPopulation       = 20000
	MinHouseholds       = 1
	MaxHouseholds       = 5000

	// Median income is expressed in units of $10,000.
	MinMedianIncome = 0.5
	MaxMedianIncome = 15.0
)

var ErrInvalidRecord = errors.New("invalid housing record")

// HousingRecord is one housing block. The JSON field names are the column
// names the pipeline was fitted against and must not change.
type HousingRecord struct {
	Longitude        float64        `json:"longitude"`
	Latitude         float64        `json:"latitude"`
	HousingMedianAge int            `json:"housing_median_age"`
	TotalRooms       int            `json:"total_rooms"`
	TotalBedrooms    int            `json:"total_bedrooms"`
	Population       int            `json:"population"`
	Households       int            `json:"households"`
	MedianIncome     float64        `json:"median_income"`
	OceanProximity   OceanProximity `json:"ocean_proximity"`
}

// Validate rejects partial or out-of-range records before any inference is
// attempted.
func (r HousingRecord) Validate() error {
	if r.Longitude < MinLongitude || r.Longitude > MaxLongitude {
		return fmt.Errorf("%w: longitude %.4f out of range [%.1f, %.1f]", ErrInvalidRecord, r.Longitude, MinLongitude, MaxLongitude)
	}
	if r.Latitude < MinLatitude || r.Latitude > MaxLatitude {
		return fmt.Errorf("%w: latitude %.4f out of range [%.1f, %.1f]", ErrInvalidRecord, r.Latitude, MinLatitude, MaxLatitude)
	}
	if r.HousingMedianAge < MinHousingMedianAge || r.HousingMedianAge > MaxHousingMedianAge {
		return fmt.Errorf("%w: housing_median_age %d out of range [%d, %d]", ErrInvalidRecord, r.HousingMedianAge, MinHousingMedianAge, MaxHousingMedianAge)
	}
	if r.TotalRooms < MinTotalRooms || r.TotalRooms > MaxTotalRooms {
		return fmt.Errorf("%w: total_rooms %d out of range [%d, %d]", ErrInvalidRecord, r.TotalRooms, MinTotalRooms, MaxTotalRooms)
	}
	if r.TotalBedrooms < MinTotalBedrooms || r.TotalBedrooms > MaxTotalBedrooms {
		return fmt.Errorf("%w: total_bedrooms %d out of range [%d, %d]", ErrInvalidRecord, r.TotalBedrooms, MinTotalBedrooms, MaxTotalBedrooms)
	}
	if r.Population < MinPopulation || r.Population > MaxPopulation {
		return fmt.Errorf("%w: population %d out of range [%d, %d]", ErrInvalidRecord, r.Population, MinPopulation, MaxPopulation)
	}
	if r.Households < MinHouseholds || r.Households > MaxHouseholds {
		return fmt.Errorf("%w: households %d out of range [%d, %d]", ErrInvalidRecord, r.Households, MinHouseholds, MaxHouseholds)
	}
	if r.MedianIncome < MinMedianIncome || r.MedianIncome > MaxMedianIncome {
		return fmt.Errorf("%w: median_income %.4f out of range [%.1f, %.1f]", ErrInvalidRecord, r.MedianIncome, MinMedianIncome, MaxMedianIncome)
	}
	if _, err := ParseOceanProximity(string(r.OceanProximity)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// Columns returns the numeric fields keyed by their fitted column names.
func (r HousingRecord) Columns() map[string]float64 {
	return map[string]float64{
		"longitude":          r.Longitude,
		"latitude":           r.Latitude,
		"housing_median_age": float64(r.HousingMedianAge),
		"total_rooms":        float64(r.TotalRooms),
		"total_bedrooms":     float64(r.TotalBedrooms),
		"population":         float64(r.Population),
		"households":         float64(r.Households),
		"median_income":      r.MedianIncome,
	}
}

// cacheKey is the record's exact value identity. Floats are encoded at
// full precision: records that differ anywhere must never share a key.
func (r HousingRecord) cacheKey() string {
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d|%d|%s|%s",
		strconv.FormatFloat(r.Longitude, 'x', -1, 64),
		strconv.FormatFloat(r.Latitude, 'x', -1, 64),
		r.HousingMedianAge, r.TotalRooms, r.TotalBedrooms,
		r.Population, r.Households,
		strconv.FormatFloat(r.MedianIncome, 'x', -1, 64),
		r.OceanProximity)
}
