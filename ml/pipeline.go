package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrUnknownCategory = errors.New("unknown ocean proximity category")

// ColumnScaler holds the fitted standardization parameters for one numeric
// column.
type ColumnScaler struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// RatioColumn is an engineered feature fitted as numerator/denominator over
// two raw columns, standardized with its own parameters.
type RatioColumn struct {
	Column      string  `json:"column"`
	Numerator   string  `json:"numerator"`
	Denominator string  `json:"denominator"`
	Mean        float64 `json:"mean"`
	Scale       float64 `json:"scale"`
}

// FeaturePipeline is the fitted transformation pipeline. It converts a raw
// HousingRecord into the numeric feature vector the estimator expects:
// standardized numerics, then standardized ratio columns, then a one-hot
// block for ocean_proximity in fitted category order.
type FeaturePipeline struct {
	Numeric    []ColumnScaler `json:"numeric"`
	Ratios     []RatioColumn  `json:"ratios"`
	Categories []string       `json:"categories"`
}

func (p *FeaturePipeline) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded FeaturePipeline
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	*p = loaded
	return nil
}

// FeatureCount is the width of the vector Transform produces.
func (p *FeaturePipeline) FeatureCount() int {
	return len(p.Numeric) + len(p.Ratios) + len(p.Categories)
}

func (p *FeaturePipeline) Transform(record HousingRecord) ([]float64, error) {
	if len(p.Numeric) == 0 || len(p.Categories) == 0 {
		return nil, errors.New("pipeline not loaded")
	}

	columns := record.Columns()
	vector := make([]float64, 0, p.FeatureCount())

	for _, scaler := range p.Numeric {
		value, ok := columns[scaler.Column]
		if !ok {
			return nil, fmt.Errorf("pipeline references unknown column %q", scaler.Column)
		}
		if scaler.Scale == 0 {
			return nil, fmt.Errorf("zero scale for column %q", scaler.Column)
		}
		vector = append(vector, (value-scaler.Mean)/scaler.Scale)
	}

	for _, ratio := range p.Ratios {
		numerator, ok := columns[ratio.Numerator]
		if !ok {
			return nil, fmt.Errorf("ratio %q references unknown column %q", ratio.Column, ratio.Numerator)
		}
		denominator, ok := columns[ratio.Denominator]
		if !ok {
			return nil, fmt.Errorf("ratio %q references unknown column %q", ratio.Column, ratio.Denominator)
		}
		if denominator == 0 {
			return nil, fmt.Errorf("ratio %q: zero denominator %q", ratio.Column, ratio.Denominator)
		}
		if ratio.Scale == 0 {
			return nil, fmt.Errorf("zero scale for ratio %q", ratio.Column)
		}
		vector = append(vector, (numerator/denominator-ratio.Mean)/ratio.Scale)
	}

	hot := -1
	for i, category := range p.Categories {
		if category == string(record.OceanProximity) {
			hot = i
			break
		}
	}
	if hot == -1 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, record.OceanProximity)
	}
	for i := range p.Categories {
		if i == hot {
			vector = append(vector, 1)
		} else {
			vector = append(vector, 0)
		}
	}

	return vector, nil
}
