package ml

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func testPipeline() *FeaturePipeline {
	return &FeaturePipeline{
		Numeric: []ColumnScaler{
			{Column: "longitude", Mean: -119.57, Scale: 2.0},
			{Column: "latitude", Mean: 35.63, Scale: 2.14},
			{Column: "housing_median_age", Mean: 28.6, Scale: 12.6},
			{Column: "total_rooms", Mean: 2636, Scale: 2182},
			{Column: "total_bedrooms", Mean: 537, Scale: 421},
			{Column: "population", Mean: 1425, Scale: 1132},
			{Column: "households", Mean: 500, Scale: 382},
			{Column: "median_income", Mean: 3.87, Scale: 1.9},
		},
		Ratios: []RatioColumn{
			{Column: "rooms_per_household", Numerator: "total_rooms", Denominator: "households", Mean: 5.44, Scale: 2.6},
			{Column: "bedrooms_per_room", Numerator: "total_bedrooms", Denominator: "total_rooms", Mean: 0.213, Scale: 0.057},
			{Column: "population_per_household", Numerator: "population", Denominator: "households", Mean: 3.07, Scale: 10.4},
		},
		Categories: []string{"<1H OCEAN", "INLAND", "ISLAND", "NEAR BAY", "NEAR OCEAN"},
	}
}

func testEnsemble() *Ensemble {
	return &Ensemble{
		Bias: 200000,
		Trees: []RegressionTree{
			{Nodes: []RegNode{
				{FeatureIdx: 7, Threshold: 0, LeftChild: 1, RightChild: 2},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: -50000, IsLeaf: true},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 80000, IsLeaf: true},
			}},
			{Nodes: []RegNode{
				{FeatureIdx: 12, Threshold: 0.5, LeftChild: 1, RightChild: 2},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 30000, IsLeaf: true},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: -60000, IsLeaf: true},
			}},
		},
	}
}

func validRecord() HousingRecord {
	return HousingRecord{
		Longitude:        -118.0,
		Latitude:         34.0,
		HousingMedianAge: 20,
		TotalRooms:       2000,
		TotalBedrooms:    500,
		Population:       1000,
		Households:       400,
		MedianIncome:     3.5,
		OceanProximity:   LessThanHourOcean,
	}
}

func newTestService(t *testing.T, cacheSize int) *Service {
	t.Helper()
	service, err := NewService(NewArtifacts(testPipeline(), testEnsemble()), cacheSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return service
}

func TestServicePredictFinite(t *testing.T) {
	service := newTestService(t, 0)

	value, err := service.Predict(validRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		t.Fatalf("expected finite prediction, got %v", value)
	}
	if value <= 0 {
		t.Fatalf("expected positive value, got %v", value)
	}
}

func TestServicePredictDeterministic(t *testing.T) {
	service := newTestService(t, 0)

	first, err := service.Predict(validRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Predict(validRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("predictions differ: %v vs %v", first, second)
	}
}

func TestServicePredictCached(t *testing.T) {
	service := newTestService(t, 8)

	first, err := service.Predict(validRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Predict(validRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("cached prediction differs: %v vs %v", first, second)
	}
}

func TestServiceCacheDistinguishesCloseRecords(t *testing.T) {
	// A scaler fitted on a narrow coordinate band amplifies sub-1e-4 raw
	// differences, so these records fall on opposite sides of the split.
	pipeline := testPipeline()
	pipeline.Numeric[0] = ColumnScaler{Column: "longitude", Mean: -118.000015, Scale: 0.000001}
	model := &Ensemble{
		Bias: 200000,
		Trees: []RegressionTree{
			{Nodes: []RegNode{
				{FeatureIdx: 0, Threshold: 0, LeftChild: 1, RightChild: 2},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: -100000, IsLeaf: true},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 100000, IsLeaf: true},
			}},
		},
	}
	service, err := NewService(NewArtifacts(pipeline, model), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	left := validRecord()
	left.Longitude = -118.000019
	right := validRecord()
	right.Longitude = -118.000011

	first, err := service.Predict(left)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.Predict(right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != 100000 {
		t.Fatalf("unexpected left prediction: %v", first)
	}
	if second != 300000 {
		t.Fatalf("right record got the left record's cached value: %v", second)
	}
}

func TestServiceRejectsInvalidRecord(t *testing.T) {
	service := newTestService(t, 0)

	record := validRecord()
	record.MedianIncome = 50
	if _, err := service.Predict(record); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestServiceUnknownCategoryFailsInference(t *testing.T) {
	// Bypass Validate by removing the category from the fitted pipeline:
	// the record is in-range but the transformer was never fitted on it.
	pipeline := testPipeline()
	pipeline.Categories = []string{"INLAND", "ISLAND", "NEAR BAY", "NEAR OCEAN"}
	service, err := NewService(NewArtifacts(pipeline, testEnsemble()), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.Predict(validRecord())
	if !errors.Is(err, ErrInferenceFailed) {
		t.Fatalf("expected ErrInferenceFailed, got %v", err)
	}
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory cause, got %v", err)
	}
}

func TestServiceEstimatorFaultFailsInference(t *testing.T) {
	model := &Ensemble{
		Bias: 0,
		Trees: []RegressionTree{
			{Nodes: []RegNode{{FeatureIdx: 999, Threshold: 0, LeftChild: 1, RightChild: 1}}},
		},
	}
	service, err := NewService(NewArtifacts(testPipeline(), model), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.Predict(validRecord())
	if !errors.Is(err, ErrInferenceFailed) {
		t.Fatalf("expected ErrInferenceFailed, got %v", err)
	}
	if errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("estimator fault should not look like a category rejection: %v", err)
	}
}

func TestServiceEvaluateMetrics(t *testing.T) {
	service := newTestService(t, 0)
	record := validRecord()

	prediction, err := service.Evaluate(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := prediction.Metrics.PricePerRoom * float64(record.TotalRooms); math.Abs(got-prediction.Value) > 1e-6 {
		t.Fatalf("price_per_room identity broken: %v vs %v", got, prediction.Value)
	}
	if got := prediction.Metrics.PricePerPerson; got != prediction.Value/1000 {
		t.Fatalf("unexpected price_per_person: %v", got)
	}
	if got := prediction.Metrics.PopulationDensity; got != 2.5 {
		t.Fatalf("expected population density 2.5, got %v", got)
	}
	if got := prediction.Metrics.PriceToIncome; math.Abs(got-prediction.Value/35000) > 1e-9 {
		t.Fatalf("unexpected price_to_income_ratio: %v", got)
	}
}

func TestServicePredictConsistentAcrossReload(t *testing.T) {
	// Alternate between a 13-feature and a 16-feature generation while
	// predictions are in flight. A prediction that mixed the narrow
	// pipeline with the wide model would hit a feature index out of range.
	narrow := testPipeline()
	narrow.Ratios = nil
	narrowModel := &Ensemble{
		Bias: 100000,
		Trees: []RegressionTree{
			{Nodes: []RegNode{
				{FeatureIdx: 12, Threshold: 0.5, LeftChild: 1, RightChild: 2},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: -10000, IsLeaf: true},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 10000, IsLeaf: true},
			}},
		},
	}
	wide := testPipeline()
	wideModel := &Ensemble{
		Bias: 100000,
		Trees: []RegressionTree{
			{Nodes: []RegNode{
				{FeatureIdx: 15, Threshold: 0.5, LeftChild: 1, RightChild: 2},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: -10000, IsLeaf: true},
				{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Value: 10000, IsLeaf: true},
			}},
		},
	}

	marshal := func(v interface{}) []byte {
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return payload
	}
	narrowPipelineJSON := marshal(narrow)
	narrowModelJSON := marshal(narrowModel)
	widePipelineJSON := marshal(wide)
	wideModelJSON := marshal(wideModel)

	dir := t.TempDir()
	pipelinePath := filepath.Join(dir, "pipeline.json")
	modelPath := filepath.Join(dir, "model.json")
	if err := os.WriteFile(pipelinePath, narrowPipelineJSON, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(modelPath, narrowModelJSON, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	artifacts, err := LoadArtifacts(pipelinePath, modelPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer artifacts.Close()
	service, err := NewService(artifacts, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			pipelineJSON, modelJSON := widePipelineJSON, wideModelJSON
			if i%2 == 1 {
				pipelineJSON, modelJSON = narrowPipelineJSON, narrowModelJSON
			}
			if err := os.WriteFile(pipelinePath, pipelineJSON, 0o600); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err := os.WriteFile(modelPath, modelJSON, 0o600); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err := artifacts.load(); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		if _, err := service.Predict(validRecord()); err != nil {
			t.Fatalf("prediction mixed artifact generations: %v", err)
		}
	}
}

func TestServiceCacheFlushedOnReload(t *testing.T) {
	artifacts := NewArtifacts(testPipeline(), testEnsemble())
	service, err := NewService(artifacts, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Predict(validRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if service.cache.Len() == 0 {
		t.Fatal("expected cached entry")
	}
	service.flushCache()
	if service.cache.Len() != 0 {
		t.Fatal("expected cache to be empty after flush")
	}
}
