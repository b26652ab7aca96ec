package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"homeval/ml"
)

func TestMain(m *testing.M) {
	dbPath := filepath.Join(os.TempDir(), "homeval_db_test.db")
	os.Remove(dbPath)
	if err := InitDB(dbPath); err != nil {
		panic(err)
	}

	code := m.Run()

	Close()
	os.Remove(dbPath)
	os.Exit(code)
}

func sampleRow(requestID string, value float64) PredictionRow {
	return PredictionRow{
		RequestID: requestID,
		Record: ml.HousingRecord{
			Longitude:        -118.0,
			Latitude:         34.0,
			HousingMedianAge: 20,
			TotalRooms:       2000,
			TotalBedrooms:    500,
			Population:       1000,
			Households:       400,
			MedianIncome:     3.5,
			OceanProximity:   ml.LessThanHourOcean,
		},
		Value: value,
		Metrics: ml.DerivedMetrics{
			PricePerRoom:      value / 2000,
			PricePerBedroom:   value / 500,
			PriceToIncome:     value / 35000,
			PricePerPerson:    value / 1000,
			PopulationDensity: 2.5,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveAndQueryPredictions(t *testing.T) {
	if err := SavePrediction(sampleRow("req-1", 190000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SavePrediction(sampleRow("req-2", 250000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := QueryRecent(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("expected at least 2 rows, got %d", len(rows))
	}

	found := false
	for _, row := range rows {
		if row.RequestID == "req-2" {
			found = true
			if row.Value != 250000 {
				t.Fatalf("unexpected value: %v", row.Value)
			}
			if row.Record.OceanProximity != ml.LessThanHourOcean {
				t.Fatalf("unexpected proximity: %q", row.Record.OceanProximity)
			}
			if row.Metrics.PopulationDensity != 2.5 {
				t.Fatalf("unexpected density: %v", row.Metrics.PopulationDensity)
			}
		}
	}
	if !found {
		t.Fatal("req-2 not found in history")
	}
}

func TestSavePredictionRequiresRequestID(t *testing.T) {
	if err := SavePrediction(sampleRow("", 100000)); err == nil {
		t.Fatal("expected error for empty request id")
	}
}

func TestStats(t *testing.T) {
	if err := SavePrediction(sampleRow("req-stats", 300000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := Stats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Count == 0 {
		t.Fatal("expected nonzero count")
	}
	if stats.MaxValue < 300000 {
		t.Fatalf("unexpected max: %v", stats.MaxValue)
	}
	if stats.MinValue > stats.MaxValue {
		t.Fatalf("min %v greater than max %v", stats.MinValue, stats.MaxValue)
	}
}
