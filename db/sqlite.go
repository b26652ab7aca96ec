package db

import (
	"database/sql"
	"errors"
	"time"

	"homeval/ml"
	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite prediction history database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT NOT NULL,
        longitude REAL NOT NULL,
        latitude REAL NOT NULL,
        housing_median_age INTEGER NOT NULL,
        total_rooms INTEGER NOT NULL,
        total_bedrooms INTEGER NOT NULL,
        population INTEGER NOT NULL,
        households INTEGER NOT NULL,
        median_income REAL NOT NULL,
        ocean_proximity TEXT NOT NULL,
        predicted_value REAL NOT NULL,
        price_per_room REAL NOT NULL,
        price_per_bedroom REAL NOT NULL,
        price_to_income REAL NOT NULL,
        price_per_person REAL NOT NULL,
        population_density REAL NOT NULL,
        created_at DATETIME NOT NULL,
        UNIQUE(request_id)
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `

	_, err = database.Exec(query)
	return err
}

// Close closes the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// PredictionRow is one served prediction with its inputs and ratios.
type PredictionRow struct {
	RequestID string            `json:"request_id"`
	Record    ml.HousingRecord  `json:"record"`
	Value     float64           `json:"predicted_value"`
	Metrics   ml.DerivedMetrics `json:"metrics"`
	CreatedAt time.Time         `json:"created_at"`
}

// SavePrediction records a served prediction in the history table
func SavePrediction(row PredictionRow) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if row.RequestID == "" {
		return errors.New("request id required")
	}
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := database.Exec(`
        INSERT OR REPLACE INTO predictions (
            request_id, longitude, latitude, housing_median_age,
            total_rooms, total_bedrooms, population, households,
            median_income, ocean_proximity, predicted_value,
            price_per_room, price_per_bedroom, price_to_income,
            price_per_person, population_density, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RequestID,
		row.Record.Longitude,
		row.Record.Latitude,
		row.Record.HousingMedianAge,
		row.Record.TotalRooms,
		row.Record.TotalBedrooms,
		row.Record.Population,
		row.Record.Households,
		row.Record.MedianIncome,
		string(row.Record.OceanProximity),
		row.Value,
		row.Metrics.PricePerRoom,
		row.Metrics.PricePerBedroom,
		row.Metrics.PriceToIncome,
		row.Metrics.PricePerPerson,
		row.Metrics.PopulationDensity,
		createdAt,
	)
	return err
}

// QueryRecent returns the most recent predictions, newest first
func QueryRecent(limit int) ([]PredictionRow, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := database.Query(`
        SELECT request_id, longitude, latitude, housing_median_age,
               total_rooms, total_bedrooms, population, households,
               median_income, ocean_proximity, predicted_value,
               price_per_room, price_per_bedroom, price_to_income,
               price_per_person, population_density, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]PredictionRow, 0)
	for rows.Next() {
		var row PredictionRow
		var proximity string
		err := rows.Scan(&row.RequestID,
			&row.Record.Longitude, &row.Record.Latitude, &row.Record.HousingMedianAge,
			&row.Record.TotalRooms, &row.Record.TotalBedrooms, &row.Record.Population,
			&row.Record.Households, &row.Record.MedianIncome, &proximity,
			&row.Value,
			&row.Metrics.PricePerRoom, &row.Metrics.PricePerBedroom,
			&row.Metrics.PriceToIncome, &row.Metrics.PricePerPerson,
			&row.Metrics.PopulationDensity, &row.CreatedAt)
		if err != nil {
			return nil, err
		}
		row.Record.OceanProximity = ml.OceanProximity(proximity)
		results = append(results, row)
	}
	return results, rows.Err()
}

type HistoryStats struct {
	Count     int64   `json:"count"`
	MeanValue float64 `json:"mean_value"`
	MinValue  float64 `json:"min_value"`
	MaxValue  float64 `json:"max_value"`
}

// Stats aggregates the stored prediction history
func Stats() (HistoryStats, error) {
	if database == nil {
		return HistoryStats{}, errors.New("database not initialized")
	}

	var stats HistoryStats
	var mean, min, max sql.NullFloat64
	err := database.QueryRow(`
        SELECT COUNT(*), AVG(predicted_value), MIN(predicted_value), MAX(predicted_value)
        FROM predictions`).Scan(&stats.Count, &mean, &min, &max)
	if err != nil {
		return HistoryStats{}, err
	}
	if mean.Valid {
		stats.MeanValue = mean.Float64
	}
	if min.Valid {
		stats.MinValue = min.Float64
	}
	if max.Valid {
		stats.MaxValue = max.Float64
	}
	return stats, nil
}
