package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"homeval/db"
	"homeval/ml"
	"homeval/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	inferenceService *ml.Service
	artifactStore    *ml.Artifacts
	predictionHub    *monitoring.Hub
	collector        *monitoring.Collector
	logger           = zap.NewNop()

	// Swappable for tests.
	savePrediction = db.SavePrediction
	queryRecent    = db.QueryRecent
	historyStats   = db.Stats
)

func SetInferenceService(s *ml.Service) {
	inferenceService = s
}

func SetArtifacts(a *ml.Artifacts) {
	artifactStore = a
}

func SetHub(h *monitoring.Hub) {
	predictionHub = h
}

func SetCollector(c *monitoring.Collector) {
	collector = c
}

func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/schema", handleSchema)
	mux.HandleFunc("POST /api/predict", handlePredict)
	mux.HandleFunc("GET /api/predictions", handlePredictions)
	mux.HandleFunc("GET /api/predictions/stats", handlePredictionStats)
	mux.HandleFunc("GET /api/artifacts/status", handleArtifactStatus)
	mux.HandleFunc("GET /api/metrics", handleMetrics)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type fieldSpec struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit,omitempty"`
}

// handleSchema publishes the record schema the artifacts were fitted
// against, so callers can validate before submitting.
func handleSchema(w http.ResponseWriter, r *http.Request) {
	categories := make([]string, 0)
	for _, v := range ml.OceanProximityValues() {
		categories = append(categories, string(v))
	}

	respondJSON(w, map[string]interface{}{
		"fields": []fieldSpec{
			{Name: "longitude", Type: "float", Min: ml.MinLongitude, Max: ml.MaxLongitude, Unit: "degrees"},
			{Name: "latitude", Type: "float", Min: ml.MinLatitude, Max: ml.MaxLatitude, Unit: "degrees"},
			{Name: "housing_median_age", Type: "integer", Min: ml.MinHousingMedianAge, Max: ml.MaxHousingMedianAge, Unit: "years"},
			{Name: "total_rooms", Type: "integer", Min: ml.MinTotalRooms, Max: ml.MaxTotalRooms},
			{Name: "total_bedrooms", Type: "integer", Min: ml.MinTotalBedrooms, Max: ml.MaxTotalBedrooms},
			{Name: "population", Type: "integer", Min: ml.MinPopulation, Max: ml.MaxPopulation},
			{Name: "households", Type: "integer", Min: ml.MinHouseholds, Max: ml.MaxHouseholds},
			{Name: "median_income", Type: "float", Min: ml.MinMedianIncome, Max: ml.MaxMedianIncome, Unit: "$10k"},
		},
		"ocean_proximity": categories,
	})
}

// PredictResponse is the full response for one inference request.
type PredictResponse struct {
	RequestID      string            `json:"request_id"`
	Record         ml.HousingRecord  `json:"record"`
	PredictedValue float64           `json:"predicted_value"`
	DisplayValue   string            `json:"display_value"`
	Metrics        ml.DerivedMetrics `json:"metrics"`
	Display        map[string]string `json:"display"`
	ElapsedMs      float64           `json:"elapsed_ms"`
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	if inferenceService == nil {
		http.Error(w, `{"error":"inference service not initialized"}`, http.StatusServiceUnavailable)
		return
	}

	var record ml.HousingRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	start := time.Now()
	prediction, err := inferenceService.Evaluate(record)
	if err != nil {
		if collector != nil {
			collector.RecordFailure()
		}
		status := http.StatusInternalServerError
		// A record the transformer was never fitted on is the caller's
		// problem, not an artifact fault.
		if errors.Is(err, ml.ErrInvalidRecord) || errors.Is(err, ml.ErrUnknownCategory) {
			status = http.StatusUnprocessableEntity
		}
		logger.Warn("prediction failed", zap.Error(err), zap.Int("status", status))
		respondError(w, err.Error(), status)
		return
	}
	elapsed := time.Since(start)

	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	response := PredictResponse{
		RequestID:      requestID,
		Record:         record,
		PredictedValue: prediction.Value,
		DisplayValue:   FormatUSD(prediction.Value),
		Metrics:        prediction.Metrics,
		Display: map[string]string{
			"price_per_room":        FormatUSD(prediction.Metrics.PricePerRoom),
			"price_per_bedroom":     FormatUSD(prediction.Metrics.PricePerBedroom),
			"price_to_income_ratio": FormatRatio(prediction.Metrics.PriceToIncome),
			"price_per_person":      FormatUSD(prediction.Metrics.PricePerPerson),
			"population_density":    FormatDensity(prediction.Metrics.PopulationDensity),
		},
		ElapsedMs: float64(elapsed.Microseconds()) / 1000,
	}

	// History and the event stream are observability; failures there must
	// not fail the request.
	if err := savePrediction(db.PredictionRow{
		RequestID: requestID,
		Record:    record,
		Value:     prediction.Value,
		Metrics:   prediction.Metrics,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logger.Warn("failed to persist prediction", zap.Error(err), zap.String("request_id", requestID))
	}
	if predictionHub != nil {
		if err := predictionHub.BroadcastEvent(monitoring.PredictionEvent, response); err != nil {
			logger.Warn("failed to broadcast prediction", zap.Error(err))
		}
	}
	if collector != nil {
		collector.RecordSuccess(elapsed)
	}

	respondJSON(w, response)
}

func handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	rows, err := queryRecent(limit)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"predictions": rows,
		"count":       len(rows),
	})
}

func handlePredictionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := historyStats()
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, stats)
}

func handleArtifactStatus(w http.ResponseWriter, r *http.Request) {
	if artifactStore == nil {
		http.Error(w, `{"error":"artifacts not loaded"}`, http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, artifactStore.Status())
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if collector == nil {
		http.Error(w, `{"error":"metrics collector not initialized"}`, http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, collector.Snapshot())
}

func handlePredictionStream(w http.ResponseWriter, r *http.Request) {
	if predictionHub == nil {
		http.Error(w, `{"error":"stream not initialized"}`, http.StatusServiceUnavailable)
		return
	}
	predictionHub.ServeWS(w, r)
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
