package ml

import (
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrInferenceFailed = errors.New("inference failed")

// Prediction is one complete inference result.
type Prediction struct {
	Value   float64        `json:"predicted_value"`
	Metrics DerivedMetrics `json:"metrics"`
}

// Service runs records through the loaded artifacts. Predictions are
// deterministic for a fixed artifact generation, so results are memoized in
// an LRU keyed by the record's value identity; the cache is flushed when
// the artifacts are swapped.
type Service struct {
	artifacts *Artifacts
	cache     *lru.Cache[string, float64]
}

// NewService builds an inference service. cacheSize <= 0 disables the
// result cache.
func NewService(artifacts *Artifacts, cacheSize int) (*Service, error) {
	if artifacts == nil {
		return nil, errors.New("artifacts are required")
	}
	s := &Service{artifacts: artifacts}
	if cacheSize > 0 {
		cache, err := lru.New[string, float64](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
		artifacts.OnReload(s.flushCache)
	}
	return s, nil
}

// Predict validates the record, transforms it, and evaluates the model.
// Validation failures surface as ErrInvalidRecord; transformer and
// estimator failures are wrapped in ErrInferenceFailed with the cause
// attached. Not retried: a rejected record fails the same way every time.
func (s *Service) Predict(record HousingRecord) (float64, error) {
	if err := record.Validate(); err != nil {
		return 0, err
	}

	key := record.cacheKey()
	if s.cache != nil {
		if value, ok := s.cache.Get(key); ok {
			return value, nil
		}
	}

	pipeline, model, generation := s.artifacts.Snapshot()
	features, err := pipeline.Transform(record)
	if err != nil {
		return 0, fmt.Errorf("%w: transform: %w", ErrInferenceFailed, err)
	}
	value, err := model.Predict(features)
	if err != nil {
		return 0, fmt.Errorf("%w: predict: %w", ErrInferenceFailed, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: non-finite prediction", ErrInferenceFailed)
	}

	// The value belongs to the generation it was computed under. If the
	// artifacts swapped mid-flight the flush already ran, so do not re-add.
	if s.cache != nil && s.artifacts.Generation() == generation {
		s.cache.Add(key, value)
	}
	return value, nil
}

// Evaluate predicts and attaches the derived ratios.
func (s *Service) Evaluate(record HousingRecord) (Prediction, error) {
	value, err := s.Predict(record)
	if err != nil {
		return Prediction{}, err
	}
	metrics, err := ComputeDerivedMetrics(value, record)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Value: value, Metrics: metrics}, nil
}

func (s *Service) flushCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// ArtifactStatus exposes the backing artifact state for diagnostics.
func (s *Service) ArtifactStatus() ArtifactStatus {
	return s.artifacts.Status()
}
