package ml

// Transformer converts a raw record into the numeric feature vector the
// estimator expects.
type Transformer interface {
	Transform(record HousingRecord) ([]float64, error)
}

// Estimator maps a feature vector to a scalar prediction.
type Estimator interface {
	Predict(features []float64) (float64, error)
}

var (
	_ Transformer = (*FeaturePipeline)(nil)
	_ Estimator   = (*Ensemble)(nil)
)
