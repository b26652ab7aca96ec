package ml

import (
	"encoding/json"
	"errors"
	"os"
)

type RegNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// RegressionTree is one fitted tree, flattened into a node array. The root
// is node 0 and children are referenced by index.
type RegressionTree struct {
	Nodes []RegNode `json:"nodes"`
}

func (t *RegressionTree) evaluate(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errors.New("empty tree")
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// Ensemble is the fitted regression model: tree outputs are averaged and
// shifted by the fitted bias.
type Ensemble struct {
	Trees []RegressionTree `json:"trees"`
	Bias  float64          `json:"bias"`
}

func (e *Ensemble) Predict(features []float64) (float64, error) {
	if len(e.Trees) == 0 {
		return 0, errors.New("model not loaded")
	}
	sum := 0.0
	for i := range e.Trees {
		value, err := e.Trees[i].evaluate(features)
		if err != nil {
			return 0, err
		}
		sum += value
	}
	return e.Bias + sum/float64(len(e.Trees)), nil
}

func (e *Ensemble) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded Ensemble
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	*e = loaded
	return nil
}

func (e *Ensemble) TreeCount() int {
	return len(e.Trees)
}
