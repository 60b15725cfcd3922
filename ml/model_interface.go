package ml

import (
	"context"
	"errors"
)

var ErrModelNotTrained = errors.New("model not trained")

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeRandomForest = "random_forest"
)

// Regressor is the inference half of a model.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

type MLModel interface {
	Regressor
	Train(features [][]float64, targets []float64) error
	Save(path string) error
	Load(path string) error
}

// ModelProvider predicts yields for a batch of feature rows.
type ModelProvider interface {
	PredictYield(ctx context.Context, rows []FeatureRow) ([]float64, error)
}
