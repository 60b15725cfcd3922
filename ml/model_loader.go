package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
)

var ErrFeatureMismatch = errors.New("model feature names do not match the feature table")

type modelArtifact struct {
	ModelType    string         `json:"model_type"`
	FeatureNames []string       `json:"feature_names"`
	Trees        []treeArtifact `json:"trees"`
}

type treeArtifact struct {
	Nodes []TreeNode `json:"nodes"`
}

// NewModel returns an untrained model of the given type.
func NewModel(modelType string) (MLModel, error) {
	switch modelType {
	case ModelTypeDecisionTree:
		return NewDecisionTree(defaultMaxDepth), nil
	case ModelTypeRandomForest:
		return NewRandomForest(100, defaultMaxDepth, 0), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// LoadModel reads a crop-yield model artifact and checks that it was trained
// on the feature table columns in their expected order.
func LoadModel(modelType, path string) (MLModel, error) {
	model, err := NewModel(modelType)
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("load %s model from %s: %w", modelType, path, err)
	}
	var names []string
	switch m := model.(type) {
	case *DecisionTree:
		names = m.FeatureNames
	case *RandomForest:
		names = m.FeatureNames
	}
	if !slices.Equal(names, FeatureNames()) {
		return nil, fmt.Errorf("%w: got %v", ErrFeatureMismatch, names)
	}
	return model, nil
}

func writeArtifact(path string, artifact modelArtifact) error {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	// Replace the file in one step so a watching server never reads a
	// partial artifact.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func readArtifact(path, modelType string) (modelArtifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return modelArtifact{}, err
	}
	var artifact modelArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return modelArtifact{}, fmt.Errorf("decode model artifact: %w", err)
	}
	if artifact.ModelType != modelType {
		return modelArtifact{}, fmt.Errorf("artifact holds a %q model, want %q", artifact.ModelType, modelType)
	}
	return artifact, nil
}

func validateNodes(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d has out-of-range children", i)
		}
	}
	return nil
}
