package ml

import (
	"errors"
	"fmt"
	"math/rand"
)

type RandomForest struct {
	NumTrees       int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int
	// Seed fixes bootstrap sampling and feature selection so that training
	// the same data twice yields the same forest.
	Seed         int64
	FeatureNames []string

	trees []*DecisionTree
}

func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{
		NumTrees:       numTrees,
		MaxDepth:       maxDepth,
		MinSamplesLeaf: 1,
		Seed:           seed,
	}
}

func (rf *RandomForest) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	if rf.NumTrees <= 0 {
		rf.NumTrees = 100
	}
	if rf.FeatureNames == nil && len(features[0]) == len(FeatureNames()) {
		rf.FeatureNames = FeatureNames()
	}

	rng := rand.New(rand.NewSource(rf.Seed))
	trees := make([]*DecisionTree, 0, rf.NumTrees)
	sampleX := make([][]float64, len(features))
	sampleY := make([]float64, len(targets))
	for t := 0; t < rf.NumTrees; t++ {
		for i := range sampleX {
			j := rng.Intn(len(features))
			sampleX[i] = features[j]
			sampleY[i] = targets[j]
		}
		tree := &DecisionTree{
			MaxDepth:       rf.MaxDepth,
			MinSamplesLeaf: rf.MinSamplesLeaf,
			MaxFeatures:    rf.MaxFeatures,
			FeatureNames:   rf.FeatureNames,
			rng:            rand.New(rand.NewSource(rng.Int63())),
		}
		if err := tree.Train(sampleX, sampleY); err != nil {
			return fmt.Errorf("train tree %d: %w", t, err)
		}
		trees = append(trees, tree)
	}
	rf.trees = trees
	return nil
}

// Predict averages the predictions of all trees.
func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, ErrModelNotTrained
	}
	sum := 0.0
	for i, tree := range rf.trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += v
	}
	return sum / float64(len(rf.trees)), nil
}

func (rf *RandomForest) Size() int {
	return len(rf.trees)
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrModelNotTrained
	}
	trees := make([]treeArtifact, len(rf.trees))
	for i, tree := range rf.trees {
		trees[i] = treeArtifact{Nodes: tree.nodes}
	}
	return writeArtifact(path, modelArtifact{
		ModelType:    ModelTypeRandomForest,
		FeatureNames: rf.FeatureNames,
		Trees:        trees,
	})
}

func (rf *RandomForest) Load(path string) error {
	artifact, err := readArtifact(path, ModelTypeRandomForest)
	if err != nil {
		return err
	}
	if len(artifact.Trees) == 0 {
		return errors.New("random forest artifact holds no trees")
	}
	trees := make([]*DecisionTree, len(artifact.Trees))
	for i, t := range artifact.Trees {
		if err := validateNodes(t.Nodes); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = &DecisionTree{FeatureNames: artifact.FeatureNames, nodes: t.Nodes}
	}
	rf.FeatureNames = artifact.FeatureNames
	rf.NumTrees = len(trees)
	rf.trees = trees
	return nil
}
