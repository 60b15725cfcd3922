package ml

import (
	"context"
	"testing"
)

func TestParameterSearchFindsBestParams(t *testing.T) {
	features, targets := syntheticCropData(200)
	search := NewParameterSearch(SearchConfig{
		ModelType:       ModelTypeDecisionTree,
		Metric:          "rmse",
		MaxDepths:       []int{1, 8},
		MinSamplesLeaf:  []int{1},
		ValidationSplit: 0.25,
		Seed:            7,
		MaxWorkers:      2,
	}, nil)

	result, err := search.Optimize(context.Background(), features, targets)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(result.Iterations) != 2 {
		t.Fatalf("expected 2 iterations, got %d", len(result.Iterations))
	}
	// A depth-1 stump cannot fit three interacting features.
	if result.Best.Params.MaxDepth != 8 {
		t.Errorf("best depth = %d, want 8", result.Best.Params.MaxDepth)
	}
	if result.Best.Rank != 1 || result.Iterations[1].Rank != 2 {
		t.Errorf("unexpected ranks: %+v", result.Iterations)
	}
	if result.Best.Score != -result.Best.Metrics.RMSE {
		t.Errorf("rmse score should be negated: %+v", result.Best)
	}
	if got := search.Progress(); got != 1 {
		t.Errorf("progress = %v, want 1", got)
	}
}

func TestParameterSearchGrid(t *testing.T) {
	forest := NewParameterSearch(SearchConfig{
		ModelType: ModelTypeRandomForest,
		MaxDepths: []int{4, 6},
		NumTrees:  []int{10, 20, 30},
	}, nil)
	if got := len(forest.buildGrid()); got != 6 {
		t.Errorf("forest grid size = %d, want 6", got)
	}

	tree := NewParameterSearch(SearchConfig{
		ModelType: ModelTypeDecisionTree,
		MaxDepths: []int{4, 6},
		NumTrees:  []int{10, 20, 30},
	}, nil)
	if got := len(tree.buildGrid()); got != 2 {
		t.Errorf("tree grid ignores NumTrees: size = %d, want 2", got)
	}
}

func TestParameterSearchRejectsBadConfig(t *testing.T) {
	features, targets := syntheticCropData(20)

	search := NewParameterSearch(SearchConfig{ModelType: ModelTypeDecisionTree, Metric: "accuracy"}, nil)
	if _, err := search.Optimize(context.Background(), features, targets); err == nil {
		t.Error("expected error for unsupported metric")
	}

	search = NewParameterSearch(SearchConfig{ModelType: "svm"}, nil)
	if _, err := search.Optimize(context.Background(), features, targets); err == nil {
		t.Error("expected error when every combination fails")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	search = NewParameterSearch(SearchConfig{ModelType: ModelTypeDecisionTree}, nil)
	if _, err := search.Optimize(ctx, features, targets); err == nil {
		t.Error("expected error for cancelled context")
	}
}
