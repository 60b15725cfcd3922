package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const defaultMaxDepth = 8

// splitQuantiles are the candidate thresholds tried for every feature.
var splitQuantiles = []float64{0.25, 0.5, 0.75}

type DecisionTree struct {
	MaxDepth       int
	MinSamplesLeaf int
	// MaxFeatures limits how many features are considered per split. Zero
	// means all of them.
	MaxFeatures  int
	FeatureNames []string

	nodes []TreeNode
	rng   *rand.Rand
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesLeaf: 1}
}

func (dt *DecisionTree) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return errors.New("ragged feature matrix")
		}
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = defaultMaxDepth
	}
	if dt.MinSamplesLeaf <= 0 {
		dt.MinSamplesLeaf = 1
	}
	if dt.FeatureNames == nil && width == len(FeatureNames()) {
		dt.FeatureNames = FeatureNames()
	}

	dt.nodes = dt.buildNode(features, targets, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (float64, error) {
	if len(dt.nodes) == 0 {
		return 0, ErrModelNotTrained
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
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
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state: cycle")
}

// Nodes exposes the flattened tree, root first.
func (dt *DecisionTree) Nodes() []TreeNode {
	return append([]TreeNode(nil), dt.nodes...)
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrModelNotTrained
	}
	return writeArtifact(path, modelArtifact{
		ModelType:    ModelTypeDecisionTree,
		FeatureNames: dt.FeatureNames,
		Trees:        []treeArtifact{{Nodes: dt.nodes}},
	})
}

func (dt *DecisionTree) Load(path string) error {
	artifact, err := readArtifact(path, ModelTypeDecisionTree)
	if err != nil {
		return err
	}
	if len(artifact.Trees) != 1 {
		return errors.New("decision tree artifact must hold exactly one tree")
	}
	if err := validateNodes(artifact.Trees[0].Nodes); err != nil {
		return err
	}
	dt.FeatureNames = artifact.FeatureNames
	dt.nodes = artifact.Trees[0].Nodes
	return nil
}

func (dt *DecisionTree) buildNode(features [][]float64, targets []float64, depth int) []TreeNode {
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean(targets),
		IsLeaf:     true,
	}}
	if depth >= dt.MaxDepth || len(targets) < 2*dt.MinSamplesLeaf || variance(targets) == 0 {
		return leaf
	}

	bestFeature, threshold, ok := dt.findBestSplit(features, targets)
	if !ok {
		return leaf
	}

	leftFeatures, leftTargets, rightFeatures, rightTargets := splitData(features, targets, bestFeature, threshold)
	if len(leftTargets) < dt.MinSamplesLeaf || len(rightTargets) < dt.MinSamplesLeaf {
		return leaf
	}

	leftNodes := dt.buildNode(leftFeatures, leftTargets, depth+1)
	rightNodes := dt.buildNode(rightFeatures, rightTargets, depth+1)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Value:      leaf[0].Value,
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetChildren rebases child indices of a subtree placed at offset.
func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func (dt *DecisionTree) candidateFeatures(count int) []int {
	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= count || dt.rng == nil {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all
	}
	picked := dt.rng.Perm(count)[:dt.MaxFeatures]
	sort.Ints(picked)
	return picked
}

func (dt *DecisionTree) findBestSplit(features [][]float64, targets []float64) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := variance(targets)

	values := make([]float64, len(features))
	for _, featureIdx := range dt.candidateFeatures(len(features[0])) {
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		for _, threshold := range quantiles(values, splitQuantiles) {
			leftTargets, rightTargets := splitTargets(features, targets, featureIdx, threshold)
			if len(leftTargets) < dt.MinSamplesLeaf || len(rightTargets) < dt.MinSamplesLeaf {
				continue
			}
			impurity := weightedVariance(leftTargets, rightTargets)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, targets []float64, featureIdx int, threshold float64) ([][]float64, []float64, [][]float64, []float64) {
	leftFeatures := make([][]float64, 0)
	leftTargets := make([]float64, 0)
	rightFeatures := make([][]float64, 0)
	rightTargets := make([]float64, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftTargets = append(leftTargets, targets[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightTargets = append(rightTargets, targets[i])
		}
	}
	return leftFeatures, leftTargets, rightFeatures, rightTargets
}

func splitTargets(features [][]float64, targets []float64, featureIdx int, threshold float64) ([]float64, []float64) {
	leftTargets := make([]float64, 0)
	rightTargets := make([]float64, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftTargets = append(leftTargets, targets[i])
		} else {
			rightTargets = append(rightTargets, targets[i])
		}
	}
	return leftTargets, rightTargets
}

func weightedVariance(left, right []float64) float64 {
	leftWeight := float64(len(left))
	rightWeight := float64(len(right))
	total := leftWeight + rightWeight
	return (leftWeight/total)*variance(left) + (rightWeight/total)*variance(right)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - m
		sum += diff * diff
	}
	return sum / float64(len(values))
}

// quantiles returns the distinct values at the given quantiles, using the
// midpoint between neighbours like a median does for even lengths.
func quantiles(values []float64, qs []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	out := make([]float64, 0, len(qs))
	for _, q := range qs {
		pos := q * float64(len(sorted)-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		v := (sorted[lo] + sorted[hi]) / 2
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}
