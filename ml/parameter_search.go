package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SearchConfig 搜索配置
type SearchConfig struct {
	ModelType       string  `yaml:"model_type"`
	Metric          string  `yaml:"metric"` // 优化目标: r2, rmse, mae
	MaxDepths       []int   `yaml:"max_depths"`
	NumTrees        []int   `yaml:"num_trees"`
	MaxFeatures     []int   `yaml:"max_features"`
	MinSamplesLeaf  []int   `yaml:"min_samples_leaf"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            int64   `yaml:"seed"`
	MaxWorkers      int     `yaml:"max_workers"`
}

// DefaultSearchConfig 默认搜索空间
func DefaultSearchConfig(modelType string) SearchConfig {
	return SearchConfig{
		ModelType:       modelType,
		Metric:          "r2",
		MaxDepths:       []int{4, 6, 8, 10, 12},
		NumTrees:        []int{50, 100, 200},
		MaxFeatures:     []int{0, 4, 7},
		MinSamplesLeaf:  []int{1, 3},
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

// HyperParams 参数网格中的一组超参数
type HyperParams struct {
	MaxDepth       int `json:"max_depth"`
	NumTrees       int `json:"num_trees,omitempty"`
	MaxFeatures    int `json:"max_features"`
	MinSamplesLeaf int `json:"min_samples_leaf"`
}

// NewModel 按该组参数创建未训练的模型
func (hp HyperParams) NewModel(modelType string, seed int64) (MLModel, error) {
	switch modelType {
	case ModelTypeDecisionTree:
		tree := NewDecisionTree(hp.MaxDepth)
		tree.MaxFeatures = hp.MaxFeatures
		if hp.MinSamplesLeaf > 0 {
			tree.MinSamplesLeaf = hp.MinSamplesLeaf
		}
		if hp.MaxFeatures > 0 {
			tree.rng = rand.New(rand.NewSource(seed))
		}
		return tree, nil
	case ModelTypeRandomForest:
		forest := NewRandomForest(hp.NumTrees, hp.MaxDepth, seed)
		forest.MaxFeatures = hp.MaxFeatures
		if hp.MinSamplesLeaf > 0 {
			forest.MinSamplesLeaf = hp.MinSamplesLeaf
		}
		return forest, nil
	}
	return nil, fmt.Errorf("unknown model type %q", modelType)
}

// SearchIteration 搜索迭代
type SearchIteration struct {
	ID       int               `json:"id"`
	Params   HyperParams       `json:"params"`
	Metrics  RegressionMetrics `json:"metrics"`
	Score    float64           `json:"score"`
	Rank     int               `json:"rank"`
	Duration time.Duration     `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

// OptimizationResult 优化结果
type OptimizationResult struct {
	Best       SearchIteration   `json:"best"`
	Iterations []SearchIteration `json:"iterations"`
	Duration   time.Duration     `json:"duration"`
}

// ParameterSearch 参数优化器，在验证集上网格搜索超参数
type ParameterSearch struct {
	mu      sync.Mutex
	config  SearchConfig
	logger  *zap.Logger
	started bool
	done    int
	total   int
}

// NewParameterSearch 创建参数优化器
func NewParameterSearch(config SearchConfig, logger *zap.Logger) *ParameterSearch {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Metric == "" {
		config.Metric = "r2"
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	return &ParameterSearch{config: config, logger: logger.Named("search")}
}

// Optimize 对每组参数在训练集上训练模型，并在验证集上评分
func (p *ParameterSearch) Optimize(ctx context.Context, features [][]float64, targets []float64) (*OptimizationResult, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, errors.New("parameter search is already running")
	}
	p.started = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
	}()

	score, err := scorer(p.config.Metric)
	if err != nil {
		return nil, err
	}
	grid := p.buildGrid()
	trainX, trainY, valX, valY := SplitDataset(features, targets, p.config.ValidationSplit, p.config.Seed)
	if len(trainX) == 0 || len(valX) == 0 {
		return nil, fmt.Errorf("need training and validation rows, got %d and %d", len(trainX), len(valX))
	}

	p.mu.Lock()
	p.done, p.total = 0, len(grid)
	p.mu.Unlock()
	p.logger.Info("Starting parameter optimization",
		zap.String("model_type", p.config.ModelType),
		zap.String("metric", p.config.Metric),
		zap.Int("combinations", len(grid)))

	start := time.Now()
	iterations := make([]SearchIteration, len(grid))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxWorkers)
	for i, params := range grid {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			iterations[i] = p.evaluate(i, params, trainX, trainY, valX, valY, score)
			p.mu.Lock()
			p.done++
			p.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]SearchIteration, 0, len(iterations))
	for _, it := range iterations {
		if it.Error == "" {
			ranked = append(ranked, it)
		}
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("every combination failed: %s", iterations[0].Error)
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Score > ranked[b].Score })
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	result := &OptimizationResult{Best: ranked[0], Iterations: ranked, Duration: time.Since(start)}
	p.logger.Info("Parameter optimization completed",
		zap.Any("best_params", result.Best.Params),
		zap.Float64("best_score", result.Best.Score),
		zap.Int("iterations", len(iterations)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Progress 返回已完成的组合比例
func (p *ParameterSearch) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return 0
	}
	return float64(p.done) / float64(p.total)
}

func (p *ParameterSearch) evaluate(id int, params HyperParams, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64, score func(RegressionMetrics) float64) SearchIteration {
	start := time.Now()
	it := SearchIteration{ID: id, Params: params}
	model, err := params.NewModel(p.config.ModelType, p.config.Seed)
	if err == nil {
		err = model.Train(trainX, trainY)
	}
	if err == nil {
		it.Metrics, err = EvaluateRegression(model, valX, valY)
	}
	if err != nil {
		it.Error = err.Error()
		p.logger.Debug("Combination failed", zap.Any("params", params), zap.Error(err))
	} else if it.Score = score(it.Metrics); math.IsNaN(it.Score) {
		it.Error = "score is undefined"
	}
	it.Duration = time.Since(start)
	return it
}

// buildGrid 构建参数空间
func (p *ParameterSearch) buildGrid() []HyperParams {
	orDefault := func(values []int, def int) []int {
		if len(values) == 0 {
			return []int{def}
		}
		return values
	}
	depths := orDefault(p.config.MaxDepths, defaultMaxDepth)
	trees := orDefault(p.config.NumTrees, 100)
	if p.config.ModelType == ModelTypeDecisionTree {
		trees = []int{0}
	}
	maxFeatures := orDefault(p.config.MaxFeatures, 0)
	leaves := orDefault(p.config.MinSamplesLeaf, 1)

	grid := make([]HyperParams, 0, len(depths)*len(trees)*len(maxFeatures)*len(leaves))
	for _, d := range depths {
		for _, t := range trees {
			for _, f := range maxFeatures {
				for _, l := range leaves {
					grid = append(grid, HyperParams{MaxDepth: d, NumTrees: t, MaxFeatures: f, MinSamplesLeaf: l})
				}
			}
		}
	}
	return grid
}

// scorer 将指标名映射为越大越好的评分
func scorer(metric string) (func(RegressionMetrics) float64, error) {
	switch metric {
	case "r2":
		return func(m RegressionMetrics) float64 { return m.R2 }, nil
	case "rmse":
		return func(m RegressionMetrics) float64 { return -m.RMSE }, nil
	case "mae":
		return func(m RegressionMetrics) float64 { return -m.MAE }, nil
	}
	return nil, fmt.Errorf("unsupported optimization metric: %s", metric)
}
