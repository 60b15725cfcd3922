package ml

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrNoPrediction is returned when the model produced no values.
	ErrNoPrediction = errors.New("model returned no prediction")
	// ErrModelUnavailable wraps any failure to load the model artifact.
	ErrModelUnavailable = errors.New("model unavailable")
)

const defaultCacheSize = 4

// CropPredictor loads a model artifact once and serves predictions from the
// cached instance until the artifact changes on disk.
type CropPredictor struct {
	ModelPath string
	ModelType string

	cache  *lru.Cache[string, MLModel]
	logger *zap.Logger
	tracer trace.Tracer
	loader func(modelType, path string) (MLModel, error)

	// generation is bumped by Invalidate. A load that started before the
	// bump must not populate the cache.
	mu         sync.Mutex
	generation uint64
}

func NewCropPredictor(modelType, modelPath string, cacheSize int, logger *zap.Logger) (*CropPredictor, error) {
	if modelPath == "" {
		return nil, errors.New("model path is required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(modelPath)
	if err != nil {
		return nil, fmt.Errorf("resolve model path: %w", err)
	}
	cache, err := lru.New[string, MLModel](cacheSize)
	if err != nil {
		return nil, err
	}
	return &CropPredictor{
		ModelPath: abs,
		ModelType: modelType,
		cache:     cache,
		logger:    logger.Named("predictor"),
		tracer:    otel.Tracer("cropyield/ml"),
		loader:    LoadModel,
	}, nil
}

// LoadModel returns the cached model, loading it from disk on a miss.
func (p *CropPredictor) LoadModel() (MLModel, error) {
	if model, ok := p.cache.Get(p.ModelPath); ok {
		return model, nil
	}
	p.mu.Lock()
	generation := p.generation
	p.mu.Unlock()

	model, err := p.loader(p.ModelType, p.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if generation != p.generation {
		p.logger.Info("Artifact changed during load, not caching", zap.String("path", p.ModelPath))
		return model, nil
	}
	p.cache.Add(p.ModelPath, model)
	p.logger.Info("Model loaded", zap.String("type", p.ModelType), zap.String("path", p.ModelPath))
	return model, nil
}

// Loaded reports whether the model is currently cached.
func (p *CropPredictor) Loaded() bool {
	return p.cache.Contains(p.ModelPath)
}

// Invalidate drops the cached model so the next request reloads it.
func (p *CropPredictor) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.cache.Remove(p.ModelPath)
}

func (p *CropPredictor) Type() string {
	return p.ModelType
}

func (p *CropPredictor) Path() string {
	return p.ModelPath
}

// PredictYield predicts one yield per row.
func (p *CropPredictor) PredictYield(ctx context.Context, rows []FeatureRow) (predictions []float64, err error) {
	ctx, span := p.tracer.Start(ctx, "CropPredictor.PredictYield",
		trace.WithAttributes(
			attribute.String("model.type", p.ModelType),
			attribute.Int("rows", len(rows)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	model, err := p.LoadModel()
	if err != nil {
		return nil, err
	}
	predictions = make([]float64, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := model.Predict(row.Vector())
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		predictions = append(predictions, v)
	}
	if len(predictions) == 0 {
		return nil, ErrNoPrediction
	}
	return predictions, nil
}

// Watch evicts the cached model whenever the artifact file is written,
// replaced or removed. It blocks until ctx is done.
func (p *CropPredictor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create model watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and trainers often replace the file by
	// renaming a temporary one over it.
	if err := watcher.Add(filepath.Dir(p.ModelPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.ModelPath), err)
	}
	p.logger.Info("Watching model artifact", zap.String("path", p.ModelPath))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != p.ModelPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.Invalidate()
			p.logger.Info("Model artifact changed, cache invalidated",
				zap.String("path", p.ModelPath), zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("Model watcher error", zap.Error(err))
		}
	}
}
