package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"cropyield/db"
	"cropyield/logging"
	"cropyield/ml"
	"cropyield/pipeline"
)

func main() {
	dataPath := flag.String("data", "", "training CSV")
	encoding := flag.String("encoding", "", "CSV source encoding (utf-8, latin1, windows-1252)")
	target := flag.String("target", ml.DefaultTarget, "target column")
	modelType := flag.String("model_type", ml.ModelTypeRandomForest, "decision_tree or random_forest")
	modelPath := flag.String("model_path", "./models/random_forest_model.json", "model output path")
	maxDepth := flag.Int("max_depth", 10, "max tree depth")
	numTrees := flag.Int("trees", 100, "number of trees in the forest")
	maxFeatures := flag.Int("max_features", 0, "features considered per split (0 means all)")
	seed := flag.Int64("seed", 42, "random seed")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")
	search := flag.Bool("search", false, "grid search hyperparameters on a validation split first")
	dbPath := flag.String("db", "", "SQLite database to record the training run in")
	logLevel := flag.String("log_level", "info", "log level")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	logger, err := logging.New(logging.Config{Level: *logLevel})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	set, err := buildTrainingData(*dataPath, *encoding, *target, logger)
	if err != nil {
		logger.Fatal("Failed to build training data", zap.Error(err))
	}

	trainX, trainY, testX, testY, err := splitTrainingData(set, *testRatio, *seed)
	if err != nil {
		logger.Fatal("Failed to split training data", zap.Error(err))
	}

	params := ml.HyperParams{MaxDepth: *maxDepth, NumTrees: *numTrees, MaxFeatures: *maxFeatures, MinSamplesLeaf: 1}
	if *search {
		searchConfig := ml.DefaultSearchConfig(*modelType)
		searchConfig.Seed = *seed
		result, err := ml.NewParameterSearch(searchConfig, logger).Optimize(context.Background(), trainX, trainY)
		if err != nil {
			logger.Fatal("Parameter search failed", zap.Error(err))
		}
		params = result.Best.Params
	}

	model, err := params.NewModel(*modelType, *seed)
	if err != nil {
		logger.Fatal("Invalid model type", zap.Error(err))
	}
	if err := model.Train(trainX, trainY); err != nil {
		logger.Fatal("Failed to train model", zap.Error(err))
	}

	metrics, err := ml.EvaluateRegression(model, testX, testY)
	if err != nil {
		logger.Fatal("Failed to evaluate model", zap.Error(err))
	}
	logger.Info("Model evaluated",
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", metrics.N),
		zap.Float64("mae", metrics.MAE),
		zap.Float64("rmse", metrics.RMSE),
		zap.Float64("r2", metrics.R2))

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		logger.Fatal("Failed to create model dir", zap.Error(err))
	}
	if err := model.Save(*modelPath); err != nil {
		logger.Fatal("Failed to save model", zap.Error(err))
	}

	if *dbPath != "" {
		if err := recordRun(*dbPath, *modelType, *modelPath, *dataPath, metrics, len(set.Features)); err != nil {
			logger.Fatal("Failed to record training run", zap.Error(err))
		}
	}

	fmt.Printf("model saved to %s (r2=%.4f)\n", *modelPath, metrics.R2)
}

// buildTrainingData cleans the CSV the same way the data tooling does, then
// fills remaining gaps with column medians.
func buildTrainingData(path, encoding, target string, logger *zap.Logger) (ml.TrainingSet, error) {
	table, err := pipeline.ReadCSV(path, encoding)
	if err != nil {
		return ml.TrainingSet{}, err
	}
	cleaner := pipeline.NewDataCleaner(logger)
	cleaner.AddStep(pipeline.MedianImputeStep{})
	cleaned, report, err := cleaner.Clean(table)
	if err != nil {
		return ml.TrainingSet{}, err
	}
	logger.Info("Dataset cleaned",
		zap.String("path", path),
		zap.Int("rows_before", report.RowsBefore),
		zap.Int("rows", report.Rows))

	set, err := ml.BuildTrainingSet(cleaned, target)
	if err != nil {
		return ml.TrainingSet{}, err
	}
	if set.Skipped > 0 {
		logger.Warn("Rows skipped", zap.Int("skipped", set.Skipped))
	}
	return set, nil
}

// splitTrainingData holds out the evaluation rows and fails when either side
// of the split is empty.
func splitTrainingData(set ml.TrainingSet, testRatio float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64, err error) {
	trainX, trainY, testX, testY = ml.SplitDataset(set.Features, set.Targets, testRatio, seed)
	if len(trainX) == 0 || len(testX) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%d usable rows give %d training and %d test rows at test_ratio %.2f; add rows or change -test_ratio",
			len(set.Features), len(trainX), len(testX), testRatio)
	}
	return trainX, trainY, testX, testY, nil
}

func recordRun(dbPath, modelType, modelPath, dataPath string, metrics ml.RegressionMetrics, rows int) error {
	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	absModel, err := filepath.Abs(modelPath)
	if err != nil {
		return err
	}
	_, err = store.SaveTrainingLog(context.Background(), db.TrainingLog{
		ModelType:  modelType,
		ModelPath:  absModel,
		Dataset:    dataPath,
		MAE:        metrics.MAE,
		RMSE:       metrics.RMSE,
		R2:         metrics.R2,
		DataPoints: rows,
	})
	return err
}
