package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"cropyield/pipeline"
)

const DefaultTarget = "yield"

// TrainingSet holds feature vectors in FeatureNames order and their targets.
type TrainingSet struct {
	Features [][]float64
	Targets  []float64
	// Skipped counts rows dropped for missing or unparsable values.
	Skipped int
}

// BuildTrainingSet extracts the model features and the target column from a
// cleaned table. Soil and crop columns may hold names or codes.
func BuildTrainingSet(table *pipeline.Table, target string) (TrainingSet, error) {
	if target == "" {
		target = DefaultTarget
	}
	names := FeatureNames()
	indices := make([]int, len(names))
	for i, name := range names {
		idx := table.ColumnIndex(name)
		if idx < 0 {
			return TrainingSet{}, fmt.Errorf("dataset is missing feature column %q", name)
		}
		indices[i] = idx
	}
	targetIdx := table.ColumnIndex(target)
	if targetIdx < 0 {
		return TrainingSet{}, fmt.Errorf("dataset is missing target column %q", target)
	}

	set := TrainingSet{
		Features: make([][]float64, 0, table.Len()),
		Targets:  make([]float64, 0, table.Len()),
	}
	for _, row := range table.Rows {
		vector, ok := rowVector(row, names, indices)
		if !ok {
			set.Skipped++
			continue
		}
		y, err := parseCell(row[targetIdx])
		if err != nil {
			set.Skipped++
			continue
		}
		set.Features = append(set.Features, vector)
		set.Targets = append(set.Targets, y)
	}
	if len(set.Features) == 0 {
		return TrainingSet{}, errors.New("no usable rows in dataset")
	}
	return set, nil
}

func rowVector(row []string, names []string, indices []int) ([]float64, bool) {
	vector := make([]float64, len(names))
	for i, idx := range indices {
		cell := row[idx]
		var (
			v   float64
			err error
		)
		switch names[i] {
		case "soil_type":
			v, err = categoryCell(cell, SoilCode)
		case "crop_type":
			v, err = categoryCell(cell, CropCode)
		default:
			v, err = parseCell(cell)
		}
		if err != nil {
			return nil, false
		}
		vector[i] = v
	}
	return vector, true
}

func categoryCell(cell string, lookup func(string) (int, error)) (float64, error) {
	if v, err := parseCell(cell); err == nil {
		return v, nil
	}
	code, err := lookup(cell)
	if err != nil {
		return 0, err
	}
	return float64(code), nil
}

func parseCell(cell string) (float64, error) {
	if pipeline.IsMissing(cell) {
		return 0, errors.New("missing value")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("non-finite value")
	}
	return v, nil
}

// SplitDataset shuffles with seed and holds out testRatio of the rows.
func SplitDataset(features [][]float64, targets []float64, testRatio float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(features))

	split := int(math.Round(float64(len(features)) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, targets[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, targets[idx])
		}
	}
	return trainX, trainY, testX, testY
}

type RegressionMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
	N    int     `json:"n"`
}

// EvaluateRegression scores model on a held-out set.
func EvaluateRegression(model Regressor, features [][]float64, targets []float64) (RegressionMetrics, error) {
	if len(features) == 0 {
		return RegressionMetrics{}, errors.New("empty evaluation set")
	}
	if len(features) != len(targets) {
		return RegressionMetrics{}, errors.New("features and targets size mismatch")
	}
	avg := mean(targets)
	var absSum, sqSum, totSum float64
	for i, x := range features {
		pred, err := model.Predict(x)
		if err != nil {
			return RegressionMetrics{}, err
		}
		diff := pred - targets[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		dev := targets[i] - avg
		totSum += dev * dev
	}
	n := float64(len(features))
	metrics := RegressionMetrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		N:    len(features),
	}
	if totSum > 0 {
		metrics.R2 = 1 - sqSum/totSum
	}
	return metrics, nil
}
