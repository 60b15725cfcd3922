package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cropyield/ml"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndListPredictions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	row, err := ml.NewFeatureRow(ml.DefaultFormInput())
	if err != nil {
		t.Fatalf("feature row: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := NewPredictionRecord(id, ml.ModelTypeRandomForest, row, float64(i)+0.5, base.Add(time.Duration(i)*time.Minute))
		if err := store.SavePrediction(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	records, err := store.RecentPredictions(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "c" || records[1].ID != "b" {
		t.Fatalf("expected newest first, got %s, %s", records[0].ID, records[1].ID)
	}
	if diff := cmp.Diff(row, records[0].Row()); diff != "" {
		t.Fatalf("stored row mismatch (-want +got):\n%s", diff)
	}
	if !records[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected created_at: %v", records[0].CreatedAt)
	}
}

func TestSavePredictionDuplicateID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	row, _ := ml.NewFeatureRow(ml.DefaultFormInput())
	rec := NewPredictionRecord("dup", ml.ModelTypeDecisionTree, row, 1, time.Now())
	if err := store.SavePrediction(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SavePrediction(ctx, rec); err == nil {
		t.Fatal("expected primary key violation")
	}
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, r2 := range []float64{0.61, 0.74} {
		_, err := store.SaveTrainingLog(ctx, TrainingLog{
			ModelType:  ml.ModelTypeRandomForest,
			ModelPath:  "models/random_forest_model.json",
			Dataset:    "data/crop_yield.csv",
			MAE:        0.4,
			RMSE:       0.6,
			R2:         r2,
			DataPoints: 1000,
			TrainedAt:  time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("save log: %v", err)
		}
	}
	latest, err := store.LatestTrainingLog(ctx, "models/random_forest_model.json")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.R2 != 0.74 {
		t.Fatalf("expected latest run, got R2=%v", latest.R2)
	}
}
