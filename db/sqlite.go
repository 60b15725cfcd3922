package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"cropyield/ml"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store persists predictions and training runs in SQLite.
type Store struct {
	db *sqlx.DB
}

// PredictionRecord is one stored prediction with the feature row it was
// made from.
type PredictionRecord struct {
	ID              string    `db:"id" json:"id"`
	ModelType       string    `db:"model_type" json:"model_type"`
	Elevation       float64   `db:"elevation" json:"elevation"`
	Latitude        float64   `db:"latitude" json:"latitude"`
	Longitude       float64   `db:"longitude" json:"longitude"`
	Slope           float64   `db:"slope" json:"slope"`
	Rainfall        float64   `db:"rainfall" json:"rainfall"`
	MinTemperatureC float64   `db:"min_temperature_c" json:"min_temperature_c"`
	MaxTemperatureC float64   `db:"max_temperature_c" json:"max_temperature_c"`
	AveTemps        float64   `db:"ave_temps" json:"ave_temps"`
	SoilType        int       `db:"soil_type" json:"soil_type"`
	PH              float64   `db:"ph" json:"ph"`
	CropType        int       `db:"crop_type" json:"crop_type"`
	Yield           float64   `db:"yield" json:"yield"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

func NewPredictionRecord(id, modelType string, row ml.FeatureRow, yield float64, at time.Time) PredictionRecord {
	return PredictionRecord{
		ID:              id,
		ModelType:       modelType,
		Elevation:       row.Elevation,
		Latitude:        row.Latitude,
		Longitude:       row.Longitude,
		Slope:           row.Slope,
		Rainfall:        row.Rainfall,
		MinTemperatureC: row.MinTemperatureC,
		MaxTemperatureC: row.MaxTemperatureC,
		AveTemps:        row.AveTemps,
		SoilType:        row.SoilType,
		PH:              row.PH,
		CropType:        row.CropType,
		Yield:           yield,
		CreatedAt:       at.UTC(),
	}
}

// Row returns the feature row the prediction was made from.
func (r PredictionRecord) Row() ml.FeatureRow {
	return ml.FeatureRow{
		Elevation:       r.Elevation,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		Slope:           r.Slope,
		Rainfall:        r.Rainfall,
		MinTemperatureC: r.MinTemperatureC,
		MaxTemperatureC: r.MaxTemperatureC,
		AveTemps:        r.AveTemps,
		SoilType:        r.SoilType,
		PH:              r.PH,
		CropType:        r.CropType,
	}
}

type TrainingLog struct {
	ID         int64     `db:"id" json:"id"`
	ModelType  string    `db:"model_type" json:"model_type"`
	ModelPath  string    `db:"model_path" json:"model_path"`
	Dataset    string    `db:"dataset" json:"dataset"`
	MAE        float64   `db:"mae" json:"mae"`
	RMSE       float64   `db:"rmse" json:"rmse"`
	R2         float64   `db:"r2" json:"r2"`
	DataPoints int       `db:"data_points" json:"data_points"`
	TrainedAt  time.Time `db:"trained_at" json:"trained_at"`
}

// Open connects to the SQLite database at path and applies pending
// migrations. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}
	// A single connection keeps in-memory databases alive and serialises
	// writers.
	conn.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting dialect for migrations: %w", err)
	}
	if err := goose.Up(conn.DB, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

func (s *Store) SavePrediction(ctx context.Context, rec PredictionRecord) error {
	const query = `
    INSERT INTO predictions (
        id, model_type, elevation, latitude, longitude, slope, rainfall,
        min_temperature_c, max_temperature_c, ave_temps, soil_type, ph,
        crop_type, yield, created_at
    ) VALUES (
        :id, :model_type, :elevation, :latitude, :longitude, :slope, :rainfall,
        :min_temperature_c, :max_temperature_c, :ave_temps, :soil_type, :ph,
        :crop_type, :yield, :created_at
    )`
	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("saving prediction %s: %w", rec.ID, err)
	}
	return nil
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	records := []PredictionRecord{}
	const query = `SELECT * FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	return records, nil
}

func (s *Store) SaveTrainingLog(ctx context.Context, entry TrainingLog) (int64, error) {
	const query = `
    INSERT INTO training_log (model_type, model_path, dataset, mae, rmse, r2, data_points, trained_at)
    VALUES (:model_type, :model_path, :dataset, :mae, :rmse, :r2, :data_points, :trained_at)`
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now()
	}
	entry.TrainedAt = entry.TrainedAt.UTC()
	res, err := s.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return 0, fmt.Errorf("saving training log: %w", err)
	}
	return res.LastInsertId()
}

// LatestTrainingLog returns the most recent training run for a model path.
func (s *Store) LatestTrainingLog(ctx context.Context, modelPath string) (TrainingLog, error) {
	var entry TrainingLog
	const query = `SELECT * FROM training_log WHERE model_path = ? ORDER BY trained_at DESC, id DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &entry, query, modelPath); err != nil {
		return TrainingLog{}, fmt.Errorf("querying training log: %w", err)
	}
	return entry, nil
}
