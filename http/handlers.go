package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cropyield/db"
	"cropyield/ml"
	"cropyield/monitoring"
	"cropyield/pipeline"
)

//go:embed templates/*.html static/*
var assets embed.FS

const (
	noPredictionMessage = "Prediction could not be made. Please check the input data."
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	maxUploadMemory     = 32 << 20
	sniffLen            = 3072
)

// YieldPredictor 预测请求所需的模型接口
type YieldPredictor interface {
	ml.ModelProvider
	Type() string
	Path() string
	Loaded() bool
}

// PredictionStore 预测记录存储（可选）
type PredictionStore interface {
	SavePrediction(ctx context.Context, rec db.PredictionRecord) error
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
	LatestTrainingLog(ctx context.Context, modelPath string) (db.TrainingLog, error)
}

// Dependencies 处理器依赖，仅Predictor为必需
type Dependencies struct {
	Predictor YieldPredictor
	Store     PredictionStore
	Hub       *monitoring.WebSocketHub
	Metrics   *monitoring.MetricsCollector
	Cleaner   *pipeline.DataCleaner
	Logger    *zap.Logger
}

type handlers struct {
	deps   Dependencies
	page   *template.Template
	logger *zap.Logger
}

func newHandlers(deps Dependencies) *handlers {
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector()
	}
	if deps.Cleaner == nil {
		deps.Cleaner = pipeline.NewDataCleaner(deps.Logger)
	}
	return &handlers{
		deps:   deps,
		page:   template.Must(template.ParseFS(assets, "templates/index.html")),
		logger: deps.Logger.Named("handlers"),
	}
}

func (h *handlers) register(mux *http.ServeMux) {
	// 表单页面
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /predict", h.handleFormPredict)
	mux.Handle("GET /static/", http.FileServerFS(assets))

	// 预测API
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/options", h.handleOptions)
	mux.HandleFunc("GET /api/predictions", h.handlePredictions)
	mux.HandleFunc("GET /api/model", h.handleModelInfo)

	// 数据集API
	mux.HandleFunc("POST /api/datasets/inspect", h.handleInspectDataset)

	// 监控API
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/ws/predictions", h.handleWebSocket)
	mux.HandleFunc("GET /api/health", h.handleHealth)
}

// PredictionResult 预测结果，由JSON API返回并推送给WebSocket客户端
type PredictionResult struct {
	ID        string          `json:"id"`
	Yield     float64         `json:"yield"`
	ModelType string          `json:"model_type"`
	Features  ml.FeatureRow   `json:"features"`
	Table     ml.FeatureTable `json:"table"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *handlers) predict(ctx context.Context, in ml.FormInput) (PredictionResult, error) {
	row, err := ml.NewFeatureRow(in)
	if err != nil {
		return PredictionResult{}, err
	}

	start := time.Now()
	yields, err := h.deps.Predictor.PredictYield(ctx, []ml.FeatureRow{row})
	if err == nil && len(yields) == 0 {
		err = ml.ErrNoPrediction
	}
	h.deps.Metrics.RecordPrediction(time.Since(start), yields, err)
	if err != nil {
		h.logger.Warn("Prediction failed",
			zap.String("request_id", GetRequestID(ctx)),
			zap.Any("features", row),
			zap.Error(err))
		return PredictionResult{}, err
	}

	result := PredictionResult{
		ID:        uuid.NewString(),
		Yield:     yields[0],
		ModelType: h.deps.Predictor.Type(),
		Features:  row,
		Table:     row.Table(),
		CreatedAt: time.Now().UTC(),
	}
	h.logger.Info("Prediction made",
		zap.String("request_id", GetRequestID(ctx)),
		zap.String("prediction_id", result.ID),
		zap.Strings("columns", result.Table.Columns),
		zap.Float64s("row", result.Table.Rows[0]),
		zap.Float64("yield", result.Yield))

	if h.deps.Store != nil {
		rec := db.NewPredictionRecord(result.ID, result.ModelType, row, result.Yield, result.CreatedAt)
		if err := h.deps.Store.SavePrediction(ctx, rec); err != nil {
			h.logger.Warn("Failed to store prediction", zap.String("prediction_id", result.ID), zap.Error(err))
		}
	}
	if h.deps.Hub != nil {
		if err := h.deps.Hub.Publish(monitoring.PredictionMade, result); err != nil {
			h.logger.Warn("Failed to publish prediction", zap.String("prediction_id", result.ID), zap.Error(err))
		}
	}
	return result, nil
}

// ============ 表单处理器 ============

type formField struct {
	ml.FieldBounds
	Value string
}

type selectOption struct {
	Name     string
	Selected bool
}

type pageData struct {
	Fields    []formField
	SoilTypes []selectOption
	CropTypes []selectOption
	Result    string
	Error     string
}

func newPageData(value func(name string) string, soil, crop string) pageData {
	data := pageData{}
	for _, f := range ml.NumericFields() {
		data.Fields = append(data.Fields, formField{FieldBounds: f, Value: value(f.Name)})
	}
	for _, s := range ml.SoilTypes() {
		data.SoilTypes = append(data.SoilTypes, selectOption{Name: string(s), Selected: strings.EqualFold(string(s), soil)})
	}
	for _, c := range ml.CropTypes() {
		data.CropTypes = append(data.CropTypes, selectOption{Name: string(c), Selected: strings.EqualFold(string(c), crop)})
	}
	return data
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	defaults := ml.DefaultFormInput()
	data := newPageData(func(name string) string {
		v, _ := defaults.Numeric(name)
		return strconv.FormatFloat(v, 'f', -1, 64)
	}, defaults.SoilType, defaults.CropType)
	h.render(w, data)
}

func (h *handlers) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	data := newPageData(func(name string) string {
		return r.PostForm.Get(name)
	}, r.PostForm.Get("soil_type"), r.PostForm.Get("crop_type"))

	in, err := parseFormInput(r)
	if err == nil {
		var result PredictionResult
		result, err = h.predict(r.Context(), in)
		if err == nil {
			data.Result = fmt.Sprintf("Predicted Crop Yield: %.4f", result.Yield)
		}
	}
	switch {
	case errors.Is(err, ml.ErrNoPrediction):
		data.Error = noPredictionMessage
	case err != nil:
		data.Error = "Error during prediction: " + err.Error()
	}
	h.render(w, data)
}

func parseFormInput(r *http.Request) (ml.FormInput, error) {
	in := ml.DefaultFormInput()
	for _, f := range ml.NumericFields() {
		raw := strings.TrimSpace(r.PostForm.Get(f.Name))
		if raw == "" {
			return in, fmt.Errorf("%s is required", f.Label)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, fmt.Errorf("%s: invalid number %q", f.Label, raw)
		}
		if err := in.SetNumeric(f.Name, v); err != nil {
			return in, err
		}
	}
	in.SoilType = r.PostForm.Get("soil_type")
	in.CropType = r.PostForm.Get("crop_type")
	return in, nil
}

func (h *handlers) render(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, data); err != nil {
		h.logger.Error("Failed to render page", zap.Error(err))
	}
}

// ============ 预测API ============

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	in := ml.DefaultFormInput()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.predict(r.Context(), in)
	if err != nil {
		writeError(w, predictionStatus(err), predictionMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func predictionStatus(err error) int {
	switch {
	case errors.Is(err, ml.ErrOutOfRange),
		errors.Is(err, ml.ErrUnknownSoilType),
		errors.Is(err, ml.ErrUnknownCropType):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func predictionMessage(err error) string {
	if errors.Is(err, ml.ErrNoPrediction) {
		return noPredictionMessage
	}
	return err.Error()
}

type categoryOption struct {
	Name string `json:"name"`
	Code int    `json:"code"`
}

func (h *handlers) handleOptions(w http.ResponseWriter, r *http.Request) {
	soils := make([]categoryOption, 0, len(ml.SoilTypes()))
	for _, s := range ml.SoilTypes() {
		soils = append(soils, categoryOption{Name: string(s), Code: s.Code()})
	}
	crops := make([]categoryOption, 0, len(ml.CropTypes()))
	for _, c := range ml.CropTypes() {
		crops = append(crops, categoryOption{Name: string(c), Code: c.Code()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"soil_types":    soils,
		"crop_types":    crops,
		"fields":        ml.NumericFields(),
		"defaults":      ml.DefaultFormInput(),
		"feature_names": ml.FeatureNames(),
	})
}

func (h *handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, maxHistoryLimit)
		}
	}

	records, err := h.deps.Store.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load predictions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": records,
		"count":       len(records),
		"limit":       limit,
	})
}

// ============ 数据集处理器 ============

func (h *handlers) handleInspectDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	head, err := io.ReadAll(io.LimitReader(file, sniffLen))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	mtype := mimetype.Detect(head)
	if !mtype.Is("text/csv") && !mtype.Is("text/plain") {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("expected a CSV file, got %s", mtype.String()))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rewind upload")
		return
	}

	table, err := pipeline.ParseCSV(file, r.FormValue("encoding"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report := pipeline.Inspect(table)
	if clean, _ := strconv.ParseBool(r.FormValue("clean")); clean {
		if _, report, err = h.deps.Cleaner.Clean(table); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	h.logger.Info("Dataset inspected",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("filename", header.Filename),
		zap.Int("rows", report.Rows))

	writeJSON(w, http.StatusOK, map[string]any{
		"filename":     header.Filename,
		"content_type": mtype.String(),
		"report":       report,
	})
}

// ============ 监控处理器 ============

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := h.deps.Metrics.Snapshot()
	snapshot["model_loaded"] = h.deps.Predictor.Loaded()
	if h.deps.Hub != nil {
		snapshot["websocket_clients"] = h.deps.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction feed is disabled")
		return
	}
	h.deps.Hub.HandleWebSocket(w, r)
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_type":   h.deps.Predictor.Type(),
		"model_loaded": h.deps.Predictor.Loaded(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
