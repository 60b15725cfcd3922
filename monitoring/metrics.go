package monitoring

import (
	"fmt"
	"sync"
	"time"
)

const maxMetricHistory = 1000

type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

const (
	MetricPredictions       = "predictions_total"
	MetricPredictionErrors  = "prediction_errors_total"
	MetricPredictionLatency = "prediction_latency_ms"
	MetricPredictedYield    = "predicted_yield"
)

type Metric struct {
	Name      string     `json:"name"`
	Type      MetricType `json:"type"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

type MetricSummary struct {
	Count  int       `json:"count"`
	Latest float64   `json:"latest"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Avg    float64   `json:"avg"`
	Sum    float64   `json:"sum"`
	At     time.Time `json:"timestamp"`
}

// MetricsCollector keeps a bounded history of samples per metric name.
type MetricsCollector struct {
	metrics     map[string][]Metric
	totals      map[string]float64
	metricsLock sync.RWMutex

	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]Metric),
		totals:    make(map[string]float64),
		startTime: time.Now(),
	}
}

func (mc *MetricsCollector) RecordMetric(name string, metricType MetricType, value float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	history := append(mc.metrics[name], Metric{
		Name:      name,
		Type:      metricType,
		Value:     value,
		Timestamp: time.Now(),
	})
	if len(history) > maxMetricHistory {
		history = history[len(history)-maxMetricHistory:]
	}
	mc.metrics[name] = history
	if metricType == MetricTypeCounter {
		mc.totals[name] += value
	}
}

// Total returns the all-time sum of a counter, unaffected by the history
// bound.
func (mc *MetricsCollector) Total(name string) float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	return mc.totals[name]
}

// RecordPrediction records the outcome of one prediction request.
func (mc *MetricsCollector) RecordPrediction(latency time.Duration, yields []float64, err error) {
	if err != nil {
		mc.RecordMetric(MetricPredictionErrors, MetricTypeCounter, 1)
		return
	}
	mc.RecordMetric(MetricPredictions, MetricTypeCounter, 1)
	mc.RecordMetric(MetricPredictionLatency, MetricTypeGauge, float64(latency.Microseconds())/1000)
	for _, y := range yields {
		mc.RecordMetric(MetricPredictedYield, MetricTypeGauge, y)
	}
}

func (mc *MetricsCollector) GetMetricSummary(name string) (MetricSummary, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	history, ok := mc.metrics[name]
	if !ok || len(history) == 0 {
		return MetricSummary{}, fmt.Errorf("metric %s not found", name)
	}
	summary := MetricSummary{
		Count:  len(history),
		Latest: history[len(history)-1].Value,
		Min:    history[0].Value,
		Max:    history[0].Value,
		At:     history[len(history)-1].Timestamp,
	}
	for _, m := range history {
		summary.Sum += m.Value
		if m.Value < summary.Min {
			summary.Min = m.Value
		}
		if m.Value > summary.Max {
			summary.Max = m.Value
		}
	}
	summary.Avg = summary.Sum / float64(len(history))
	return summary, nil
}

// Snapshot summarises every recorded metric.
func (mc *MetricsCollector) Snapshot() map[string]any {
	mc.metricsLock.RLock()
	names := make([]string, 0, len(mc.metrics))
	for name := range mc.metrics {
		names = append(names, name)
	}

	totals := make(map[string]float64, len(mc.totals))
	for name, v := range mc.totals {
		totals[name] = v
	}
	mc.metricsLock.RUnlock()

	out := map[string]any{
		"uptime_seconds": time.Since(mc.startTime).Seconds(),
		"totals":         totals,
	}
	for _, name := range names {
		if summary, err := mc.GetMetricSummary(name); err == nil {
			out[name] = summary
		}
	}
	return out
}
