package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nameReplacer = strings.NewReplacer(" ", "_", "(", "", ")", "")

// NormalizeName trims and lowercases s, turns spaces into underscores and
// drops parentheses: "Min Temperature (C)" becomes "min_temperature_c".
func NormalizeName(s string) string {
	// Casers are stateful, so each call gets its own.
	return nameReplacer.Replace(cases.Lower(language.Und).String(strings.TrimSpace(s)))
}

// StandardizeColumnNames applies NormalizeName to every column.
func (t *Table) StandardizeColumnNames() {
	for i, c := range t.Columns {
		t.Columns[i] = NormalizeName(c)
	}
}

// NormalizeObservations applies NormalizeName to the values of the given
// columns, skipping columns that are not object columns. It returns the
// number of cells that changed.
func (t *Table) NormalizeObservations(columns ...string) (int, error) {
	changed := 0
	for _, name := range columns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return changed, fmt.Errorf("column %q not found", name)
		}
		if !t.isObject(idx) {
			continue
		}
		for _, row := range t.Rows {
			if IsMissing(row[idx]) {
				continue
			}
			normalized := NormalizeName(row[idx])
			if normalized != row[idx] {
				row[idx] = normalized
				changed++
			}
		}
	}
	return changed, nil
}

// RemoveDuplicates drops rows identical to an earlier row and returns how
// many were dropped.
func (t *Table) RemoveDuplicates() int {
	seen := make(map[string]struct{}, len(t.Rows))
	keyOf := t.rowKeyer()
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		key := keyOf(row)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	dropped := len(t.Rows) - len(kept)
	t.Rows = kept
	return dropped
}

// DuplicateCount counts rows identical to an earlier row.
func (t *Table) DuplicateCount() int {
	seen := make(map[string]struct{}, len(t.Rows))
	keyOf := t.rowKeyer()
	count := 0
	for _, row := range t.Rows {
		key := keyOf(row)
		if _, ok := seen[key]; ok {
			count++
			continue
		}
		seen[key] = struct{}{}
	}
	return count
}

// MissingValues counts missing cells per column.
func (t *Table) MissingValues() map[string]int {
	counts := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		counts[name] = 0
		for _, row := range t.Rows {
			if IsMissing(row[i]) {
				counts[name]++
			}
		}
	}
	return counts
}

// Head returns the first n rows transposed: one row per column, the first
// cell holding the column name.
func (t *Table) Head(n int) *Table {
	if n <= 0 {
		n = 5
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	columns := make([]string, 0, n+1)
	columns = append(columns, "column")
	for i := 0; i < n; i++ {
		columns = append(columns, strconv.Itoa(i))
	}
	rows := make([][]string, len(t.Columns))
	for c, name := range t.Columns {
		row := make([]string, 0, n+1)
		row = append(row, name)
		for i := 0; i < n; i++ {
			row = append(row, t.Rows[i][c])
		}
		rows[c] = row
	}
	return &Table{Columns: columns, Rows: rows}
}

const missingKey = "\x00missing"

// rowKeyer returns a function building the duplicate-detection key of a row.
// Missing cells share one key and cells of numeric columns compare by value,
// so "" matches "NA" and "1" matches "1.0".
func (t *Table) rowKeyer() func(row []string) string {
	numeric := make([]bool, len(t.Columns))
	for i := range t.Columns {
		numeric[i] = !t.isObject(i)
	}
	return func(row []string) string {
		cells := make([]string, len(row))
		for i, cell := range row {
			switch {
			case IsMissing(cell):
				cells[i] = missingKey
			case numeric[i]:
				v, _ := strconv.ParseFloat(strings.TrimSpace(cell), 64)
				cells[i] = strconv.FormatFloat(v, 'g', -1, 64)
			default:
				cells[i] = cell
			}
		}
		return strings.Join(cells, "\x1f")
	}
}

// CleaningStep is one transformation applied by a DataCleaner.
type CleaningStep interface {
	Name() string
	// Apply mutates t and returns how many cells or rows it changed.
	Apply(t *Table) (int, error)
}

type StepResult struct {
	Step    string `json:"step"`
	Changed int    `json:"changed"`
}

// CleaningReport summarises a dataset, optionally after cleaning.
type CleaningReport struct {
	RowsBefore    int            `json:"rows_before"`
	Rows          int            `json:"rows"`
	Columns       []string       `json:"columns"`
	Steps         []StepResult   `json:"steps,omitempty"`
	DuplicateRows int            `json:"duplicate_rows"`
	MissingValues map[string]int `json:"missing_values"`
	ObjectColumns []string       `json:"object_columns"`
	CleanedAt     time.Time      `json:"cleaned_at"`
}

type CleaningStats struct {
	TablesCleaned int64     `json:"tables_cleaned"`
	RowsDropped   int64     `json:"rows_dropped"`
	LastClean     time.Time `json:"last_clean"`
}

// DataCleaner runs its steps in the order they were added.
type DataCleaner struct {
	steps  []CleaningStep
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner returns a cleaner running steps in order. Without steps it
// uses the defaults: standardise column names, normalise object values, drop
// duplicate rows.
func NewDataCleaner(logger *zap.Logger, steps ...CleaningStep) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(steps) == 0 {
		steps = []CleaningStep{StandardizeColumnsStep{}, NormalizeObservationsStep{}, DropDuplicatesStep{}}
	}
	cleaner := &DataCleaner{logger: logger.Named("cleaner")}
	for _, step := range steps {
		cleaner.AddStep(step)
	}
	return cleaner
}

func (dc *DataCleaner) AddStep(step CleaningStep) {
	dc.steps = append(dc.steps, step)
	dc.logger.Debug("Added cleaning step", zap.String("step", step.Name()))
}

func (dc *DataCleaner) Steps() []string {
	names := make([]string, len(dc.steps))
	for i, s := range dc.steps {
		names[i] = s.Name()
	}
	return names
}

// Clean applies every step to a copy of t.
func (dc *DataCleaner) Clean(t *Table) (*Table, CleaningReport, error) {
	cleaned := t.Clone()
	results := make([]StepResult, 0, len(dc.steps))
	for _, step := range dc.steps {
		changed, err := step.Apply(cleaned)
		if err != nil {
			return nil, CleaningReport{}, fmt.Errorf("cleaning step %s: %w", step.Name(), err)
		}
		results = append(results, StepResult{Step: step.Name(), Changed: changed})
		dc.logger.Debug("Cleaning step applied", zap.String("step", step.Name()), zap.Int("changed", changed))
	}

	report := Inspect(cleaned)
	report.RowsBefore = t.Len()
	report.Steps = results

	dc.statsLock.Lock()
	dc.stats.TablesCleaned++
	dc.stats.RowsDropped += int64(t.Len() - cleaned.Len())
	dc.stats.LastClean = report.CleanedAt
	dc.statsLock.Unlock()

	dc.logger.Info("Dataset cleaned",
		zap.Int("rows_before", report.RowsBefore),
		zap.Int("rows", report.Rows),
		zap.Strings("columns", report.Columns))
	return cleaned, report, nil
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()
	return dc.stats
}

// Inspect reports on t without modifying it.
func Inspect(t *Table) CleaningReport {
	return CleaningReport{
		RowsBefore:    t.Len(),
		Rows:          t.Len(),
		Columns:       append([]string(nil), t.Columns...),
		DuplicateRows: t.DuplicateCount(),
		MissingValues: t.MissingValues(),
		ObjectColumns: t.ObjectColumns(),
		CleanedAt:     time.Now(),
	}
}

type StandardizeColumnsStep struct{}

func (StandardizeColumnsStep) Name() string { return "standardize_columns" }

func (StandardizeColumnsStep) Apply(t *Table) (int, error) {
	changed := 0
	for _, c := range t.Columns {
		if NormalizeName(c) != c {
			changed++
		}
	}
	t.StandardizeColumnNames()
	return changed, nil
}

// NormalizeObservationsStep normalises the values of Columns, or of every
// object column when Columns is empty.
type NormalizeObservationsStep struct {
	Columns []string
}

func (NormalizeObservationsStep) Name() string { return "normalize_observations" }

func (s NormalizeObservationsStep) Apply(t *Table) (int, error) {
	columns := s.Columns
	if len(columns) == 0 {
		columns = t.ObjectColumns()
	}
	return t.NormalizeObservations(columns...)
}

type DropDuplicatesStep struct{}

func (DropDuplicatesStep) Name() string { return "drop_duplicates" }

func (DropDuplicatesStep) Apply(t *Table) (int, error) {
	return t.RemoveDuplicates(), nil
}

// MedianImputeStep fills missing cells of numeric columns with the column
// median.
type MedianImputeStep struct{}

func (MedianImputeStep) Name() string { return "median_impute" }

func (MedianImputeStep) Apply(t *Table) (int, error) {
	filled := 0
	for _, name := range t.NumericColumns() {
		values, err := t.NumericColumn(name)
		if err != nil {
			return filled, err
		}
		present := make([]float64, 0, len(values))
		for _, v := range values {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) == len(values) {
			continue
		}
		fill := strconv.FormatFloat(calculateMedian(present), 'f', -1, 64)
		idx := t.ColumnIndex(name)
		for _, row := range t.Rows {
			if IsMissing(row[idx]) {
				row[idx] = fill
				filled++
			}
		}
	}
	return filled, nil
}

func calculateMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
