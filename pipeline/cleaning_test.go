package pipeline

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const rawCSV = `Crop Type, Soil Type ,Rainfall (mm),Yield
Maize,Sandy Loam,300,1.5
Maize,Sandy Loam,300,1.5
 Rice ,Clay,,2.5
Tea,Volcanic,1200,NA
`

func mustParse(t *testing.T, data string) *Table {
	t.Helper()
	table, err := ParseCSV(strings.NewReader(data), "")
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	return table
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Min Temperature (C)", "min_temperature_c"},
		{"  Soil Type ", "soil_type"},
		{"pH", "ph"},
		{"Sandy Loam", "sandy_loam"},
		{"already_clean", "already_clean"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewDataCleaner(t *testing.T) {
	cleaner := NewDataCleaner(nil)
	if cleaner == nil {
		t.Fatal("NewDataCleaner returned nil")
	}

	want := []string{"standardize_columns", "normalize_observations", "drop_duplicates"}
	if diff := cmp.Diff(want, cleaner.Steps()); diff != "" {
		t.Errorf("default steps mismatch (-want +got):\n%s", diff)
	}

	custom := NewDataCleaner(nil, DropDuplicatesStep{})
	if diff := cmp.Diff([]string{"drop_duplicates"}, custom.Steps()); diff != "" {
		t.Errorf("custom steps mismatch (-want +got):\n%s", diff)
	}
}

func TestDataCleaner_Clean(t *testing.T) {
	table := mustParse(t, rawCSV)
	cleaner := NewDataCleaner(nil)

	cleaned, report, err := cleaner.Clean(table)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	wantColumns := []string{"crop_type", "soil_type", "rainfall_mm", "yield"}
	if diff := cmp.Diff(wantColumns, cleaned.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	wantRows := [][]string{
		{"maize", "sandy_loam", "300", "1.5"},
		{"rice", "clay", "", "2.5"},
		{"tea", "volcanic", "1200", "NA"},
	}
	if diff := cmp.Diff(wantRows, cleaned.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if report.RowsBefore != 4 || report.Rows != 3 {
		t.Errorf("report rows = %d -> %d, want 4 -> 3", report.RowsBefore, report.Rows)
	}
	wantSteps := []StepResult{
		{Step: "standardize_columns", Changed: 4},
		{Step: "normalize_observations", Changed: 8},
		{Step: "drop_duplicates", Changed: 1},
	}
	if diff := cmp.Diff(wantSteps, report.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if report.MissingValues["rainfall_mm"] != 1 || report.MissingValues["yield"] != 1 {
		t.Errorf("unexpected missing values: %v", report.MissingValues)
	}

	// The input table is left untouched.
	if table.Columns[0] != "Crop Type" || table.Len() != 4 {
		t.Error("Clean modified its input")
	}

	stats := cleaner.GetStats()
	if stats.TablesCleaned != 1 || stats.RowsDropped != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDataCleaner_CleanUnknownColumn(t *testing.T) {
	cleaner := NewDataCleaner(nil, NormalizeObservationsStep{Columns: []string{"missing"}})
	if _, _, err := cleaner.Clean(mustParse(t, rawCSV)); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestNormalizeObservationsSkipsNumericColumns(t *testing.T) {
	table := mustParse(t, "name,value\nA B,1.50\n")
	changed, err := table.NormalizeObservations("name", "value")
	if err != nil {
		t.Fatalf("NormalizeObservations: %v", err)
	}
	if changed != 1 {
		t.Errorf("changed = %d, want 1", changed)
	}
	if diff := cmp.Diff([]string{"a_b", "1.50"}, table.Rows[0]); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestDataCleaner_FillMissing(t *testing.T) {
	table := mustParse(t, "a,b\n1,x\n,y\n3,z\n10,\n")
	changed, err := MedianImputeStep{}.Apply(table)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if changed != 1 {
		t.Errorf("filled %d cells, want 1", changed)
	}
	if got := table.Rows[1][0]; got != "3" {
		t.Errorf("filled value = %q, want median 3", got)
	}
	// Object columns are left alone.
	if got := table.Rows[3][1]; got != "" {
		t.Errorf("object cell filled with %q", got)
	}
}

func TestCalculateMedian(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{nil, 0},
		{[]float64{5}, 5},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		if got := calculateMedian(tt.values); got != tt.want {
			t.Errorf("calculateMedian(%v) = %v, want %v", tt.values, got, tt.want)
		}
	}
}

func TestHead(t *testing.T) {
	head := mustParse(t, rawCSV).Head(2)
	want := &Table{
		Columns: []string{"column", "0", "1"},
		Rows: [][]string{
			{"Crop Type", "Maize", "Maize"},
			{"Soil Type ", "Sandy Loam", "Sandy Loam"},
			{"Rainfall (mm)", "300", "300"},
			{"Yield", "1.5", "1.5"},
		},
	}
	if diff := cmp.Diff(want, head); diff != "" {
		t.Errorf("head mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect(t *testing.T) {
	report := Inspect(mustParse(t, rawCSV))
	if report.DuplicateRows != 1 {
		t.Errorf("duplicates = %d, want 1", report.DuplicateRows)
	}
	if diff := cmp.Diff([]string{"Crop Type", "Soil Type "}, report.ObjectColumns); diff != "" {
		t.Errorf("object columns mismatch (-want +got):\n%s", diff)
	}
}
