package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFeatureNamesOrder(t *testing.T) {
	want := []string{
		"elevation", "latitude", "longitude", "slope", "rainfall",
		"min_temperature_c", "max_temperature_c", "ave_temps",
		"soil_type", "ph", "crop_type",
	}
	if diff := cmp.Diff(want, FeatureNames()); diff != "" {
		t.Fatalf("FeatureNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFeatureRowBuildsElevenColumnTable(t *testing.T) {
	in := DefaultFormInput()
	in.SoilType = "Sandy"
	in.CropType = "Rice"

	row, err := NewFeatureRow(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := row.Table()
	if diff := cmp.Diff(FeatureNames(), table.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]float64{{500, 9.678, 45.123, 15, 300, 10, 35, 22, 3, 6.5, 5}}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFeatureRowRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FormInput)
		wantErr error
	}{
		{"latitude too large", func(in *FormInput) { in.Latitude = 91 }, ErrOutOfRange},
		{"negative rainfall", func(in *FormInput) { in.Rainfall = -1 }, ErrOutOfRange},
		{"ph above 14", func(in *FormInput) { in.PH = 14.5 }, ErrOutOfRange},
		{"nan elevation", func(in *FormInput) { in.Elevation = math.NaN() }, ErrOutOfRange},
		{"unknown soil", func(in *FormInput) { in.SoilType = "Chalk" }, ErrUnknownSoilType},
		{"unknown crop", func(in *FormInput) { in.CropType = "Sorghum" }, ErrUnknownCropType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := DefaultFormInput()
			tt.mutate(&in)
			if _, err := NewFeatureRow(in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewFeatureRow() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetNumeric(t *testing.T) {
	var in FormInput
	if err := in.SetNumeric("ave_temps", 18); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.AveTemps != 18 {
		t.Fatalf("expected ave_temps 18, got %v", in.AveTemps)
	}
	if err := in.SetNumeric("soil_type", 1); err == nil {
		t.Fatal("expected error for non-numeric field")
	}
}
