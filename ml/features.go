package ml

import (
	"errors"
	"fmt"
	"math"
)

var ErrOutOfRange = errors.New("value out of range")

// FormInput is what the user submits before category codes are resolved.
type FormInput struct {
	Elevation       float64 `json:"elevation"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Slope           float64 `json:"slope"`
	Rainfall        float64 `json:"rainfall"`
	MinTemperatureC float64 `json:"min_temperature_c"`
	MaxTemperatureC float64 `json:"max_temperature_c"`
	AveTemps        float64 `json:"ave_temps"`
	SoilType        string  `json:"soil_type"`
	PH              float64 `json:"ph"`
	CropType        string  `json:"crop_type"`
}

// FeatureRow is the single-row feature table the model consumes.
type FeatureRow struct {
	Elevation       float64 `json:"elevation"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Slope           float64 `json:"slope"`
	Rainfall        float64 `json:"rainfall"`
	MinTemperatureC float64 `json:"min_temperature_c"`
	MaxTemperatureC float64 `json:"max_temperature_c"`
	AveTemps        float64 `json:"ave_temps"`
	SoilType        int     `json:"soil_type"`
	PH              float64 `json:"ph"`
	CropType        int     `json:"crop_type"`
}

// FeatureTable is a column-ordered view of one or more feature rows.
type FeatureTable struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// FieldBounds describes a numeric form field.
type FieldBounds struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
}

type numericField struct {
	FieldBounds
	get func(*FormInput) float64
	set func(*FormInput, float64)
}

var numericFields = []numericField{
	{
		FieldBounds{"elevation", "Elevation", 0, 10000, 500, 1},
		func(in *FormInput) float64 { return in.Elevation },
		func(in *FormInput, v float64) { in.Elevation = v },
	},
	{
		FieldBounds{"latitude", "Latitude", -90, 90, 9.678, 0.001},
		func(in *FormInput) float64 { return in.Latitude },
		func(in *FormInput, v float64) { in.Latitude = v },
	},
	{
		FieldBounds{"longitude", "Longitude", -180, 180, 45.123, 0.001},
		func(in *FormInput) float64 { return in.Longitude },
		func(in *FormInput, v float64) { in.Longitude = v },
	},
	{
		FieldBounds{"slope", "Slope", 0, 90, 15, 1},
		func(in *FormInput) float64 { return in.Slope },
		func(in *FormInput, v float64) { in.Slope = v },
	},
	{
		FieldBounds{"rainfall", "Rainfall", 0, 5000, 300, 1},
		func(in *FormInput) float64 { return in.Rainfall },
		func(in *FormInput, v float64) { in.Rainfall = v },
	},
	{
		FieldBounds{"min_temperature_c", "Min Temperature (°C)", -50, 50, 10, 1},
		func(in *FormInput) float64 { return in.MinTemperatureC },
		func(in *FormInput, v float64) { in.MinTemperatureC = v },
	},
	{
		FieldBounds{"max_temperature_c", "Max Temperature (°C)", -50, 50, 35, 1},
		func(in *FormInput) float64 { return in.MaxTemperatureC },
		func(in *FormInput, v float64) { in.MaxTemperatureC = v },
	},
	{
		FieldBounds{"ave_temps", "Average Temperature (°C)", -50, 50, 22, 1},
		func(in *FormInput) float64 { return in.AveTemps },
		func(in *FormInput, v float64) { in.AveTemps = v },
	},
	{
		FieldBounds{"ph", "pH", 0, 14, 6.5, 0.1},
		func(in *FormInput) float64 { return in.PH },
		func(in *FormInput, v float64) { in.PH = v },
	},
}

// NumericFields returns the numeric form fields in display order.
func NumericFields() []FieldBounds {
	fields := make([]FieldBounds, len(numericFields))
	for i, f := range numericFields {
		fields[i] = f.FieldBounds
	}
	return fields
}

// DefaultFormInput returns the values the form is pre-filled with.
func DefaultFormInput() FormInput {
	in := FormInput{
		SoilType: string(SoilLoamy),
		CropType: string(CropBanana),
	}
	for _, f := range numericFields {
		f.set(&in, f.Default)
	}
	return in
}

// Numeric returns a numeric field by its column name.
func (in FormInput) Numeric(name string) (float64, bool) {
	for _, f := range numericFields {
		if f.Name == name {
			return f.get(&in), true
		}
	}
	return 0, false
}

// SetNumeric assigns a numeric field by its column name.
func (in *FormInput) SetNumeric(name string, value float64) error {
	for _, f := range numericFields {
		if f.Name == name {
			f.set(in, value)
			return nil
		}
	}
	return fmt.Errorf("unknown field %q", name)
}

// NewFeatureRow validates the input and resolves the category codes.
func NewFeatureRow(in FormInput) (FeatureRow, error) {
	for _, f := range numericFields {
		v := f.get(&in)
		if math.IsNaN(v) || v < f.Min || v > f.Max {
			return FeatureRow{}, fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrOutOfRange, f.Name, v, f.Min, f.Max)
		}
	}
	soil, err := SoilCode(in.SoilType)
	if err != nil {
		return FeatureRow{}, err
	}
	crop, err := CropCode(in.CropType)
	if err != nil {
		return FeatureRow{}, err
	}
	return FeatureRow{
		Elevation:       in.Elevation,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Slope:           in.Slope,
		Rainfall:        in.Rainfall,
		MinTemperatureC: in.MinTemperatureC,
		MaxTemperatureC: in.MaxTemperatureC,
		AveTemps:        in.AveTemps,
		SoilType:        soil,
		PH:              in.PH,
		CropType:        crop,
	}, nil
}

// FeatureNames returns the column order the model expects.
func FeatureNames() []string {
	return []string{
		"elevation",
		"latitude",
		"longitude",
		"slope",
		"rainfall",
		"min_temperature_c",
		"max_temperature_c",
		"ave_temps",
		"soil_type",
		"ph",
		"crop_type",
	}
}

// Vector returns the row's values in FeatureNames order.
func (r FeatureRow) Vector() []float64 {
	return []float64{
		r.Elevation,
		r.Latitude,
		r.Longitude,
		r.Slope,
		r.Rainfall,
		r.MinTemperatureC,
		r.MaxTemperatureC,
		r.AveTemps,
		float64(r.SoilType),
		r.PH,
		float64(r.CropType),
	}
}

// Table wraps the row in a one-row FeatureTable.
func (r FeatureRow) Table() FeatureTable {
	return NewFeatureTable(r)
}

func NewFeatureTable(rows ...FeatureRow) FeatureTable {
	table := FeatureTable{
		Columns: FeatureNames(),
		Rows:    make([][]float64, len(rows)),
	}
	for i, row := range rows {
		table.Rows[i] = row.Vector()
	}
	return table
}
