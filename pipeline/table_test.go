package pipeline

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCSVEncodings(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		encoding string
		want     string
	}{
		{"utf-8", []byte("soil\nCafé\n"), "", "Café"},
		{"utf-8 bom", []byte("\xef\xbb\xbfsoil\nCafé\n"), "", "Café"},
		{"latin1", []byte("soil\nCaf\xe9\n"), "latin1", "Café"},
		{"windows-1252", []byte("soil\nCaf\xe9\n"), "windows-1252", "Café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseCSV(bytes.NewReader(tt.data), tt.encoding)
			if err != nil {
				t.Fatalf("ParseCSV: %v", err)
			}
			if table.Columns[0] != "soil" {
				t.Errorf("header = %q, want soil", table.Columns[0])
			}
			if got := table.Rows[0][0]; got != tt.want {
				t.Errorf("cell = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCSVErrors(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader(""), ""); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := ParseCSV(strings.NewReader("a,b\n1\n"), ""); err == nil {
		t.Error("expected error for ragged rows")
	}
	if _, err := ParseCSV(strings.NewReader("a\n1\n"), "klingon"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestReadWriteCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(in, []byte("a,b\n1,\"x, y\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	table, err := ReadCSV(in, "")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	out := filepath.Join(dir, "out.csv")
	if err := table.WriteCSV(out); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	again, err := ReadCSV(out, "")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff(table, again); diff != "" {
		t.Errorf("table changed on write (-want +got):\n%s", diff)
	}

	if _, err := ReadCSV(filepath.Join(dir, "absent.csv"), ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNumericColumns(t *testing.T) {
	table := mustParse(t, "name,rain,ph,empty\nmaize,300,NaN,\nrice,n/a,6.5,\n")

	if diff := cmp.Diff([]string{"rain", "ph"}, table.NumericColumns()); diff != "" {
		t.Errorf("numeric columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"name"}, table.ObjectColumns()); diff != "" {
		t.Errorf("object columns mismatch (-want +got):\n%s", diff)
	}

	rain, err := table.NumericColumn("rain")
	if err != nil {
		t.Fatalf("NumericColumn: %v", err)
	}
	if rain[0] != 300 || !math.IsNaN(rain[1]) {
		t.Errorf("rain = %v", rain)
	}
	if _, err := table.NumericColumn("name"); err == nil {
		t.Error("expected parse error for object column")
	}
	if _, err := table.NumericColumn("absent"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestRemoveDuplicatesKeepsFirst(t *testing.T) {
	table := mustParse(t, "a,b\n1,x\n2,y\n1,x\n1,z\n2,y\n")
	if dropped := table.RemoveDuplicates(); dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	want := [][]string{{"1", "x"}, {"2", "y"}, {"1", "z"}}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicatesCompareCanonicalCells(t *testing.T) {
	table := mustParse(t, "a,b,c\n1,,x\n1,NA,x\n1.0,2,x\n1,2.00,x\n1,2,X\n")
	if got := table.DuplicateCount(); got != 2 {
		t.Errorf("DuplicateCount() = %d, want 2", got)
	}
	if dropped := table.RemoveDuplicates(); dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	want := [][]string{{"1", "", "x"}, {"1.0", "2", "x"}, {"1", "2", "X"}}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestIsMissing(t *testing.T) {
	for _, cell := range []string{"", " ", "NA", "n/a", "NaN", "null", "None", "#N/A"} {
		if !IsMissing(cell) {
			t.Errorf("IsMissing(%q) = false", cell)
		}
	}
	for _, cell := range []string{"0", "maize", "-"} {
		if IsMissing(cell) {
			t.Errorf("IsMissing(%q) = true", cell)
		}
	}
}
