package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// missingMarkers are the cell values treated as missing, matching what
// common dataframe readers recognise by default.
var missingMarkers = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"-nan": {},
	"null": {},
	"none": {},
	"#n/a": {},
	"<na>": {},
}

// Table is an in-memory CSV dataset. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns []string, rows [][]string) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// ReadCSV loads a CSV file whose first record is the header. encoding names
// the source character set ("" means UTF-8).
func ReadCSV(path, encoding string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ParseCSV(f, encoding)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

func ParseCSV(r io.Reader, encoding string) (*Table, error) {
	decoded, err := decodingReader(r, encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty CSV: missing header")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV records: %w", err)
	}
	return NewTable(header, records)
}

func decodingReader(r io.Reader, name string) (io.Reader, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	// A byte order mark overrides the declared encoding.
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

func (t *Table) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return err
	}
	return writer.Error()
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) Clone() *Table {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = append([]string(nil), row...)
	}
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

// ColumnIndex returns the position of a column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// NumericColumn parses a column as float64. Missing cells become NaN; any
// other unparsable cell is an error.
func (t *Table) NumericColumn(name string) ([]float64, error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(cells))
	for i, cell := range cells {
		if IsMissing(cell) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		values[i] = v
	}
	return values, nil
}

// NumericColumns returns the columns that are not object columns and hold at
// least one value.
func (t *Table) NumericColumns() []string {
	var columns []string
	for i, name := range t.Columns {
		if t.isNumeric(i) {
			columns = append(columns, name)
		}
	}
	return columns
}

// ObjectColumns returns the columns holding at least one non-numeric value.
func (t *Table) ObjectColumns() []string {
	var columns []string
	for i, name := range t.Columns {
		if t.isObject(i) {
			columns = append(columns, name)
		}
	}
	return columns
}

func (t *Table) isObject(idx int) bool {
	for _, row := range t.Rows {
		cell := row[idx]
		if IsMissing(cell) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
			return true
		}
	}
	return false
}

func (t *Table) isNumeric(idx int) bool {
	seen := false
	for _, row := range t.Rows {
		cell := row[idx]
		if IsMissing(cell) {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// IsMissing reports whether a cell counts as a missing value.
func IsMissing(cell string) bool {
	_, ok := missingMarkers[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}
