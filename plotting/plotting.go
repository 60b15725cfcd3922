// Package plotting renders exploratory charts of a dataset to image files.
// The output format follows the file extension (png, svg, pdf, ...).
package plotting

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"cropyield/pipeline"
)

const (
	defaultBins  = 30
	panelSize    = 4 * vg.Inch
	heatmapTitle    = "Heatmap of the correlation matrix"
	histogramsTitle = "Histograms of all variables in the dataset"
)

type Plotter struct {
	table *pipeline.Table
}

func New(table *pipeline.Table) *Plotter {
	return &Plotter{table: table}
}

// Histograms draws one histogram per numeric column in a square-ish grid.
func (p *Plotter) Histograms(path string, bins int) error {
	if bins <= 0 {
		bins = defaultBins
	}
	columns := p.table.NumericColumns()
	if len(columns) == 0 {
		return errors.New("no numeric columns to plot")
	}

	panels := make([]*plot.Plot, 0, len(columns))
	for _, name := range columns {
		values, err := p.finiteValues(name)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			continue
		}
		h, err := plotter.NewHist(values, bins)
		if err != nil {
			return fmt.Errorf("histogram %s: %w", name, err)
		}
		pl := plot.New()
		pl.Title.Text = name
		pl.Add(h)
		panels = append(panels, pl)
	}
	return saveGrid(path, histogramsTitle, panels)
}

// Heatmap draws the annotated Pearson correlation matrix of the numeric
// columns.
func (p *Plotter) Heatmap(path string) error {
	columns := p.table.NumericColumns()
	if len(columns) < 2 {
		return errors.New("heatmap needs at least two numeric columns")
	}
	corr, err := Correlation(p.table, columns)
	if err != nil {
		return err
	}

	grid := correlationGrid(corr)
	hm := plotter.NewHeatMap(grid, correlationColors().Palette(255))
	hm.Min, hm.Max = -1, 1

	labels := plotter.XYLabels{}
	for r := range corr {
		for c := range corr[r] {
			labels.XYs = append(labels.XYs, plotter.XY{X: float64(c), Y: float64(r)})
			labels.Labels = append(labels.Labels, fmt.Sprintf("%.2f", corr[r][c]))
		}
	}
	annotations, err := plotter.NewLabels(labels)
	if err != nil {
		return err
	}

	pl := plot.New()
	pl.Title.Text = heatmapTitle
	pl.Add(hm, annotations)
	pl.NominalX(columns...)
	pl.NominalY(columns...)

	size := vg.Length(len(columns)) * vg.Inch
	if size < panelSize {
		size = panelSize
	}
	return savePlot(pl, path, size*1.2, size)
}

// Boxplots draws one box per numeric column.
func (p *Plotter) Boxplots(path string) error {
	columns := p.table.NumericColumns()
	if len(columns) == 0 {
		return errors.New("no numeric columns to plot")
	}
	pl := plot.New()
	pl.Title.Text = "Boxplots of numeric variables"
	names := make([]string, 0, len(columns))
	for _, name := range columns {
		values, err := p.finiteValues(name)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(len(names)), values)
		if err != nil {
			return fmt.Errorf("boxplot %s: %w", name, err)
		}
		pl.Add(box)
		names = append(names, name)
	}
	pl.NominalX(names...)
	return savePlot(pl, path, vg.Length(len(names)+1)*vg.Inch, panelSize)
}

// Bar draws the mean of value for each distinct category.
func (p *Plotter) Bar(path, category, value string) error {
	categories, means, err := GroupMeans(p.table, category, value)
	if err != nil {
		return err
	}
	bars, err := plotter.NewBarChart(plotter.Values(means), vg.Points(20))
	if err != nil {
		return err
	}
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Mean %s by %s", value, category)
	pl.Y.Label.Text = value
	pl.Add(bars)
	pl.NominalX(categories...)
	return savePlot(pl, path, vg.Length(len(categories)+2)*vg.Inch/2+panelSize, panelSize)
}

// Scatter draws y against x.
func (p *Plotter) Scatter(path, x, y string) error {
	points, err := p.pairs(x, y)
	if err != nil {
		return err
	}
	s, err := plotter.NewScatter(points)
	if err != nil {
		return err
	}
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s vs %s", y, x)
	pl.X.Label.Text = x
	pl.Y.Label.Text = y
	pl.Add(s)
	return savePlot(pl, path, panelSize*1.5, panelSize)
}

// PairPlot draws a grid of scatter plots for every pair of columns, with
// histograms on the diagonal. No columns means every numeric column.
func (p *Plotter) PairPlot(path string, columns []string) error {
	if len(columns) == 0 {
		columns = p.table.NumericColumns()
	}
	if len(columns) < 2 {
		return errors.New("pair plot needs at least two numeric columns")
	}
	n := len(columns)
	plots := make([][]*plot.Plot, n)
	for r, yName := range columns {
		plots[r] = make([]*plot.Plot, n)
		for c, xName := range columns {
			pl := plot.New()
			if r == n-1 {
				pl.X.Label.Text = xName
			}
			if c == 0 {
				pl.Y.Label.Text = yName
			}
			if r == c {
				values, err := p.finiteValues(xName)
				if err != nil {
					return err
				}
				if len(values) > 0 {
					h, err := plotter.NewHist(values, defaultBins/2)
					if err != nil {
						return err
					}
					pl.Add(h)
				}
			} else {
				points, err := p.pairs(xName, yName)
				if err != nil {
					return err
				}
				if len(points) > 0 {
					s, err := plotter.NewScatter(points)
					if err != nil {
						return err
					}
					s.GlyphStyle.Radius = vg.Points(1.5)
					pl.Add(s)
				}
			}
			plots[r][c] = pl
		}
	}
	size := vg.Length(n) * 2 * vg.Inch
	return saveTiles(path, "", plots, size, size)
}

func (p *Plotter) finiteValues(column string) (plotter.Values, error) {
	values, err := p.table.NumericColumn(column)
	if err != nil {
		return nil, err
	}
	out := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (p *Plotter) pairs(x, y string) (plotter.XYs, error) {
	xs, err := p.table.NumericColumn(x)
	if err != nil {
		return nil, err
	}
	ys, err := p.table.NumericColumn(y)
	if err != nil {
		return nil, err
	}
	points := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		points = append(points, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return points, nil
}

// Correlation returns the pairwise Pearson correlation of the given numeric
// columns, ignoring rows where either value is missing. Constant columns
// yield NaN.
func Correlation(table *pipeline.Table, columns []string) ([][]float64, error) {
	data := make([][]float64, len(columns))
	for i, name := range columns {
		values, err := table.NumericColumn(name)
		if err != nil {
			return nil, err
		}
		data[i] = values
	}
	corr := make([][]float64, len(columns))
	for i := range corr {
		corr[i] = make([]float64, len(columns))
	}
	for i := range columns {
		for j := i; j < len(columns); j++ {
			v := pearson(data[i], data[j])
			corr[i][j] = v
			corr[j][i] = v
		}
	}
	return corr, nil
}

// pearson correlates the rows where both values are present.
func pearson(a, b []float64) float64 {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(b))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[i])
	}
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// GroupMeans averages value per distinct category, categories sorted.
func GroupMeans(table *pipeline.Table, category, value string) ([]string, []float64, error) {
	keys, err := table.Column(category)
	if err != nil {
		return nil, nil, err
	}
	values, err := table.NumericColumn(value)
	if err != nil {
		return nil, nil, err
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, key := range keys {
		if pipeline.IsMissing(key) || math.IsNaN(values[i]) {
			continue
		}
		sums[key] += values[i]
		counts[key]++
	}
	if len(counts) == 0 {
		return nil, nil, fmt.Errorf("no values for %s by %s", value, category)
	}
	categories := make([]string, 0, len(counts))
	for key := range counts {
		categories = append(categories, key)
	}
	sort.Strings(categories)
	means := make([]float64, len(categories))
	for i, key := range categories {
		means[i] = sums[key] / float64(counts[key])
	}
	return categories, means, nil
}

type correlationGrid [][]float64

func (g correlationGrid) Dims() (c, r int)   { return len(g), len(g) }
func (g correlationGrid) Z(c, r int) float64 { return g[r][c] }
func (g correlationGrid) X(c int) float64    { return float64(c) }
func (g correlationGrid) Y(r int) float64    { return float64(r) }

// correlationColors is a diverging blue to red map over [-1, 1].
func correlationColors() palette.ColorMap {
	colors := moreland.SmoothBlueRed()
	colors.SetMin(-1)
	colors.SetMax(1)
	return colors
}

func savePlot(pl *plot.Plot, path string, width, height vg.Length) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return pl.Save(width, height, path)
}

// saveGrid lays panels out row by row in a grid of about sqrt(n) columns
// under an optional overall title.
func saveGrid(path, title string, panels []*plot.Plot) error {
	if len(panels) == 0 {
		return errors.New("nothing to plot")
	}
	cols := int(math.Ceil(math.Sqrt(float64(len(panels)))))
	rows := (len(panels) + cols - 1) / cols
	grid := make([][]*plot.Plot, rows)
	for r := range grid {
		grid[r] = make([]*plot.Plot, cols)
		for c := range grid[r] {
			if i := r*cols + c; i < len(panels) {
				grid[r][c] = panels[i]
				continue
			}
			blank := plot.New()
			blank.HideAxes()
			grid[r][c] = blank
		}
	}
	return saveTiles(path, title, grid, vg.Length(cols)*panelSize, vg.Length(rows)*panelSize*0.75)
}

func saveTiles(path, title string, plots [][]*plot.Plot, width, height vg.Length) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	canvas, err := draw.NewFormattedCanvas(width, height, format)
	if err != nil {
		return err
	}
	dc := draw.New(canvas)
	if title != "" {
		style := plot.New().Title.TextStyle
		style.Font.Size = vg.Points(18)
		style.XAlign = text.XCenter
		style.YAlign = text.YTop
		top := dc.Max.Y - vg.Millimeter*3
		dc.FillText(style, vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: top}, title)
		dc.Max.Y = top - style.Height(title) - vg.Millimeter*2
	}
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c, pl := range plots[r] {
			pl.Draw(canvases[r][c])
		}
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := canvas.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
