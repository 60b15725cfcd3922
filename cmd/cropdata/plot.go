package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cropyield/plotting"
)

var (
	plotOutput   string
	plotX        string
	plotY        string
	plotColumns  []string
	plotBins     int
	plotCategory string
	plotValue    string
)

var plotCmd = &cobra.Command{
	Use:   "plot <hist|heatmap|box|bar|scatter|pair|all> <input.csv>",
	Short: "Render exploratory plots of a dataset",
	Long: `Renders plots with the format taken from the output extension (png, svg, pdf).

  hist     one histogram per numeric column
  heatmap  annotated correlation matrix of the numeric columns
  box      boxplot per numeric column
  bar      mean --value per --category
  scatter  --y against --x
  pair     pairwise scatter grid of --columns
  all      every plot above into the --output directory`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"hist", "heatmap", "box", "bar", "scatter", "pair", "all"},
	RunE:      runPlot,
}

func init() {
	plotCmd.Flags().StringVarP(&plotOutput, "output", "o", "", "Output file, or directory for 'all' (default: <kind>.png)")
	plotCmd.Flags().StringVar(&plotX, "x", "rainfall", "X column for scatter")
	plotCmd.Flags().StringVar(&plotY, "y", "yield", "Y column for scatter")
	plotCmd.Flags().StringSliceVar(&plotColumns, "columns", nil, "Columns for the pair plot (default: all numeric)")
	plotCmd.Flags().IntVar(&plotBins, "bins", 30, "Histogram bins")
	plotCmd.Flags().StringVar(&plotCategory, "category", "crop_type", "Category column for bar")
	plotCmd.Flags().StringVar(&plotValue, "value", "yield", "Value column for bar")
}

func runPlot(cmd *cobra.Command, args []string) error {
	kind, input := args[0], args[1]
	table, err := readTable(input)
	if err != nil {
		return err
	}
	p := plotting.New(table)

	if kind == "all" {
		dir := plotOutput
		if dir == "" {
			dir = "plots"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, k := range []string{"hist", "heatmap", "box", "bar", "scatter", "pair"} {
			path := filepath.Join(dir, k+".png")
			if err := drawPlot(p, k, path); err != nil {
				// A dataset without the bar/scatter columns still gets the rest.
				logger.Warn("Plot skipped", zap.String("kind", k), zap.Error(err))
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	}

	output := plotOutput
	if output == "" {
		output = kind + ".png"
	}
	if err := drawPlot(p, kind, output); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

func drawPlot(p *plotting.Plotter, kind, path string) error {
	logger.Debug("Rendering plot", zap.String("kind", kind), zap.String("path", path))
	switch kind {
	case "hist":
		return p.Histograms(path, plotBins)
	case "heatmap":
		return p.Heatmap(path)
	case "box":
		return p.Boxplots(path)
	case "bar":
		return p.Bar(path, plotCategory, plotValue)
	case "scatter":
		return p.Scatter(path, plotX, plotY)
	case "pair":
		return p.PairPlot(path, plotColumns)
	}
	return fmt.Errorf("unknown plot kind %q", kind)
}
