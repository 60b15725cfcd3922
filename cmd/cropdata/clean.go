package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cropyield/pipeline"
)

var (
	cleanOutput  string
	cleanColumns []string
	cleanImpute  bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <input.csv>",
	Short: "Deduplicate rows and normalise names and values",
	Long: `Removes exact duplicate rows, standardises column names (trimmed,
lowercase, spaces to underscores, parentheses dropped) and applies the same
normalisation to categorical values.`,
	Args: cobra.ExactArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanOutput, "output", "o", "", "Output CSV (default: <input>_cleaned.csv)")
	cleanCmd.Flags().StringSliceVar(&cleanColumns, "columns", nil, "Categorical columns to normalise (default: all object columns)")
	cleanCmd.Flags().BoolVar(&cleanImpute, "impute", false, "Fill missing numeric cells with the column median")
}

func runClean(cmd *cobra.Command, args []string) error {
	input := args[0]
	table, err := readTable(input)
	if err != nil {
		return err
	}

	cleaner := newCleaner(cleanColumns, cleanImpute)
	cleaned, report, err := cleaner.Clean(table)
	if err != nil {
		return err
	}

	output := cleanOutput
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "_cleaned.csv"
	}
	if err := cleaned.WriteCSV(output); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	logger.Info("Cleaned dataset written", zap.String("output", output))

	printCleanReport(cmd.OutOrStdout(), report)
	return nil
}

// newCleaner builds the default cleaning pipeline, optionally limited to the
// given categorical columns and extended with median imputation.
func newCleaner(columns []string, impute bool) *pipeline.DataCleaner {
	cleaner := pipeline.NewDataCleaner(logger,
		pipeline.StandardizeColumnsStep{},
		pipeline.NormalizeObservationsStep{Columns: normalizeNames(columns)},
		pipeline.DropDuplicatesStep{})
	if impute {
		cleaner.AddStep(pipeline.MedianImputeStep{})
	}
	return cleaner
}

// normalizeNames maps user-supplied column names to their standardised form,
// since observation normalisation runs after the header is standardised.
func normalizeNames(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = pipeline.NormalizeName(c)
	}
	return out
}

func printCleanReport(w io.Writer, report pipeline.CleaningReport) {
	fmt.Fprintf(w, "rows: %d -> %d\n", report.RowsBefore, report.Rows)
	for _, step := range report.Steps {
		fmt.Fprintf(w, "  %-24s %d changed\n", step.Step, step.Changed)
	}
	fmt.Fprintf(w, "columns: %s\n", strings.Join(report.Columns, ", "))
}
