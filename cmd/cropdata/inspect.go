package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cropyield/pipeline"
)

var inspectHead int

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.csv>",
	Short: "Show the first rows, object columns, duplicates and missing values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := readTable(args[0])
		if err != nil {
			return err
		}
		return writeInspection(cmd.OutOrStdout(), table, inspectHead)
	},
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectHead, "head", "n", 5, "Number of rows to show")
}

// writeInspection prints the first n rows transposed, one line per column,
// followed by the dataset summary.
func writeInspection(w io.Writer, table *pipeline.Table, n int) error {
	report := pipeline.Inspect(table)
	fmt.Fprintf(w, "shape: %d rows x %d columns\n\n", report.Rows, len(report.Columns))

	head := table.Head(n)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(head.Columns, "\t"))
	for _, row := range head.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nobject columns: %s\n", strings.Join(report.ObjectColumns, ", "))
	fmt.Fprintf(w, "duplicate rows: %d\n", report.DuplicateRows)

	fmt.Fprintln(w, "missing values:")
	names := make([]string, 0, len(report.MissingValues))
	for name := range report.MissingValues {
		names = append(names, name)
	}
	sort.Strings(names)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%d\n", name, report.MissingValues[name])
	}
	return tw.Flush()
}
