// Command cropdata cleans, inspects and plots crop datasets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cropyield/logging"
	"cropyield/pipeline"
)

var (
	verbose  bool
	encoding string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cropdata",
	Short: "Dataset tooling for the crop yield model",
	Long: `cropdata prepares CSV datasets for training: it removes duplicate rows,
normalises column names and categorical values, reports missing data and
renders exploratory plots.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(logging.Config{Level: level})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&encoding, "encoding", "", "Source encoding of the CSV (utf-8, latin1, windows-1252)")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(plotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readTable(path string) (*pipeline.Table, error) {
	table, err := pipeline.ReadCSV(path, encoding)
	if err != nil {
		return nil, err
	}
	logger.Debug("Dataset loaded", zap.String("path", path), zap.Int("rows", table.Len()), zap.Int("columns", len(table.Columns)))
	return table, nil
}
