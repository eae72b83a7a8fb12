package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
	"github.com/KaramelBytes/dataloom-agent/internal/parser"
	"github.com/KaramelBytes/dataloom-agent/internal/utils"
	"github.com/spf13/cobra"
)

var (
	profOutputPath string
	profSampleRows int
	profMaxRows    int
	profCorr       bool
	profSheetName  string
	profSheetIndex int
	profJSONPath   string
	profDecimal    string
	profThousands  string
	profOutliers   bool
	profOutlierThr float64
	profQuiet      bool
)

var profileCmd = &cobra.Command{
	Use:   "profile <files...>",
	Short: "Summarize data files (CSV/TSV/JSON/XLSX/Parquet) as Markdown",
	Long: `Profiles each file the same way the agent does before prompting a model:
schema, column kinds, numeric statistics, top categories, correlations and
sample rows. Globs are expanded; results go to stdout or --output.`,
	Example: `  dataloom profile sales.csv
  dataloom profile "data/*.csv" --output summaries.md
  dataloom profile book.xlsx --sheet-name Q3 --max-rows 5000`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}

		opt := analysis.DefaultOptions()
		if profSampleRows > 0 {
			opt.SampleRows = profSampleRows
		}
		if cmd.Flags().Changed("max-rows") {
			opt.MaxRows = profMaxRows
		}
		switch strings.ToLower(strings.TrimSpace(profDecimal)) {
		case ",", "comma":
			opt.DecimalSeparator = ','
		case ".", "dot":
			opt.DecimalSeparator = '.'
		case "":
		default:
			return fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", profDecimal)
		}
		switch strings.ToLower(strings.TrimSpace(profThousands)) {
		case ",":
			opt.ThousandsSeparator = ','
		case ".":
			opt.ThousandsSeparator = '.'
		case "space", " ":
			opt.ThousandsSeparator = ' '
		case "":
		default:
			return fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", profThousands)
		}
		if cmd.Flags().Changed("correlations") {
			opt.Correlations = profCorr
		}
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = profOutliers
		}
		if profOutlierThr > 0 {
			opt.OutlierThreshold = profOutlierThr
		}
		popt := parser.Options{
			MaxRows:    opt.MaxRows,
			Sheet:      profSheetName,
			SheetIndex: profSheetIndex,
			JSONPath:   profJSONPath,
		}

		out := cmd.OutOrStdout()
		var reports []string
		total := len(files)
		for i, path := range files {
			if !profQuiet && total > 1 {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			f, err := parser.LoadFile(path, popt)
			if err != nil {
				return err
			}
			reports = append(reports, analysis.Profile(f, opt).Markdown())
		}
		md := strings.Join(reports, "\n")

		if profOutputPath != "" {
			if err := utils.SafeWriteFile(profOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote %d summaries to %s\n", len(reports), profOutputPath)
			return nil
		}
		fmt.Fprintln(out, md)
		return nil
	},
}

// expandInputs resolves globs and literal paths, dropping duplicates.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "optional path to write the summaries (Markdown)")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 5, "number of sample rows to include")
	profileCmd.Flags().IntVar(&profMaxRows, "max-rows", 100000, "maximum rows to process (0 = unlimited)")
	profileCmd.Flags().BoolVar(&profCorr, "correlations", true, "compute Pearson correlations among numeric columns")
	profileCmd.Flags().BoolVar(&profOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	profileCmd.Flags().Float64Var(&profOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	profileCmd.Flags().StringVar(&profDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	profileCmd.Flags().StringVar(&profThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	profileCmd.Flags().StringVar(&profSheetName, "sheet-name", "", "XLSX: sheet name to profile")
	profileCmd.Flags().IntVar(&profSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	profileCmd.Flags().StringVar(&profJSONPath, "json-path", "", "JSON: path to the record array, e.g. $.data.items")
	profileCmd.Flags().BoolVar(&profQuiet, "quiet", false, "suppress progress lines")
}
