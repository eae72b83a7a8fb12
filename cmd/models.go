package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog and pricing used for cost logs",
	Example: `  dataloom models show
  dataloom models show --json
  dataloom models sync --file ./models.json`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		out := cmd.OutOrStdout()
		if modelsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tMODEL\tCONTEXT\tIN $/1K\tOUT $/1K")
		for _, m := range cat {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.5f\t%.5f\n", m.Provider, m.Name, m.ContextTokens, m.InputPerK, m.OutputPerK)
		}
		return tw.Flush()
	},
}

var syncPath string

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge model catalog/pricing from a JSON file",
	Long: `Merges entries from a JSON object keyed by model name into the catalog
for this process, then prints the result. Example entry:
  {"gpt-4o-mini": {"Provider": "openai", "ContextTokens": 128000, "InputPerK": 0.00015, "OutputPerK": 0.0006}}`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.MergeCatalog(m)
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %d models from %s\n", len(m), syncPath)
		return modelsShowCmd.RunE(cmd, nil)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)

	modelsCmd.PersistentFlags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")
	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
}
