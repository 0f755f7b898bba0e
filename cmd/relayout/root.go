package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "relayout",
	Short: "Reconcile detected page layout with PDF text geometry",
	Long: `Relayout reconciles the layout regions a detector finds on a rendered
PDF page with the text the PDF actually contains.

For each page it:
  - Extracts text fragments with their fonts and boxes
  - Runs a layout detector on the page image
  - Splits the text into fragments inside and outside detected regions
  - Rewrites the regions into a non-overlapping, text-consistent layout`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.relayout/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "relayout home directory (default: ~/.relayout)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
