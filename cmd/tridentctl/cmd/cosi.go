package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trident/internal/cosi"
)

var cosiCmd = &cobra.Command{
	Use:   "cosi",
	Short: "Inspect Composable OS Image files",
}

var cosiInspectCmd = &cobra.Command{
	Use:   "inspect <image.cosi>",
	Short: "Validate and summarize a COSI file's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open COSI file %q: %w", args[0], err)
		}
		defer f.Close()

		meta, err := cosi.ScanMetadata(f)
		if err != nil {
			return err
		}
		warnings, err := cosi.Validate(meta)
		for _, w := range warnings {
			color.New(color.FgYellow).Fprintf(os.Stderr, "warning: %s: %s\n", w.Kind, w.Detail)
		}
		if err != nil {
			return err
		}
		fmt.Print(cosi.Describe(meta))
		return nil
	},
}

func init() {
	cosiCmd.AddCommand(cosiInspectCmd)
	rootCmd.AddCommand(cosiCmd)
}
