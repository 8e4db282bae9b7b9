package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/htmlharvest/internal/archive"
	"github.com/JakeFAU/htmlharvest/internal/logging"
)

// newArchiveCmd creates the 'archive' subcommand.
func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Zips the saved pages and the manifest of a run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			outDir := viper.GetString("archive.out")
			if outDir == "" {
				return errors.New("archive.out must be set")
			}
			path, err := archive.Build(outDir, logging.L.Named("archive"))
			if err != nil {
				return err
			}
			cmd.Printf("[ok] created: %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("out", "", "run output directory (contains pages/ and index.txt)")
	bindFlag(cmd, "archive.out", "out")
	return cmd
}
