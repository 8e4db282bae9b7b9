// Package cmd defines and implements the CLI commands for the htmlharvest executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlharvest/internal/logging"
	"github.com/JakeFAU/htmlharvest/pkg/config"
)

var (
	cfgFile string
	logDev  bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "htmlharvest",
		Short: "Harvests raw HTML pages from a prepared URL list.",
		Long: `htmlharvest downloads HTML pages listed in a text file, keeps only pages
that look like real Russian-language documents, and writes them with a
manifest, an error log and a run summary into an output directory.`,
		SilenceUsage: true,

		// Logger first so config loading can report where it read from.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := logging.InitLogger(logDev); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if err := config.InitConfig(cfgFile); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logging.L.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/htmlharvest, $HOME/.htmlharvest)")
	cmd.PersistentFlags().BoolVar(&logDev, "log-dev", false, "human-readable development logging at debug level")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newBuildListCmd())
	cmd.AddCommand(newArchiveCmd())

	return cmd
}

// bindFlag ties a command flag to a Viper key so files, env vars and flags
// resolve through one lookup.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.L.Error("Command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
