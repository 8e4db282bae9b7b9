package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlharvest/internal/crawler"
	"github.com/JakeFAU/htmlharvest/internal/logging"
)

// newBuildListCmd creates the 'build-list' subcommand.
func newBuildListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build-list",
		Short: "Builds a URL list from the links on seed pages",
		Long: `Fetches every seed page once, collects the absolute http(s) links found in
its anchors, and writes the distinct links to --out, one per line.`,
		RunE: runBuildListCommand,
	}

	f := cmd.Flags()
	f.String("seeds", "", "path to the seed page list")
	f.String("out", "", "where to write the URL list")
	f.Int("max-links", crawler.DefaultMaxLinks, "stop after this many links")
	f.Bool("same-domain", false, "keep only links whose host matches a seed host")
	f.Duration("delay", crawler.DefaultDelay, "pause after every seed request")
	f.Duration("timeout", crawler.DefaultTimeout, "per-request timeout")

	bindFlag(cmd, "build_list.seeds", "seeds")
	bindFlag(cmd, "build_list.out", "out")
	bindFlag(cmd, "build_list.max_links", "max-links")
	bindFlag(cmd, "build_list.same_domain", "same-domain")
	bindFlag(cmd, "build_list.delay", "delay")
	bindFlag(cmd, "build_list.timeout", "timeout")
	return cmd
}

func runBuildListCommand(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	seedsPath := v.GetString("build_list.seeds")
	outPath := v.GetString("build_list.out")
	if seedsPath == "" {
		return errors.New("build_list.seeds must be set")
	}
	if outPath == "" {
		return errors.New("build_list.out must be set")
	}
	maxLinks := v.GetInt("build_list.max_links")
	if maxLinks <= 0 {
		return errors.New("build_list.max_links must be > 0")
	}

	seeds, err := crawler.ReadURLList(seedsPath)
	if err != nil {
		return err
	}

	collector := crawler.NewLinkCollector(crawler.LinkCollectorConfig{
		UserAgent:  v.GetString("crawler.user_agent"),
		Timeout:    v.GetDuration("build_list.timeout"),
		Delay:      v.GetDuration("build_list.delay"),
		MaxLinks:   maxLinks,
		SameDomain: v.GetBool("build_list.same_domain"),
	}, logging.L.Named("links"))

	links, err := collector.Collect(cmd.Context(), seeds)
	if err != nil {
		return fmt.Errorf("collect links: %w", err)
	}
	if err := crawler.WriteURLList(outPath, links); err != nil {
		return fmt.Errorf("write url list: %w", err)
	}

	logging.L.Info("URL list written", zap.String("path", outPath), zap.Int("links", len(links)))
	cmd.Printf("[ok] %d urls saved to: %s\n", len(links), outPath)
	return nil
}
