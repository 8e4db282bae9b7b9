// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlharvest/internal/crawler"
	"github.com/JakeFAU/htmlharvest/internal/logging"
)

// EnvPrefix is the prefix of every environment override, e.g.
// HARVEST_CRAWLER_LIMIT=50.
const EnvPrefix = "HARVEST"

// SetDefaults registers the default value of every knob on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler.urls", "")
	v.SetDefault("crawler.out", "")
	v.SetDefault("crawler.limit", crawler.DefaultLimit)
	v.SetDefault("crawler.delay", crawler.DefaultDelay)
	v.SetDefault("crawler.timeout", crawler.DefaultTimeout)
	v.SetDefault("crawler.retries", crawler.DefaultRetries)
	v.SetDefault("crawler.backoff_step", "600ms")
	v.SetDefault("crawler.user_agent", crawler.DefaultUserAgent)

	v.SetDefault("filter.min_bytes", crawler.DefaultMinBytes)
	v.SetDefault("filter.min_cyr", crawler.DefaultMinScript)
	v.SetDefault("filter.min_cyr_ratio", crawler.DefaultMinRatio)
	v.SetDefault("filter.skip_wikipedia", true)
	v.SetDefault("filter.blocked_domains", []string{})

	v.SetDefault("robots.respect", false)
	v.SetDefault("robots.ttl", crawler.DefaultRobotsTTL)
	v.SetDefault("robots.timeout", crawler.DefaultRobotsTimeout)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("archive.out", "")

	v.SetDefault("build_list.seeds", "")
	v.SetDefault("build_list.out", "")
	v.SetDefault("build_list.max_links", crawler.DefaultMaxLinks)
	v.SetDefault("build_list.same_domain", false)
	v.SetDefault("build_list.delay", crawler.DefaultDelay)
	v.SetDefault("build_list.timeout", crawler.DefaultTimeout)
}

// Load prepares v: defaults, config search paths (or the explicit file),
// and HARVEST_* environment overrides. A missing config file in the search
// paths is not an error; an unreadable or malformed one is.
func Load(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")                  // Current working directory
		v.AddConfigPath("/etc/htmlharvest/")  // System-wide configuration
		v.AddConfigPath("$HOME/.htmlharvest") // User-specific configuration
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			logging.L.Debug("Config file not found; using defaults and environment variables.")
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	logging.L.Info("Using config file", zap.String("path", v.ConfigFileUsed()))
	return nil
}

// InitConfig loads the global Viper instance used by the CLI.
func InitConfig(cfgFile string) error {
	return Load(viper.GetViper(), cfgFile)
}
