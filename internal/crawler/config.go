package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default knob values shared by the CLI flags and pkg/config.
const (
	DefaultUserAgent     = "Mozilla/5.0 (compatible; HW-Crawler/1.0; +https://example.com)"
	DefaultLimit         = 100
	DefaultDelay         = time.Second
	DefaultTimeout       = 15 * time.Second
	DefaultRetries       = 2
	DefaultMinBytes      = 5000
	DefaultMinScript     = 200
	DefaultMinRatio      = 0.25
	DefaultRobotsTTL     = time.Hour
	DefaultRobotsTimeout = 10 * time.Second
	DefaultMaxLinks      = 400
)

// Config captures every knob that influences a harvest run. All values
// originate from Viper so a run can be configured via files, env vars, or
// CLI flags.
type Config struct {
	URLsFile    string
	OutputDir   string
	Limit       int
	Delay       time.Duration
	Timeout     time.Duration
	Retries     int
	BackoffStep time.Duration
	UserAgent   string

	MinBytes          int
	MinScriptChars    int
	MinScriptRatio    float64
	SkipEncyclopedias bool
	BlockedDomains    []string

	RespectRobots bool
	RobotsTTL     time.Duration
	RobotsTimeout time.Duration
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		URLsFile:    v.GetString("crawler.urls"),
		OutputDir:   v.GetString("crawler.out"),
		Limit:       v.GetInt("crawler.limit"),
		Delay:       v.GetDuration("crawler.delay"),
		Timeout:     v.GetDuration("crawler.timeout"),
		Retries:     v.GetInt("crawler.retries"),
		BackoffStep: v.GetDuration("crawler.backoff_step"),
		UserAgent:   strings.TrimSpace(v.GetString("crawler.user_agent")),

		MinBytes:          v.GetInt("filter.min_bytes"),
		MinScriptChars:    v.GetInt("filter.min_cyr"),
		MinScriptRatio:    v.GetFloat64("filter.min_cyr_ratio"),
		SkipEncyclopedias: v.GetBool("filter.skip_wikipedia"),
		BlockedDomains:    normalizeDomains(v.GetStringSlice("filter.blocked_domains")),

		RespectRobots: v.GetBool("robots.respect"),
		RobotsTTL:     v.GetDuration("robots.ttl"),
		RobotsTimeout: v.GetDuration("robots.timeout"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration values.
func (c Config) Validate() error {
	if c.URLsFile == "" {
		return fmt.Errorf("crawler.urls must be set")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("crawler.out must be set")
	}
	if c.Limit <= 0 {
		return fmt.Errorf("crawler.limit must be > 0")
	}
	if c.Delay < 0 {
		return fmt.Errorf("crawler.delay must be >= 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("crawler.timeout must be > 0")
	}
	if c.Retries < 0 {
		return fmt.Errorf("crawler.retries must be >= 0")
	}
	if c.BackoffStep < 0 {
		return fmt.Errorf("crawler.backoff_step must be >= 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.MinBytes < 0 {
		return fmt.Errorf("filter.min_bytes must be >= 0")
	}
	if c.MinScriptChars < 0 {
		return fmt.Errorf("filter.min_cyr must be >= 0")
	}
	if c.MinScriptRatio < 0 || c.MinScriptRatio > 1 {
		return fmt.Errorf("filter.min_cyr_ratio must be within [0, 1]")
	}
	if c.RespectRobots && c.RobotsTTL <= 0 {
		return fmt.Errorf("robots.ttl must be > 0")
	}
	if c.RespectRobots && c.RobotsTimeout <= 0 {
		return fmt.Errorf("robots.timeout must be > 0")
	}
	return nil
}

// Thresholds returns the content filter thresholds of the run.
func (c Config) Thresholds() ContentThresholds {
	return ContentThresholds{
		MinBytes:       c.MinBytes,
		MinScriptChars: c.MinScriptChars,
		MinScriptRatio: c.MinScriptRatio,
	}
}

// URLPolicy returns the compiled URL admission policy of the run.
func (c Config) URLPolicy() URLPolicy {
	return NewURLPolicy(c.SkipEncyclopedias, c.BlockedDomains)
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, raw := range in {
		for _, d := range strings.Split(raw, ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" {
				continue
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}
