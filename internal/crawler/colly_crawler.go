package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

var ignoredLinkSchemes = []string{"mailto:", "tel:", "javascript:"}

// LinkCollectorConfig configures the seed link scraper behind build-list.
type LinkCollectorConfig struct {
	UserAgent  string
	Timeout    time.Duration
	Delay      time.Duration
	MaxLinks   int
	SameDomain bool
	Transport  http.RoundTripper
}

// LinkCollector turns seed pages into a candidate URL list by harvesting
// their anchors.
type LinkCollector struct {
	cfg           LinkCollectorConfig
	baseCollector *colly.Collector
	pauser        pauseController
	logger        *zap.Logger
}

// NewLinkCollector creates a Colly-based seed scraper.
func NewLinkCollector(cfg LinkCollectorConfig, logger *zap.Logger) *LinkCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	base := colly.NewCollector(colly.Async(false), colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport(cfg.Timeout)
	}
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.Timeout)

	return &LinkCollector{
		cfg:           cfg,
		baseCollector: base,
		pauser:        &timerPauseController{},
		logger:        logger,
	}
}

// Collect visits every well-formed seed in order and returns the distinct
// absolute http(s) links found on seeds that answered 200, up to MaxLinks.
// The politeness delay follows every seed request.
func (c *LinkCollector) Collect(ctx context.Context, seeds []string) ([]string, error) {
	seedHosts := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		if u, err := url.Parse(s); err == nil && IsWellFormedHTTPURL(s) {
			seedHosts[strings.ToLower(u.Host)] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	collected := make([]string, 0)
	full := func() bool { return c.cfg.MaxLinks > 0 && len(collected) >= c.cfg.MaxLinks }

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return collected, err
		}
		if full() {
			break
		}
		if !IsWellFormedHTTPURL(seed) {
			continue
		}

		base, hrefs, err := c.scanSeed(ctx, seed)
		if err != nil {
			c.logger.Warn("Seed scan failed", zap.String("seed", seed), zap.Error(err))
		}
		for _, href := range hrefs {
			link, ok := resolveLink(base, href)
			if !ok || !IsWellFormedHTTPURL(link) {
				continue
			}
			u, err := url.Parse(link)
			if err != nil {
				continue
			}
			if c.cfg.SameDomain {
				if _, ok := seedHosts[strings.ToLower(u.Host)]; !ok {
					continue
				}
			}
			if hasBlockedExtension(u.Path) {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			collected = append(collected, link)
			if full() {
				break
			}
		}
		c.logger.Debug("Seed scanned", zap.String("seed", seed), zap.Int("collected", len(collected)))
		c.pauser.Pause(ctx, c.cfg.Delay)
	}
	return collected, nil
}

// scanSeed fetches one seed and returns the final URL plus the raw href
// values of its anchors. Seeds that do not answer 200 yield no links.
func (c *LinkCollector) scanSeed(ctx context.Context, seed string) (*url.URL, []string, error) {
	var (
		base     *url.URL
		hrefs    []string
		status   int
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHTML)
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		base = r.Request.URL
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		hrefs = append(hrefs, e.Attr("href"))
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := visitWithContext(ctx, collector, seed, &fetchErr); err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK || base == nil {
		return nil, nil, errors.New("seed did not answer 200")
	}
	return base, hrefs, nil
}

// resolveLink makes href absolute against base and drops its fragment.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range ignoredLinkSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}
