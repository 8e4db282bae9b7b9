package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/htmlharvest/internal/metrics"
)

const (
	defaultRobotsTTL     = time.Hour
	defaultRobotsTimeout = 10 * time.Second
	maxRobotsBytes       = 1 << 20
)

// PermissionChecker answers whether a URL may be fetched.
type PermissionChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// RobotsOptions configures a PermissionCache.
type RobotsOptions struct {
	UserAgent string
	TTL       time.Duration
	Timeout   time.Duration
	Client    *http.Client
	Clock     Clock
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// PermissionCache evaluates robots.txt rules per scheme and authority,
// caching each parsed rule set for a fixed TTL. Fetch or parse failures
// cache an empty rule set, which allows everything.
type PermissionCache struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	clock     Clock
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]robotsEntry
	group   singleflight.Group
}

// NewRobotsEnforcer returns a PermissionCache when respect is set and an
// allow-all checker otherwise.
func NewRobotsEnforcer(respect bool, opts RobotsOptions, logger *zap.Logger) PermissionChecker {
	if !respect {
		return allowAllPolicy{}
	}
	return NewPermissionCache(opts, logger)
}

// NewPermissionCache builds a cache with defaults filled in.
func NewPermissionCache(opts RobotsOptions, logger *zap.Logger) *PermissionCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultRobotsTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRobotsTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionCache{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		ttl:       opts.TTL,
		clock:     opts.Clock,
		logger:    logger,
		entries:   make(map[string]robotsEntry),
	}
}

// Allowed implements PermissionChecker.
func (c *PermissionCache) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	rules := c.rules(ctx, parsed)
	return rules.TestAgent(parsed.RequestURI(), c.userAgent)
}

// Len reports the number of cached authorities, live or stale.
func (c *PermissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PermissionCache) rules(ctx context.Context, parsed *url.URL) *robotstxt.RobotsData {
	key := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	if rules, ok := c.lookup(key); ok {
		return rules
	}
	// Concurrent callers for the same authority share one fetch.
	v, _, _ := c.group.Do(key, func() (any, error) {
		if rules, ok := c.lookup(key); ok {
			return rules, nil
		}
		rules := c.fetch(ctx, key)
		c.mu.Lock()
		c.entries[key] = robotsEntry{fetched: c.clock.Now(), rules: rules}
		c.mu.Unlock()
		return rules, nil
	})
	rules, ok := v.(*robotstxt.RobotsData)
	if !ok {
		return emptyRules()
	}
	return rules
}

func (c *PermissionCache) lookup(key string) (*robotstxt.RobotsData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.clock.Now().Sub(entry.fetched) >= c.ttl {
		return nil, false
	}
	return entry.rules, true
}

func (c *PermissionCache) fetch(ctx context.Context, base string) *robotstxt.RobotsData {
	rules, err := c.download(ctx, base+"/robots.txt")
	if err != nil {
		metrics.ObserveRobotsFetch("error")
		c.logger.Warn("robots fetch failed; allowing access", zap.String("authority", base), zap.Error(err))
		return emptyRules()
	}
	metrics.ObserveRobotsFetch("ok")
	return rules
}

func (c *PermissionCache) download(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

func emptyRules() *robotstxt.RobotsData {
	data, err := robotstxt.FromBytes(nil)
	if err != nil {
		return &robotstxt.RobotsData{}
	}
	return data
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool { return true }
