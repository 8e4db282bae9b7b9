package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/htmlharvest/internal/metrics"
)

const acceptHTML = "text/html,application/xhtml+xml"

// Fetcher retrieves one URL, retrying transport failures.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// FetcherConfig configures a CollyFetcher.
type FetcherConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffStep time.Duration
	// Transport overrides the HTTP transport; nil uses a pooled default.
	Transport http.RoundTripper
}

// CollyFetcher implements Fetcher on top of a Colly collector. Every
// completed exchange is a result regardless of status code.
type CollyFetcher struct {
	baseCollector *colly.Collector
	retry         *LinearRetryPolicy
	pauser        pauseController
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg FetcherConfig, logger *zap.Logger) *CollyFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BackoffStep == 0 {
		cfg.BackoffStep = defaultBackoffStep
	}
	base := colly.NewCollector(colly.Async(false))
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	// Retries revisit the same URL and robots.txt is handled by PermissionCache.
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.ParseHTTPErrorResponse = true
	// Unlimited, so large pages are never saved truncated.
	base.MaxBodySize = 0
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport(cfg.Timeout)
	}
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.Timeout)

	return &CollyFetcher{
		baseCollector: base,
		retry:         NewLinearRetryPolicy(cfg.MaxRetries, cfg.BackoffStep),
		pauser:        &timerPauseController{},
		logger:        logger,
	}
}

// Fetch performs up to MaxRetries+1 GET attempts. It returns ErrNetwork
// once every attempt failed at the transport level.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := f.attempt(ctx, rawURL)
		if err == nil {
			metrics.ObserveFetchAttempt("ok")
			result.Attempts = attempt
			return result, nil
		}
		metrics.ObserveFetchAttempt("error")
		if !f.retry.ShouldRetry(ctx, err, attempt) {
			return FetchResult{Attempts: attempt}, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrNetwork, rawURL, attempt, err)
		}
		wait := f.retry.Backoff(attempt)
		f.logger.Debug("fetch attempt failed; retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		f.pauser.Pause(ctx, wait)
	}
}

func (f *CollyFetcher) attempt(ctx context.Context, rawURL string) (FetchResult, error) {
	var (
		result   FetchResult
		fetchErr error
		got      bool
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &result, &got, &fetchErr)
	if err := visitWithContext(ctx, collector, rawURL, &fetchErr); err != nil {
		return FetchResult{}, err
	}
	if !got {
		return FetchResult{}, errors.New("colly fetch produced no response")
	}
	return result, nil
}

func (f *CollyFetcher) configureCollectorHooks(
	hooks collectorHooks,
	result *FetchResult,
	got *bool,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHTML)
	})

	hooks.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*result = FetchResult{
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        decodeBody(r.Body, contentType),
			FinalURL:    r.Request.URL.String(),
		}
		*got = true
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

// visitWithContext runs Visit in its own goroutine so context cancellation
// unblocks the caller. An error reported through OnError wins over a nil
// Visit result.
func visitWithContext(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		err := collector.Visit(url)
		if err == nil && *fetchErr != nil {
			err = *fetchErr
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// decodeBody turns the raw response into text. Bodies that are already
// valid UTF-8 pass through; otherwise the charset is taken from the header
// or sniffed from the markup, and undecodable bytes are dropped.
func decodeBody(body []byte, contentType string) string {
	if utf8.Valid(body) {
		return string(body)
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		// The UTF-8 decoder would turn invalid bytes into U+FFFD.
		return strings.ToValidUTF8(string(body), "")
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		decoded = body
	}
	return strings.ToValidUTF8(string(decoded), "")
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
