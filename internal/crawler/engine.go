package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlharvest/internal/metrics"
)

const defaultProgressEvery = 25

// Store is the output surface the engine records into. *RunStore is the
// production implementation.
type Store interface {
	MarkRequested()
	SavePage(seq int, finalURL, html string) (SavedPage, error)
	LogSkip(rawURL, reason string) error
	LogFail(rawURL, reason string) error
	Stats() RunStats
	Finalize() error
}

// PageFilter judges fetched pages.
type PageFilter interface {
	Evaluate(contentType, body string) Decision
}

// EngineConfig holds the per-run knobs of the orchestrator.
type EngineConfig struct {
	Limit         int
	Delay         time.Duration
	URLPolicy     URLPolicy
	ProgressEvery int
	// RunID tags every log line of the run; empty generates a UUIDv7.
	RunID string
}

// Engine walks a URL list in order and routes every entry to exactly one
// of saved, skipped or failed. It stops once Limit pages were saved.
type Engine struct {
	cfg     EngineConfig
	fetcher Fetcher
	robots  PermissionChecker
	filter  PageFilter
	store   Store
	seen    visitTracker
	pauser  pauseController
	logger  *zap.Logger
}

// outcome is the verdict for one list entry plus the URL it is logged under.
type outcome struct {
	decision Decision
	logURL   string
	body     string
}

// NewEngine wires the orchestrator.
func NewEngine(
	cfg EngineConfig,
	fetcher Fetcher,
	robots PermissionChecker,
	filter PageFilter,
	store Store,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if robots == nil {
		robots = allowAllPolicy{}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	return &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		robots:  robots,
		filter:  filter,
		store:   store,
		seen:    newConcurrentVisitTracker(),
		pauser:  &timerPauseController{},
		logger:  logger,
	}
}

// Run processes urls and finalizes the store before returning. Per-URL
// problems are recorded as decisions; only store failures and context
// cancellation are returned.
func (e *Engine) Run(ctx context.Context, urls []string) (err error) {
	runID := e.cfg.RunID
	if runID == "" {
		runID = newRunID()
	}
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("Harvest run started",
		zap.Int("urls", len(urls)),
		zap.Int("limit", e.cfg.Limit),
		zap.Duration("delay", e.cfg.Delay),
	)

	defer func() {
		if ferr := e.store.Finalize(); ferr != nil {
			err = errors.Join(err, fmt.Errorf("finalize run store: %w", ferr))
		}
		stats := e.store.Stats()
		logger.Info("Harvest run finished",
			zap.Int("requested", stats.Requested),
			zap.Int("saved", stats.Saved),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
			zap.Error(err),
		)
	}()

	for i, raw := range urls {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("harvest run interrupted: %w", cerr)
		}
		if e.store.Stats().Saved >= e.cfg.Limit {
			logger.Info("Save limit reached", zap.Int("limit", e.cfg.Limit))
			break
		}

		e.store.MarkRequested()
		out := e.process(ctx, strings.TrimSpace(raw))
		if rerr := e.record(out, logger); rerr != nil {
			return rerr
		}

		if processed := i + 1; processed%e.cfg.ProgressEvery == 0 {
			stats := e.store.Stats()
			logger.Info("Harvest progress",
				zap.Int("processed", processed),
				zap.Int("saved", stats.Saved),
				zap.Int("skipped", stats.Skipped),
				zap.Int("failed", stats.Failed),
			)
		}
	}
	return nil
}

// process runs the admission checks and, when they pass, the fetch and the
// content filter. The politeness delay follows every fetch attempt.
func (e *Engine) process(ctx context.Context, rawURL string) outcome {
	if !IsWellFormedHTTPURL(rawURL) {
		return outcome{decision: Skipped(ReasonNotHTTPURL), logURL: rawURL}
	}
	if IsDisallowed(rawURL, e.cfg.URLPolicy) {
		return outcome{decision: Skipped(ReasonDisallowedByFilters), logURL: rawURL}
	}
	if !e.seen.MarkIfNew(rawURL) {
		return outcome{decision: Skipped(ReasonDuplicateURL), logURL: rawURL}
	}
	if !e.robots.Allowed(ctx, rawURL) {
		return outcome{decision: Skipped(ReasonRobotsDisallow), logURL: rawURL}
	}

	res, err := e.fetcher.Fetch(ctx, rawURL)
	e.pauser.Pause(ctx, e.cfg.Delay)
	if err != nil {
		e.logger.Debug("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return outcome{decision: Failed(ReasonNetworkError), logURL: rawURL}
	}

	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return outcome{decision: Skipped(httpStatusReason(res.StatusCode)), logURL: finalURL}
	}
	return outcome{
		decision: e.filter.Evaluate(res.ContentType, res.Body),
		logURL:   finalURL,
		body:     res.Body,
	}
}

// newRunID returns a time-ordered UUIDv7, or a random one if the v7
// generator fails.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *Engine) record(out outcome, logger *zap.Logger) error {
	metrics.ObserveDecision(string(out.decision.Kind), out.decision.Reason)
	fields := []zap.Field{
		zap.String("url", out.logURL),
		zap.String("decision", string(out.decision.Kind)),
		zap.String("reason", out.decision.Reason),
	}
	switch out.decision.Kind {
	case DecisionAccepted:
		seq := e.store.Stats().Saved + 1
		saved, err := e.store.SavePage(seq, out.logURL, out.body)
		if err != nil {
			return fmt.Errorf("save page %d: %w", seq, err)
		}
		metrics.ObserveSavedPage(saved.FinalURL, len(out.body))
		fields = append(fields, zap.Int("seq", saved.Seq), zap.String("path", saved.Path))
	case DecisionSkipped:
		if err := e.store.LogSkip(out.logURL, out.decision.Reason); err != nil {
			return fmt.Errorf("log skip: %w", err)
		}
	case DecisionFailed:
		if err := e.store.LogFail(out.logURL, out.decision.Reason); err != nil {
			return fmt.Errorf("log failure: %w", err)
		}
	default:
		return fmt.Errorf("unknown decision kind %q", out.decision.Kind)
	}
	logger.Debug("URL decided", fields...)
	return nil
}
