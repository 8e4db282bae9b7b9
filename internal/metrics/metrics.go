// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestDecisionsTotal     *prometheus.CounterVec
	harvestFetchAttemptsTotal *prometheus.CounterVec
	harvestRobotsFetchesTotal *prometheus.CounterVec
	harvestSavedPagesTotal    *prometheus.CounterVec
	harvestSavedBytesTotal    *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_decisions_total",
				Help: "Total number of URL decisions, labeled by decision and reason.",
			},
			[]string{"decision", "reason"},
		)

		harvestFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "Total number of page fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestRobotsFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_robots_fetches_total",
				Help: "Total number of robots.txt fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestSavedPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_saved_pages_total",
				Help: "Total number of pages saved, labeled by site.",
			},
			[]string{"site"},
		)

		harvestSavedBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_saved_bytes_total",
				Help: "Total number of page bytes saved, labeled by site.",
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ReasonLabel drops the free-form detail after a colon so label
// cardinality stays bounded ("not_html_content_type:image/png" becomes
// "not_html_content_type").
func ReasonLabel(reason string) string {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		return reason[:i]
	}
	return reason
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDecision counts one final decision for a URL.
func ObserveDecision(decision, reason string) {
	Init()
	harvestDecisionsTotal.WithLabelValues(decision, ReasonLabel(reason)).Inc()
}

// ObserveFetchAttempt counts one HTTP attempt; outcome is "ok" or "error".
func ObserveFetchAttempt(outcome string) {
	Init()
	harvestFetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRobotsFetch counts one robots.txt retrieval.
func ObserveRobotsFetch(outcome string) {
	Init()
	harvestRobotsFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSavedPage increments the saved page metrics for the page's site.
func ObserveSavedPage(pageURL string, bytesSaved int) {
	Init()
	site := SanitizeSite(pageURL)
	harvestSavedPagesTotal.WithLabelValues(site).Inc()
	if bytesSaved > 0 {
		harvestSavedBytesTotal.WithLabelValues(site).Add(float64(bytesSaved))
	}
}
