package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the fetcher and the run store.
var (
	ErrNetwork            = errors.New("network error")
	ErrSequenceOutOfOrder = errors.New("sequence number out of order")
	ErrStoreFinalized     = errors.New("run store already finalized")
)

// FetchResult is the outcome of a completed HTTP exchange. Any status code,
// including 4xx and 5xx, is a valid result; transport failures are reported
// as ErrNetwork instead.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        string
	FinalURL    string
	Attempts    int
}

// DecisionKind tags an AcceptanceDecision.
type DecisionKind string

// Decision kinds recorded for every processed URL.
const (
	DecisionAccepted DecisionKind = "accepted"
	DecisionSkipped  DecisionKind = "skipped"
	DecisionFailed   DecisionKind = "failed"
)

// Reasons attached to skip and fail decisions.
const (
	ReasonOK                  = "ok"
	ReasonNotHTTPURL          = "not_http_url"
	ReasonDisallowedByFilters = "disallowed_by_filters"
	ReasonDuplicateURL        = "duplicate_url"
	ReasonRobotsDisallow      = "robots_disallow"
	ReasonNetworkError        = "network_error"
	ReasonHTTP404             = "http_404"
	ReasonNotHTMLContentType  = "not_html_content_type"
	ReasonEmptyBody           = "empty_body"
	ReasonTooSmall            = "too_small"
	ReasonLooksLike404        = "looks_like_404_page"
	ReasonTooFewTargetScript  = "too_few_target_script_chars"
	ReasonScriptRatioTooLow   = "script_ratio_too_low"
)

// Decision is the single terminal classification of one URL.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

// Accepted builds an accepting decision.
func Accepted() Decision { return Decision{Kind: DecisionAccepted, Reason: ReasonOK} }

// Skipped builds a skip decision with reason.
func Skipped(reason string) Decision { return Decision{Kind: DecisionSkipped, Reason: reason} }

// Failed builds a failure decision with reason.
func Failed(reason string) Decision { return Decision{Kind: DecisionFailed, Reason: reason} }

func (d Decision) String() string {
	return fmt.Sprintf("%s(%s)", d.Kind, d.Reason)
}

func httpStatusReason(status int) string {
	if status == 404 {
		return ReasonHTTP404
	}
	return fmt.Sprintf("http_%d", status)
}

// RunStats holds the four run counters persisted to summary.json.
type RunStats struct {
	Requested int `json:"requested"`
	Saved     int `json:"saved"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SavedPage describes one accepted page written by the run store.
type SavedPage struct {
	Seq      int
	FinalURL string
	Path     string
}
