package crawler

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ContentThresholds are the numeric knobs of the page quality check.
type ContentThresholds struct {
	MinBytes       int
	MinScriptChars int
	MinScriptRatio float64
}

// targetScript is the Cyrillic block, U+0400..U+04FF.
var targetScript = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0400, Hi: 0x04ff, Stride: 1}},
}

var (
	notFoundTitle = regexp.MustCompile(`(?i)^\s*404\b|not\s+found|страниц[аы]\s+не\s+найден`)
	notFoundText  = regexp.MustCompile(`(?i)страниц[аы]\s+не\s+найден|page\s+not\s+found|404\s+not\s+found`)
	// Used when the markup cannot be parsed at all.
	notFoundRaw = regexp.MustCompile(`(?i)<title>\s*404|страниц[аы]\s+не\s+найден|page\s+not\s+found`)
)

// page is the view every content stage inspects.
type page struct {
	contentType string
	body        string
}

// contentStage is one named, ordered predicate of the content filter.
type contentStage struct {
	name  string
	check func(p page) (bool, string)
}

// ContentFilter applies the fixed stage order content-type, empty body,
// size, pseudo-404, script heuristic and stops at the first rejection.
type ContentFilter struct {
	thresholds ContentThresholds
	stages     []contentStage
}

// NewContentFilter builds the filter chain for the given thresholds.
func NewContentFilter(t ContentThresholds) *ContentFilter {
	f := &ContentFilter{thresholds: t}
	f.stages = append([]contentStage{{name: "content_type", check: checkContentType}}, pageStages(t)...)
	return f
}

func pageStages(t ContentThresholds) []contentStage {
	return []contentStage{
		{name: "empty_body", check: checkNonEmpty},
		{name: "size", check: func(p page) (bool, string) { return checkSize(p, t.MinBytes) }},
		{name: "pseudo_404", check: checkNotFound},
		{name: "script", check: func(p page) (bool, string) { return checkScript(p, t) }},
	}
}

// StageNames returns the stage names in evaluation order.
func (f *ContentFilter) StageNames() []string {
	names := make([]string, 0, len(f.stages))
	for _, s := range f.stages {
		names = append(names, s.name)
	}
	return names
}

// Evaluate runs every stage in order and returns Accepted or Skipped(reason).
func (f *ContentFilter) Evaluate(contentType, body string) Decision {
	ok, reason := runStages(f.stages, page{contentType: contentType, body: body})
	if !ok {
		return Skipped(reason)
	}
	return Accepted()
}

func runStages(stages []contentStage, p page) (bool, string) {
	for _, stage := range stages {
		if ok, reason := stage.check(p); !ok {
			return false, reason
		}
	}
	return true, ReasonOK
}

// IsHTMLContentType reports whether a Content-Type header value denotes
// HTML. An absent header is assumed to be HTML.
func IsHTMLContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return true
	}
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// IsGoodPage runs the body stages of the filter (everything but the
// content-type check) and returns the verdict with its reason.
func IsGoodPage(markup string, t ContentThresholds) (bool, string) {
	return runStages(pageStages(t), page{body: markup})
}

// ScriptScore returns the number of target-script letters in text and their
// share among all letters of any script.
func ScriptScore(text string) (int, float64) {
	var target, letters int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(targetScript, r) {
			target++
		}
	}
	if letters == 0 {
		return target, 0
	}
	return target, float64(target) / float64(letters)
}

// LooksLikeNotFound reports whether the title or the visible text of the
// document reads like a "page not found" response.
func LooksLikeNotFound(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return notFoundRaw.MatchString(markup)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" && notFoundTitle.MatchString(title) {
		return true
	}
	body := doc.Find("body")
	body.Find("script, style, noscript, template").Remove()
	return notFoundText.MatchString(visibleText(body))
}

// visibleText joins the text nodes under sel with spaces so words from
// adjacent elements stay apart.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		appendText(&b, n)
	}
	return b.String()
}

func appendText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(b, c)
	}
}

func checkContentType(p page) (bool, string) {
	if IsHTMLContentType(p.contentType) {
		return true, ""
	}
	return false, ReasonNotHTMLContentType + ":" + p.contentType
}

func checkNonEmpty(p page) (bool, string) {
	if p.body == "" {
		return false, ReasonEmptyBody
	}
	return true, ""
}

func checkSize(p page, minBytes int) (bool, string) {
	if len(p.body) < minBytes {
		return false, ReasonTooSmall
	}
	return true, ""
}

func checkNotFound(p page) (bool, string) {
	if LooksLikeNotFound(p.body) {
		return false, ReasonLooksLike404
	}
	return true, ""
}

func checkScript(p page, t ContentThresholds) (bool, string) {
	count, ratio := ScriptScore(p.body)
	if count < t.MinScriptChars {
		return false, ReasonTooFewTargetScript
	}
	if ratio < t.MinScriptRatio {
		return false, ReasonScriptRatioTooLow
	}
	return true, ""
}
