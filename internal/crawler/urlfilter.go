package crawler

import (
	"net/url"
	"path"
	"strings"
)

// EncyclopediaDomains are excluded when URLPolicy.SkipEncyclopedias is set.
var EncyclopediaDomains = []string{"wikipedia.org", "wikimedia.org"}

// blockedExtensions lists path suffixes that never lead to an HTML document.
var blockedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".ico": {},
	".pdf": {}, ".zip": {}, ".rar": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {},
	".css": {}, ".js": {},
}

// URLPolicy configures which well-formed URLs are refused before any I/O.
type URLPolicy struct {
	SkipEncyclopedias bool
	ExtraDomains      []string

	hosts *hostBlocklist
}

// NewURLPolicy compiles the host blocklist for the policy.
func NewURLPolicy(skipEncyclopedias bool, extraDomains []string) URLPolicy {
	p := URLPolicy{SkipEncyclopedias: skipEncyclopedias, ExtraDomains: extraDomains}
	p.hosts = newHostBlocklist(p.patterns())
	return p
}

func (p URLPolicy) patterns() []string {
	patterns := append([]string(nil), p.ExtraDomains...)
	if p.SkipEncyclopedias {
		patterns = append(patterns, EncyclopediaDomains...)
	}
	return patterns
}

// blocklist returns the compiled host blocklist, compiling it from the
// exported fields for policies not built by NewURLPolicy.
func (p URLPolicy) blocklist() *hostBlocklist {
	if p.hosts != nil {
		return p.hosts
	}
	return newHostBlocklist(p.patterns())
}

// IsWellFormedHTTPURL reports whether raw parses as an absolute http(s) URL
// with a non-empty host. Unparseable input is simply not well-formed.
func IsWellFormedHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// IsDisallowed reports whether raw points at an excluded host or at a path
// ending in a blocklisted extension (query string ignored).
func IsDisallowed(raw string, policy URLPolicy) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return true
	}
	if policy.blocklist().IsBlocked(u.Hostname()) {
		return true
	}
	return hasBlockedExtension(u.Path)
}

func hasBlockedExtension(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, blocked := blockedExtensions[ext]
	return blocked
}

// hostBlocklist matches a host against domains and all of their subdomains.
// A leading "*." or "." on a pattern is accepted and ignored.
type hostBlocklist struct {
	domains []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	b := &hostBlocklist{}
	seen := make(map[string]struct{}, len(patterns))
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(value, "*")
		value = strings.TrimPrefix(value, ".")
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		b.domains = append(b.domains, value)
	}
	if len(b.domains) == 0 {
		return nil
	}
	return b
}

func (b *hostBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	for _, domain := range b.domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
