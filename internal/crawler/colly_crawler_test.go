package crawler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body>
<a href="/story/1">one</a>
<a href="/story/1#comments">one again</a>
<a href="story/2">two</a>
<a href="https://other.example.ru/x">external</a>
<a href="/logo.png">logo</a>
<a href="mailto:editor@example.ru">mail</a>
<a href="javascript:void(0)">js</a>
<a href="tel:+70000000000">call</a>
<a href="#top">top</a>
<a href="ftp://files.example.ru/a">ftp</a>
</body></html>`)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/section/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/section/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body><a href="item">item</a></body></html>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestLinkCollector(cfg LinkCollectorConfig) (*LinkCollector, *recordingPauser) {
	c := NewLinkCollector(cfg, zap.NewNop())
	pauser := &recordingPauser{}
	c.pauser = pauser
	return c, pauser
}

func TestLinkCollectorCollectsAbsoluteLinks(t *testing.T) {
	srv := newSeedServer(t)
	c, pauser := newTestLinkCollector(LinkCollectorConfig{Timeout: 5 * time.Second, Delay: time.Second, MaxLinks: 100})

	links, err := c.Collect(context.Background(), []string{
		srv.URL + "/news",
		"not-a-url",
		srv.URL + "/missing",
		srv.URL + "/moved",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		srv.URL + "/story/1",
		srv.URL + "/story/2",
		"https://other.example.ru/x",
		srv.URL + "/news",
		srv.URL + "/section/item",
	}, links)
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, pauser.Delays(),
		"one pause per fetched seed, none for malformed seeds")
}

func TestLinkCollectorSameDomain(t *testing.T) {
	srv := newSeedServer(t)
	c, _ := newTestLinkCollector(LinkCollectorConfig{Timeout: 5 * time.Second, MaxLinks: 100, SameDomain: true})

	links, err := c.Collect(context.Background(), []string{srv.URL + "/news"})
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/story/1", srv.URL + "/story/2", srv.URL + "/news"}, links)
}

func TestLinkCollectorStopsAtMaxLinks(t *testing.T) {
	srv := newSeedServer(t)
	c, pauser := newTestLinkCollector(LinkCollectorConfig{Timeout: 5 * time.Second, MaxLinks: 1})

	links, err := c.Collect(context.Background(), []string{srv.URL + "/news", srv.URL + "/moved"})
	require.NoError(t, err)
	require.Equal(t, []string{srv.URL + "/story/1"}, links)
	require.Len(t, pauser.Delays(), 1)
}

func TestResolveLink(t *testing.T) {
	base, err := url.Parse("https://example.ru/dir/page")
	require.NoError(t, err)

	tests := []struct {
		href   string
		want   string
		wantOK bool
	}{
		{"child", "https://example.ru/dir/child", true},
		{"/root#frag", "https://example.ru/root", true},
		{"  ../up  ", "https://example.ru/up", true},
		{"//cdn.example.ru/a", "https://cdn.example.ru/a", true},
		{"MAILTO:x@example.ru", "", false},
		{"javascript:alert(1)", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := resolveLink(base, tc.href)
		require.Equal(t, tc.wantOK, ok, tc.href)
		require.Equal(t, tc.want, got, tc.href)
	}
}
