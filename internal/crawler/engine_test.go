package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(FetchResult), args.Error(1)
}

// MockPermissionChecker is a mock implementation of the PermissionChecker interface.
type MockPermissionChecker struct {
	mock.Mock
}

func (m *MockPermissionChecker) Allowed(ctx context.Context, rawURL string) bool {
	args := m.Called(ctx, rawURL)
	return args.Bool(0)
}

// MockStore is a mock implementation of the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) MarkRequested() { m.Called() }

func (m *MockStore) SavePage(seq int, finalURL, html string) (SavedPage, error) {
	args := m.Called(seq, finalURL, html)
	return args.Get(0).(SavedPage), args.Error(1)
}

func (m *MockStore) LogSkip(rawURL, reason string) error {
	return m.Called(rawURL, reason).Error(0)
}

func (m *MockStore) LogFail(rawURL, reason string) error {
	return m.Called(rawURL, reason).Error(0)
}

func (m *MockStore) Stats() RunStats {
	return m.Called().Get(0).(RunStats)
}

func (m *MockStore) Finalize() error {
	return m.Called().Error(0)
}

func okPage(rawURL string) FetchResult {
	return FetchResult{
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        russianPage(3000),
		FinalURL:    rawURL,
		Attempts:    1,
	}
}

type engineHarness struct {
	root    string
	store   *RunStore
	fetcher *MockFetcher
	robots  *MockPermissionChecker
	pauser  *recordingPauser
	engine  *Engine
}

func newEngineHarness(t *testing.T, cfg EngineConfig) *engineHarness {
	t.Helper()
	root := t.TempDir()
	store, err := NewRunStore(root, nil)
	require.NoError(t, err)
	h := &engineHarness{
		root:    root,
		store:   store,
		fetcher: new(MockFetcher),
		robots:  new(MockPermissionChecker),
		pauser:  &recordingPauser{},
	}
	cfg.URLPolicy.SkipEncyclopedias = true
	h.engine = NewEngine(cfg, h.fetcher, h.robots, NewContentFilter(defaultThresholds), store, nil)
	h.engine.pauser = h.pauser
	return h
}

func (h *engineHarness) pageFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.root, PagesDirName, "*.html"))
	require.NoError(t, err)
	return matches
}

func TestEngineStopsAtLimit(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{Limit: 5, Delay: time.Second})
	var urls []string
	for i := 1; i <= 20; i++ {
		u := fmt.Sprintf("https://news.example.ru/story/%d", i)
		urls = append(urls, u)
		h.robots.On("Allowed", mock.Anything, u).Return(true).Maybe()
		h.fetcher.On("Fetch", mock.Anything, u).Return(okPage(u), nil).Maybe()
	}

	require.NoError(t, h.engine.Run(context.Background(), urls))

	h.fetcher.AssertNumberOfCalls(t, "Fetch", 5)
	require.Equal(t, RunStats{Requested: 5, Saved: 5}, readSummary(t, h.root))
	require.Len(t, h.pageFiles(t), 5)

	manifest := readLines(t, filepath.Join(h.root, ManifestName))
	require.Len(t, manifest, 5)
	for i, line := range manifest {
		require.Equal(t, fmt.Sprintf("%06d\thttps://news.example.ru/story/%d", i+1, i+1), line)
	}
	require.Len(t, h.pauser.Delays(), 5)
	for _, d := range h.pauser.Delays() {
		require.Equal(t, time.Second, d)
	}
}

func TestEngineSkipsDuplicatesWithoutRefetching(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{Limit: 10})
	u := "https://a.ru/x"
	h.robots.On("Allowed", mock.Anything, u).Return(true).Once()
	h.fetcher.On("Fetch", mock.Anything, u).Return(FetchResult{StatusCode: http.StatusOK, Body: "tiny", FinalURL: u}, nil).Once()

	require.NoError(t, h.engine.Run(context.Background(), []string{u, u}))

	h.fetcher.AssertExpectations(t)
	h.robots.AssertExpectations(t)
	require.Equal(t, []string{
		"SKIP\ttoo_small\thttps://a.ru/x",
		"SKIP\tduplicate_url\thttps://a.ru/x",
	}, readLines(t, filepath.Join(h.root, ErrorLogName)))
	require.Equal(t, RunStats{Requested: 2, Skipped: 2}, readSummary(t, h.root))
}

func TestEngineRoutesEveryURLToOneOutcome(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{Limit: 100})
	h.robots.On("Allowed", mock.Anything, "https://blocked.ru/private").Return(false)
	h.robots.On("Allowed", mock.Anything, mock.Anything).Return(true)

	h.fetcher.On("Fetch", mock.Anything, "https://good.ru/1").
		Return(FetchResult{StatusCode: http.StatusOK, Body: russianPage(3000), FinalURL: "https://good.ru/1-final"}, nil)
	h.fetcher.On("Fetch", mock.Anything, "https://good.ru/2").Return(okPage("https://good.ru/2"), nil)
	h.fetcher.On("Fetch", mock.Anything, "https://gone.ru/").
		Return(FetchResult{StatusCode: http.StatusNotFound, FinalURL: "https://gone.ru/"}, nil)
	h.fetcher.On("Fetch", mock.Anything, "https://busy.ru/").
		Return(FetchResult{StatusCode: http.StatusServiceUnavailable, FinalURL: "https://busy.ru/"}, nil)
	h.fetcher.On("Fetch", mock.Anything, "https://img.ru/pic").
		Return(FetchResult{StatusCode: http.StatusOK, ContentType: "image/png", Body: "png", FinalURL: "https://img.ru/pic"}, nil)
	h.fetcher.On("Fetch", mock.Anything, "https://latin.ru/").
		Return(FetchResult{StatusCode: http.StatusOK, Body: russianPage(250) + strings.Repeat("a", 6000), FinalURL: "https://latin.ru/"}, nil)
	h.fetcher.On("Fetch", mock.Anything, "https://down.ru/").
		Return(FetchResult{Attempts: 3}, fmt.Errorf("%w: connection refused", ErrNetwork))

	urls := []string{
		"ftp://files.ru/a",
		"https://ru.wikipedia.org/wiki/Москва",
		"https://good.ru/report.pdf",
		"https://blocked.ru/private",
		"https://good.ru/1",
		"https://gone.ru/",
		"https://busy.ru/",
		"https://img.ru/pic",
		"https://latin.ru/",
		"https://down.ru/",
		"https://good.ru/2",
	}
	require.NoError(t, h.engine.Run(context.Background(), urls))

	stats := readSummary(t, h.root)
	require.Equal(t, len(urls), stats.Requested)
	require.Equal(t, stats.Requested, stats.Saved+stats.Skipped+stats.Failed)
	require.Equal(t, RunStats{Requested: 11, Saved: 2, Skipped: 8, Failed: 1}, stats)

	require.Equal(t, []string{
		"000001\thttps://good.ru/1-final",
		"000002\thttps://good.ru/2",
	}, readLines(t, filepath.Join(h.root, ManifestName)))
	require.Equal(t, []string{
		"SKIP\tnot_http_url\tftp://files.ru/a",
		"SKIP\tdisallowed_by_filters\thttps://ru.wikipedia.org/wiki/Москва",
		"SKIP\tdisallowed_by_filters\thttps://good.ru/report.pdf",
		"SKIP\trobots_disallow\thttps://blocked.ru/private",
		"SKIP\thttp_404\thttps://gone.ru/",
		"SKIP\thttp_503\thttps://busy.ru/",
		"SKIP\tnot_html_content_type:image/png\thttps://img.ru/pic",
		"SKIP\tscript_ratio_too_low\thttps://latin.ru/",
		"FAIL\tnetwork_error\thttps://down.ru/",
	}, readLines(t, filepath.Join(h.root, ErrorLogName)))
	require.Len(t, h.pageFiles(t), 2)
	// One pause per fetch: 2 saved, 404, 503, png, latin, network failure.
	require.Len(t, h.pauser.Delays(), 7)
}

func TestEngineWithoutRobotsAllowsEverything(t *testing.T) {
	root := t.TempDir()
	store, err := NewRunStore(root, nil)
	require.NoError(t, err)
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://a.ru/").Return(okPage("https://a.ru/"), nil)

	engine := NewEngine(EngineConfig{Limit: 1, URLPolicy: NewURLPolicy(true, nil)}, fetcher, nil,
		NewContentFilter(defaultThresholds), store, nil)
	engine.pauser = &recordingPauser{}
	require.NoError(t, engine.Run(context.Background(), []string{"https://a.ru/", "https://b.ru/"}))

	require.Equal(t, RunStats{Requested: 1, Saved: 1}, readSummary(t, root))
	fetcher.AssertExpectations(t)
}

func TestEngineReturnsStoreErrorsAndFinalizes(t *testing.T) {
	store := new(MockStore)
	store.On("Stats").Return(RunStats{})
	store.On("MarkRequested").Return()
	store.On("LogSkip", "not a url", ReasonNotHTTPURL).Return(errors.New("disk full"))
	store.On("Finalize").Return(nil).Once()

	engine := NewEngine(EngineConfig{Limit: 10}, new(MockFetcher), nil, NewContentFilter(defaultThresholds), store, nil)
	err := engine.Run(context.Background(), []string{"not a url", "https://never.ru/"})
	require.ErrorContains(t, err, "disk full")
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "MarkRequested", 1)
}

func TestEngineStopsOnCanceledContext(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{Limit: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.engine.Run(ctx, []string{"https://a.ru/"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, RunStats{}, readSummary(t, h.root))
	h.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestEngineFinalizesEmptyRun(t *testing.T) {
	h := newEngineHarness(t, EngineConfig{Limit: 10})
	require.NoError(t, h.engine.Run(context.Background(), nil))

	require.Equal(t, RunStats{}, readSummary(t, h.root))
	info, err := os.Stat(filepath.Join(h.root, ManifestName))
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestNewRunIDIsTimeOrderedUUID(t *testing.T) {
	first, err := uuid.Parse(newRunID())
	require.NoError(t, err)
	second, err := uuid.Parse(newRunID())
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), first.Version())
	require.NotEqual(t, first, second)
}
