package crawler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingPauser remembers requested delays instead of sleeping.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
}

func (p *recordingPauser) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func TestConcurrentVisitTracker(t *testing.T) {
	tracker := newConcurrentVisitTracker()
	require.True(t, tracker.MarkIfNew("https://example.org/first"))
	require.False(t, tracker.MarkIfNew("https://example.org/first"))
	require.True(t, tracker.MarkIfNew("https://example.org/second"))
	require.False(t, tracker.MarkIfNew(""))
}

func TestConcurrentVisitTrackerAdmitsOnce(t *testing.T) {
	tracker := newConcurrentVisitTracker()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.MarkIfNew("https://example.org/same") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, admitted)
}

func TestTimerPauseControllerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pauser := &timerPauseController{}
	start := time.Now()
	pauser.Pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestLinearRetryPolicy(t *testing.T) {
	p := NewLinearRetryPolicy(2, 600*time.Millisecond)
	ctx := context.Background()
	errBoom := ErrNetwork

	require.Equal(t, 3, p.MaxAttempts())
	require.True(t, p.ShouldRetry(ctx, errBoom, 1))
	require.True(t, p.ShouldRetry(ctx, errBoom, 2))
	require.False(t, p.ShouldRetry(ctx, errBoom, 3))
	require.False(t, p.ShouldRetry(ctx, nil, 1))

	require.Equal(t, 600*time.Millisecond, p.Backoff(1))
	require.Equal(t, 1200*time.Millisecond, p.Backoff(2))
	require.Zero(t, p.Backoff(0))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.False(t, p.ShouldRetry(canceled, errBoom, 1))

	require.Equal(t, 1, NewLinearRetryPolicy(-3, time.Second).MaxAttempts())
}
