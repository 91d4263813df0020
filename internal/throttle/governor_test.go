package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/metrics"
)

func TestGovernorPausesEveryNthAttempt(t *testing.T) {
	metrics.Init()

	rec := &recordingPauser{}
	g := New(Config{RequestsBeforePause: 3, PauseDuration: 30 * time.Second}, zap.NewNop())
	g.pauser = rec

	ctx := context.Background()
	for i := 1; i <= 9; i++ {
		require.NoError(t, g.BeforeAttempt(ctx))
		want := i / 3
		require.Equal(t, want, rec.count(), "after attempt %d", i)
	}
	require.Equal(t, int64(9), g.Count())
	for _, delay := range rec.delays() {
		require.Equal(t, 30*time.Second, delay)
	}
}

func TestGovernorDisabledThreshold(t *testing.T) {
	metrics.Init()

	rec := &recordingPauser{}
	g := New(Config{RequestsBeforePause: 0, PauseDuration: time.Minute}, zap.NewNop())
	g.pauser = rec

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, g.BeforeAttempt(ctx))
	}
	require.Zero(t, rec.count(), "disabled threshold must never pause")
	require.Equal(t, int64(20), g.Count())
}

func TestGovernorZeroPauseDuration(t *testing.T) {
	metrics.Init()

	rec := &recordingPauser{}
	g := New(Config{RequestsBeforePause: 2, PauseDuration: 0}, zap.NewNop())
	g.pauser = rec

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, g.BeforeAttempt(ctx))
	}
	require.Zero(t, rec.count(), "zero pause duration must be a no-op")
}

func TestGovernorSharedAcrossWorkers(t *testing.T) {
	metrics.Init()

	rec := &recordingPauser{}
	g := New(Config{RequestsBeforePause: 10, PauseDuration: time.Second}, zap.NewNop())
	g.pauser = rec

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := g.BeforeAttempt(ctx); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(200), g.Count())
	require.Equal(t, 20, rec.count(), "200 attempts with threshold 10 should pause 20 times")
}

func TestGovernorContextCanceled(t *testing.T) {
	metrics.Init()

	g := New(Config{RequestsBeforePause: 5, PauseDuration: time.Minute}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.BeforeAttempt(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCooldownDuration(t *testing.T) {
	metrics.Init()

	rec := &recordingPauser{}
	g := New(Config{Cooldown: 45 * time.Second}, zap.NewNop())
	g.pauser = rec

	require.NoError(t, g.Cooldown(context.Background()))
	require.Equal(t, 1, rec.count())
	require.Equal(t, 45*time.Second, rec.delays()[0])
}

func TestCooldownZeroIsNoop(t *testing.T) {
	metrics.Init()

	rec := &recordingPauser{}
	g := New(Config{}, zap.NewNop())
	g.pauser = rec

	require.NoError(t, g.Cooldown(context.Background()))
	require.Zero(t, rec.count())
}

func TestTimerPauserHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	timerPauser{}.Pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

// recordingPauser captures pause requests instead of sleeping.
type recordingPauser struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (r *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses = append(r.pauses, delay)
}

func (r *recordingPauser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pauses)
}

func (r *recordingPauser) delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.pauses))
	copy(out, r.pauses)
	return out
}
