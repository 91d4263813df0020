// Package throttle applies the global request pacing shared by every
// extraction worker: a counter-based pause after every Nth recognition
// attempt and the failure cooldown inserted before retries.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagelift/pagelift/internal/metrics"
)

// pauser abstracts how a task suspends, so tests can observe pauses
// without sleeping.
type pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauser struct{}

func (timerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Config holds throttle settings.
type Config struct {
	// RequestsBeforePause is the threshold T: every Tth attempt across all
	// workers pauses the caller. Zero or negative disables the throttle.
	RequestsBeforePause int
	// PauseDuration is how long a triggered pause lasts. Zero is a no-op.
	PauseDuration time.Duration
	// Cooldown is the failure-triggered wait applied before every retry.
	Cooldown time.Duration
	// RPS, when positive, adds a steady requests-per-second ceiling under
	// the counter throttle. Zero leaves only the counter throttle active.
	RPS   float64
	Burst int
}

// Governor tracks the global attempt count across all concurrent workers
// and suspends a caller whenever the count crosses the configured
// threshold. One governor is shared per run. Only the calling task is
// suspended; the counter stays available to every other worker for the
// whole pause.
type Governor struct {
	mu        sync.Mutex
	count     int64
	threshold int
	pause     time.Duration
	cooldown  time.Duration
	limiter   *rate.Limiter
	pauser    pauser
	logger    *zap.Logger
}

// New creates a Governor from cfg.
func New(cfg Config, logger *zap.Logger) *Governor {
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Governor{
		threshold: cfg.RequestsBeforePause,
		pause:     cfg.PauseDuration,
		cooldown:  cfg.Cooldown,
		limiter:   limiter,
		pauser:    timerPauser{},
		logger:    logger,
	}
}

// BeforeAttempt increments the shared counter and, on every threshold-th
// attempt, pauses the caller for the configured duration. The increment
// happens under the lock; the pause itself does not hold the lock, so
// other workers keep incrementing while one sleeps.
func (g *Governor) BeforeAttempt(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate wait: %w", err)
		}
	}

	g.mu.Lock()
	g.count++
	n := g.count
	hit := g.threshold > 0 && n%int64(g.threshold) == 0
	g.mu.Unlock()

	if hit && g.pause > 0 {
		g.logger.Debug("throttle pause",
			zap.Int64("request", n),
			zap.Duration("pause", g.pause),
		)
		start := time.Now()
		g.pauser.Pause(ctx, g.pause)
		metrics.ObserveThrottlePause(time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("throttle interrupted: %w", err)
	}
	return nil
}

// Cooldown suspends the caller for the failure cooldown. The retry
// controller calls this before every retry, including the first.
func (g *Governor) Cooldown(ctx context.Context) error {
	if g.cooldown > 0 {
		g.pauser.Pause(ctx, g.cooldown)
		metrics.ObserveRetryCooldown()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cooldown interrupted: %w", err)
	}
	return nil
}

// Count returns the number of attempts admitted so far.
func (g *Governor) Count() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}
