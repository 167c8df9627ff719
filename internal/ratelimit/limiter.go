package ratelimit

import (
	"context"
	"sync"
	"time"

	"arena-tracker/internal/constants"

	"github.com/rs/zerolog"
)

// BucketMatchIDs selects the high-volume profile used by the match-id listing.
const BucketMatchIDs = "matchIds"

type Window struct {
	Limit  int
	Period time.Duration
}

type WindowStatus struct {
	Limit     int           `json:"limit"`
	Period    time.Duration `json:"period"`
	Used      int           `json:"used"`
	Remaining int           `json:"remaining"`
}

func DefaultProfile() []Window {
	return []Window{
		{Limit: constants.RequestsPerSec, Period: time.Second},
		{Limit: constants.RequestsPerMin, Period: time.Minute},
	}
}

func MatchIDsProfile() []Window {
	return []Window{
		{Limit: constants.MatchIDsPer10Sec, Period: 10 * time.Second},
	}
}

// Limiter keeps one log of issue times shared by every profile. Acquire calls
// are served one at a time in arrival order.
type Limiter struct {
	clock    Clock
	profiles map[string][]Window
	fallback []Window
	horizon  time.Duration
	slot     chan struct{}
	mu       sync.Mutex
	log      []time.Time
	logger   zerolog.Logger
}

func NewLimiter(clock Clock, logger zerolog.Logger) *Limiter {
	return NewWithProfiles(clock, DefaultProfile(), map[string][]Window{BucketMatchIDs: MatchIDsProfile()}, logger)
}

func NewWithProfiles(clock Clock, fallback []Window, profiles map[string][]Window, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		clock:    clock,
		profiles: profiles,
		fallback: fallback,
		slot:     make(chan struct{}, 1),
		logger:   logger,
	}
	for _, w := range fallback {
		l.horizon = max(l.horizon, w.Period)
	}
	for _, windows := range profiles {
		for _, w := range windows {
			l.horizon = max(l.horizon, w.Period)
		}
	}
	return l
}

// Acquire blocks until a request in bucket would stay inside every window of
// its profile, then records the issue time. An unknown bucket uses the
// default profile.
func (l *Limiter) Acquire(ctx context.Context, bucket string) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	windows := l.windowsFor(bucket)
	for {
		wait := l.reserve(windows)
		if wait <= 0 {
			return nil
		}

		l.logger.Debug().
			Str("bucket", bucket).
			Dur("wait", wait).
			Msg("rate limit reached, waiting")

		select {
		case <-l.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Limiter) windowsFor(bucket string) []Window {
	if windows, ok := l.profiles[bucket]; ok {
		return windows
	}
	return l.fallback
}

// reserve records a request and returns zero when every window has room,
// otherwise the time until the oldest offending entry leaves its window.
func (l *Limiter) reserve(windows []Window) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	var wait time.Duration
	for _, w := range windows {
		inside, oldest := l.count(now, w.Period)
		if inside < w.Limit {
			continue
		}
		wait = max(wait, w.Period-now.Sub(oldest))
	}
	if wait > 0 {
		return wait
	}

	l.log = append(l.log, now)
	return 0
}

func (l *Limiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.log) && now.Sub(l.log[keep]) >= l.horizon {
		keep++
	}
	l.log = l.log[keep:]
}

// count returns the entries younger than period and the oldest of them.
func (l *Limiter) count(now time.Time, period time.Duration) (int, time.Time) {
	for i, t := range l.log {
		if now.Sub(t) < period {
			return len(l.log) - i, t
		}
	}
	return 0, time.Time{}
}

// Status reports current usage per bucket. The default profile is keyed by "".
func (l *Limiter) Status() map[string][]WindowStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	status := make(map[string][]WindowStatus, len(l.profiles)+1)
	status[""] = l.windowStatus(now, l.fallback)
	for bucket, windows := range l.profiles {
		status[bucket] = l.windowStatus(now, windows)
	}
	return status
}

func (l *Limiter) windowStatus(now time.Time, windows []Window) []WindowStatus {
	out := make([]WindowStatus, 0, len(windows))
	for _, w := range windows {
		used, _ := l.count(now, w.Period)
		out = append(out, WindowStatus{
			Limit:     w.Limit,
			Period:    w.Period,
			Used:      used,
			Remaining: max(w.Limit-used, 0),
		})
	}
	return out
}
