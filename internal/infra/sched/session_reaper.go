package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reaper is what SessionReaper needs from the session registry.
type Reaper interface {
	Reap(now time.Time, ttl time.Duration) int
}

// SessionReaper periodically closes chat sessions that sat idle past their TTL.
type SessionReaper struct {
	interval time.Duration
	ttl      time.Duration
	sessions Reaper
	now      func() time.Time
	log      *zerolog.Logger
}

func NewSessionReaper(interval, ttl time.Duration, sessions Reaper, logger *zerolog.Logger) *SessionReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "SessionReaper").Logger()
	return &SessionReaper{
		interval: interval,
		ttl:      ttl,
		sessions: sessions,
		now:      time.Now,
		log:      &l,
	}
}

func (w *SessionReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("ttl", w.ttl).Msg("Starting session reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session reaper")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs a single sweep and returns how many sessions were closed.
func (w *SessionReaper) RunOnce() int {
	n := w.sessions.Reap(w.now(), w.ttl)
	if n > 0 {
		w.log.Info().Int("count", n).Msg("idle chat sessions closed")
	}
	return n
}
