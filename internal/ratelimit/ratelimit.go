package ratelimit

import (
	"sync"
	"time"
)

// Limiter est une fenêtre glissante en mémoire, par utilisateur. Throttling
// consultatif seulement : un redémarrage du process remet tout à zéro.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	period   time.Duration
	calls    map[int64][]time.Time

	now func() time.Time
}

func New(maxCalls int, period time.Duration) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		period:   period,
		calls:    make(map[int64][]time.Time),
		now:      time.Now,
	}
}

// Allow accepte ou rejette une action pour cet utilisateur. Une action
// rejetée n'est pas comptée dans la fenêtre.
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.period)

	recent := l.calls[userID][:0]
	for _, t := range l.calls[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.maxCalls {
		l.calls[userID] = recent
		return false
	}

	l.calls[userID] = append(recent, now)
	return true
}
