package server

import (
	"math"
	"sync"
	"time"
)

const (
	maxLoginAttempts = 5
	attemptWindow    = 5 * time.Minute
	lockoutDuration  = 15 * time.Minute
)

// loginLimiter bounds failed login attempts per username with a sliding window
// and a lockout. State is in-memory only; a process restart clears it.
type loginLimiter struct {
	mu      sync.Mutex
	entries map[string]*attemptState
	now     func() time.Time
}

type attemptState struct {
	attempts    int
	firstAt     time.Time
	lockedUntil time.Time
}

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{
		entries: make(map[string]*attemptState),
		now:     time.Now,
	}
}

// allow reports whether username may attempt a login. When denied it returns
// the remaining lockout rounded up to whole minutes. The caller must hold no
// locks; allow and record share one mutex so the compound read-modify-write
// stays consistent under concurrent workers.
func (l *loginLimiter) allow(username string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.entries[username]
	if !ok {
		return true, 0
	}
	if !state.lockedUntil.IsZero() {
		if now.Before(state.lockedUntil) {
			remaining := int(math.Ceil(state.lockedUntil.Sub(now).Minutes()))
			if remaining < 1 {
				remaining = 1
			}
			return false, remaining
		}
		delete(l.entries, username)
		return true, 0
	}
	if now.Sub(state.firstAt) > attemptWindow {
		delete(l.entries, username)
	}
	return true, 0
}

// record notes the outcome of an attempt that passed the gate. Success clears
// the counter; the fifth failure inside the window locks the account.
func (l *loginLimiter) record(username string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.entries, username)
		return
	}

	now := l.now()
	state, ok := l.entries[username]
	if !ok {
		state = &attemptState{firstAt: now}
		l.entries[username] = state
	}
	state.attempts++
	if state.attempts >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockoutDuration)
	}
}
