package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*loginLimiter, *time.Time) {
	current := start
	limiter := newLoginLimiter()
	limiter.now = func() time.Time { return current }
	return limiter, &current
}

func TestLimiterLocksAfterMaxFailures(t *testing.T) {
	limiter, _ := newTestLimiter(time.Unix(1_700_000_000, 0))

	for i := 0; i < maxLoginAttempts; i++ {
		ok, _ := limiter.allow("brute")
		require.True(t, ok, "attempt %d should pass the gate", i+1)
		limiter.record("brute", false)
	}

	ok, minutes := limiter.allow("brute")
	require.False(t, ok)
	require.Equal(t, 15, minutes)
}

func TestLockoutDominatesCorrectPassword(t *testing.T) {
	limiter, now := newTestLimiter(time.Unix(1_700_000_000, 0))

	for i := 0; i < maxLoginAttempts; i++ {
		limiter.record("brute", false)
	}

	// The gate runs before any credential check, so even a correct password
	// never reaches verification while the lock holds.
	ok, _ := limiter.allow("brute")
	require.False(t, ok)

	*now = now.Add(14 * time.Minute)
	ok, minutes := limiter.allow("brute")
	require.False(t, ok)
	require.Equal(t, 1, minutes)

	*now = now.Add(time.Minute + time.Second)
	ok, _ = limiter.allow("brute")
	require.True(t, ok, "lockout must expire")
}

func TestLimiterRemainingMinutesRoundUp(t *testing.T) {
	limiter, now := newTestLimiter(time.Unix(1_700_000_000, 0))
	for i := 0; i < maxLoginAttempts; i++ {
		limiter.record("brute", false)
	}
	*now = now.Add(30 * time.Second)
	ok, minutes := limiter.allow("brute")
	require.False(t, ok)
	require.Equal(t, 15, minutes, "14m30s remaining rounds up to 15")
}

func TestLimiterSuccessResets(t *testing.T) {
	limiter, _ := newTestLimiter(time.Unix(1_700_000_000, 0))

	for i := 0; i < maxLoginAttempts-1; i++ {
		limiter.record("alice", false)
	}
	limiter.record("alice", true)

	for i := 0; i < maxLoginAttempts-1; i++ {
		limiter.record("alice", false)
	}
	ok, _ := limiter.allow("alice")
	require.True(t, ok, "counter must restart after a success")
}

func TestLimiterWindowExpiry(t *testing.T) {
	limiter, now := newTestLimiter(time.Unix(1_700_000_000, 0))

	for i := 0; i < maxLoginAttempts-1; i++ {
		limiter.record("alice", false)
	}
	*now = now.Add(attemptWindow + time.Second)

	ok, _ := limiter.allow("alice")
	require.True(t, ok)
	// The stale window was discarded; one more failure must not lock.
	limiter.record("alice", false)
	ok, _ = limiter.allow("alice")
	require.True(t, ok)
}

func TestLimiterIsolatesUsernames(t *testing.T) {
	limiter, _ := newTestLimiter(time.Unix(1_700_000_000, 0))
	for i := 0; i < maxLoginAttempts; i++ {
		limiter.record("brute", false)
	}
	ok, _ := limiter.allow("other")
	require.True(t, ok)
}

func TestLimiterConcurrentAccess(t *testing.T) {
	limiter := newLoginLimiter()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				limiter.allow("shared")
				limiter.record("shared", j%2 == 0)
			}
		}()
	}
	wg.Wait()
}
