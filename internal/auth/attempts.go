package auth

import (
	"sync"
	"time"
)

// attemptState は IP ごとのログイン失敗状況です。
type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// attemptTracker は一定時間内の失敗回数が上限に達した IP を一時的にロックします。
type attemptTracker struct {
	mu       sync.Mutex
	attempts map[string]*attemptState
	window   time.Duration
	lockFor  time.Duration
	max      int
	now      func() time.Time
}

func newAttemptTracker(window, lockFor time.Duration, max int) *attemptTracker {
	return &attemptTracker{
		attempts: make(map[string]*attemptState),
		window:   window,
		lockFor:  lockFor,
		max:      max,
		now:      time.Now,
	}
}

// lockedFor はロック中なら残り時間を返します。
func (t *attemptTracker) lockedFor(ip string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.attempts[ip]
	if !ok {
		return 0
	}
	remaining := state.lockedUntil.Sub(t.now())
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// fail は失敗を記録し、ロックまでの残り回数を返します。
func (t *attemptTracker) fail(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	state, ok := t.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > t.window {
		state = &attemptState{firstAttempt: now}
		t.attempts[ip] = state
	}

	state.count++
	if state.count >= t.max {
		state.count = t.max
		state.lockedUntil = now.Add(t.lockFor)
	}
	return t.max - state.count
}

func (t *attemptTracker) reset(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, ip)
}
