// Package lockout tracks per-IP login failures and enforces a temporary
// lockout window after repeated bad attempts.
package lockout

import (
	"sync"
	"time"
)

type entry struct {
	failCount    int
	lockoutUntil time.Time // zero value means no active lockout
}

// Tracker enforces a lockout window after maxAttempts consecutive
// failures from the same IP. maxAttempts == 0 disables the feature
// entirely.
type Tracker struct {
	mu          sync.Mutex
	attempts    map[string]*entry
	maxAttempts int
	lockoutDur  time.Duration
}

// New creates a login-attempt tracker. maxAttempts == 0 disables
// lockout (Check always returns true).
func New(maxAttempts int, lockoutSecs int) *Tracker {
	return &Tracker{
		attempts:    make(map[string]*entry),
		maxAttempts: maxAttempts,
		lockoutDur:  time.Duration(lockoutSecs) * time.Second,
	}
}

// Check reports whether ip is currently allowed to attempt a login.
func (t *Tracker) Check(ip string) bool {
	if t.maxAttempts == 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.attempts[ip]
	if !ok {
		return true
	}
	if e.lockoutUntil.IsZero() {
		return true
	}
	return time.Now().After(e.lockoutUntil)
}

// RecordFailure registers a failed attempt. On reaching maxAttempts the
// entry is stamped with a lockout expiring lockoutSecs from now.
func (t *Tracker) RecordFailure(ip string) {
	if t.maxAttempts == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.attempts[ip]
	if !ok {
		e = &entry{}
		t.attempts[ip] = e
	}
	e.failCount++
	if e.failCount >= t.maxAttempts {
		e.lockoutUntil = time.Now().Add(t.lockoutDur)
	}
}

// RecordSuccess clears any tracked failures for ip.
func (t *Tracker) RecordSuccess(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, ip)
}

// RemainingLockoutSecs returns the number of seconds left in ip's
// lockout, or 0 if there is none active.
func (t *Tracker) RemainingLockoutSecs(ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.attempts[ip]
	if !ok || e.lockoutUntil.IsZero() {
		return 0
	}
	remaining := time.Until(e.lockoutUntil)
	if remaining <= 0 {
		return 0
	}
	secs := int(remaining.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CleanupExpired drops entries whose lockout has expired. Entries that
// have recorded failures but never reached a lockout are kept.
func (t *Tracker) CleanupExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ip, e := range t.attempts {
		if !e.lockoutUntil.IsZero() && now.After(e.lockoutUntil) {
			delete(t.attempts, ip)
		}
	}
}
