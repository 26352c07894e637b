package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// loginAttempt tracks login attempts from one IP.
type loginAttempt struct {
	Count    int
	FirstAt  time.Time
	LockedAt time.Time
	IsLocked bool
}

// LoginRateLimiter locks out an IP after repeated failed logins.
type LoginRateLimiter struct {
	mu           sync.Mutex
	attempts     map[string]*loginAttempt
	maxAttempts  int
	windowPeriod time.Duration
	lockDuration time.Duration
}

// NewLoginRateLimiter creates a limiter allowing maxAttempts per
// windowPeriod before locking the IP for lockDuration.
func NewLoginRateLimiter(maxAttempts int, windowPeriod, lockDuration time.Duration) *LoginRateLimiter {
	rl := &LoginRateLimiter{
		attempts:     make(map[string]*loginAttempt),
		maxAttempts:  maxAttempts,
		windowPeriod: windowPeriod,
		lockDuration: lockDuration,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *LoginRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *LoginRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, attempt := range rl.attempts {
		if attempt.IsLocked {
			if now.Sub(attempt.LockedAt) > rl.lockDuration {
				delete(rl.attempts, ip)
			}
		} else if now.Sub(attempt.FirstAt) > rl.windowPeriod {
			delete(rl.attempts, ip)
		}
	}
}

// allow reports whether ip may attempt a login, with the remaining lock
// time when it may not.
func (rl *LoginRateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	attempt, ok := rl.attempts[ip]
	if !ok {
		return true, 0
	}

	now := time.Now()
	if attempt.IsLocked {
		remaining := rl.lockDuration - now.Sub(attempt.LockedAt)
		if remaining > 0 {
			return false, remaining
		}
		delete(rl.attempts, ip)
		return true, 0
	}
	if now.Sub(attempt.FirstAt) > rl.windowPeriod {
		delete(rl.attempts, ip)
		return true, 0
	}
	if attempt.Count >= rl.maxAttempts {
		attempt.IsLocked = true
		attempt.LockedAt = now
		return false, rl.lockDuration
	}
	return true, 0
}

// RecordFailure counts one failed login from ip.
func (rl *LoginRateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	attempt, ok := rl.attempts[ip]
	if !ok || time.Now().Sub(attempt.FirstAt) > rl.windowPeriod {
		rl.attempts[ip] = &loginAttempt{Count: 1, FirstAt: time.Now()}
		return
	}
	attempt.Count++
}

// RecordSuccess clears the attempt history for ip.
func (rl *LoginRateLimiter) RecordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, ip)
}

// Middleware rejects requests from locked-out IPs before the handler runs.
func (rl *LoginRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, remaining := rl.allow(c.ClientIP())
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("too many login attempts, try again in %s", remaining.Round(time.Second)),
			})
			return
		}
		c.Next()
	}
}
