package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// attemptRecord tracks requests from an IP
type attemptRecord struct {
	Count    int
	FirstAt  time.Time
	LockedAt time.Time
	IsLocked bool
}

// RateLimiter counts per-IP attempts within a window and locks an IP
// once the limit is exceeded
type RateLimiter struct {
	mu           sync.RWMutex
	attempts     map[string]*attemptRecord
	maxAttempts  int
	windowPeriod time.Duration
	lockDuration time.Duration
}

// Global limiter instances
var (
	loginRateLimiter   *RateLimiter
	triggerRateLimiter *RateLimiter
)

// InitLoginRateLimiter initializes the admin login limiter
func InitLoginRateLimiter() {
	loginRateLimiter = NewRateLimiter(5, 15*time.Minute, 30*time.Minute)
	go loginRateLimiter.startCleanup()
}

// InitTriggerRateLimiter initializes the pipeline trigger limiter. The
// external poller hits the trigger every few minutes; anything past
// this limit is abuse.
func InitTriggerRateLimiter() {
	triggerRateLimiter = NewRateLimiter(30, 5*time.Minute, 5*time.Minute)
	go triggerRateLimiter.startCleanup()
}

// NewRateLimiter creates a new rate limiter
// maxAttempts: attempts allowed within the window
// windowPeriod: time window for counting attempts
// lockDuration: how long to lock the IP after the limit is exceeded
func NewRateLimiter(maxAttempts int, windowPeriod, lockDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:     make(map[string]*attemptRecord),
		maxAttempts:  maxAttempts,
		windowPeriod: windowPeriod,
		lockDuration: lockDuration,
	}
}

// startCleanup periodically removes stale entries
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
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

// Check reports whether an IP may proceed, along with remaining
// attempts and, when locked, the remaining lock duration
func (rl *RateLimiter) Check(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	attempt, exists := rl.attempts[ip]

	if !exists {
		return true, rl.maxAttempts, 0
	}

	if attempt.IsLocked {
		remaining := rl.lockDuration - now.Sub(attempt.LockedAt)
		if remaining > 0 {
			return false, 0, remaining
		}
		delete(rl.attempts, ip)
		return true, rl.maxAttempts, 0
	}

	if now.Sub(attempt.FirstAt) > rl.windowPeriod {
		delete(rl.attempts, ip)
		return true, rl.maxAttempts, 0
	}

	attemptsRemaining := rl.maxAttempts - attempt.Count
	if attemptsRemaining <= 0 {
		return false, 0, rl.windowPeriod - now.Sub(attempt.FirstAt)
	}

	return true, attemptsRemaining, 0
}

// RecordAttempt records one attempt for an IP. A successful attempt
// clears the IP's history.
func (rl *RateLimiter) RecordAttempt(ip string, success bool) {
	if success {
		rl.mu.Lock()
		delete(rl.attempts, ip)
		rl.mu.Unlock()
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	attempt, exists := rl.attempts[ip]

	if !exists || now.Sub(attempt.FirstAt) > rl.windowPeriod {
		rl.attempts[ip] = &attemptRecord{
			Count:   1,
			FirstAt: now,
		}
		return
	}

	attempt.Count++
	if attempt.Count >= rl.maxAttempts {
		attempt.IsLocked = true
		attempt.LockedAt = now
	}
}

// LoginRateLimitMiddleware limits admin login attempts per IP
func LoginRateLimitMiddleware() gin.HandlerFunc {
	if loginRateLimiter == nil {
		InitLoginRateLimiter()
	}

	return func(c *gin.Context) {
		// Only POST carries an actual login attempt
		if c.Request.Method != "POST" {
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, remaining, lockDuration := loginRateLimiter.Check(ip)

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			minutes := int(lockDuration.Minutes())
			seconds := int(lockDuration.Seconds()) % 60

			c.HTML(http.StatusTooManyRequests, "login.html", gin.H{
				"error":       formatRateLimitError(minutes, seconds),
				"rateLimited": true,
				"retryAfter":  int(lockDuration.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TriggerRateLimitMiddleware throttles the public pipeline trigger
// endpoint
func TriggerRateLimitMiddleware() gin.HandlerFunc {
	if triggerRateLimiter == nil {
		InitTriggerRateLimiter()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, remaining, retryAfter := triggerRateLimiter.Check(ip)

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Too many requests, try again later",
			})
			c.Abort()
			return
		}

		triggerRateLimiter.RecordAttempt(ip, false)
		c.Next()
	}
}

// formatRateLimitError formats the login lockout message
func formatRateLimitError(minutes, seconds int) string {
	if minutes > 0 {
		return fmt.Sprintf("Too many failed login attempts. Please try again in %d minute(s) and %d second(s).", minutes, seconds)
	}
	return fmt.Sprintf("Too many failed login attempts. Please try again in %d second(s).", seconds)
}

// RecordLoginAttempt records a login attempt from the auth controller
func RecordLoginAttempt(ip string, success bool) {
	if loginRateLimiter == nil {
		InitLoginRateLimiter()
	}
	loginRateLimiter.RecordAttempt(ip, success)
}

// GetLoginRateLimiter returns the global login rate limiter
func GetLoginRateLimiter() *RateLimiter {
	if loginRateLimiter == nil {
		InitLoginRateLimiter()
	}
	return loginRateLimiter
}
