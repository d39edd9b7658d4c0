// Package ratelimit throttles message sends per client.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter tracks request counts per key within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	max     int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter allowing max requests per window for each key.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether key is under the limit. If allowed, the request is
// recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.prune(key, now)
	if len(valid) >= l.max {
		l.entries[key] = valid
		return false
	}
	l.entries[key] = append(valid, now)
	return true
}

// RetryAfter returns how long key must wait before its next request is
// allowed. Zero means it may proceed now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := l.prune(key, now)
	l.entries[key] = valid
	if len(valid) < l.max {
		return 0
	}
	return valid[0].Add(l.window).Sub(now)
}

// Sweep drops keys with no requests inside the window.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.entries {
		valid := l.prune(key, now)
		if len(valid) == 0 {
			delete(l.entries, key)
			continue
		}
		l.entries[key] = valid
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// prune returns key's timestamps inside the window. Must hold mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	timestamps := l.entries[key]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Middleware rejects requests from client IPs over the limit with 429 and
// a JSON error body matching the send response shape.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !l.Allow(ip) {
			log.Warn().Str("ip", ip).Msg("ratelimit: request denied")
			if wait := l.RetryAfter(ip); wait > 0 {
				w.Header().Set("Retry-After", retrySeconds(wait))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "too many messages, slow down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retrySeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
