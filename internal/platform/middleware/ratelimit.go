package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"foodtrace/pkg/requestcontext"
)

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// SlidingWindow is an in-memory per-key sliding window counter. It counts
// individual request timestamps rather than fixed buckets so a burst cannot
// straddle a window boundary.
type SlidingWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string][]time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// Allow admits one request for the key, recording it when admitted.
func (s *SlidingWindow) Allow(key string, now time.Time) RateLimitDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	stamps := s.entries[key]
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	stamps = stamps[i:]

	if len(stamps) >= s.limit {
		s.entries[key] = stamps
		return RateLimitDecision{
			Allowed: false,
			Limit:   s.limit,
			ResetAt: stamps[0].Add(s.window),
		}
	}

	stamps = append(stamps, now)
	s.entries[key] = stamps
	return RateLimitDecision{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - len(stamps),
		ResetAt:   stamps[0].Add(s.window),
	}
}

// RateLimit admits requests per caller identity, falling back to the remote
// address for anonymous reads. Limit headers are set on every response.
func RateLimit(limiter *SlidingWindow) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestcontext.Caller(r.Context())
			if key == "" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				} else {
					key = r.RemoteAddr
				}
			}

			decision := limiter.Allow(key, time.Now())
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests, slow down"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
