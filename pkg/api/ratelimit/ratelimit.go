// Package ratelimit keeps one token bucket per client address for the HTTP
// and MCP endpoints.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepInterval = 5 * time.Minute
	idleTTL       = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store holds per-client limiters. A nil *Store allows everything.
type Store struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New returns a Store allowing rps requests per second per client with the
// given burst. It returns nil when rps <= 0, which disables limiting.
func New(rps float64, burst int) *Store {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(math.Ceil(rps))
	}
	s := &Store{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(rps),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Stop ends the background sweeper. Safe to call more than once.
func (s *Store) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, c := range s.clients {
				if time.Since(c.lastSeen) > idleTTL {
					delete(s.clients, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Allow takes a token for key. When none is available it returns false and
// how long the client should wait.
func (s *Store) Allow(key string) (bool, time.Duration) {
	if s == nil {
		return true, 0
	}
	reservation := s.get(key).Reserve()
	if d := reservation.Delay(); d > 0 {
		reservation.Cancel()
		return false, d
	}
	return true, 0
}

// Middleware rejects requests over the limit with 429 and Retry-After.
// reject writes the response body; nil writes a plain-text message.
func (s *Store) Middleware(reject func(w http.ResponseWriter, msg string), next http.Handler) http.Handler {
	if s == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := s.Allow(ClientKey(r))
		if !ok {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			if reject != nil {
				reject(w, "rate limit exceeded")
				return
			}
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey extracts the client address from proxy headers or RemoteAddr.
func ClientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	return "unknown"
}
