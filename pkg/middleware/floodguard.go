package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FloodGuardConfig configures the per-address token bucket guard.
type FloodGuardConfig struct {
	// Enabled enables the guard.
	Enabled bool

	// RequestsPerSecond is the sustained rate allowed per client address.
	RequestsPerSecond float64

	// Burst is the burst size allowed per client address.
	Burst int

	// IdleTTL is how long an idle address keeps its bucket before the
	// janitor evicts it. Default: 3 minutes.
	IdleTTL time.Duration
}

// DefaultFloodGuardConfig returns the default flood guard configuration.
func DefaultFloodGuardConfig() *FloodGuardConfig {
	return &FloodGuardConfig{
		Enabled:           true,
		RequestsPerSecond: 20,
		Burst:             40,
		IdleTTL:           3 * time.Minute,
	}
}

// FloodGuard applies a coarse per-address token bucket in front of the
// routes. It protects the service itself from floods; the per-principal
// quotas are business policy and live in the throttle layer.
type FloodGuard struct {
	config   *FloodGuardConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewFloodGuard creates a flood guard and starts its janitor goroutine.
func NewFloodGuard(config *FloodGuardConfig) *FloodGuard {
	if config == nil {
		config = DefaultFloodGuardConfig()
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultFloodGuardConfig().IdleTTL
	}

	g := &FloodGuard{
		config:   config,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go g.janitor()
	return g
}

// Middleware returns the http.Handler wrapper enforcing the guard.
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !g.allow(hostOnly(r.RemoteAddr)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errorBody{
				Error: "too many requests",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow reports whether the address may proceed, creating its bucket on
// first sight.
func (g *FloodGuard) allow(addr string) bool {
	g.mu.Lock()
	v, ok := g.visitors[addr]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(g.config.RequestsPerSecond), g.config.Burst),
		}
		g.visitors[addr] = v
	}
	v.lastSeen = time.Now()
	g.mu.Unlock()

	return v.limiter.Allow()
}

// janitor evicts buckets idle longer than the TTL.
func (g *FloodGuard) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-g.config.IdleTTL)
			g.mu.Lock()
			for addr, v := range g.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(g.visitors, addr)
				}
			}
			g.mu.Unlock()
		}
	}
}

// Close stops the janitor.
func (g *FloodGuard) Close() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// hostOnly strips the port from a remote address when present.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
