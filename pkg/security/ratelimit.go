package security

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tesola/staking-sync/internal/config"
	"github.com/tesola/staking-sync/internal/metrics"
	"github.com/tesola/staking-sync/internal/metrics/metricsTypes"
	"go.uber.org/zap"
)

const (
	AdminPathPrefix = "/api/admin/"
	CronPathPrefix  = "/api/cron/"

	defaultJanitorInterval = time.Minute
)

type Rule struct {
	Prefix string
	Limit  int
	Window time.Duration
}

// WindowStore counts hits per fixed window. Keys are unique per window.
type WindowStore interface {
	Increment(ctx context.Context, key string, expiresAt time.Time) (int, error)
}

type windowCount struct {
	count     int
	expiresAt time.Time
}

type MemoryWindowStore struct {
	mu       sync.Mutex
	windows  map[string]*windowCount
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryWindowStore starts a janitor goroutine that runs until Stop is called.
func NewMemoryWindowStore(janitorInterval time.Duration) *MemoryWindowStore {
	if janitorInterval <= 0 {
		janitorInterval = defaultJanitorInterval
	}
	s := &MemoryWindowStore{
		windows: make(map[string]*windowCount),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.janitor(janitorInterval)
	return s
}

func (s *MemoryWindowStore) janitor(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

func (s *MemoryWindowStore) purgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	purged := 0
	for key, w := range s.windows {
		if !now.Before(w.expiresAt) {
			delete(s.windows, key)
			purged++
		}
	}
	return purged
}

func (s *MemoryWindowStore) Increment(ctx context.Context, key string, expiresAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		w = &windowCount{expiresAt: expiresAt}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Stop halts the janitor and waits for it to exit. It is safe to call more than once.
func (s *MemoryWindowStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type RateLimiter struct {
	rules    []Rule
	fallback Rule
	store    WindowStore
	resolver *ClientIPResolver
	metrics  *metrics.MetricsSink
	logger   *zap.Logger
	now      func() time.Time
}

func RulesFromConfig(cfg *config.SecurityConfig) ([]Rule, Rule) {
	rules := []Rule{
		{Prefix: AdminPathPrefix, Limit: cfg.AdminRateLimit.Limit, Window: cfg.AdminRateLimit.Window},
		{Prefix: CronPathPrefix, Limit: cfg.CronRateLimit.Limit, Window: cfg.CronRateLimit.Window},
	}
	fallback := Rule{Prefix: "/", Limit: cfg.DefaultRateLimit.Limit, Window: cfg.DefaultRateLimit.Window}
	return rules, fallback
}

func NewRateLimiter(rules []Rule, fallback Rule, store WindowStore, resolver *ClientIPResolver, ms *metrics.MetricsSink, l *zap.Logger) *RateLimiter {
	if resolver == nil {
		resolver = &ClientIPResolver{}
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RateLimiter{
		rules:    sorted,
		fallback: fallback,
		store:    store,
		resolver: resolver,
		metrics:  ms,
		logger:   l,
		now:      time.Now,
	}
}

func (r *RateLimiter) ruleFor(path string) Rule {
	for _, rule := range r.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule
		}
	}
	return r.fallback
}

func (r *RateLimiter) Allow(ctx context.Context, identity string, path string) (*Decision, error) {
	rule := r.ruleFor(path)
	now := r.now()
	windowStart := now.Truncate(rule.Window)
	resetAt := windowStart.Add(rule.Window)
	key := fmt.Sprintf("%s|%s|%d", rule.Prefix, identity, windowStart.UnixNano())

	count, err := r.store.Increment(ctx, key, resetAt)
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Allowed:   count <= rule.Limit,
		Limit:     rule.Limit,
		Remaining: rule.Limit - count,
		ResetAt:   resetAt,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if !decision.Allowed {
		decision.RetryAfter = resetAt.Sub(now)
	}
	return decision, nil
}

// Wrap rejects over-limit callers with 429 before next runs. A store failure lets the request through.
func (r *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		identity := r.resolver.ClientIP(req)
		decision, err := r.Allow(req.Context(), identity, req.URL.Path)
		if err != nil {
			r.logger.Sugar().Errorw("Rate limit store failed, allowing request",
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
			next.ServeHTTP(w, req)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success":    false,
				"message":    "Too many requests, please try again later",
				"retryAfter": retryAfter,
			})
			_ = r.metrics.Incr(metricsTypes.Metric_Incr_RateLimited, []metricsTypes.MetricsLabel{
				{Name: "path", Value: req.URL.Path},
			}, 1)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// ClientIPResolver picks the rate-limit identity for a request. Forwarding headers are only
// honored when the socket peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

// NewClientIPResolver parses proxies as IPs or CIDRs. An empty list trusts no forwarding header.
func NewClientIPResolver(proxies []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{trusted: make([]*net.IPNet, 0, len(proxies))}
	for _, p := range proxies {
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 8 * net.IPv4len
			}
			r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		r.trusted = append(r.trusted, network)
	}
	return r, nil
}

func (r *ClientIPResolver) isTrusted(value string) bool {
	ip := net.ParseIP(value)
	if ip == nil {
		return false
	}
	for _, network := range r.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket peer unless it is a trusted proxy. Behind a trusted proxy the
// right-most X-Forwarded-For hop that is not itself trusted wins, then X-Real-IP.
func (r *ClientIPResolver) ClientIP(req *http.Request) string {
	peer, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		peer = req.RemoteAddr
	}
	if !r.isTrusted(peer) {
		return peer
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !r.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}
	if realIp := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIp != "" {
		return realIp
	}
	return peer
}
