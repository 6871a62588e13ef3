package dispatcher

import (
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

type RateLimitBucket struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RateLimitMonitor mirrors Discord's per-route buckets from response headers.
type RateLimitMonitor struct {
	mu      sync.RWMutex
	buckets map[string]*RateLimitBucket
	global  time.Time
	now     func() time.Time
}

func NewRateLimitMonitor() *RateLimitMonitor {
	return &RateLimitMonitor{
		buckets: make(map[string]*RateLimitBucket),
		now:     time.Now,
	}
}

// Delay returns how long a request on route must wait for its bucket (or the
// global limit) to reset. Zero means go.
func (rlm *RateLimitMonitor) Delay(route string) time.Duration {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()

	now := rlm.now()
	var wait time.Duration
	if rlm.global.After(now) {
		wait = rlm.global.Sub(now)
	}

	bucket, exists := rlm.buckets[route]
	if !exists || bucket.Remaining > 0 || !bucket.ResetAt.After(now) {
		return wait
	}
	if d := bucket.ResetAt.Sub(now); d > wait {
		wait = d
	}
	return wait
}

func (rlm *RateLimitMonitor) UpdateFromFastHTTPResponse(resp *fasthttp.Response, route string) {
	remaining := string(resp.Header.Peek("X-RateLimit-Remaining"))
	if remaining == "" {
		return
	}

	bucket := &RateLimitBucket{}
	bucket.Remaining, _ = strconv.Atoi(remaining)
	bucket.Limit, _ = strconv.Atoi(string(resp.Header.Peek("X-RateLimit-Limit")))

	now := rlm.now()
	if after, err := strconv.ParseFloat(string(resp.Header.Peek("X-RateLimit-Reset-After")), 64); err == nil {
		bucket.ResetAt = now.Add(time.Duration(after * float64(time.Second)))
	} else if reset, err := strconv.ParseFloat(string(resp.Header.Peek("X-RateLimit-Reset")), 64); err == nil {
		bucket.ResetAt = time.Unix(0, int64(reset*float64(time.Second)))
	}

	rlm.mu.Lock()
	rlm.buckets[route] = bucket
	if string(resp.Header.Peek("X-RateLimit-Global")) == "true" {
		rlm.global = bucket.ResetAt
	}
	rlm.mu.Unlock()
}

func (rlm *RateLimitMonitor) GetBucket(route string) *RateLimitBucket {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	return rlm.buckets[route]
}
