package main

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per credential ID
type RateLimiter struct {
	limits map[string]*rate.Limiter
	mu     sync.Mutex
	limit  rate.Limit
	burst  int
}

func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]*rate.Limiter),
		limit:  limit,
		burst:  burst,
	}
}

func (r *RateLimiter) Allow(id string) bool {
	r.mu.Lock()
	limiter, exists := r.limits[id]
	if !exists {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limits[id] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}
