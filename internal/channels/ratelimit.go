package channels

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound messages with a global bucket and one
// bucket per chat.
type RateLimiter struct {
	global *rate.Limiter

	mu       sync.Mutex
	perChat  map[int64]*rate.Limiter
	chatRate rate.Limit
	chatCap  int
}

// NewRateLimiter creates a limiter allowing globalRate messages per second
// overall (burst globalBurst) and chatRate per second per chat.
func NewRateLimiter(globalRate float64, globalBurst int, chatRate float64, chatBurst int) *RateLimiter {
	return &RateLimiter{
		global:   rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		perChat:  make(map[int64]*rate.Limiter),
		chatRate: rate.Limit(chatRate),
		chatCap:  chatBurst,
	}
}

func (r *RateLimiter) chat(id int64) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter, ok := r.perChat[id]
	if !ok {
		limiter = rate.NewLimiter(r.chatRate, r.chatCap)
		r.perChat[id] = limiter
	}
	return limiter
}

// Wait blocks until a message to chat may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, chat int64) error {
	if err := r.chat(chat).Wait(ctx); err != nil {
		return err
	}
	return r.global.Wait(ctx)
}
