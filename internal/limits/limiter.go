// Package limits caps how many cards a buyer can purchase.
//
// Two limits apply: a hard cap on the size of a single purchase, and a
// per-buyer token bucket refilled at a fixed number of cards per second.
// Check runs before the engine and spends nothing; Charge debits the bucket
// once a purchase has gone through, so rejected purchases cost no allowance.
package limits

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrBatchTooLarge is returned when a single purchase exceeds the cap.
	ErrBatchTooLarge = errors.New("limits: too many cards in one purchase")

	// ErrRateLimited is returned when a buyer has used up their allowance.
	ErrRateLimited = errors.New("limits: purchase rate exceeded")
)

// PurchaseLimiter enforces per-purchase and per-buyer limits.
type PurchaseLimiter struct {
	// MaxCardsPerPurchase caps one purchase. Zero means no cap.
	MaxCardsPerPurchase uint64

	rate  rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPurchaseLimiter creates a limiter. cardsPerSecond <= 0 disables the
// per-buyer bucket. The bucket always holds at least one full purchase.
func NewPurchaseLimiter(maxPerPurchase uint64, cardsPerSecond float64, burst int) *PurchaseLimiter {
	limit := rate.Limit(cardsPerSecond)
	if cardsPerSecond <= 0 {
		limit = rate.Inf
	}
	if maxPerPurchase > 0 && (burst < 0 || uint64(burst) < maxPerPurchase) {
		burst = math.MaxInt
		if maxPerPurchase < math.MaxInt {
			burst = int(maxPerPurchase)
		}
	}
	if burst < 1 {
		burst = 1
	}
	return &PurchaseLimiter{
		MaxCardsPerPurchase: maxPerPurchase,
		rate:                limit,
		burst:               burst,
		now:                 time.Now,
		limiters:            make(map[string]*rate.Limiter),
	}
}

// Check validates a purchase of n cards by buyer without charging for it.
func (l *PurchaseLimiter) Check(buyer string, n uint64) error {
	if l.MaxCardsPerPurchase > 0 && n > l.MaxCardsPerPurchase {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, l.MaxCardsPerPurchase)
	}
	if l.rate == rate.Inf || n == 0 {
		return nil
	}
	if n > uint64(l.burst) {
		return fmt.Errorf("%w: %d cards exceeds burst of %d", ErrRateLimited, n, l.burst)
	}
	if l.limiter(buyer).TokensAt(l.now()) < float64(n) {
		return fmt.Errorf("%w: %s", ErrRateLimited, buyer)
	}
	return nil
}

// Charge spends n cards of buyer's allowance after a successful purchase.
// Concurrent purchases that all passed Check may push the bucket into
// debt; the buyer then waits for it to refill.
func (l *PurchaseLimiter) Charge(buyer string, n uint64) {
	if l.rate == rate.Inf || n == 0 {
		return
	}
	if n > uint64(l.burst) {
		n = uint64(l.burst)
	}
	l.limiter(buyer).ReserveN(l.now(), int(n))
}

// limiter returns the bucket for buyer, creating it on first use.
func (l *PurchaseLimiter) limiter(buyer string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[buyer]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[buyer] = lim
	}
	return lim
}

// Prune drops buckets that have refilled completely; a fresh bucket
// behaves identically.
func (l *PurchaseLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for buyer, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, buyer)
		}
	}
}

// StartPruning runs Prune every interval until stop is closed.
func (l *PurchaseLimiter) StartPruning(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Prune()
			case <-stop:
				return
			}
		}
	}()
}
