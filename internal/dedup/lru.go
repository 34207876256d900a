package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUGuard is an in-process Guard backed by a capacity-bounded LRU with
// per-entry TTL. Capacity and TTL should be sized to the duplicate-delivery
// window of the upstream event source; history does not survive a restart.
type LRUGuard struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewLRUGuard creates a guard remembering at most capacity ids for at most
// ttl each.
func NewLRUGuard(capacity int, ttl time.Duration) *LRUGuard {
	return &LRUGuard{
		seen: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

func (g *LRUGuard) ShouldProcess(_ context.Context, requestID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen.Get(requestID); ok {
		return false, nil
	}
	g.seen.Add(requestID, struct{}{})
	return true, nil
}

func (g *LRUGuard) Forget(_ context.Context, requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seen.Remove(requestID)
}
