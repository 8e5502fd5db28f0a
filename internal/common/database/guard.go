// internal/common/database/guard.go
package database

import (
	"context"
	"sync"
	"time"
)

// JobGuard suppresses duplicate deliveries of the same job request.
// Claim reports true the first time an id is seen within the TTL window.
// Release forgets a claim for a job that was never started.
type JobGuard interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// MemoryGuard is a process-local JobGuard.
type MemoryGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (g *MemoryGuard) Claim(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	g.seen[id] = now.Add(g.ttl)

	// sweep lazily once the map grows
	if len(g.seen) > 1024 {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
	}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, id)
	return nil
}

// Len returns the number of tracked ids, expired entries included.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
