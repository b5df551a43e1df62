package engine

import (
	"sync"

	"github.com/google/uuid"
)

// CacheClaim is the single-slot ownership token for a pipeline's KV cache.
// At most one session identity holds the claim at a time. Acquiring it
// silently displaces the previous holder; the displaced session discovers
// the conflict on its next advance when Holds reports false.
type CacheClaim struct {
	mu     sync.Mutex
	holder uuid.UUID
	held   bool
}

// Acquire binds the claim to id, displacing any previous holder.
func (c *CacheClaim) Acquire(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holder = id
	c.held = true
}

// Holds reports whether id is the current claimant.
func (c *CacheClaim) Holds(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held && c.holder == id
}

// ReleaseIfHeld clears the claim if id currently holds it. Releasing a
// claim someone else holds is a no-op.
func (c *CacheClaim) ReleaseIfHeld(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held && c.holder == id {
		c.held = false
		c.holder = uuid.UUID{}
	}
}
