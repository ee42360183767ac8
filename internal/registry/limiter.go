// internal/registry/limiter.go
package registry

import "sync"

// DefaultConnectionCeiling bounds simultaneous connections per originating
// address. A resource-protection policy, not game logic.
const DefaultConnectionCeiling = 10

// AddressLimiter counts live connections per network address and rejects
// new ones beyond the ceiling.
type AddressLimiter struct {
	mu     sync.Mutex
	max    int
	counts map[string]int
}

// NewAddressLimiter builds a limiter with the given per-address ceiling.
func NewAddressLimiter(max int) *AddressLimiter {
	return &AddressLimiter{
		max:    max,
		counts: make(map[string]int),
	}
}

// Acquire reserves a connection slot for addr. Returns false when the
// address is already at its ceiling.
func (l *AddressLimiter) Acquire(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[addr] >= l.max {
		return false
	}
	l.counts[addr]++
	return true
}

// Release frees a slot previously acquired for addr. Safe against spurious
// calls for an unknown address.
func (l *AddressLimiter) Release(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[addr] <= 1 {
		delete(l.counts, addr)
		return
	}
	l.counts[addr]--
}
