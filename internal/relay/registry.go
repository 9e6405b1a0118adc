package relay

import (
	"net"
	"sync"

	"github.com/danmuck/ctmprelay/internal/observability"
)

// Registry is the shared set of live destination connections. A single
// mutex guards membership and delivery; a broadcast holds it across the
// full fan-out to every destination known at that instant, so one slow
// destination stalls the others and back-pressures the source read loop.
type Registry struct {
	mu    sync.Mutex
	dests []net.Conn
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers one destination connection.
func (r *Registry) Add(c net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dests = append(r.dests, c)
	observability.RecordDestinationAdded()
}

// Remove deregisters a destination if still present. Idempotent: a
// destination already evicted by a broadcast is not removed twice.
func (r *Registry) Remove(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.dests {
		if d == c {
			copy(r.dests[i:], r.dests[i+1:])
			r.dests[len(r.dests)-1] = nil
			r.dests = r.dests[:len(r.dests)-1]
			observability.RecordDestinationRemoved()
			return true
		}
	}
	return false
}

// Broadcast writes wire to every registered destination. A failed or
// partial write closes and evicts that destination; delivery to the rest
// continues. Returns the number of destinations that received the full
// frame.
func (r *Registry) Broadcast(wire []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivered := 0
	kept := r.dests[:0]
	for _, d := range r.dests {
		n, err := d.Write(wire)
		if err != nil || n != len(wire) {
			_ = d.Close()
			observability.RecordDestinationEvicted()
			continue
		}
		delivered++
		kept = append(kept, d)
	}
	for i := len(kept); i < len(r.dests); i++ {
		r.dests[i] = nil
	}
	r.dests = kept
	return delivered
}

// Len reports current membership.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dests)
}
