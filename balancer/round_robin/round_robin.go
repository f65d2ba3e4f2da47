package round_robin

import (
	"sync/atomic"

	"github.com/go-thor/rabbit/balancer"
)

// Balancer is a round-robin picker
type Balancer struct {
	next atomic.Uint64
}

// New creates a new round-robin picker
func New() *Balancer {
	return &Balancer{}
}

// Pick selects the endpoints in turn
func (b *Balancer) Pick(endpoints []balancer.Endpoint, _ string) (balancer.Endpoint, error) {
	if len(endpoints) == 0 {
		return balancer.Endpoint{}, balancer.ErrNoEndpoint
	}

	next := b.next.Add(1) - 1
	return endpoints[next%uint64(len(endpoints))], nil
}

var _ balancer.Picker = (*Balancer)(nil)
