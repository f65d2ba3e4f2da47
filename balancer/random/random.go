package random

import (
	"math/rand"
	"sync"
	"time"

	"github.com/go-thor/rabbit/balancer"
)

// Balancer is a random picker
type Balancer struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// New creates a new random picker
func New() *Balancer {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed creates a random picker with a fixed seed
func NewWithSeed(seed int64) *Balancer {
	return &Balancer{rand: rand.New(rand.NewSource(seed))}
}

// Pick selects a random endpoint
func (b *Balancer) Pick(endpoints []balancer.Endpoint, _ string) (balancer.Endpoint, error) {
	if len(endpoints) == 0 {
		return balancer.Endpoint{}, balancer.ErrNoEndpoint
	}

	b.mu.Lock()
	index := b.rand.Intn(len(endpoints))
	b.mu.Unlock()
	return endpoints[index], nil
}

var _ balancer.Picker = (*Balancer)(nil)
