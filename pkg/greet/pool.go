package greet

import (
	"math/rand/v2"
	"sync"
)

// Pool draws indices without replacement and reshuffles when exhausted.
// Two consecutive draws never return the same index, including across a
// reshuffle, as long as the pool holds at least two indices.
type Pool struct {
	mu    sync.Mutex
	rand  *rand.Rand
	order []int
	next  int
	last  int
}

// NewPool creates a pool of n indices, 0 through n-1.
func NewPool(n int, r *rand.Rand) *Pool {
	if n < 1 {
		n = 1
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return &Pool{rand: r, order: order, next: n, last: -1}
}

// Size returns the number of indices in the pool.
func (p *Pool) Size() int { return len(p.order) }

// Draw returns the next index.
func (p *Pool) Draw() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.order) {
		p.reshuffle()
	}
	choice := p.order[p.next]
	p.next++
	p.last = choice
	return choice
}

func (p *Pool) reshuffle() {
	p.rand.Shuffle(len(p.order), func(i, j int) {
		p.order[i], p.order[j] = p.order[j], p.order[i]
	})
	p.next = 0
	if len(p.order) > 1 && p.order[0] == p.last {
		swap := 1 + p.rand.IntN(len(p.order)-1)
		p.order[0], p.order[swap] = p.order[swap], p.order[0]
	}
}
