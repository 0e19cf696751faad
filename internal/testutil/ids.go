package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator returns predetermined recording ids in order.
//
// Implements cassette.IDGenerator. Panics when exhausted so a test that
// creates more recordings than it planned fails loudly.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceGenerator creates a generator returning ids in order.
//
// Example:
//
//	gen := NewSequenceGenerator("r1", "r2")
//	gen.Generate() // "r1"
//	gen.Generate() // "r2"
//	gen.Generate() // panic
func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// NewCountingGenerator creates a generator returning "0001", "0002", ... up to n.
func NewCountingGenerator(n int) *SequenceGenerator {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%04d", i+1)
	}
	return NewSequenceGenerator(ids...)
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("SequenceGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
