package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/kinstore/internal/record"
)

// SequentialHandles generates handles "<prefix>0001", "<prefix>0002", ...
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with a fresh SequentialHandles produces byte-identical
// tables. It satisfies store.HandleGenerator.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialHandles struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialHandles creates a generator with the given prefix.
//
// If prefix is empty, handles are prefixed with "h".
func NewSequentialHandles(prefix string) *SequentialHandles {
	if prefix == "" {
		prefix = "h"
	}
	return &SequentialHandles{prefix: prefix}
}

// Generate returns the next handle.
func (g *SequentialHandles) Generate() record.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return record.Handle(fmt.Sprintf("%s%04d", g.prefix, g.n))
}

// Reset restarts the sequence at 1.
func (g *SequentialHandles) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
