package store

import (
	"sync"

	"github.com/jblamy/quadstore/internal/qerr"
)

// WriterGuard enforces "each ontology object holds at most one write
// connection at a time": concurrent writers on the same graph are rejected
// with AlreadyWritingError rather than blocking. OpenStore gives each Store
// its own guard, so it serializes writes made through that Store only.
type WriterGuard struct {
	mu      sync.Mutex
	writing map[int64]bool
}

// NewWriterGuard returns an empty guard.
func NewWriterGuard() *WriterGuard {
	return &WriterGuard{writing: make(map[int64]bool)}
}

// Acquire marks graph as having an open writer. Returns AlreadyWritingError
// if one is already open.
func (g *WriterGuard) Acquire(graph int64, graphIRI string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writing[graph] {
		return &qerr.AlreadyWritingError{Graph: graphIRI}
	}
	g.writing[graph] = true
	return nil
}

// Release marks graph as no longer having an open writer. Safe to call
// even if Acquire was never called for graph.
func (g *WriterGuard) Release(graph int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.writing, graph)
}

// WithWriter runs fn while holding graph's write slot, releasing it
// unconditionally afterward.
func (g *WriterGuard) WithWriter(graph int64, graphIRI string, fn func() error) error {
	if err := g.Acquire(graph, graphIRI); err != nil {
		return err
	}
	defer g.Release(graph)
	return fn()
}

// OntologyStack models the "with ontology:" scoped-write pattern from the
// original implementation's thread-local active-ontology context. Go has
// no thread-locals, so this is carried explicitly by the caller (typically
// stashed on a context.Context) rather than implied by the calling
// goroutine; one Stack per logical "thread of control" reproduces the same
// push/pop discipline without relying on goroutine identity, which Go
// intentionally does not expose.
type OntologyStack struct {
	mu    sync.Mutex
	items []int64
}

// NewOntologyStack returns an empty stack.
func NewOntologyStack() *OntologyStack { return &OntologyStack{} }

// Push makes graph the current ontology for subsequent scoped writes.
func (s *OntologyStack) Push(graph int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, graph)
}

// Pop restores the previous current ontology. Panics if called without a
// matching Push, the same contract the original "with ontology:" context
// manager enforces via unbalanced __exit__.
func (s *OntologyStack) Pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		panic("store: OntologyStack.Pop called with no ontology pushed")
	}
	s.items = s.items[:len(s.items)-1]
}

// Current returns the top of the stack and true, or (0, false) if empty.
func (s *OntologyStack) Current() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return 0, false
	}
	return s.items[len(s.items)-1], true
}

// Scoped pushes graph, runs fn, and pops unconditionally, the Go
// equivalent of "with ontology: ...".
func (s *OntologyStack) Scoped(graph int64, fn func() error) error {
	s.Push(graph)
	defer s.Pop()
	return fn()
}
