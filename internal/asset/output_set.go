package asset

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutputExists is returned when an output with the same path is already registered.
var ErrOutputExists = errors.New("output already exists")

// OutputSet is an insertion-ordered collection of build outputs keyed by path.
// It is safe for concurrent use.
type OutputSet struct {
	// mu protects order and byPath.
	mu sync.RWMutex
	// order keeps paths in insertion order.
	order []string
	// byPath indexes assets by their path.
	byPath map[string]*Asset
}

// NewOutputSet creates an output set pre-populated with the provided assets.
// Duplicate paths are rejected.
func NewOutputSet(assets ...*Asset) (*OutputSet, error) {
	set := &OutputSet{
		order:  make([]string, 0, len(assets)),
		byPath: make(map[string]*Asset, len(assets)),
	}

	for _, a := range assets {
		if err := set.Add(a); err != nil {
			return nil, err
		}
	}

	return set, nil
}

// Add appends a new output. It fails if the path is already present.
func (s *OutputSet) Add(a *Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.byPath[a.Path]; found {
		return fmt.Errorf("%s: %w", a.Path, ErrOutputExists)
	}

	s.order = append(s.order, a.Path)
	s.byPath[a.Path] = a

	return nil
}

// Set inserts or replaces an output. A replaced output keeps its position.
func (s *OutputSet) Set(a *Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.byPath[a.Path]; !found {
		s.order = append(s.order, a.Path)
	}

	s.byPath[a.Path] = a
}

// Remove deletes the output registered under path and reports whether it existed.
func (s *OutputSet) Remove(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.byPath[path]; !found {
		return false
	}

	delete(s.byPath, path)

	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return true
}

// Get returns the output registered under path.
func (s *OutputSet) Get(path string) (*Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, found := s.byPath[path]

	return a, found
}

// Has reports whether an output is registered under path.
func (s *OutputSet) Has(path string) bool {
	_, found := s.Get(path)

	return found
}

// Len returns the number of outputs.
func (s *OutputSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order)
}

// Entries returns a snapshot of the outputs in insertion order.
func (s *OutputSet) Entries() []*Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Asset, 0, len(s.order))
	for _, path := range s.order {
		result = append(result, s.byPath[path])
	}

	return result
}

// Paths returns output paths in insertion order.
func (s *OutputSet) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...)
}
