package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and the "memory" backend.
type MemoryStore struct {
	mu       sync.RWMutex
	vendors  map[string]VendorRecord
	patterns map[string]PatternRecord
	closed   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vendors:  make(map[string]VendorRecord),
		patterns: make(map[string]PatternRecord),
	}
}

// VendorByName implements VendorReader.
func (s *MemoryStore) VendorByName(_ context.Context, name string) (*VendorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	v, ok := s.vendors[name]
	if !ok {
		return nil, ErrVendorNotFound
	}
	out := v.Clone()
	return &out, nil
}

// VendorsWithKeywords implements VendorReader. Results are ordered by name.
func (s *MemoryStore) VendorsWithKeywords(_ context.Context) ([]VendorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]VendorRecord, 0, len(s.vendors))
	for _, v := range s.vendors {
		if len(v.VendorKeywords) == 0 {
			continue
		}
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorName < out[j].VendorName })
	return out, nil
}

// PatternsWithKeywords implements PatternReader. Results are ordered by ID.
func (s *MemoryStore) PatternsWithKeywords(_ context.Context) ([]PatternRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]PatternRecord, 0, len(s.patterns))
	for _, p := range s.patterns {
		if len(p.Keywords) == 0 {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// VendorDescriptionKeywords implements PatternReader.
func (s *MemoryStore) VendorDescriptionKeywords(_ context.Context, vendorName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	v, ok := s.vendors[vendorName]
	if !ok {
		return nil, ErrVendorNotFound
	}
	return cloneStrings(v.DescriptionKeywords), nil
}

// UpsertVendor implements Writer.
func (s *MemoryStore) UpsertVendor(_ context.Context, v VendorRecord) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validating vendor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.vendors[v.VendorName] = v.Clone()
	return nil
}

// UpsertPattern implements Writer.
func (s *MemoryStore) UpsertPattern(_ context.Context, p PatternRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.patterns[p.ID] = p.Clone()
	return nil
}

// Close marks the store closed. Subsequent calls return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
