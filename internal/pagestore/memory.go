package pagestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackzampolin/relayout/internal/types"
)

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers cannot mutate stored state.
type MemoryStore struct {
	mu           sync.RWMutex
	documents    map[string]Document
	pages        map[types.PageKey]PageText
	regions      map[types.PageKey][]types.Region
	comparisons  map[types.PageKey]Comparison
	reclassified map[types.PageKey][]types.Region
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:    make(map[string]Document),
		pages:        make(map[types.PageKey]PageText),
		regions:      make(map[types.PageKey][]types.Region),
		comparisons:  make(map[types.PageKey]Comparison),
		reclassified: make(map[types.PageKey][]types.Region),
	}
}

func (s *MemoryStore) PutDocument(ctx context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Document(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return &doc, nil
}

func (s *MemoryStore) PutPageText(ctx context.Context, key types.PageKey, page PageText) error {
	page.Fragments = cloneFragments(page.Fragments)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = page
	return nil
}

func (s *MemoryStore) PageText(ctx context.Context, key types.PageKey) (*PageText, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[key]
	if !ok {
		return nil, fmt.Errorf("page text %s: %w", key, ErrNotFound)
	}
	page.Fragments = cloneFragments(page.Fragments)
	return &page, nil
}

func (s *MemoryStore) PutRegions(ctx context.Context, key types.PageKey, regions []types.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[key] = cloneRegions(regions)
	return nil
}

func (s *MemoryStore) Regions(ctx context.Context, key types.PageKey) ([]types.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regions, ok := s.regions[key]
	if !ok {
		return nil, fmt.Errorf("regions %s: %w", key, ErrNotFound)
	}
	return cloneRegions(regions), nil
}

func (s *MemoryStore) PutComparison(ctx context.Context, key types.PageKey, cmp Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparisons[key] = Comparison{
		Inside:  cloneFragments(cmp.Inside),
		Outside: cloneFragments(cmp.Outside),
	}
	return nil
}

func (s *MemoryStore) Comparison(ctx context.Context, key types.PageKey) (*Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmp, ok := s.comparisons[key]
	if !ok {
		return nil, fmt.Errorf("comparison %s: %w", key, ErrNotFound)
	}
	return &Comparison{
		Inside:  cloneFragments(cmp.Inside),
		Outside: cloneFragments(cmp.Outside),
	}, nil
}

func (s *MemoryStore) PutReclassified(ctx context.Context, key types.PageKey, regions []types.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclassified[key] = cloneRegions(regions)
	return nil
}

func (s *MemoryStore) Reclassified(ctx context.Context, key types.PageKey) ([]types.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regions, ok := s.reclassified[key]
	if !ok {
		return nil, fmt.Errorf("reclassified regions %s: %w", key, ErrNotFound)
	}
	return cloneRegions(regions), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func cloneRegions(in []types.Region) []types.Region {
	out := make([]types.Region, len(in))
	copy(out, in)
	return out
}

func cloneFragments(in []types.Fragment) []types.Fragment {
	out := make([]types.Fragment, len(in))
	copy(out, in)
	return out
}

var _ Store = (*MemoryStore)(nil)
