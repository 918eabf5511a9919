package product

import (
	"context"
	"sync"

	"foodtrace/pkg/platform/sentinel"
)

// MemoryStore keeps products in a map keyed by ID with batch, authorship,
// and stage indexes. IDs are assigned monotonically and never reused.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      uint64
	products    map[uint64]*Product
	byBatch     map[string]uint64
	byAuthor    map[string][]uint64
	activeCount int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		products: make(map[uint64]*Product),
		byBatch:  make(map[string]uint64),
		byAuthor: make(map[string][]uint64),
	}
}

func (s *MemoryStore) Create(_ context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byBatch[p.BatchNumber]; ok {
		return sentinel.ErrConflict
	}
	p.ID = s.nextID
	s.nextID++
	clone := *p
	s.products[clone.ID] = &clone
	s.byBatch[clone.BatchNumber] = clone.ID
	if clone.Active {
		s.activeCount++
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uint64) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[id]; ok {
		return cloneProduct(p), nil
	}
	return Product{}, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByBatch(_ context.Context, batch string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byBatch[batch]; ok {
		return cloneProduct(s.products[id]), nil
	}
	return Product{}, sentinel.ErrNotFound
}

func (s *MemoryStore) Execute(_ context.Context, id uint64, validate func(*Product) error, mutate func(*Product)) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, sentinel.ErrNotFound
	}
	work := cloneProduct(p)
	if err := validate(&work); err != nil {
		return Product{}, err
	}
	wasActive := work.Active
	mutate(&work)
	if wasActive && !work.Active {
		s.activeCount--
	}
	s.products[id] = &work
	return cloneProduct(&work), nil
}

func (s *MemoryStore) AddAuthorship(_ context.Context, identity string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byAuthor[identity] {
		if existing == id {
			return nil
		}
	}
	s.byAuthor[identity] = append(s.byAuthor[identity], id)
	return nil
}

func (s *MemoryStore) ListByStakeholder(_ context.Context, identity string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64{}, s.byAuthor[identity]...), nil
}

func (s *MemoryStore) ListByStage(_ context.Context, stage Stage) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Product
	for id := uint64(1); id < s.nextID; id++ {
		if p, ok := s.products[id]; ok && p.Active && p.Stage == stage {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (s *MemoryStore) StageCounts(_ context.Context) (map[Stage]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Stage]int)
	for _, p := range s.products {
		if p.Active {
			counts[p.Stage]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) ActiveCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCount, nil
}

func cloneProduct(p *Product) Product {
	clone := *p
	clone.Records = append([]StageRecord{}, p.Records...)
	return clone
}
