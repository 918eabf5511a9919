package shipment

import (
	"context"
	"sync"

	"foodtrace/pkg/platform/sentinel"
)

// MemoryStore keeps shipments in a map keyed by ID with tracking, product,
// and participant indexes. IDs are assigned monotonically and never reused.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        uint64
	shipments     map[uint64]*Shipment
	byTracking    map[string]uint64
	byProduct     map[uint64][]uint64
	byParticipant map[string][]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:        1,
		shipments:     make(map[uint64]*Shipment),
		byTracking:    make(map[string]uint64),
		byProduct:     make(map[uint64][]uint64),
		byParticipant: make(map[string][]uint64),
	}
}

func (s *MemoryStore) Create(_ context.Context, sh *Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTracking[sh.TrackingNumber]; ok {
		return sentinel.ErrConflict
	}
	sh.ID = s.nextID
	s.nextID++
	clone := cloneShipment(sh)
	s.shipments[clone.ID] = &clone
	s.byTracking[clone.TrackingNumber] = clone.ID
	s.byProduct[clone.ProductID] = append(s.byProduct[clone.ProductID], clone.ID)
	s.byParticipant[clone.SenderIdentity] = append(s.byParticipant[clone.SenderIdentity], clone.ID)
	if clone.Receiver != clone.SenderIdentity {
		s.byParticipant[clone.Receiver] = append(s.byParticipant[clone.Receiver], clone.ID)
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uint64) (Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sh, ok := s.shipments[id]; ok {
		return cloneShipment(sh), nil
	}
	return Shipment{}, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByTracking(_ context.Context, tracking string) (Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byTracking[tracking]; ok {
		return cloneShipment(s.shipments[id]), nil
	}
	return Shipment{}, sentinel.ErrNotFound
}

func (s *MemoryStore) Execute(_ context.Context, id uint64, validate func(*Shipment) error, mutate func(*Shipment)) (Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return Shipment{}, sentinel.ErrNotFound
	}
	work := cloneShipment(sh)
	if err := validate(&work); err != nil {
		return Shipment{}, err
	}
	mutate(&work)
	s.shipments[id] = &work
	return cloneShipment(&work), nil
}

func (s *MemoryStore) ListByProduct(_ context.Context, productID uint64) ([]Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byProduct[productID]), nil
}

func (s *MemoryStore) ListByParticipant(_ context.Context, identity string) ([]Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byParticipant[identity]), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Shipment
	for id := uint64(1); id < s.nextID; id++ {
		if sh, ok := s.shipments[id]; ok && sh.Status == status {
			out = append(out, cloneShipment(sh))
		}
	}
	return out, nil
}

func (s *MemoryStore) StatusCounts(_ context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int)
	for _, sh := range s.shipments {
		counts[sh.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) collect(ids []uint64) []Shipment {
	out := make([]Shipment, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneShipment(s.shipments[id]))
	}
	return out
}

func cloneShipment(sh *Shipment) Shipment {
	clone := *sh
	clone.History = append([]HistoryEntry{}, sh.History...)
	return clone
}
