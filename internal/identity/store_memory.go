package identity

import (
	"context"
	"strings"
	"sync"

	"foodtrace/pkg/platform/sentinel"
)

// MemoryStore keeps every registration ever created in insertion order with
// indexes for the registry's query surface. It intentionally favors clarity
// over performance.
type MemoryStore struct {
	mu            sync.RWMutex
	registrations []Stakeholder
	liveByIdent   map[string]int
	byLicense     map[string]int
	liveByRole    map[Role][]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		liveByIdent: make(map[string]int),
		byLicense:   make(map[string]int),
		liveByRole:  make(map[Role][]int),
	}
}

func (s *MemoryStore) Save(_ context.Context, reg Stakeholder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveByIdent[reg.Identity]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byLicense[reg.BusinessLicense]; ok {
		return sentinel.ErrConflict
	}
	idx := len(s.registrations)
	s.registrations = append(s.registrations, reg)
	s.liveByIdent[reg.Identity] = idx
	s.byLicense[reg.BusinessLicense] = idx
	s.liveByRole[reg.Role] = append(s.liveByRole[reg.Role], idx)
	return nil
}

func (s *MemoryStore) FindLive(_ context.Context, identity string) (Stakeholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.liveByIdent[identity]; ok {
		return s.registrations[idx], nil
	}
	return Stakeholder{}, sentinel.ErrNotFound
}

func (s *MemoryStore) Execute(_ context.Context, identity string, validate func(*Stakeholder) error, mutate func(*Stakeholder)) (Stakeholder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.liveByIdent[identity]
	if !ok {
		return Stakeholder{}, sentinel.ErrNotFound
	}
	reg := s.registrations[idx]
	if err := validate(&reg); err != nil {
		return Stakeholder{}, err
	}
	mutate(&reg)
	s.registrations[idx] = reg
	if !reg.Active {
		// Deactivation frees the identity for re-registration; the license
		// index keeps the historical claim so licenses stay injective.
		delete(s.liveByIdent, identity)
		s.liveByRole[reg.Role] = removeIndex(s.liveByRole[reg.Role], idx)
	}
	return reg, nil
}

func (s *MemoryStore) ListByRole(_ context.Context, role Role) ([]Stakeholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	indexes := s.liveByRole[role]
	out := make([]Stakeholder, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, s.registrations[idx])
	}
	return out, nil
}

func (s *MemoryStore) FindByLicense(_ context.Context, license string) (Stakeholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.byLicense[license]; ok {
		return s.registrations[idx], nil
	}
	return Stakeholder{}, sentinel.ErrNotFound
}

func (s *MemoryStore) SearchByName(_ context.Context, substring string) ([]Stakeholder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Stakeholder
	for _, idx := range s.liveByIdent {
		if strings.Contains(s.registrations[idx].BusinessName, substring) {
			out = append(out, s.registrations[idx])
		}
	}
	return out, nil
}

func removeIndex(indexes []int, target int) []int {
	out := indexes[:0]
	for _, idx := range indexes {
		if idx != target {
			out = append(out, idx)
		}
	}
	return out
}
