// Package memory provides the in-memory notification log used by the serial
// reference execution model and by tests.
package memory

import (
	"context"
	"sync"

	audit "foodtrace/pkg/platform/audit"
)

// Store keeps every event in insertion order and maintains by-entity and
// by-actor indexes. Nothing is ever deleted.
type Store struct {
	mu       sync.RWMutex
	events   []audit.Event
	byEntity map[string][]int
	byActor  map[string][]int
}

func NewStore() *Store {
	return &Store{
		byEntity: make(map[string][]int),
		byActor:  make(map[string][]int),
	}
}

func entityKey(kind audit.EntityKind, entityID string) string {
	return string(kind) + "/" + entityID
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.events)
	s.events = append(s.events, event)
	key := entityKey(event.EntityKind, event.EntityID)
	s.byEntity[key] = append(s.byEntity[key], idx)
	if event.Actor != "" {
		s.byActor[event.Actor] = append(s.byActor[event.Actor], idx)
	}
	return nil
}

func (s *Store) ListByEntity(_ context.Context, kind audit.EntityKind, entityID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byEntity[entityKey(kind, entityID)]), nil
}

func (s *Store) ListByActor(_ context.Context, actor string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byActor[actor]), nil
}

// All returns the full log in insertion order. Used by tests and the
// in-process relay fake.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

func (s *Store) collect(indexes []int) []audit.Event {
	out := make([]audit.Event, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, s.events[i])
	}
	return out
}
