package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mutex   sync.Mutex
	windows map[string][]time.Time
}

// NewMemory builds the in-process store. State is lost on restart, which is
// acceptable for a soft deterrent.
func NewMemory() Store {
	return &memoryStore{
		windows: make(map[string][]time.Time),
	}
}

func (s *memoryStore) Take(
	_ context.Context,
	identifier string,
	now time.Time,
	window time.Duration,
	limit int,
) (int, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := now.Add(-window)
	recent := s.windows[identifier][:0:0]
	for _, at := range s.windows[identifier] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= limit {
		s.windows[identifier] = recent
		return len(recent), false, nil
	}

	recent = append(recent, now)
	s.windows[identifier] = recent
	return len(recent), true, nil
}

func (s *memoryStore) Close(context.Context) error {
	s.mutex.Lock()
	s.windows = make(map[string][]time.Time)
	s.mutex.Unlock()
	return nil
}
