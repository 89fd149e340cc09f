package history

import (
	"context"
	"sync"
	"time"
)

// memoryHistory keeps per-room event slices in process memory. With a zero
// retention it stores nothing at all, which is the RETENTION_HOURS=0 mode:
// live fan-out only, no backfill, nothing survives a restart.
type memoryHistory struct {
	mu        sync.Mutex
	rooms     map[string][]Event
	retention time.Duration
	now       func() time.Time
}

func NewMemoryHistory(retention time.Duration) IHistoryService {
	return &memoryHistory{
		rooms:     make(map[string][]Event),
		retention: retention,
		now:       time.Now,
	}
}

func (s *memoryHistory) Append(_ context.Context, ev Event) error {
	if s.retention <= 0 {
		return nil
	}
	s.mu.Lock()
	s.rooms[ev.RoomKey] = append(s.rooms[ev.RoomKey], ev)
	s.mu.Unlock()
	return nil
}

func (s *memoryHistory) Recent(_ context.Context, roomKey string, limit int) ([]Event, error) {
	if s.retention <= 0 || limit <= 0 {
		return nil, nil
	}
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.rooms[roomKey]
	// events are append-ordered, so the window is a suffix
	start := len(events)
	for start > 0 && !events[start-1].Ts.Before(cutoff) {
		start--
	}
	recent := events[start:]
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	out := make([]Event, len(recent))
	copy(out, recent)
	return out, nil
}

func (s *memoryHistory) Prune(_ context.Context, now time.Time) error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := now.Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, events := range s.rooms {
		start := 0
		for start < len(events) && events[start].Ts.Before(cutoff) {
			start++
		}
		if start == len(events) {
			delete(s.rooms, key)
			continue
		}
		if start > 0 {
			kept := make([]Event, len(events)-start)
			copy(kept, events[start:])
			s.rooms[key] = kept
		}
	}
	return nil
}
