package store

import (
	"context"
	"slices"
	"sync"
)

type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Record
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Record)}
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	rec.State = slices.Clone(rec.State)
	m.mu.Lock()
	m.rooms[rec.Room] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, room string) (Record, error) {
	m.mu.RLock()
	rec, ok := m.rooms[room]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.State = slices.Clone(rec.State)
	return rec, nil
}

func (m *Memory) Delete(_ context.Context, room string) error {
	m.mu.Lock()
	delete(m.rooms, room)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.rooms))
	for name := range m.rooms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m *Memory) Close() error { return nil }
