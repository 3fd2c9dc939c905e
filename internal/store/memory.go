package store

import (
	"context"
	"sort"
	"sync"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

type memoryRoom struct {
	blueName string
	redName  string
	status   string
	state    engine.State
}

// Memory is an in-process Store. It is used when no database is configured
// and in tests.
type Memory struct {
	mu          sync.RWMutex
	rooms       map[string]memoryRoom
	failUpdates error
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]memoryRoom)}
}

func (m *Memory) RoomExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[id]
	return ok, nil
}

func (m *Memory) InsertRoom(_ context.Context, id, blueName, redName string, initial engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return ErrRoomExists
	}
	m.rooms[id] = memoryRoom{
		blueName: blueName,
		redName:  redName,
		status:   statusOf(initial),
		state:    initial.Clone(),
	}
	return nil
}

func (m *Memory) UpdateState(_ context.Context, id string, state engine.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates != nil {
		return m.failUpdates
	}
	r, ok := m.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	r.state = state.Clone()
	r.status = statusOf(state)
	m.rooms[id] = r
	return nil
}

func (m *Memory) LoadState(_ context.Context, id string) (engine.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return engine.State{}, ErrRoomNotFound
	}
	return r.state.Clone(), nil
}

func (m *Memory) FetchEvents(ctx context.Context, id string) ([]engine.Event, error) {
	s, err := m.LoadState(ctx, id)
	if err != nil {
		return nil, err
	}
	events := s.Events
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// FailUpdates makes every later UpdateState call return err; nil restores
// normal behaviour.
func (m *Memory) FailUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdates = err
}

func (m *Memory) Ping(context.Context) error { return nil }

// Status returns the stored status column of id, for tests.
func (m *Memory) Status(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id].status
}

// TeamNames returns the names id was created with, for tests.
func (m *Memory) TeamNames(id string) (blue, red string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r.blueName, r.redName, ok
}
