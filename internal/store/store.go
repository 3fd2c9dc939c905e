// Package store persists room state documents keyed by room id.
package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Store is the durable side of a room. Implementations must be safe for
// concurrent use by many lobbies.
type Store interface {
	RoomExists(ctx context.Context, id string) (bool, error)
	// InsertRoom fails with ErrRoomExists on an id collision; callers retry
	// with a fresh id.
	InsertRoom(ctx context.Context, id, blueName, redName string, initial engine.State) error
	// UpdateState atomically replaces the stored state of id.
	UpdateState(ctx context.Context, id string, state engine.State) error
	LoadState(ctx context.Context, id string) (engine.State, error)
	// FetchEvents returns the room's event log ordered by sequence.
	FetchEvents(ctx context.Context, id string) ([]engine.Event, error)
	Ping(ctx context.Context) error
}

func statusOf(s engine.State) string {
	if s.Finished {
		return StatusFinished
	}
	return StatusActive
}
