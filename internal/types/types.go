package types

import (
	"time"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

// Client -> Server message types.
const (
	TypeJoin        = "join"
	TypePing        = "ping"
	TypeReady       = "ready"
	TypeSelect      = "select"
	TypeConfirm     = "confirm"
	TypeSetTeamName = "setTeamName"
)

// Server -> Room message types.
const (
	TypeState = "state"
	TypeTick  = "tick"
	TypePong  = "pong"
	TypeError = "error"
)

type ClientMessage struct {
	Type       string             `json:"type"`
	RoomID     string             `json:"roomId,omitempty"`
	Side       engine.Side        `json:"side,omitempty"`
	Action     engine.Action      `json:"action,omitempty"`
	ChampionID *engine.ChampionID `json:"championId,omitempty"`
	Name       string             `json:"name,omitempty"`

	// ClientAt is the sender's clock when the message was produced.
	ClientAt *time.Time `json:"clientAt,omitempty"`
}

type ServerMessage struct {
	Type      string        `json:"type"` // "state" | "tick" | "pong" | "error"
	State     *engine.State `json:"state,omitempty"`
	Countdown *int          `json:"countdown,omitempty"`
	EventSeq  *int          `json:"eventSeq,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func StateMessage(s engine.State) ServerMessage {
	return ServerMessage{Type: TypeState, State: &s}
}

func TickMessage(countdown, eventSeq int) ServerMessage {
	return ServerMessage{Type: TypeTick, Countdown: &countdown, EventSeq: &eventSeq}
}

func ErrorMessage(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Error: msg}
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	BlueName string `json:"blueName"`
	RedName  string `json:"redName"`
}

type CreateRoomResponse struct {
	RoomID string       `json:"roomId"`
	State  engine.State `json:"state"`
}

type EventsResponse struct {
	RoomID string         `json:"roomId"`
	Events []engine.Event `json:"events"`
}
