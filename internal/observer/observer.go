// Package observer keeps a viewer's local copy of a room in step with the
// server. Incoming full states are merged by eventSeq rather than copied
// blindly, so an optimistic local selection survives the echo of an older
// state.
package observer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

type Message interface{ isObserverMsg() }

// StateMessage carries a full authoritative state.
type StateMessage struct {
	State engine.State
}

// TickMessage carries the lightweight per-second countdown update.
type TickMessage struct {
	Countdown int
	EventSeq  int
}

func (StateMessage) isObserverMsg() {}
func (TickMessage) isObserverMsg()  {}

type Store struct {
	mu    sync.Mutex
	state engine.State
	has   bool
	subs  map[string]chan engine.State
}

func NewStore() *Store {
	return &Store{subs: make(map[string]chan engine.State)}
}

// State returns a copy of the local state. ok is false until the first state
// has been received.
func (s *Store) State() (engine.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), s.has
}

// Hydrate merges an incoming full state into the local copy.
func (s *Store) Hydrate(incoming engine.State) {
	s.update(func(local engine.State, has bool) (engine.State, bool) {
		if !has {
			return incoming.Clone(), true
		}
		return Merge(local, incoming), true
	})
}

// Replace overwrites the local state unconditionally.
func (s *Store) Replace(st engine.State) {
	s.update(func(engine.State, bool) (engine.State, bool) { return st.Clone(), true })
}

// Tick only moves the countdown; ticks never carry structural changes.
func (s *Store) Tick(countdown int) {
	s.update(func(local engine.State, has bool) (engine.State, bool) {
		local.Countdown = max(0, countdown)
		return local, has
	})
}

// Update applies fn to the local state and notifies subscribers. It is a
// no-op before the first state arrives.
func (s *Store) Update(fn func(engine.State) engine.State) {
	s.update(func(local engine.State, has bool) (engine.State, bool) {
		if !has {
			return local, false
		}
		return fn(local), true
	})
}

func (s *Store) Ready(side engine.Side) {
	s.reduce(engine.Command{Type: engine.CmdReady, Side: side})
}

func (s *Store) Select(side engine.Side, action engine.Action, champion *engine.ChampionID) {
	s.reduce(engine.Command{Type: engine.CmdSelect, Side: side, Action: action, ChampionID: champion})
}

func (s *Store) Confirm(side engine.Side, action engine.Action) {
	s.reduce(engine.Command{Type: engine.CmdConfirm, Side: side, Action: action})
}

func (s *Store) SetTeamName(side engine.Side, name string) {
	s.reduce(engine.Command{Type: engine.CmdSetTeamName, Side: side, Name: name})
}

func (s *Store) reduce(cmd engine.Command) {
	s.Update(func(local engine.State) engine.State { return Reduce(local, cmd) })
}

// Subscribe returns a channel receiving the latest state after every change.
// Slow readers only ever see the most recent state.
func (s *Store) Subscribe() (<-chan engine.State, func()) {
	id := uuid.NewString()
	ch := make(chan engine.State, 1)

	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Run feeds messages from ch into the store until ch is closed or ctx ends.
func (s *Store) Run(ctx context.Context, ch <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			switch msg := m.(type) {
			case StateMessage:
				s.Hydrate(msg.State)
			case TickMessage:
				s.Tick(msg.Countdown)
			}
		}
	}
}

func (s *Store) update(fn func(engine.State, bool) (engine.State, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := fn(s.state, s.has)
	if !ok {
		return
	}
	s.state = next
	s.has = true
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.state.Clone()
	}
}

// Merge reconciles incoming with local by eventSeq:
//   - older incoming: only its countdown is taken
//   - equal: incoming wins, except an optimistic local selection on the
//     pending step that the incoming state does not carry yet
//   - newer: incoming wins outright
func Merge(local, incoming engine.State) engine.State {
	switch {
	case incoming.EventSeq < local.EventSeq:
		out := local.Clone()
		out.Countdown = incoming.Countdown
		return out

	case incoming.EventSeq == local.EventSeq:
		out := incoming.Clone()
		keepOptimisticSelection(&out, local)
		return out

	default:
		return incoming.Clone()
	}
}

func keepOptimisticSelection(out *engine.State, local engine.State) {
	if out.Finished || local.CurrentStepIndex != out.CurrentStepIndex {
		return
	}
	i := out.CurrentStepIndex
	if i < 0 || i >= len(out.Steps) || i >= len(local.Steps) {
		return
	}
	mine := local.Steps[i].Selection
	if mine == nil || !local.Steps[i].Pending {
		return
	}
	theirs := out.Steps[i].Selection
	if theirs != nil && *theirs == *mine {
		return
	}
	id := *mine
	out.Steps[i].Selection = &id
}

// Reduce runs cmd through the same rules the server applies but keeps the
// local log untouched; only the server appends events.
func Reduce(s engine.State, cmd engine.Command) engine.State {
	next, effects := engine.Apply(s, cmd)
	if len(effects) == 0 {
		return s
	}
	next.Events = next.Events[:len(s.Events)]
	next.EventSeq = s.EventSeq
	return next
}
