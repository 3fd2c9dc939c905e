package lobby

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
)

// helper: receive one update with a timeout so tests never hang
func recvUpdate(t *testing.T, ch <-chan Update, within time.Duration) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return u
	case <-time.After(within):
		t.Fatalf("timed out waiting for update")
		return Update{} // unreachable
	}
}

// recvState skips ticks and pongs until a state update arrives.
func recvState(t *testing.T, ch <-chan Update, within time.Duration) engine.State {
	t.Helper()
	return recvUntil(t, ch, within, func(u Update) bool { return u.Kind == UpdateState }).State
}

func recvUntil(t *testing.T, ch <-chan Update, within time.Duration, match func(Update) bool) Update {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed unexpectedly")
			}
			if match(u) {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching update")
			return Update{} // unreachable
		}
	}
}

func recvNoState(t *testing.T, ch <-chan Update, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				// channel closed → that's fine; no further updates possible
				return
			}
			if u.Kind == UpdateState {
				t.Fatalf("expected no state update within %v, but got step %d", within, u.State.CurrentStepIndex)
			}
		case <-deadline:
			return
		}
	}
}

func recvView(t *testing.T, l *Lobby) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func newTestLobby(t *testing.T, st store.Store, opts Options) (*Lobby, chan Update) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial := engine.NewState("ROOM01", "Blue", "Red")
	if st != nil {
		require.NoError(t, st.InsertRoom(ctx, "ROOM01", "Blue", "Red", initial))
	}
	l := NewLobby(ctx, Config{
		ID:      "ROOM01",
		Store:   st,
		Logger:  zaptest.NewLogger(t),
		Options: opts,
	})

	out := make(chan Update, 256)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	return l, out
}

func send(l *Lobby, cmd engine.Command) {
	l.Inbox() <- FromClient{Cmd: cmd}
}

func TestLobby_JoinHydratesFromStore(t *testing.T) {
	mem := store.NewMemory()
	l, out := newTestLobby(t, mem, Options{})

	first := recvState(t, out, time.Second)
	assert.Equal(t, "ROOM01", first.RoomID)
	assert.Equal(t, "Blue", first.Teams.Blue.Name)
	assert.Equal(t, "Red", first.Teams.Red.Name)

	v := recvView(t, l)
	assert.True(t, v.Loaded)
	assert.Equal(t, 1, v.NumClients)
	assert.False(t, v.Started)
}

func TestLobby_MissingRoomStartsFresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLobby(ctx, Config{ID: "GHOST1", Store: store.NewMemory(), Logger: zaptest.NewLogger(t)})

	out := make(chan Update, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	s := recvState(t, out, time.Second)

	assert.Equal(t, "GHOST1", s.RoomID)
	assert.Len(t, s.Steps, 20)
	assert.Equal(t, 0, s.CurrentStepIndex)
}

func TestLobby_ReadyStartsClockAndConfirmPersists(t *testing.T) {
	mem := store.NewMemory()
	l, out := newTestLobby(t, mem, Options{TickInterval: 20 * time.Millisecond})
	recvState(t, out, time.Second)

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})
	s := recvState(t, out, time.Second)
	assert.True(t, s.Teams.Blue.Ready)
	assert.False(t, recvView(t, l).Started, "clock waits for both sides")

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideRed})
	s = recvState(t, out, time.Second)
	assert.True(t, s.BothReady())
	assert.True(t, recvView(t, l).Started)

	tick := recvUntil(t, out, time.Second, func(u Update) bool { return u.Kind == UpdateTick })
	assert.Equal(t, engine.DefaultCountdown, tick.Countdown)
	assert.Equal(t, 1, tick.EventSeq)

	send(l, engine.Command{Type: engine.CmdSelect, Side: engine.SideBlue, Action: engine.ActionBan, ChampionID: engine.Champion(266)})
	recvState(t, out, time.Second)
	send(l, engine.Command{Type: engine.CmdConfirm, Side: engine.SideBlue, Action: engine.ActionBan})
	s = recvState(t, out, time.Second)

	require.NotNil(t, s.Steps[0].Selection)
	assert.Equal(t, engine.ChampionID(266), *s.Steps[0].Selection)
	assert.False(t, s.Steps[0].Pending)
	assert.Equal(t, 1, s.CurrentStepIndex)
	assert.Equal(t, engine.DefaultCountdown, s.Countdown)
	assert.True(t, engine.IsMonotonic(s.Events))

	require.Eventually(t, func() bool {
		stored, err := mem.LoadState(context.Background(), "ROOM01")
		return err == nil && stored.CurrentStepIndex == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLobby_StaleCommandsAreDropped(t *testing.T) {
	l, out := newTestLobby(t, store.NewMemory(), Options{})
	recvState(t, out, time.Second)

	send(l, engine.Command{Type: engine.CmdConfirm, Side: engine.SideRed, Action: engine.ActionBan})
	send(l, engine.Command{Type: engine.CmdSelect, Side: engine.SideBlue, Action: engine.ActionPick, ChampionID: engine.Champion(1)})
	recvNoState(t, out, 150*time.Millisecond)

	v := recvView(t, l)
	assert.Equal(t, 0, v.State.CurrentStepIndex)
	assert.Nil(t, v.State.Steps[0].Selection)
}

func TestLobby_TimeoutAutoConfirms(t *testing.T) {
	l, out := newTestLobby(t, store.NewMemory(), Options{
		StepDuration: 300 * time.Millisecond,
		TickInterval: 20 * time.Millisecond,
	})
	recvState(t, out, time.Second)

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})
	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideRed})

	u := recvUntil(t, out, 2*time.Second, func(u Update) bool {
		return u.Kind == UpdateState && u.State.CurrentStepIndex == 1
	})
	s := u.State
	require.NotEmpty(t, s.Events)
	last := s.Events[len(s.Events)-1]
	assert.Equal(t, engine.EvtAutoConfirm, last.Kind)
	assert.Equal(t, engine.OriginServer, last.Origin)
	assert.Equal(t, engine.ReasonTimeout, last.Reason)
	assert.Nil(t, s.Steps[0].Selection)
	assert.Equal(t, engine.DefaultCountdown, s.Countdown)

	// The clock restarted for step 1.
	v := recvView(t, l)
	assert.True(t, v.Started)
	assert.True(t, v.Deadline.After(time.Now()))
}

func TestLobby_LastStepTimeoutStopsClock(t *testing.T) {
	mem := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := engine.NewState("ROOM01", "Blue", "Red")
	initial.Teams.Blue.Ready = true
	initial.Teams.Red.Ready = true
	for i := 0; i < len(initial.Steps)-1; i++ {
		initial.Steps[i].Pending = false
	}
	initial.CurrentStepIndex = len(initial.Steps) - 1
	initial.Steps[initial.CurrentStepIndex].Pending = true
	require.NoError(t, mem.InsertRoom(ctx, "ROOM01", "Blue", "Red", initial))

	l := NewLobby(ctx, Config{
		ID:      "ROOM01",
		Store:   mem,
		Logger:  zaptest.NewLogger(t),
		Options: Options{StepDuration: 200 * time.Millisecond, TickInterval: 20 * time.Millisecond},
	})
	out := make(chan Update, 256)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	// Hydrating a running draft resumes its clock.
	u := recvUntil(t, out, 2*time.Second, func(u Update) bool { return u.Kind == UpdateState && u.State.Finished })
	assert.Equal(t, 0, u.State.Countdown)
	assert.Equal(t, len(initial.Steps), u.State.CurrentStepIndex)

	v := recvView(t, l)
	assert.False(t, v.Started)
	assert.True(t, v.Deadline.IsZero())
}

func TestLobby_PersistFailureIsSwallowed(t *testing.T) {
	mem := store.NewMemory()
	l, out := newTestLobby(t, mem, Options{})
	recvState(t, out, time.Second)
	mem.FailUpdates(errors.New("connection reset"))

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})
	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideRed})
	send(l, engine.Command{Type: engine.CmdConfirm, Side: engine.SideBlue, Action: engine.ActionBan})

	s := recvUntil(t, out, time.Second, func(u Update) bool {
		return u.Kind == UpdateState && u.State.CurrentStepIndex == 1
	}).State
	assert.Equal(t, 1, s.CurrentStepIndex)

	// The next mutation after recovery lands in storage.
	mem.FailUpdates(nil)
	send(l, engine.Command{Type: engine.CmdSetTeamName, Side: engine.SideBlue, Name: "T1"})
	require.Eventually(t, func() bool {
		stored, err := mem.LoadState(context.Background(), "ROOM01")
		return err == nil && stored.CurrentStepIndex == 1 && stored.Teams.Blue.Name == "T1"
	}, time.Second, 10*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := engine.NewState("ROOM01", "Blue", "Red")
	l := NewLobby(ctx, Config{ID: "ROOM01", Initial: &initial, Logger: zaptest.NewLogger(t)})

	clientOut := make(chan Update, 1)
	l.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut} // fills the buffer

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})

	view := recvView(t, l)
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestLobby_PingBroadcastsPong(t *testing.T) {
	l, out := newTestLobby(t, nil, Options{})
	recvState(t, out, time.Second)

	l.Inbox() <- Ping{}
	u := recvUpdate(t, out, time.Second)
	assert.Equal(t, UpdatePong, u.Kind)
}

func TestLobby_Shutdown_StopsTimer_NoFire(t *testing.T) {
	l, out := newTestLobby(t, store.NewMemory(), Options{
		StepDuration: 100 * time.Millisecond,
		TickInterval: 10 * time.Millisecond,
	})
	recvState(t, out, time.Second)

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})
	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideRed})
	l.Inbox() <- Shutdown{}

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby did not stop")
	}

	// Drain whatever was sent before shutdown; the outbox must be closed.
	for range out {
	}
	assert.False(t, l.Status().Started)
	assert.ErrorIs(t, l.Send(context.Background(), Ping{}), ErrLobbyClosed)
}

// flakyLoadStore fails the first n LoadState calls.
type flakyLoadStore struct {
	*store.Memory
	failures atomic.Int32
}

func (f *flakyLoadStore) LoadState(ctx context.Context, id string) (engine.State, error) {
	if f.failures.Add(-1) >= 0 {
		return engine.State{}, errors.New("connection reset by peer")
	}
	return f.Memory.LoadState(ctx, id)
}

// midDraft returns a room that has confirmed its first n steps.
func midDraft(t *testing.T, n int) engine.State {
	t.Helper()
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	s := engine.NewState("ROOM01", "T1", "Gen.G")
	s, _ = engine.Apply(s, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue, At: at})
	s, _ = engine.Apply(s, engine.Command{Type: engine.CmdReady, Side: engine.SideRed, At: at})
	for i := 0; i < n; i++ {
		step, ok := s.CurrentStep()
		require.True(t, ok)
		at = at.Add(time.Second)
		s, _ = engine.Apply(s, engine.Command{Type: engine.CmdSelect, Side: step.Side, Action: step.Kind, ChampionID: engine.Champion(10 + i), At: at})
		s, _ = engine.Apply(s, engine.Command{Type: engine.CmdConfirm, Side: step.Side, Action: step.Kind, At: at})
	}
	require.Equal(t, n, s.CurrentStepIndex)
	return s
}

func TestLobby_FailedLoadNeverOverwritesStoredDraft(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemory()
	require.NoError(t, mem.InsertRoom(ctx, "ROOM01", "T1", "Gen.G", midDraft(t, 7)))
	before, err := mem.LoadState(ctx, "ROOM01")
	require.NoError(t, err)

	flaky := &flakyLoadStore{Memory: mem}
	flaky.failures.Store(2)
	l := NewLobby(ctx, Config{ID: "ROOM01", Store: flaky, Logger: zaptest.NewLogger(t), Options: Options{}})
	out := make(chan Update, 64)

	// The join gets a placeholder while the room cannot be read.
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	placeholder := recvState(t, out, time.Second)
	assert.Equal(t, 0, placeholder.CurrentStepIndex)
	assert.Empty(t, placeholder.Teams.Blue.Name)

	// A mutation while the load keeps failing is dropped, not persisted.
	send(l, engine.Command{Type: engine.CmdSetTeamName, Side: engine.SideBlue, Name: "Blank"})
	recvNoState(t, out, 100*time.Millisecond)
	assert.False(t, recvView(t, l).Loaded)

	// The next message loads the real room and repairs the subscribers.
	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})
	repaired := recvState(t, out, time.Second)
	assert.Equal(t, 7, repaired.CurrentStepIndex)
	assert.Equal(t, "T1", repaired.Teams.Blue.Name)
	assert.Equal(t, before.EventSeq, repaired.EventSeq)

	v := recvView(t, l)
	assert.True(t, v.Loaded)
	assert.True(t, v.Started, "a hydrated running draft restarts its clock")

	after, err := mem.LoadState(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLobby_MutationBroadcastsStateOnce(t *testing.T) {
	mem := store.NewMemory()
	l, out := newTestLobby(t, mem, Options{})
	recvState(t, out, time.Second)

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideBlue})
	recvState(t, out, time.Second)
	recvNoState(t, out, 100*time.Millisecond)

	send(l, engine.Command{Type: engine.CmdReady, Side: engine.SideRed})
	recvState(t, out, time.Second)
	recvNoState(t, out, 100*time.Millisecond)

	send(l, engine.Command{Type: engine.CmdSelect, Side: engine.SideBlue, Action: engine.ActionBan, ChampionID: engine.Champion(266)})
	recvState(t, out, time.Second)
	recvNoState(t, out, 100*time.Millisecond)

	send(l, engine.Command{Type: engine.CmdConfirm, Side: engine.SideBlue, Action: engine.ActionBan})
	confirmed := recvState(t, out, time.Second)
	assert.Equal(t, 1, confirmed.CurrentStepIndex)
	recvNoState(t, out, 100*time.Millisecond)
}
