package lobby

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
)

var ErrLobbyClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// FromClient carries a participant command. The lobby stamps it with its
// own receive time before applying it.
type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Update // where this client wants to receive updates
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Ping struct{}

func (Ping) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type UpdateKind string

const (
	UpdateState UpdateKind = "state"
	UpdateTick  UpdateKind = "tick"
	UpdatePong  UpdateKind = "pong"
)

// Update is what subscribers receive. State is only set for UpdateState.
type Update struct {
	Kind      UpdateKind
	State     engine.State
	Countdown int
	EventSeq  int
}

type View struct {
	NumClients int
	Loaded     bool
	Started    bool
	Deadline   time.Time
	State      engine.State
}

// Status is a lock-free summary the hub reads when sweeping idle rooms.
type Status struct {
	Loaded       bool
	Started      bool
	Clients      int
	Deadline     time.Time
	LastActivity time.Time
}

type Options struct {
	StepDuration   time.Duration
	TickInterval   time.Duration
	PersistTimeout time.Duration
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StepDuration <= 0 {
		o.StepDuration = engine.DefaultCountdown * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Config struct {
	ID string

	// Initial seeds the lobby; when nil the state is hydrated from Store on
	// first use.
	Initial *engine.State
	Store   store.Store
	Logger  *zap.Logger
	Options Options
}

type Lobby struct {
	id      string
	inbox   chan Msg
	state   engine.State
	loaded  bool

	// hydrateFailed is set while the stored state could not be read.
	hydrateFailed bool
	clients map[string]chan Update
	store   store.Store
	log     *zap.Logger
	opts    Options

	ticker   *time.Ticker
	tickC    <-chan time.Time
	deadline time.Time
	started  bool

	persister    *persister
	lastActivity time.Time
	status       atomic.Pointer[Status]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLobby(parent context.Context, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	opts := cfg.Options.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("lobby").With(zap.String("room", cfg.ID))

	l := &Lobby{
		id:           cfg.ID,
		inbox:        make(chan Msg, 64), // Small buffer
		clients:      make(map[string]chan Update),
		store:        cfg.Store,
		log:          log,
		opts:         opts,
		persister:    newPersister(cfg.ID, cfg.Store, log, opts.PersistTimeout),
		lastActivity: opts.Now(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if cfg.Initial != nil {
		l.state = cfg.Initial.Clone()
		l.loaded = true
	}
	l.publishStatus()

	go l.persister.run()
	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.id }

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers msg unless the lobby has shut down or ctx is done.
func (l *Lobby) Send(ctx context.Context, msg Msg) error {
	select {
	case <-l.done:
		return ErrLobbyClosed
	default:
	}
	select {
	case l.inbox <- msg:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the lobby without going through the inbox.
func (l *Lobby) Close() { l.cancel() }

// Done is closed once the lobby loop has exited and pending writes are flushed.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Status() Status {
	if st := l.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-l.tickC:
			l.onTick()

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.touch()
				l.clients[msg.ClientID] = msg.Outbox
				l.dispatch(engine.Command{Type: engine.CmdJoin})

			case Leave:
				l.touch()
				delete(l.clients, msg.ClientID)

			case FromClient:
				l.touch()
				l.dispatch(msg.Cmd)

			case Ping:
				l.broadcast(Update{Kind: UpdatePong})

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					NumClients: len(l.clients),
					Loaded:     l.loaded,
					Started:    l.started,
					Deadline:   l.deadline,
					State:      l.state.Clone(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
		l.publishStatus()
	}
}

// dispatch runs cmd through the transition function and executes its effects.
func (l *Lobby) dispatch(cmd engine.Command) {
	if !l.ensureLoaded() {
		if cmd.Type == engine.CmdJoin {
			// Show a fresh room until the stored one can be read. It is
			// never persisted.
			placeholder := engine.NewState(l.id, "", "")
			l.broadcast(Update{Kind: UpdateState, State: placeholder, Countdown: placeholder.Countdown, EventSeq: placeholder.EventSeq})
			return
		}
		l.log.Warn("dropped command, room state unavailable", zap.String("type", string(cmd.Type)))
		return
	}
	cmd.At = l.opts.Now()

	next, effects := engine.Apply(l.state, cmd)
	l.state = next
	if len(effects) == 0 {
		l.log.Debug("command ignored",
			zap.String("type", string(cmd.Type)),
			zap.String("side", string(cmd.Side)),
			zap.String("action", string(cmd.Action)),
			zap.Int("step", l.state.CurrentStepIndex))
		return
	}
	l.execute(effects)
}

// ensureLoaded hydrates the room from durable storage the first time it is
// needed and reports whether the state is usable. Without a stored row the
// room starts fresh. A failed read leaves the room unloaded so the next
// message retries it.
func (l *Lobby) ensureLoaded() bool {
	if l.loaded {
		return true
	}
	if l.store == nil {
		l.loaded = true
		l.state = engine.NewState(l.id, "", "")
		return true
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.opts.PersistTimeout)
	defer cancel()
	st, err := l.store.LoadState(ctx, l.id)
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		l.log.Info("no stored state, starting fresh")
		l.loaded = true
		l.state = engine.NewState(l.id, "", "")
		return true
	case err != nil:
		l.log.Warn("hydrate state failed", zap.Error(err))
		l.hydrateFailed = true
		return false
	}
	if st.RoomID == "" {
		st.RoomID = l.id
	}
	l.loaded = true
	l.state = st
	l.log.Debug("hydrated state", zap.Int("step", st.CurrentStepIndex), zap.Int("events", len(st.Events)))

	if l.hydrateFailed {
		// Replace the placeholder subscribers were shown.
		l.hydrateFailed = false
		l.broadcast(Update{Kind: UpdateState, State: l.state.Clone(), Countdown: l.state.Countdown, EventSeq: l.state.EventSeq})
	}

	// A draft that was running when the previous process stopped resumes
	// with a fresh clock for its pending step.
	if st.BothReady() && !st.Finished {
		l.startTimer()
	}
	return true
}

// onTick recomputes the countdown from the wall-clock deadline so that a late
// tick never accumulates drift.
func (l *Lobby) onTick() {
	if l.ticker == nil {
		return
	}
	left := l.deadline.Sub(l.opts.Now())
	remaining := max(0, int((left+time.Second-1)/time.Second))
	l.dispatchTimer(engine.Command{Type: engine.CmdTick, Countdown: remaining})
	if remaining <= 0 {
		l.log.Info("step timed out", zap.Int("step", l.state.CurrentStepIndex))
		l.dispatchTimer(engine.Command{Type: engine.CmdAutoConfirm})
	}
}

// dispatchTimer is dispatch for clock-driven commands, which never count as
// room activity.
func (l *Lobby) dispatchTimer(cmd engine.Command) {
	cmd.At = l.opts.Now()
	next, effects := engine.Apply(l.state, cmd)
	l.state = next
	l.execute(effects)
}

func (l *Lobby) startTimer() {
	if !l.state.BothReady() {
		return
	}
	l.stopTimer()
	l.deadline = l.opts.Now().Add(l.opts.StepDuration)
	l.ticker = time.NewTicker(l.opts.TickInterval)
	l.tickC = l.ticker.C
	l.started = true
}

func (l *Lobby) stopTimer() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	l.ticker = nil
	l.tickC = nil
	l.deadline = time.Time{}
	l.started = false
}

func (l *Lobby) shutdown() {
	l.stopTimer()
	for id, ch := range l.clients {
		close(ch) // Tell client no more updates
		delete(l.clients, id)
	}
	l.persister.close()
	l.cancel()
	l.publishStatus()
}

func (l *Lobby) broadcast(u Update) {
	for id, ch := range l.clients {
		select {
		case ch <- u:
			//ok
		default:
			if u.Kind == UpdateTick {
				// The next tick or state update supersedes this one.
				continue
			}
			// Client is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
			l.log.Info("dropped slow client", zap.String("client", id))
		}
	}
}

func (l *Lobby) touch() { l.lastActivity = l.opts.Now() }

func (l *Lobby) publishStatus() {
	l.status.Store(&Status{
		Loaded:       l.loaded,
		Started:      l.started,
		Clients:      len(l.clients),
		Deadline:     l.deadline,
		LastActivity: l.lastActivity,
	})
}
