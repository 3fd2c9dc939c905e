package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/lobby"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateLobby registers a lobby seeded with State. An existing lobby for the
// id is returned as is.
type CreateLobby struct {
	ID    string
	State engine.State
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	ID    string
	Reply chan *lobby.Lobby
}

// EnsureLobby returns the lobby for ID, creating one that hydrates itself
// from the store when none is registered.
type EnsureLobby struct {
	ID    string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	ID string
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Options struct {
	Lobby         lobby.Options
	SweepInterval time.Duration
	IdleTTL       time.Duration
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = 5 * time.Minute
	}
	return o
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	store   store.Store
	log     *zap.Logger
	opts    Options
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	now := opts.Lobby.Now
	if now == nil {
		now = time.Now
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		store:   st,
		log:     log.Named("hub"),
		opts:    opts,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once every lobby has been told to stop.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Ensure returns the running lobby for id, creating it on demand.
func (h *Hub) Ensure(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, EnsureLobby{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Create registers a lobby for a freshly inserted room.
func (h *Hub) Create(ctx context.Context, id string, state engine.State) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, CreateLobby{ID: id, State: state, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Get returns the lobby for id or nil when none is running.
func (h *Hub) Get(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLobby{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

func (h *Hub) Remove(ctx context.Context, id string) error {
	return h.send(ctx, RemoveLobby{ID: id})
}

func (h *Hub) Len(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountLobbies{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Shutdown stops every lobby and waits until they have flushed their writes.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.send(ctx, ShutdownHub{}); err != nil && !errors.Is(err, ErrHubClosed) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan *lobby.Lobby) (*lobby.Lobby, error) {
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep.C:
			h.sweep()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if lb := h.live(msg.ID); lb != nil {
					msg.Reply <- lb
					break
				}
				st := msg.State
				msg.Reply <- h.spawn(msg.ID, &st)

			case GetLobby:
				msg.Reply <- h.live(msg.ID) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.ID); lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.spawn(msg.ID, nil)

			case RemoveLobby:
				if lb := h.lobbies[msg.ID]; lb != nil {
					lb.Close()
					delete(h.lobbies, msg.ID)
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the registered lobby for id unless it has already stopped.
func (h *Hub) live(id string) *lobby.Lobby {
	lb := h.lobbies[id]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, id)
		return nil
	default:
		return lb
	}
}

func (h *Hub) spawn(id string, initial *engine.State) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, lobby.Config{
		ID:      id,
		Initial: initial,
		Store:   h.store,
		Logger:  h.log,
		Options: h.opts.Lobby,
	})
	h.lobbies[id] = lb
	h.log.Debug("lobby started", zap.String("room", id), zap.Int("lobbies", len(h.lobbies)))
	return lb
}

// sweep evicts lobbies nobody is using any more.
func (h *Hub) sweep() {
	now := h.now()
	for id, lb := range h.lobbies {
		if !idle(lb.Status(), now, h.opts.IdleTTL, h.opts.SweepInterval) {
			continue
		}
		lb.Close()
		delete(h.lobbies, id)
		h.log.Info("evicted idle lobby", zap.String("room", id))
	}
}

// idle reports whether a lobby can be evicted. Lobbies that never loaded any
// state only get one sweep interval of grace.
func idle(st lobby.Status, now time.Time, ttl, grace time.Duration) bool {
	if st.Started {
		// A deadline long gone means the clock is stuck; nobody is driving it.
		return !st.Deadline.IsZero() && now.Sub(st.Deadline) > ttl
	}
	if st.Clients > 0 {
		return false
	}
	if !st.Loaded {
		return now.Sub(st.LastActivity) > grace
	}
	return now.Sub(st.LastActivity) > ttl
}

func (h *Hub) shutdown() {
	for id, lb := range h.lobbies {
		lb.Close()
		<-lb.Done()
		delete(h.lobbies, id)
	}
	h.cancel()
	h.log.Info("hub stopped")
}
