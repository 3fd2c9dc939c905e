package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/store"
)

// persister writes room snapshots off the lobby loop. Only the newest
// pending snapshot is kept, so a slow store delays writes without ever
// blocking the clock.
type persister struct {
	id      string
	store   store.Store
	log     *zap.Logger
	timeout time.Duration
	pending chan engine.State
	done    chan struct{}
}

func newPersister(id string, st store.Store, log *zap.Logger, timeout time.Duration) *persister {
	return &persister{
		id:      id,
		store:   st,
		log:     log,
		timeout: timeout,
		pending: make(chan engine.State, 1),
		done:    make(chan struct{}),
	}
}

func (p *persister) run() {
	defer close(p.done)
	for s := range p.pending {
		p.write(s)
	}
}

// submit must only be called from the lobby loop.
func (p *persister) submit(s engine.State) {
	select {
	case p.pending <- s:
		return
	default:
	}
	// Replace the stale snapshot still waiting in the buffer.
	select {
	case <-p.pending:
	default:
	}
	p.pending <- s
}

// close flushes the last pending snapshot and waits for the writer to exit.
func (p *persister) close() {
	close(p.pending)
	<-p.done
}

func (p *persister) write(s engine.State) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.store.UpdateState(ctx, p.id, s)
	if errors.Is(err, store.ErrRoomNotFound) {
		err = p.store.InsertRoom(ctx, p.id, s.Teams.Blue.Name, s.Teams.Red.Name, s)
	}
	if err != nil {
		// In-memory state stays authoritative; the next mutation retries.
		p.log.Error("persist state failed", zap.Error(err), zap.Int("eventSeq", s.EventSeq))
	}
}
