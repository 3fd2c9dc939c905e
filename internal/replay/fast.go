package replay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

// Fast applies every remaining event without delay.
type Fast struct {
	mu sync.Mutex
	tl *timeline
}

func NewFast(c Context) *Fast {
	return &Fast{tl: newTimeline(c)}
}

func (f *Fast) Start() {
	f.mu.Lock()
	f.tl.prime()
	n := 0
	for !f.tl.done() {
		f.tl.applyNext()
		n++
	}
	f.tl.c.Target.Update(func(s engine.State) engine.State {
		s.Countdown = 0
		return s
	})
	f.tl.log.Debug("fast replay done", zap.Int("applied", n))
	f.mu.Unlock()

	f.tl.finished()
}

func (f *Fast) Pause() {}
func (f *Fast) Stop()  {}

func (f *Fast) RestartToMaskedBase() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tl.reset()
}

func (f *Fast) ScrubTo(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tl.scrub(i)
}

// IsRunning is always false; a fast replay completes inside Start.
func (f *Fast) IsRunning() bool { return false }

func (f *Fast) Cursor() Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tl.cursor()
}
