package replay

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

// RealTime spaces events by the wall-clock gaps recorded in the log and runs
// its own countdown between them.
type RealTime struct {
	mu           sync.Mutex
	tl           *timeline
	tickInterval time.Duration
	speed        float64
	now          func() time.Time

	running bool

	// gen invalidates callbacks scheduled before the last pause, stop or scrub.
	gen   uint64
	timer *time.Timer
	stop  chan struct{}
	due   time.Time

	// remaining is the delay left on the pending event when paused; negative
	// when nothing was captured.
	remaining time.Duration
}

func NewRealTime(c Context, opts Options) *RealTime {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	return &RealTime{
		tl:           newTimeline(c),
		tickInterval: opts.TickInterval,
		speed:        opts.Speed,
		now:          time.Now,
		remaining:    -1,
	}
}

func (r *RealTime) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.tl.prime()
	if r.tl.done() {
		r.mu.Unlock()
		r.tl.finished()
		return
	}

	r.running = true
	r.gen++
	delay := r.remaining
	if delay < 0 {
		delay = r.delayFor(r.tl.next)
	}
	r.remaining = -1
	r.schedule(delay)
	r.startCountdown()
	r.tl.log.Debug("real-time replay started", zap.Int("next", r.tl.next), zap.Duration("delay", delay))
	r.mu.Unlock()
}

// Pause keeps the delay left on the pending event so Start resumes exactly
// where playback stopped.
func (r *RealTime) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.remaining = max(0, r.due.Sub(r.now()))
	r.halt()
}

func (r *RealTime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halt()
	r.remaining = -1
}

func (r *RealTime) RestartToMaskedBase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halt()
	r.remaining = -1
	r.tl.reset()
}

func (r *RealTime) ScrubTo(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wasRunning := r.running
	r.halt()
	r.remaining = -1
	r.tl.scrub(i)
	if wasRunning && !r.tl.done() {
		r.running = true
		r.gen++
		r.schedule(r.delayFor(r.tl.next))
		r.startCountdown()
	}
}

func (r *RealTime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *RealTime) Cursor() Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tl.cursor()
}

// delayFor is the recorded gap between event i and the one before it.
// Missing timestamps play immediately.
func (r *RealTime) delayFor(i int) time.Duration {
	if i <= 0 || i >= len(r.tl.events) {
		return 0
	}
	prev, cur := r.tl.events[i-1].OccurredAt, r.tl.events[i].OccurredAt
	if prev.IsZero() || cur.IsZero() {
		return 0
	}
	gap := cur.Sub(prev)
	if gap <= 0 {
		return 0
	}
	return time.Duration(float64(gap) / r.speed)
}

// schedule must be called with r.mu held.
func (r *RealTime) schedule(delay time.Duration) {
	gen := r.gen
	r.due = r.now().Add(delay)
	r.timer = time.AfterFunc(delay, func() { r.fire(gen) })
}

func (r *RealTime) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || !r.running {
		r.mu.Unlock()
		return
	}
	r.tl.applyNext()
	if !r.tl.done() {
		r.schedule(r.delayFor(r.tl.next))
		r.mu.Unlock()
		return
	}
	r.halt()
	r.tl.log.Debug("real-time replay done")
	r.mu.Unlock()

	r.tl.finished()
}

// startCountdown must be called with r.mu held.
func (r *RealTime) startCountdown() {
	gen := r.gen
	stop := make(chan struct{})
	r.stop = stop
	go func() {
		t := time.NewTicker(r.tickInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				r.mu.Lock()
				if gen == r.gen && r.running {
					r.tl.c.Target.Update(func(s engine.State) engine.State {
						if !s.Finished {
							s.Countdown = max(0, s.Countdown-1)
						}
						return s
					})
				}
				r.mu.Unlock()
			}
		}
	}()
}

// halt must be called with r.mu held.
func (r *RealTime) halt() {
	r.running = false
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}
