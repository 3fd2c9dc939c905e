// Package replay plays a finished room back from its event log into an
// observer store, either paced like the original session or all at once.
package replay

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/observer"
)

// Scheduler is the control surface shared by every replay strategy.
type Scheduler interface {
	Start()
	Pause()
	Stop()
	RestartToMaskedBase()
	// ScrubTo jumps to the state right after event i; -1 is before any event.
	ScrubTo(i int)
	IsRunning() bool
	Cursor() Cursor
}

// Cursor reports playback position. History is the index of the last
// applied event (-1 before the first); Next is the event applied next.
type Cursor struct {
	History   int
	Next      int
	Total     int
	Countdown int
}

// Context is what a strategy needs from its host.
type Context struct {
	Target *observer.Store

	// Source is the authoritative state whose event log is replayed.
	Source engine.State

	// Disconnect detaches the target from any live feed before playback.
	Disconnect func()

	// OnFinished runs once, the first time the last event has been applied.
	OnFinished func()

	Logger *zap.Logger
}

type Options struct {
	Fast         bool
	TickInterval time.Duration

	// Speed scales the real-time delays; 2 plays twice as fast.
	Speed float64
}

// Select returns the strategy described by opts.
func Select(c Context, opts Options) Scheduler {
	if opts.Fast {
		return NewFast(c)
	}
	return NewRealTime(c, opts)
}

// Rebuild reconstructs the state right after events[i] starting from base.
// The countdown is the one recorded on the following event, 0 past the end
// and the full step duration before the first event.
func Rebuild(base engine.State, events []engine.Event, i int) engine.State {
	i = clamp(i, len(events))
	st := base.Clone()
	for _, ev := range events[:i+1] {
		st = ApplyEvent(st, ev)
	}
	st.Countdown = countdownAt(events, i)
	return st
}

// ApplyEvent re-drives one logged event through the local rules, stamped with
// the countdown it was recorded at.
func ApplyEvent(s engine.State, ev engine.Event) engine.State {
	s = s.Clone()
	s.Countdown = ev.CountdownAtEmission

	if ev.IsConfirm() {
		if s.CurrentStepIndex < len(s.Steps) && !s.Finished {
			// The confirm records what the step held, even a selection made
			// before the draft started.
			s.Steps[s.CurrentStepIndex].Selection = copyChampion(ev.ChampionID)
		}
		if ev.Kind == engine.EvtAutoConfirm {
			return observer.Reduce(s, engine.Command{Type: engine.CmdAutoConfirm})
		}
		return observer.Reduce(s, engine.Command{Type: engine.CmdConfirm, Side: ev.Side, Action: ev.Action})
	}

	switch ev.Kind {
	case engine.EvtReady:
		// Only the ready that started the clock is logged.
		s.Teams.Blue.Ready = true
		s.Teams.Red.Ready = true
		return s

	case engine.EvtSelect:
		return observer.Reduce(s, engine.Command{Type: engine.CmdSelect, Side: ev.Side, Action: ev.Action, ChampionID: ev.ChampionID})

	case engine.EvtSetTeamName:
		return observer.Reduce(s, engine.Command{Type: engine.CmdSetTeamName, Side: ev.Side, Name: ev.Name})
	}
	return s
}

func countdownAt(events []engine.Event, i int) int {
	switch {
	case i < 0:
		return engine.DefaultCountdown
	case i+1 < len(events):
		return events[i+1].CountdownAtEmission
	default:
		return 0
	}
}

func clamp(i, n int) int {
	if i < -1 {
		return -1
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

func copyChampion(c *engine.ChampionID) *engine.ChampionID {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// timeline is the playback state shared by the strategies. Callers hold
// their own lock around it.
type timeline struct {
	c          Context
	log        *zap.Logger
	base       engine.State
	events     []engine.Event
	next       int
	primed     bool
	disconnect sync.Once
	finish     sync.Once
}

func newTimeline(c Context) *timeline {
	events := make([]engine.Event, len(c.Source.Events))
	for i, ev := range c.Source.Events {
		events[i] = ev.Clone()
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })

	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &timeline{
		c:      c,
		log:    log.Named("replay").With(zap.String("room", c.Source.RoomID)),
		base:   engine.MaskedBase(c.Source),
		events: events,
	}
}

func (tl *timeline) detach() {
	tl.disconnect.Do(func() {
		if tl.c.Disconnect != nil {
			tl.c.Disconnect()
		}
	})
}

// reset shows the masked base so the outcome is not spoiled.
func (tl *timeline) reset() {
	tl.detach()
	tl.next = 0
	tl.primed = true
	tl.c.Target.Replace(tl.base)
}

func (tl *timeline) prime() {
	if !tl.primed {
		tl.reset()
	}
}

func (tl *timeline) done() bool { return tl.next >= len(tl.events) }

func (tl *timeline) applyNext() engine.Event {
	ev := tl.events[tl.next]
	tl.c.Target.Update(func(s engine.State) engine.State { return ApplyEvent(s, ev) })
	tl.next++
	tl.log.Debug("applied event", zap.Int("seq", ev.Seq), zap.String("kind", string(ev.Kind)))
	return ev
}

func (tl *timeline) scrub(i int) {
	tl.detach()
	i = clamp(i, len(tl.events))
	tl.c.Target.Replace(Rebuild(tl.base, tl.events, i))
	tl.next = i + 1
	tl.primed = true
}

func (tl *timeline) cursor() Cursor {
	st, _ := tl.c.Target.State()
	return Cursor{History: tl.next - 1, Next: tl.next, Total: len(tl.events), Countdown: st.Countdown}
}

func (tl *timeline) finished() {
	tl.finish.Do(func() {
		if tl.c.OnFinished != nil {
			tl.c.OnFinished()
		}
	})
}
