package lobby

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

type effectHandler func(l *Lobby, batch []engine.Effect)

// effectHandlers interprets the effect descriptors returned by engine.Apply.
var effectHandlers = map[engine.Effect]effectHandler{
	engine.EffectPersist:        (*Lobby).persistState,
	engine.EffectBroadcastState: (*Lobby).broadcastState,
	engine.EffectBroadcastTick:  (*Lobby).broadcastTick,
	engine.EffectStartTimer:     func(l *Lobby, _ []engine.Effect) { l.startTimer() },
	engine.EffectStopTimer:      func(l *Lobby, _ []engine.Effect) { l.stopTimer() },
}

func (l *Lobby) execute(effects []engine.Effect) {
	for _, e := range effects {
		h, ok := effectHandlers[e]
		if !ok {
			l.log.Warn("unknown effect", zap.String("effect", string(e)))
			continue
		}
		h(l, effects)
	}
}

// persistState hands the state to the writer and broadcasts it; the two
// always happen together so a batch never emits the state twice.
func (l *Lobby) persistState(_ []engine.Effect) {
	if n := engine.SanitizeLog(l.state.Events); n > 0 {
		l.log.Warn("repaired event log before persist", zap.Int("repaired", n))
	}
	l.persister.submit(l.state.Clone())
	l.broadcast(Update{Kind: UpdateState, State: l.state.Clone(), Countdown: l.state.Countdown, EventSeq: l.state.EventSeq})
}

func (l *Lobby) broadcastState(batch []engine.Effect) {
	if engine.ContainsEffect(batch, engine.EffectPersist) {
		return
	}
	l.broadcast(Update{Kind: UpdateState, State: l.state.Clone(), Countdown: l.state.Countdown, EventSeq: l.state.EventSeq})
}

func (l *Lobby) broadcastTick(_ []engine.Effect) {
	l.broadcast(Update{Kind: UpdateTick, Countdown: l.state.Countdown, EventSeq: l.state.EventSeq})
}
