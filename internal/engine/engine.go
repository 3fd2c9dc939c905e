package engine

import (
	"strings"
	"time"
)

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdReady       CommandType = "Ready"
	CmdSelect      CommandType = "Select"
	CmdConfirm     CommandType = "Confirm"
	CmdSetTeamName CommandType = "SetTeamName"
	CmdTick        CommandType = "Tick"
	CmdAutoConfirm CommandType = "AutoConfirm"
)

/*
	CmdJoin        -> broadcastState
	CmdReady       -> persist, broadcastState (+ startTimer and a ready event on the second ready)
	CmdSelect      -> persist, broadcastState (select event only once both sides are ready)
	CmdConfirm     -> persist, broadcastState, startTimer | stopTimer on the last step
	CmdSetTeamName -> persist, broadcastState
	CmdTick        -> broadcastTick
	CmdAutoConfirm -> same as CmdConfirm, attributed to the server with reason=timeout
*/

// Command is a client intent or a synthetic server action. At is the
// instant the runtime received it and becomes the event timestamp.
type Command struct {
	Type       CommandType
	Side       Side
	Action     Action
	ChampionID *ChampionID
	Name       string
	Countdown  int
	At         time.Time
	ClientAt   *time.Time
}

type Effect string

const (
	EffectPersist        Effect = "persist"
	EffectBroadcastState Effect = "broadcastState"
	EffectBroadcastTick  Effect = "broadcastTick"
	EffectStartTimer     Effect = "startTimer"
	EffectStopTimer      Effect = "stopTimer"
)

// Apply is the transition function of a room. It never mutates s and never
// performs I/O; the returned effects are executed by the runtime in order.
// Commands that do not fit the current turn leave the state untouched and
// return no effects.
func Apply(s State, cmd Command) (State, []Effect) {
	next := s.Clone()

	switch cmd.Type {
	case CmdJoin:
		return next, []Effect{EffectBroadcastState}

	case CmdReady:
		return applyReady(next, cmd)

	case CmdSelect:
		return applySelect(next, cmd)

	case CmdConfirm:
		step, ok := next.CurrentStep()
		if !ok || step.Side != cmd.Side || step.Kind != cmd.Action {
			return next, nil
		}
		return closeOrAdvance(next, cmd, OriginParticipant)

	case CmdAutoConfirm:
		if _, ok := next.CurrentStep(); !ok {
			return next, nil
		}
		return closeOrAdvance(next, cmd, OriginServer)

	case CmdSetTeamName:
		return applySetTeamName(next, cmd)

	case CmdTick:
		// The runtime derives the value from a wall-clock deadline.
		next.Countdown = max(0, cmd.Countdown)
		return next, []Effect{EffectBroadcastTick}

	default:
		return next, nil
	}
}

func applyReady(next State, cmd Command) (State, []Effect) {
	team := next.Teams.Get(cmd.Side)
	if next.Finished || team == nil || team.Ready {
		return next, nil
	}
	team.Ready = true

	// Only the ready that starts the clock is logged.
	if !next.BothReady() {
		return next, []Effect{EffectPersist, EffectBroadcastState}
	}
	logEvent(&next, cmd, Event{
		Origin:              OriginParticipant,
		Kind:                EvtReady,
		Side:                cmd.Side,
		CountdownAtEmission: next.Countdown,
	})
	return next, []Effect{EffectPersist, EffectBroadcastState, EffectStartTimer}
}

func applySelect(next State, cmd Command) (State, []Effect) {
	step, ok := next.CurrentStep()
	if !ok || step.Side != cmd.Side || step.Kind != cmd.Action {
		return next, nil
	}
	next.Steps[next.CurrentStepIndex].Selection = cloneChampion(cmd.ChampionID)

	if next.BothReady() {
		logEvent(&next, cmd, Event{
			Origin:              OriginParticipant,
			Kind:                EvtSelect,
			Side:                cmd.Side,
			Action:              cmd.Action,
			ChampionID:          cloneChampion(cmd.ChampionID),
			CountdownAtEmission: next.Countdown,
		})
	}
	return next, []Effect{EffectPersist, EffectBroadcastState}
}

// closeOrAdvance resolves the pending step and moves the pointer forward.
func closeOrAdvance(next State, cmd Command, origin Origin) (State, []Effect) {
	idx := next.CurrentStepIndex
	step := next.Steps[idx]
	countdownBefore := next.Countdown

	next.Steps[idx].Pending = false
	next.CurrentStepIndex = idx + 1
	last := next.CurrentStepIndex >= len(next.Steps)
	if last {
		next.Finished = true
		next.Countdown = 0
	} else {
		next.Steps[next.CurrentStepIndex].Pending = true
		next.CurrentSide = next.Steps[next.CurrentStepIndex].Side
		next.Countdown = DefaultCountdown
	}

	ev := Event{
		Origin:              origin,
		Kind:                EvtConfirm,
		Side:                step.Side,
		Action:              step.Kind,
		ChampionID:          cloneChampion(step.Selection),
		CountdownAtEmission: countdownBefore,
	}
	if origin == OriginServer {
		ev.Kind = EvtAutoConfirm
		ev.Reason = ReasonTimeout
	}
	logEvent(&next, cmd, ev)

	if last {
		return next, []Effect{EffectPersist, EffectBroadcastState, EffectStopTimer}
	}
	return next, []Effect{EffectPersist, EffectBroadcastState, EffectStartTimer}
}

func applySetTeamName(next State, cmd Command) (State, []Effect) {
	team := next.Teams.Get(cmd.Side)
	if next.Finished || team == nil {
		return next, nil
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" || name == team.Name {
		return next, nil
	}
	team.Name = name

	if next.BothReady() {
		logEvent(&next, cmd, Event{
			Origin:              OriginParticipant,
			Kind:                EvtSetTeamName,
			Side:                cmd.Side,
			Name:                name,
			CountdownAtEmission: next.Countdown,
		})
	}
	return next, []Effect{EffectPersist, EffectBroadcastState}
}

func logEvent(next *State, cmd Command, ev Event) {
	ev.OccurredAt = cmd.At
	ev.ClientAt = cloneTime(cmd.ClientAt)
	next.EventSeq++
	next.Events = AppendEvent(next.Events, ev)
}
