package engine

// ContainsEffect reports whether effects includes want.
func ContainsEffect(effects []Effect, want Effect) bool {
	for _, e := range effects {
		if e == want {
			return true
		}
	}
	return false
}

// ContainsEvent reports whether any event in events has the given kind.
func ContainsEvent(events []Event, kind EventKind) bool {
	for _, event := range events {
		if event.Kind == kind {
			return true
		}
	}
	return false
}

func DerivePhase(cursor int) Phase {
	if cursor >= len(GameOrder) {
		return PhaseDone
	} else if cursor >= 0 && cursor <= 5 {
		return PhaseBan1
	} else if cursor > 5 && cursor <= 11 {
		return PhasePick1
	} else if cursor > 11 && cursor <= 15 {
		return PhaseBan2
	} else {
		return PhasePick2
	}
}

// MaskedBase returns the replay starting point for s: same room, step layout
// and team names, with every selection cleared and the first step pending.
// The event log is kept so it can be replayed, and EventSeq is bumped so
// observers treat the masked state as newer than anything shown before.
func MaskedBase(s State) State {
	base := s.Clone()
	for i := range base.Steps {
		base.Steps[i].Selection = nil
		base.Steps[i].Pending = i == 0
	}
	base.CurrentStepIndex = 0
	if len(base.Steps) > 0 {
		base.CurrentSide = base.Steps[0].Side
	}
	base.Countdown = DefaultCountdown
	base.Finished = false
	base.Teams.Blue.Ready = false
	base.Teams.Red.Ready = false
	base.EventSeq = s.EventSeq + 1
	return base
}

// PendingCount returns how many steps are flagged pending.
func PendingCount(s State) int {
	n := 0
	for _, st := range s.Steps {
		if st.Pending {
			n++
		}
	}
	return n
}
