package engine

import "time"

// TimestampResolution is the smallest step the log uses to keep
// occurredAt strictly increasing.
const TimestampResolution = time.Millisecond

type Origin string

const (
	OriginParticipant Origin = "participant"
	OriginServer      Origin = "server"
)

type EventKind string

const (
	EvtReady       EventKind = "ready"
	EvtSelect      EventKind = "select"
	EvtConfirm     EventKind = "confirm"
	EvtAutoConfirm EventKind = "autoConfirm"
	EvtSetTeamName EventKind = "setTeamName"
)

// ReasonTimeout marks steps resolved by the server clock.
const ReasonTimeout = "timeout"

// Event is one entry of the room's append-only log. Payload fields not used
// by a kind are left zero.
type Event struct {
	Seq                 int         `json:"seq"`
	OccurredAt          time.Time   `json:"occurredAt"`
	Origin              Origin      `json:"origin"`
	Kind                EventKind   `json:"kind"`
	Side                Side        `json:"side,omitempty"`
	Action              Action      `json:"action,omitempty"`
	ChampionID          *ChampionID `json:"championId,omitempty"`
	Name                string      `json:"name,omitempty"`
	Reason              string      `json:"reason,omitempty"`
	CountdownAtEmission int         `json:"countdownAtEmission"`
	ClientAt            *time.Time  `json:"clientAt,omitempty"`
}

func (e Event) Clone() Event {
	e.ChampionID = cloneChampion(e.ChampionID)
	e.ClientAt = cloneTime(e.ClientAt)
	return e
}

// IsConfirm reports whether e resolved a step.
func (e Event) IsConfirm() bool {
	return e.Kind == EvtConfirm || e.Kind == EvtAutoConfirm
}

// AppendEvent appends e to log, assigning the next sequence number and
// coercing its timestamp so that it lands strictly after the previous entry.
func AppendEvent(log []Event, e Event) []Event {
	e.OccurredAt = normalizeTime(e.OccurredAt)
	e.Seq = 1
	if n := len(log); n > 0 {
		prev := log[n-1]
		e.Seq = prev.Seq + 1
		if !e.OccurredAt.After(prev.OccurredAt) {
			e.OccurredAt = prev.OccurredAt.Add(TimestampResolution)
		}
	}
	return append(log, e)
}

// SanitizeLog repairs every adjacent pair whose sequence number or timestamp
// is not strictly increasing. It edits log in place and returns the number
// of entries it touched.
func SanitizeLog(log []Event) int {
	repaired := 0
	for i := 1; i < len(log); i++ {
		prev, cur := &log[i-1], &log[i]
		touched := false
		if cur.Seq <= prev.Seq {
			cur.Seq = prev.Seq + 1
			touched = true
		}
		if !cur.OccurredAt.After(prev.OccurredAt) {
			cur.OccurredAt = prev.OccurredAt.Add(TimestampResolution)
			touched = true
		}
		if touched {
			repaired++
		}
	}
	return repaired
}

// IsMonotonic reports whether log is strictly increasing in seq and time.
func IsMonotonic(log []Event) bool {
	for i := 1; i < len(log); i++ {
		if log[i].Seq <= log[i-1].Seq || !log[i].OccurredAt.After(log[i-1].OccurredAt) {
			return false
		}
	}
	return true
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(TimestampResolution)
}
