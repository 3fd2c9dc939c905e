package engine

import "time"

// DefaultCountdown is the number of seconds each step stays open.
const DefaultCountdown = 30

type Side string

const (
	SideBlue Side = "blue"
	SideRed  Side = "red"
)

// Valid reports whether s names one of the two competing sides.
func (s Side) Valid() bool { return s == SideBlue || s == SideRed }

type Action string

const (
	ActionBan  Action = "ban"
	ActionPick Action = "pick"
)

func (a Action) Valid() bool { return a == ActionBan || a == ActionPick }

type Phase string

const (
	PhaseBan1  Phase = "ban1"
	PhasePick1 Phase = "pick1"
	PhaseBan2  Phase = "ban2"
	PhasePick2 Phase = "pick2"
	PhaseDone  Phase = "done"
)

type TurnStep struct {
	Side   Side
	Action Action
}

// ChampionID identifies a champion in the external catalog.
type ChampionID int

// Champion returns a pointer to id, for building selections inline.
func Champion(id int) *ChampionID {
	c := ChampionID(id)
	return &c
}

type Step struct {
	Index     int         `json:"index"`
	Kind      Action      `json:"kind"`
	Side      Side        `json:"side"`
	Slot      int         `json:"slot"`
	Pending   bool        `json:"pending"`
	Selection *ChampionID `json:"selection"`
}

type Team struct {
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type Teams struct {
	Blue Team `json:"blue"`
	Red  Team `json:"red"`
}

// Get returns a pointer to the team playing side. Unknown sides return nil.
func (t *Teams) Get(side Side) *Team {
	switch side {
	case SideBlue:
		return &t.Blue
	case SideRed:
		return &t.Red
	default:
		return nil
	}
}

// State is the authoritative session state of one room.
type State struct {
	RoomID           string  `json:"roomId"`
	Steps            []Step  `json:"steps"`
	CurrentStepIndex int     `json:"currentStepIndex"`
	CurrentSide      Side    `json:"currentSide"`
	Countdown        int     `json:"countdown"`
	Teams            Teams   `json:"teams"`
	Finished         bool    `json:"finished"`
	Events           []Event `json:"events"`
	EventSeq         int     `json:"eventSeq"`
}

// NewState builds the initial state of a freshly created room.
func NewState(roomID, blueName, redName string) State {
	steps := make([]Step, len(GameOrder))
	slots := map[TurnStep]int{}
	for i, ts := range GameOrder {
		steps[i] = Step{
			Index:   i,
			Kind:    ts.Action,
			Side:    ts.Side,
			Slot:    slots[ts],
			Pending: i == 0,
		}
		slots[ts]++
	}

	return State{
		RoomID:           roomID,
		Steps:            steps,
		CurrentStepIndex: 0,
		CurrentSide:      steps[0].Side,
		Countdown:        DefaultCountdown,
		Teams: Teams{
			Blue: Team{Name: blueName},
			Red:  Team{Name: redName},
		},
		Events: []Event{},
	}
}

// Clone returns a deep copy of s that shares no memory with it.
func (s State) Clone() State {
	out := s
	if s.Steps != nil {
		out.Steps = make([]Step, len(s.Steps))
		for i, st := range s.Steps {
			st.Selection = cloneChampion(st.Selection)
			out.Steps[i] = st
		}
	}
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		for i, ev := range s.Events {
			out.Events[i] = ev.Clone()
		}
	}
	return out
}

// CurrentStep returns the step awaiting resolution, if any.
func (s State) CurrentStep() (Step, bool) {
	if s.Finished || s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[s.CurrentStepIndex], true
}

// BothReady reports whether the draft clock is allowed to run.
func (s State) BothReady() bool {
	return s.Teams.Blue.Ready && s.Teams.Red.Ready
}

// Phase derives the draft phase from the current step index.
func (s State) Phase() Phase {
	if s.Finished {
		return PhaseDone
	}
	return DerivePhase(s.CurrentStepIndex)
}

func cloneChampion(c *ChampionID) *ChampionID {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
