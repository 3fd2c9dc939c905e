package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
)

// renderBoard prints one compact view of the draft.
func renderBoard(w io.Writer, s engine.State) {
	status := "waiting"
	switch {
	case s.Finished:
		status = "finished"
	case s.BothReady():
		if step, ok := s.CurrentStep(); ok {
			status = fmt.Sprintf("%s step %d/%d %s %s %ds", s.Phase(), step.Index+1, len(s.Steps), step.Side, step.Kind, s.Countdown)
		}
	}
	fmt.Fprintf(w, "%s  %s vs %s  [%s]\n", s.RoomID, s.Teams.Blue.Name, s.Teams.Red.Name, status)

	var b strings.Builder
	for _, st := range s.Steps {
		marker := " "
		if st.Pending && !s.Finished {
			marker = ">"
		}
		sel := "-"
		if st.Selection != nil {
			sel = fmt.Sprint(int(*st.Selection))
		}
		fmt.Fprintf(&b, "%s%2d %-4s %-4s %s\n", marker, st.Index+1, st.Side, st.Kind, sel)
	}
	io.WriteString(w, b.String())
}
