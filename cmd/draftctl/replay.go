package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/engine"
	"github.com/DoyleJ11/lol-draft-room/internal/observer"
	"github.com/DoyleJ11/lol-draft-room/internal/replay"
)

// NewReplayCmd creates the replay command.
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a room from its event log",
		Long: `Fetch a room and play its event log back from the masked base state.

--fast jumps straight to the end; --realtime spaces events the way they
happened and prints the board after every change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCommandEnv(cmd)
			if err != nil {
				return err
			}
			fast, _ := cmd.Flags().GetBool("fast")
			speed, _ := cmd.Flags().GetFloat64("speed")
			until, _ := cmd.Flags().GetInt("until")

			ctx := cmd.Context()
			source, err := env.client.FetchRoom(ctx, env.room)
			if err != nil {
				return err
			}
			if !engine.ContainsEvent(source.Events, engine.EvtReady) {
				fmt.Fprintf(cmd.OutOrStdout(), "room %s has not started, nothing to replay\n", env.room)
				return nil
			}

			target := observer.NewStore()
			finished := make(chan struct{})
			sched := replay.Select(replay.Context{
				Target:     target,
				Source:     source,
				OnFinished: func() { close(finished) },
				Logger:     env.log,
			}, replay.Options{Fast: fast, Speed: speed})

			if until >= 0 {
				// Show the board right after event #until without playing.
				sched.ScrubTo(until - 1)
				s, _ := target.State()
				renderBoard(cmd.OutOrStdout(), s)
				return nil
			}

			if fast {
				sched.Start()
				s, _ := target.State()
				renderBoard(cmd.OutOrStdout(), s)
				return nil
			}

			updates, unsubscribe := target.Subscribe()
			defer unsubscribe()
			fmt.Fprintf(cmd.OutOrStdout(), "replaying %d events recorded over %s at %.1fx\n",
				len(source.Events), recordedDuration(source).Round(time.Second), speed)
			sched.Start()
			defer sched.Stop()

			lastSeqShown := -2
			for {
				select {
				case s := <-updates:
					if cur := sched.Cursor(); cur.History != lastSeqShown {
						lastSeqShown = cur.History
						fmt.Fprintf(cmd.OutOrStdout(), "-- event %d/%d\n", cur.Next, cur.Total)
						renderBoard(cmd.OutOrStdout(), s)
					}
				case <-finished:
					s, _ := target.State()
					renderBoard(cmd.OutOrStdout(), s)
					env.log.Debug("replay finished", zap.String("room", env.room))
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().Bool("fast", false, "apply every event immediately")
	cmd.Flags().Bool("realtime", false, "space events as recorded (default)")
	cmd.Flags().Float64("speed", 1, "real-time playback speed multiplier")
	cmd.Flags().Int("until", -1, "print the board after this many events and exit")
	cmd.MarkFlagsMutuallyExclusive("fast", "realtime")
	return cmd
}

// recordedDuration is how long a real-time replay of s takes at speed 1.
func recordedDuration(s engine.State) time.Duration {
	if len(s.Events) < 2 {
		return 0
	}
	return s.Events[len(s.Events)-1].OccurredAt.Sub(s.Events[0].OccurredAt)
}
