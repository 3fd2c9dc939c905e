package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lol-draft-room/internal/observer"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live room as a spectator",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCommandEnv(cmd)
			if err != nil {
				return err
			}
			ticks, _ := cmd.Flags().GetBool("ticks")

			conn, err := env.client.Dial(cmd.Context(), env.room)
			if err != nil {
				return err
			}
			defer conn.Close()

			local := observer.NewStore()
			updates, unsubscribe := local.Subscribe()
			defer unsubscribe()

			msgs := make(chan observer.Message, 16)
			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, ctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				// The room closing ends the whole watch.
				defer cancel()
				return conn.Run(ctx, msgs)
			})
			g.Go(func() error { return local.Run(ctx, msgs) })
			g.Go(func() error {
				lastSeq := -1
				for {
					select {
					case s := <-updates:
						if s.EventSeq == lastSeq && !ticks {
							continue
						}
						lastSeq = s.EventSeq
						renderBoard(cmd.OutOrStdout(), s)
					case <-ctx.Done():
						return nil
					}
				}
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Bool("ticks", false, "redraw on every countdown tick")
	return cmd
}
