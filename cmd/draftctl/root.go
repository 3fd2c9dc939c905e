package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-draft-room/internal/logging"
	"github.com/DoyleJ11/lol-draft-room/pkg/client"
)

const AppName = "draftctl"

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Watch and replay draft rooms",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("server", "http://localhost:8080", "draft server base URL")
	cmd.PersistentFlags().String("room", "", "room id")
	cmd.PersistentFlags().Bool("verbose", false, "log debug output to stderr")
	_ = cmd.MarkPersistentFlagRequired("room")

	cmd.AddCommand(
		NewReplayCmd(),
		NewWatchCmd(),
	)
	return cmd
}

// commandEnv is what every subcommand reads from the persistent flags.
type commandEnv struct {
	room   string
	client *client.Client
	log    *zap.Logger
}

func newCommandEnv(cmd *cobra.Command) (commandEnv, error) {
	server, _ := cmd.Flags().GetString("server")
	room, _ := cmd.Flags().GetString("room")
	verbose, _ := cmd.Flags().GetBool("verbose")

	log := zap.NewNop()
	if verbose {
		l, err := logging.New("debug", true)
		if err != nil {
			return commandEnv{}, err
		}
		log = l
	}
	return commandEnv{room: room, client: client.New(server, log), log: log}, nil
}
