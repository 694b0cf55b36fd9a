package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"mediarelay/internal/task"
)

// PollCommand performs one status check.
type PollCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	provider string
	handle   string
}

func NewPollCommand(rootCmd *RootCommand, app *kingpin.Application) *PollCommand {
	c := &PollCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("poll", "Check a submitted job once and print its normalized status.")
	c.Cmd.Flag("provider", "Video provider. Defaults to VIDEO_PROVIDER.").StringVar(&c.provider)
	c.Cmd.Arg("handle", "Task handle returned by submit.").Required().StringVar(&c.handle)
	return c
}

func (c PollCommand) Name() string { return c.Cmd.FullCommand() }

func (c PollCommand) Run(ctx context.Context) error {
	provider, orch, err := c.rootCmd.orchestrator(c.provider)
	if err != nil {
		return err
	}
	st, err := orch.Poll(ctx, task.Handle(c.handle))
	if err != nil {
		return err
	}
	return c.rootCmd.printStatus(provider, st)
}
