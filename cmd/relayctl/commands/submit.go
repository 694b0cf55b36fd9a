package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// SubmitCommand starts a job and prints its handle.
type SubmitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	job jobFlags
}

func NewSubmitCommand(rootCmd *RootCommand, app *kingpin.Application) *SubmitCommand {
	c := &SubmitCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("submit", "Submit a video job and print its task handle.")
	c.job.register(c.Cmd)
	return c
}

func (c SubmitCommand) Name() string { return c.Cmd.FullCommand() }

func (c SubmitCommand) Run(ctx context.Context) error {
	provider, orch, err := c.rootCmd.orchestrator(c.job.provider)
	if err != nil {
		return err
	}
	h, err := orch.Submit(ctx, c.job.spec())
	if err != nil {
		return err
	}
	c.rootCmd.Logger.Debug().Str("provider", provider).Str("task_handle", h.String()).Msg("submitted")
	_, err = fmt.Fprintln(c.rootCmd.Stdout, h.String())
	return err
}
