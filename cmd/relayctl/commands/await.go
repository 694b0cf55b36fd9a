package commands

import (
	"context"
	"errors"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"mediarelay/internal/task"
)

// AwaitCommand submits a job and polls it until it settles.
type AwaitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	job      jobFlags
	interval time.Duration
	attempts int
	deadline time.Duration
}

func NewAwaitCommand(rootCmd *RootCommand, app *kingpin.Application) *AwaitCommand {
	c := &AwaitCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("await", "Submit a video job and wait for a terminal status.")
	c.job.register(c.Cmd)
	c.Cmd.Flag("interval", "Delay before each status check.").Default("5s").DurationVar(&c.interval)
	c.Cmd.Flag("attempts", "Maximum number of status checks, 0 for deadline only.").Default("24").IntVar(&c.attempts)
	c.Cmd.Flag("deadline", "Wall-clock bound on the wait, 0 for attempts only.").Default("0s").DurationVar(&c.deadline)
	return c
}

func (c AwaitCommand) Name() string { return c.Cmd.FullCommand() }

func (c AwaitCommand) Run(ctx context.Context) error {
	provider, orch, err := c.rootCmd.orchestrator(c.job.provider)
	if err != nil {
		return err
	}
	sched := task.Schedule{Interval: c.interval, MaxAttempts: c.attempts, Deadline: c.deadline}
	st, err := orch.SubmitAndAwait(ctx, c.job.spec(), sched)
	if err != nil {
		if errors.Is(err, task.ErrTimeout) {
			// still running; print the handle so polling can resume
			_ = c.rootCmd.printStatus(provider, st)
		}
		return err
	}
	if err := c.rootCmd.printStatus(provider, st); err != nil {
		return err
	}
	if st.State == task.StateFailed {
		return errors.New("job failed: " + st.Detail)
	}
	return nil
}
