package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"mediarelay/cmd/relayctl/commands"
	"mediarelay/internal/infra"
)

// Run parses args and executes the selected command.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := kingpin.New("relayctl", "Submit and track image-to-video jobs from the command line.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	submitCmd := commands.NewSubmitCommand(rootCmd, app)
	pollCmd := commands.NewPollCommand(rootCmd, app)
	awaitCmd := commands.NewAwaitCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		submitCmd.Name(): submitCmd,
		pollCmd.Name():   pollCmd,
		awaitCmd.Name():  awaitCmd,
	}

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr
	logger := infra.NewCLILogger(rootCmd.Debug)
	rootCmd.Logger = &logger

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	rootCmd.Config = cfg

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmds[cmdName].Run(ctx); err != nil {
		return fmt.Errorf("%q command failed: %w", cmdName, err)
	}
	return nil
}

func main() {
	_ = godotenv.Load(".env.local", ".env")

	if err := Run(context.Background(), os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
