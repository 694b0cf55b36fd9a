package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"mediarelay/internal/infra"
	"mediarelay/internal/providers/video"
	"mediarelay/internal/task"
)

// Command is one relayctl subcommand.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand holds global flags and the instances every command shares.
type RootCommand struct {
	Debug bool

	Stdout io.Writer
	Stderr io.Writer
	Logger *infra.Logger
	Config *infra.Config
	// Backends overrides the providers built from Config.
	Backends map[string]video.Backend
}

func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}
	app.Flag("debug", "Enable debug logging.").BoolVar(&c.Debug)
	return c
}

// orchestrator resolves a provider by name, falling back to VIDEO_PROVIDER.
func (r *RootCommand) orchestrator(provider string) (string, *task.Orchestrator, error) {
	if r.Backends == nil {
		if r.Config == nil {
			return "", nil, fmt.Errorf("configuration not loaded")
		}
		backends, err := video.NewRegistry(r.Config, video.Options{Logger: r.Logger})
		if err != nil {
			return "", nil, err
		}
		r.Backends = backends
	}
	if provider == "" && r.Config != nil {
		provider = video.Default(r.Config)
	}
	b, ok := r.Backends[provider]
	if !ok {
		return "", nil, fmt.Errorf("unknown provider %q (known: %v)", provider, video.Names(r.Backends))
	}
	if !b.Configured {
		return "", nil, fmt.Errorf("provider %q has no API key configured", provider)
	}
	return provider, b.Orchestrator, nil
}

type statusOutput struct {
	task.Status
	Provider string `json:"provider"`
}

func (r *RootCommand) printStatus(provider string, st task.Status) error {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(statusOutput{Status: st, Provider: provider})
}

// jobFlags are shared by submit and await.
type jobFlags struct {
	provider string
	prompt   string
	image    string
	duration int
	ratio    string
	model    string
}

func (f *jobFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("provider", "Video provider (runway, dashscope, veo). Defaults to VIDEO_PROVIDER.").StringVar(&f.provider)
	cmd.Flag("prompt", "Text prompt describing the video.").Required().StringVar(&f.prompt)
	cmd.Flag("image", "Seed image URL.").StringVar(&f.image)
	cmd.Flag("duration", "Clip duration in seconds.").IntVar(&f.duration)
	cmd.Flag("ratio", "Aspect ratio such as 16:9 or 9:16.").StringVar(&f.ratio)
	cmd.Flag("model", "Override the provider's model.").StringVar(&f.model)
}

func (f *jobFlags) spec() task.JobSpec {
	return task.JobSpec{
		Prompt:          f.prompt,
		ImageURL:        f.image,
		DurationSeconds: f.duration,
		AspectRatio:     f.ratio,
		Model:           f.model,
	}
}
