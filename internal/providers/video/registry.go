// Package video builds the image-to-video orchestrators selected by
// configuration.
package video

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"mediarelay/internal/infra"
	"mediarelay/internal/providers/dashscope"
	"mediarelay/internal/providers/runway"
	"mediarelay/internal/providers/veo"
	"mediarelay/internal/task"
)

const (
	Runway    = "runway"
	DashScope = "dashscope"
	Veo       = "veo"
)

// Backend pairs a provider orchestrator with whether its credentials are set.
type Backend struct {
	Orchestrator *task.Orchestrator
	Configured   bool
}

type credentialed interface {
	task.Adapter
	HasCredentials() bool
}

// Options tweaks how the registry constructs orchestrators. Zero values use
// a real clock and a client with the configured provider timeout.
type Options struct {
	Logger     *infra.Logger
	Clock      task.Clock
	HTTPClient task.Doer
}

// NewRegistry builds one backend per known provider. Providers without
// credentials are still registered so callers get a clear "not configured"
// answer instead of "unsupported".
func NewRegistry(cfg *infra.Config, opts Options) (map[string]Backend, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.ProviderTimeout}
	}
	adapters := []credentialed{
		runway.New(runway.Options{
			APIKey:     cfg.RunwayAPIKey,
			BaseURL:    cfg.RunwayBaseURL,
			Model:      cfg.RunwayModel,
			APIVersion: cfg.RunwayAPIVersion,
		}),
		dashscope.NewClient(dashscope.Options{
			APIKey:  cfg.DashScopeAPIKey,
			BaseURL: cfg.DashScopeBaseURL,
			Model:   cfg.DashScopeVideoModel,
		}),
		veo.NewClient(veo.Options{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.VeoModel,
		}),
	}

	out := make(map[string]Backend, len(adapters))
	for _, a := range adapters {
		orch, err := task.New(task.Options{
			Adapter:    a,
			HTTPClient: client,
			Logger:     opts.Logger,
			Clock:      opts.Clock,
		})
		if err != nil {
			return nil, fmt.Errorf("video: %s: %w", a.Name(), err)
		}
		out[a.Name()] = Backend{Orchestrator: orch, Configured: a.HasCredentials()}
	}
	if _, ok := out[Default(cfg)]; !ok {
		return nil, fmt.Errorf("video: VIDEO_PROVIDER %q is not one of %s", cfg.VideoProvider, strings.Join(Names(out), ", "))
	}
	return out, nil
}

// Default returns the provider used when a request names none.
func Default(cfg *infra.Config) string {
	name := strings.ToLower(strings.TrimSpace(cfg.VideoProvider))
	if name == "" {
		return Runway
	}
	return name
}

// Schedule is the await-mode polling plan from configuration.
func Schedule(cfg *infra.Config) task.Schedule {
	return task.Schedule{
		Interval:    cfg.VideoPollInterval,
		MaxAttempts: cfg.VideoPollAttempts,
		Deadline:    cfg.VideoAwaitDeadline,
	}
}

// Names lists registered providers in order.
func Names(backends map[string]Backend) []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
