package video_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/infra"
	"mediarelay/internal/providers/video"
)

func TestNewRegistry(t *testing.T) {
	cfg := &infra.Config{
		VideoProvider:   "dashscope",
		RunwayAPIKey:    "rw",
		ProviderTimeout: time.Second,
	}

	backends, err := video.NewRegistry(cfg, video.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"dashscope", "runway", "veo"}, video.Names(backends))
	assert.True(t, backends[video.Runway].Configured)
	assert.False(t, backends[video.DashScope].Configured)
	assert.False(t, backends[video.Veo].Configured)
	for name, b := range backends {
		assert.Equal(t, name, b.Orchestrator.Provider())
	}
	assert.Equal(t, "dashscope", video.Default(cfg))
}

func TestNewRegistryRejectsUnknownDefault(t *testing.T) {
	_, err := video.NewRegistry(&infra.Config{VideoProvider: "sora"}, video.Options{})
	assert.ErrorContains(t, err, "sora")
}

func TestSchedule(t *testing.T) {
	cfg := &infra.Config{VideoPollInterval: 5 * time.Second, VideoPollAttempts: 24, VideoAwaitDeadline: 2 * time.Minute}
	s := video.Schedule(cfg)

	assert.NoError(t, s.Validate())
	assert.Equal(t, 24, s.MaxAttempts)
	assert.Equal(t, 2*time.Minute, s.Deadline)
}
