package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/cmd/relayctl/commands"
	"mediarelay/internal/infra"
	"mediarelay/internal/providers/video"
	"mediarelay/internal/task"
	"mediarelay/internal/task/tasktest"
)

var epoch = time.Date(2024, 11, 6, 12, 0, 0, 0, time.UTC)

func runCommand(t *testing.T, p *tasktest.Provider, args ...string) (string, error) {
	t.Helper()
	orch, err := task.New(task.Options{Adapter: p, HTTPClient: p, Clock: tasktest.NewAutoClock(epoch)})
	require.NoError(t, err)

	app := kingpin.New("relayctl", "")
	root := commands.NewRootCommand(app)
	cmds := map[string]commands.Command{}
	for _, c := range []commands.Command{
		commands.NewSubmitCommand(root, app),
		commands.NewPollCommand(root, app),
		commands.NewAwaitCommand(root, app),
	} {
		cmds[c.Name()] = c
	}
	name, err := app.Parse(args)
	require.NoError(t, err)

	var out bytes.Buffer
	root.Stdout = &out
	root.Stderr = &out
	root.Logger = infra.DiscardLogger()
	root.Config = &infra.Config{VideoProvider: "stub"}
	root.Backends = map[string]video.Backend{"stub": {Orchestrator: orch, Configured: true}}

	err = cmds[name].Run(context.Background())
	return out.String(), err
}

func TestSubmitPrintsHandle(t *testing.T) {
	p := &tasktest.Provider{Create: tasktest.JSON(map[string]any{"id": "task_123"})}

	out, err := runCommand(t, p, "submit", "--prompt", "A cat on a skateboard", "--ratio", "9:16")

	require.NoError(t, err)
	assert.Equal(t, "task_123\n", out)
	assert.Contains(t, string(p.LastCreateBody()), `"ratio":"9:16"`)
}

func TestPollPrintsStatus(t *testing.T) {
	p := &tasktest.Provider{Polls: []tasktest.Response{
		tasktest.JSON(map[string]any{"status": "FAILED", "failureCode": "CONTENT_MODERATION"}),
	}}

	out, err := runCommand(t, p, "poll", "task_123")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "CONTENT_MODERATION", got["detail"])
	assert.Equal(t, "task_123", got["taskHandle"])
	assert.Equal(t, "stub", got["provider"])
}

func TestAwaitTimeoutPrintsHandle(t *testing.T) {
	p := &tasktest.Provider{
		Create: tasktest.JSON(map[string]any{"id": "task_slow"}),
		Polls:  []tasktest.Response{tasktest.JSON(map[string]any{"status": "RUNNING", "progress": 0.5})},
	}

	out, err := runCommand(t, p, "await", "--prompt", "x", "--interval", "5s", "--attempts", "2")

	assert.ErrorIs(t, err, task.ErrTimeout)
	assert.Equal(t, 2, p.PollCount())
	assert.Contains(t, out, `"taskHandle": "task_slow"`)
}

func TestAwaitCompletes(t *testing.T) {
	p := &tasktest.Provider{
		Create: tasktest.JSON(map[string]any{"id": "task_123"}),
		Polls:  []tasktest.Response{tasktest.JSON(map[string]any{"status": "SUCCEEDED", "output": []string{"https://cdn/x.mp4"}})},
	}

	out, err := runCommand(t, p, "await", "--prompt", "x")

	require.NoError(t, err)
	assert.Contains(t, out, `"result": "https://cdn/x.mp4"`)
	assert.Equal(t, 1, p.PollCount())
}

func TestUnknownProvider(t *testing.T) {
	_, err := runCommand(t, &tasktest.Provider{}, "poll", "--provider", "sora", "h")
	assert.ErrorContains(t, err, `unknown provider "sora"`)
}
