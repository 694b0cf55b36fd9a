package runway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/task"
	"mediarelay/internal/task/tasktest"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCreateRequestPayload(t *testing.T) {
	a := New(Options{APIKey: "rw-key"})
	req, err := a.CreateRequest(context.Background(), task.JobSpec{
		Prompt:   "a cat on a skateboard",
		ImageURL: "https://cdn.example.com/cat.png",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://api.runwayml.com/v1/image_to_video", req.URL.String())
	assert.Equal(t, "Bearer rw-key", req.Header.Get("Authorization"))
	assert.Equal(t, "2024-11-06", req.Header.Get("X-Runway-Version"))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
	assert.Equal(t, "gen3a_turbo", payload["model"])
	assert.Equal(t, "a cat on a skateboard", payload["promptText"])
	assert.Equal(t, "https://cdn.example.com/cat.png", payload["promptImage"])
	assert.EqualValues(t, 5, payload["duration"])
	assert.Equal(t, "1280:768", payload["ratio"])
}

func TestCreateRequestOmitsEmptyImage(t *testing.T) {
	a := New(Options{APIKey: "rw-key", BaseURL: "https://runway.test/"})
	req, err := a.CreateRequest(context.Background(), task.JobSpec{Prompt: "sunset", DurationSeconds: 10, AspectRatio: "9:16"})
	require.NoError(t, err)

	assert.Equal(t, "https://runway.test/v1/image_to_video", req.URL.String())
	var payload map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
	_, hasImage := payload["promptImage"]
	assert.False(t, hasImage)
	assert.EqualValues(t, 10, payload["duration"])
	assert.Equal(t, "768:1280", payload["ratio"])
}

func TestCreateRequestRequiresKey(t *testing.T) {
	_, err := New(Options{}).CreateRequest(context.Background(), task.JobSpec{Prompt: "x"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestParseCreated(t *testing.T) {
	a := New(Options{APIKey: "k"})

	h, err := a.ParseCreated([]byte(`{"id":"task_123"}`))
	require.NoError(t, err)
	assert.Equal(t, task.Handle("task_123"), h)

	h, err = a.ParseCreated([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, h.Empty())

	_, err = a.ParseCreated([]byte(`{"error":"Prompt violates policy"}`))
	assert.ErrorIs(t, err, task.ErrProviderRejected)
	assert.Contains(t, err.Error(), "Prompt violates policy")

	_, err = a.ParseCreated([]byte(`{"error":{"message":"quota exceeded"}}`))
	assert.ErrorIs(t, err, task.ErrProviderRejected)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestParseStatus(t *testing.T) {
	a := New(Options{APIKey: "k"})
	tests := map[string]struct {
		body      string
		expStatus task.Status
		expErr    bool
	}{
		"succeeded": {
			body:      `{"id":"task_123","status":"SUCCEEDED","output":["https://cdn/v.mp4"]}`,
			expStatus: task.Completed("https://cdn/v.mp4"),
		},
		"failed with reason": {
			body:      `{"status":"FAILED","failureCode":"CONTENT_MODERATION"}`,
			expStatus: task.Failed("CONTENT_MODERATION"),
		},
		"cancelled without reason": {
			body:      `{"status":"CANCELLED"}`,
			expStatus: task.Failed(task.DefaultFailureDetail),
		},
		"running with progress": {
			body:      `{"status":"RUNNING","progress":0.42}`,
			expStatus: task.Processing(0.42),
		},
		"throttled": {
			body:      `{"status":"THROTTLED"}`,
			expStatus: task.Processing(0),
		},
		"missing status": {body: `{"id":"x"}`, expErr: true},
		"not json":       {body: `<html>`, expErr: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			st, err := a.ParseStatus([]byte(test.body))
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expStatus, st)
		})
	}
}

func TestStatusRequest(t *testing.T) {
	req, err := New(Options{APIKey: "k"}).StatusRequest(context.Background(), "task/123")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/v1/tasks/task%2F123", req.URL.EscapedPath())
	assert.Equal(t, "2024-11-06", req.Header.Get("X-Runway-Version"))
}

func TestSubmitAndAwaitAgainstRunway(t *testing.T) {
	polls := 0
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/image_to_video":
			return jsonResponse(http.StatusOK, `{"id":"task_123"}`), nil
		case r.Method == http.MethodGet && r.URL.Path == "/v1/tasks/task_123":
			polls++
			if polls < 3 {
				return jsonResponse(http.StatusOK, `{"status":"RUNNING","progress":0.5}`), nil
			}
			return jsonResponse(http.StatusOK, `{"status":"SUCCEEDED","output":["https://cdn.runway/v.mp4"]}`), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL)
		return nil, nil
	})}

	orch, err := task.New(task.Options{
		Adapter:    New(Options{APIKey: "k"}),
		HTTPClient: client,
		Clock:      tasktest.NewAutoClock(time.Unix(0, 0)),
	})
	require.NoError(t, err)

	st, err := orch.SubmitAndAwait(context.Background(), task.JobSpec{Prompt: "p"},
		task.Schedule{Interval: 5 * time.Second, MaxAttempts: 24})
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, st.State)
	assert.Equal(t, "https://cdn.runway/v.mp4", st.Result)
	assert.Equal(t, task.Handle("task_123"), st.Handle)
	assert.Equal(t, 3, polls)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "1280:768", Ratio(""))
	assert.Equal(t, "1280:768", Ratio("16:9"))
	assert.Equal(t, "768:1280", Ratio("portrait"))
	assert.Equal(t, "960:960", Ratio("960:960"))
}
