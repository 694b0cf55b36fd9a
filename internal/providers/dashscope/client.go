package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"mediarelay/internal/task"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("dashscope: api key is required")

const (
	defaultBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel   = "wan2.1-i2v-turbo"
)

var vocabulary = task.Vocabulary{
	Succeeded: []string{"SUCCEEDED"},
	Failed:    []string{"FAILED", "CANCELED", "UNKNOWN"},
}

// Options configures the DashScope video client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client submits asynchronous video-synthesis tasks to DashScope and reads
// them back through the shared task endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
}

var _ task.Adapter = (*Client)(nil)

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisInput struct {
	Prompt string `json:"prompt"`
	ImgURL string `json:"img_url,omitempty"`
}

type synthesisParams struct {
	Duration int    `json:"duration,omitempty"`
	Size     string `json:"size,omitempty"`
}

type taskOutput struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
	VideoURL   string `json:"video_url"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type taskResponse struct {
	Output    taskOutput `json:"output"`
	RequestID string     `json:"request_id"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		model:   model,
	}
}

func (c *Client) Name() string { return "dashscope" }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

func (c *Client) CreateRequest(ctx context.Context, spec task.JobSpec) (*http.Request, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	payload := synthesisRequest{
		Model: c.model,
		Input: synthesisInput{
			Prompt: strings.TrimSpace(spec.Prompt),
			ImgURL: strings.TrimSpace(spec.ImageURL),
		},
		Parameters: synthesisParams{
			Duration: spec.DurationSeconds,
			Size:     Size(spec.AspectRatio),
		},
	}
	if m := strings.TrimSpace(spec.Model); m != "" {
		payload.Model = m
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dashscope: encode request: %w", err)
	}
	endpoint := c.baseURL + "/services/aigc/video-generation/video-synthesis"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dashscope: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-DashScope-Async", "enable")
	return req, nil
}

func (c *Client) ParseCreated(body []byte) (task.Handle, error) {
	var decoded taskResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("dashscope: decode response: %w", err)
	}
	if decoded.Code != "" {
		return "", task.Rejected(fmt.Sprintf("%s (%s)", decoded.Message, decoded.Code), body)
	}
	return task.Handle(strings.TrimSpace(decoded.Output.TaskID)), nil
}

func (c *Client) StatusRequest(ctx context.Context, h task.Handle) (*http.Request, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(h.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("dashscope: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) ParseStatus(body []byte) (task.Status, error) {
	var decoded taskResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return task.Status{}, fmt.Errorf("dashscope: decode task: %w", err)
	}
	out := decoded.Output
	if strings.TrimSpace(out.TaskStatus) == "" {
		return task.Status{}, errors.New("dashscope: task has no status")
	}
	switch vocabulary.Classify(out.TaskStatus) {
	case task.StateCompleted:
		return task.Completed(task.ResultReference(nil, out.VideoURL)), nil
	case task.StateFailed:
		return task.Failed(task.FailureDetail(out.Message, out.Code, decoded.Message)), nil
	}
	// PENDING and RUNNING carry no progress figure.
	return task.Processing(0), nil
}

// Size maps a generic aspect ratio onto DashScope's WxH sizes. An empty
// value lets the model choose.
func Size(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "":
		return ""
	case "16:9", "landscape":
		return "1280*720"
	case "9:16", "portrait":
		return "720*1280"
	case "1:1", "square":
		return "960*960"
	default:
		return strings.ReplaceAll(strings.TrimSpace(aspect), ":", "*")
	}
}
