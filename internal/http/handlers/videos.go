package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediarelay/internal/infra"
	"mediarelay/internal/task"
)

const modeAwait = "await"

type videoGenerateRequest struct {
	Prompt   string `json:"prompt"`
	Image    string `json:"image"`
	ImageURL string `json:"imageUrl"`
	Provider string `json:"provider"`
	Duration int    `json:"duration"`
	Ratio    string `json:"ratio"`
	Model    string `json:"model"`
	Mode     string `json:"mode"`
}

type videoStatusRequest struct {
	TaskHandle string `json:"taskHandle"`
	Provider   string `json:"provider"`
}

type videoStatusResponse struct {
	Status     task.State `json:"status"`
	TaskHandle string     `json:"taskHandle,omitempty"`
	Provider   string     `json:"provider"`
	Progress   *float64   `json:"progress,omitempty"`
	Result     string     `json:"result,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

func newVideoStatusResponse(provider string, st task.Status) videoStatusResponse {
	resp := videoStatusResponse{
		Status:     st.State,
		TaskHandle: st.Handle.String(),
		Provider:   provider,
		Result:     st.Result,
		Detail:     st.Detail,
	}
	if st.State == task.StateProcessing {
		p := st.Progress
		resp.Progress = &p
	}
	return resp
}

// VideoGenerate submits an image-to-video job. By default it answers 202 with
// the task handle for client-side polling; mode "await" blocks until the job
// settles or the configured schedule runs out.
func (a *App) VideoGenerate(w http.ResponseWriter, r *http.Request) {
	var req videoGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	provider, backend, ok := a.videoBackend(req.Provider)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported provider")
		return
	}
	if !backend.Configured {
		a.error(w, http.StatusInternalServerError, "not_configured", provider+" API key not configured")
		return
	}
	spec := task.JobSpec{
		Prompt:          req.Prompt,
		ImageURL:        strings.TrimSpace(firstNonEmpty(req.ImageURL, req.Image)),
		DurationSeconds: req.Duration,
		AspectRatio:     req.Ratio,
		Model:           req.Model,
	}
	orch := backend.Orchestrator

	if strings.EqualFold(strings.TrimSpace(req.Mode), modeAwait) {
		ctx, sched := r.Context(), a.AwaitSchedule
		if a.AwaitBudget > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.AwaitBudget)
			defer cancel()
			if sched.Deadline == 0 || sched.Deadline > a.AwaitBudget {
				sched.Deadline = a.AwaitBudget
			}
		}
		st, err := orch.SubmitAndAwait(ctx, spec, sched)
		if err != nil {
			if ctx.Err() != nil && r.Context().Err() == nil && st.Handle != "" {
				err = &task.Error{Kind: task.KindTimeout, Op: "await", Provider: provider, Handle: st.Handle, Err: err}
			}
			a.taskError(w, provider, st.Handle, err)
			return
		}
		a.Logger.Info().
			Str("provider", provider).
			Str("task_handle", st.Handle.String()).
			Str("state", string(st.State)).
			Msg("video job settled")
		a.json(w, http.StatusOK, newVideoStatusResponse(provider, st))
		return
	}

	h, err := orch.Submit(r.Context(), spec)
	if err != nil {
		a.taskError(w, provider, "", err)
		return
	}
	a.Logger.Info().
		Str("provider", provider).
		Str("task_handle", h.String()).
		Msg("video job submitted")
	a.json(w, http.StatusAccepted, newVideoStatusResponse(provider, task.Started(h)))
}

// VideoStatus performs one status check for a previously issued handle.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	var req videoStatusRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.pollVideo(w, r, req.Provider, req.TaskHandle)
}

// VideoStatusByPath is VideoStatus addressed as /{provider}/{handle...}, so
// handles containing slashes (operation names) need no escaping.
func (a *App) VideoStatusByPath(w http.ResponseWriter, r *http.Request) {
	a.pollVideo(w, r, chi.URLParam(r, "provider"), chi.URLParam(r, "*"))
}

func (a *App) pollVideo(w http.ResponseWriter, r *http.Request, providerName, handle string) {
	provider, backend, ok := a.videoBackend(providerName)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported provider")
		return
	}
	if !backend.Configured {
		a.error(w, http.StatusInternalServerError, "not_configured", provider+" API key not configured")
		return
	}
	h := task.Handle(strings.TrimSpace(handle))
	st, err := backend.Orchestrator.Poll(r.Context(), h)
	if err != nil {
		a.taskError(w, provider, h, err)
		return
	}
	a.json(w, http.StatusOK, newVideoStatusResponse(provider, st))
}

// taskError maps orchestration failures onto HTTP answers. A timeout keeps
// the handle in the body so the caller can resume polling.
func (a *App) taskError(w http.ResponseWriter, provider string, h task.Handle, err error) {
	var te *task.Error
	if errors.As(err, &te) && te.Handle != "" {
		h = te.Handle
	}
	status, code := http.StatusInternalServerError, "internal"
	msg := "video generation failed"
	switch task.KindOf(err) {
	case task.KindInvalidArgument:
		status, code, msg = http.StatusBadRequest, "invalid_argument", causeMessage(te)
	case task.KindProviderRejected:
		status, code, msg = http.StatusBadGateway, "provider_rejected", causeMessage(te)
	case task.KindProviderContractViolation:
		status, code, msg = http.StatusBadGateway, "provider_contract_violation", "provider returned an unexpected response"
	case task.KindProviderUnavailable:
		status, code, msg = http.StatusServiceUnavailable, "provider_unavailable", "provider status check failed"
	case task.KindTimeout:
		status, code, msg = http.StatusGatewayTimeout, "timeout", "video is still processing"
	default:
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status, code, msg = http.StatusGatewayTimeout, "timeout", "request ended before the video was ready"
		}
	}

	ev := a.Logger.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		ev = a.Logger.Error()
	}
	ev.Err(err).
		Str("provider", provider).
		Str("task_handle", h.String()).
		Int("status", status).
		Msg("video request failed")

	body := map[string]string{"error": msg, "code": code, "provider": provider}
	if h != "" {
		body["taskHandle"] = h.String()
	}
	a.json(w, status, body)
}

func causeMessage(te *task.Error) string {
	if te == nil || te.Err == nil {
		return "request failed"
	}
	return infra.Truncate(infra.SanitizeForLog(te.Err.Error()), 300)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
