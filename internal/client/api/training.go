package api

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/mri-lab/mri-console/internal/model/job"
)

// statusPayload accepts the field spellings of both training APIs and of
// older backend builds.
type statusPayload struct {
	TaskID       string       `json:"task_id"`
	Status       job.Status   `json:"status"`
	Progress     float64      `json:"progress"`
	CurrentEpoch int          `json:"current_epoch"`
	TotalEpochs  int          `json:"total_epochs"`
	CurrentLoss  *float64     `json:"current_loss"`
	Loss         *float64     `json:"loss"`
	LossValue    *float64     `json:"current_loss_value"`
	LossHistory  []float64    `json:"loss_history"`
	Losses       []float64    `json:"losses"`
	LossValues   []float64    `json:"loss_values"`
	LogMessages  []string     `json:"log_messages"`
	Logs         []string     `json:"logs"`
	Messages     []string     `json:"messages"`
	LogMessage   string       `json:"log_message"`
	Metrics      *job.Metrics `json:"metrics"`
	Error        string       `json:"error"`
	ModelPath    string       `json:"model_path"`
}

func (p statusPayload) snapshot(taskID string) job.Snapshot {
	s := job.Snapshot{
		TaskID:       p.TaskID,
		Status:       p.Status,
		Progress:     p.Progress,
		CurrentEpoch: p.CurrentEpoch,
		TotalEpochs:  p.TotalEpochs,
		Metrics:      p.Metrics,
		Error:        p.Error,
		ModelPath:    p.ModelPath,
	}
	if s.TaskID == "" {
		s.TaskID = taskID
	}

	switch {
	case p.CurrentLoss != nil:
		s.Loss = p.CurrentLoss
	case p.Loss != nil:
		s.Loss = p.Loss
	case p.LossValue != nil:
		s.Loss = p.LossValue
	}

	switch {
	case len(p.LossHistory) > 0:
		s.LossHistory = p.LossHistory
	case len(p.Losses) > 0:
		s.LossHistory = p.Losses
	case len(p.LossValues) > 0:
		s.LossHistory = p.LossValues
	}

	switch {
	case len(p.LogMessages) > 0:
		s.Logs = p.LogMessages
	case len(p.Logs) > 0:
		s.Logs = p.Logs
	case len(p.Messages) > 0:
		s.Logs = p.Messages
	case p.LogMessage != "":
		s.Logs = []string{p.LogMessage}
	}
	return s
}

type startResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// StartOnlineTraining submits a job to /api/online-training/.
func (c *Client) StartOnlineTraining(ctx context.Context, params job.TrainingParams) (string, error) {
	var out startResponse
	if err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/online-training/", params, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("start training: response has no task_id")
	}
	return out.TaskID, nil
}

// OnlineTrainingStatus polls /api/online-training/status/{id}.
func (c *Client) OnlineTrainingStatus(ctx context.Context, taskID string) (job.Snapshot, error) {
	var p statusPayload
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/online-training/status/"+url.PathEscape(taskID), nil, &p); err != nil {
		return job.Snapshot{}, err
	}
	return p.snapshot(taskID), nil
}

// StopOnlineTraining asks the backend to stop a running job.
func (c *Client) StopOnlineTraining(ctx context.Context, taskID string) error {
	return c.doJSON(ctx, c.authed, http.MethodPost, "/api/online-training/stop/"+url.PathEscape(taskID), nil, nil)
}

// CheckModel reports whether the trained model file is ready.
func (c *Client) CheckModel(ctx context.Context, taskID string) (bool, error) {
	var out struct {
		Exists    bool   `json:"exists"`
		Available bool   `json:"available"`
		ModelPath string `json:"model_path"`
	}
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/online-training/check-model/"+url.PathEscape(taskID), nil, &out); err != nil {
		return false, err
	}
	return out.Exists || out.Available, nil
}

// DownloadModel streams the trained model. The caller closes the reader.
func (c *Client) DownloadModel(ctx context.Context, taskID string) (io.ReadCloser, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/online-training/download/"+url.PathEscape(taskID), nil, "")
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.open(c.authed, req)
	if err != nil {
		return nil, "", err
	}

	name := "model_" + taskID + ".pth"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return resp.Body, name, nil
}

// StartTraining submits a job to the legacy /api/training/start endpoint.
func (c *Client) StartTraining(ctx context.Context, params job.TrainingParams) (string, error) {
	var out startResponse
	if err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/training/start", params, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("start training: response has no task_id")
	}
	return out.TaskID, nil
}

// TrainingProgress polls the legacy /api/training/progress/{id} endpoint.
func (c *Client) TrainingProgress(ctx context.Context, taskID string) (job.Snapshot, error) {
	var p statusPayload
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/training/progress/"+url.PathEscape(taskID), nil, &p); err != nil {
		return job.Snapshot{}, err
	}
	return p.snapshot(taskID), nil
}
