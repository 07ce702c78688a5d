package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HealthStatus is the collector's /health body.
type HealthStatus struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// JobStatus is the collector's view of one accepted upload.
type JobStatus struct {
	JobID  string     `json:"job_id"`
	Status string     `json:"status"`
	Result *JobResult `json:"result,omitempty"`
}

type JobResult struct {
	Filename    string `json:"filename"`
	TotalFrames int    `json:"total_frames"`
	User        string `json:"user,omitempty"`
	Label       string `json:"label,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Health probes the collector once. It does not retry.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return HealthStatus{}, err
	}
	if !strings.EqualFold(out.Status, "ok") {
		return out, fmt.Errorf("upload: collector unhealthy: status=%q", out.Status)
	}
	return out, nil
}

// JobStatus fetches the collector task created by a successful upload.
func (c *Client) JobStatus(ctx context.Context, taskID string) (JobStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return JobStatus{}, fmt.Errorf("upload: task id required")
	}
	var out JobStatus
	err := c.getJSON(ctx, "/jobs/"+url.PathEscape(taskID), &out)
	var te *TransportError
	if errors.As(err, &te) && te.Kind == FailureStatus && te.StatusCode == http.StatusNotFound {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, taskID)
	}
	if err != nil {
		return JobStatus{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return &TransportError{Attempt: 1, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	status, data, terr := c.do(ctx, actx, req)
	if terr != nil {
		terr.Attempt = 1
		return terr
	}
	if status < 200 || status > 299 {
		return &TransportError{Attempt: 1, Kind: FailureStatus, StatusCode: status, Detail: errorText(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Attempt: 1, Kind: FailureDecode, StatusCode: status, Detail: "decode response", Err: err}
	}
	return nil
}
