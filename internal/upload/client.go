package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed response is folded into an error.
const maxErrorBody = 4 << 10

// Metadata is supplied by the caller and sent alongside the frames.
type Metadata struct {
	User  string
	Label string
}

// Result is the collector's answer to a successful upload.
type Result struct {
	Success     bool   `json:"success"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	TotalFrames int    `json:"total_frames"`
	Filename    string `json:"filename"`
	Detail      string `json:"detail,omitempty"`
}

// ProgressFunc receives 0 when an attempt starts and 100 when it completes.
type ProgressFunc func(percent int)

// Source is the session owner the client snapshots and cleans up after success.
type Source interface {
	Snapshot() capture.Snapshot
	ResetSession(sessionID string) bool
}

type payload struct {
	User      string          `json:"user"`
	Label     string          `json:"label"`
	SessionID string          `json:"session_id"`
	Frames    []capture.Frame `json:"frames"`
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithWait replaces the backoff timer, mainly so tests can record delays.
func WithWait(wait WaitFunc) Option {
	return func(c *Client) {
		if wait != nil {
			c.wait = wait
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = &logger
	}
}

// Client delivers buffered sessions to the collector with bounded retries.
type Client struct {
	cfg    Config
	http   *http.Client
	wait   WaitFunc
	rng    *rand.Rand
	logger *zerolog.Logger
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
		wait: sleepContext,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

// Upload snapshots src, delivers it, and resets src on success. On failure the
// session is left untouched so it can be uploaded again.
func (c *Client) Upload(ctx context.Context, src Source, meta Metadata, onProgress ProgressFunc) (Result, error) {
	snap := src.Snapshot()
	res, err := c.UploadSnapshot(ctx, snap, meta, onProgress)
	if err != nil {
		return Result{}, err
	}
	if !src.ResetSession(snap.SessionID) {
		c.log().Debug().Str("session_id", snap.SessionID).Msg("session replaced during upload; buffer kept")
	}
	return res, nil
}

// UploadSnapshot runs the retry loop for snap without touching any buffer.
func (c *Client) UploadSnapshot(ctx context.Context, snap capture.Snapshot, meta Metadata, onProgress ProgressFunc) (Result, error) {
	if strings.TrimSpace(snap.SessionID) == "" || len(snap.Frames) == 0 {
		return Result{}, ErrEmptySession
	}
	body, err := json.Marshal(payload{
		User:      meta.User,
		Label:     meta.Label,
		SessionID: snap.SessionID,
		Frames:    snap.Frames,
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload: encode payload: %w", err)
	}
	c.log().Info().
		Str("session_id", snap.SessionID).
		Int("frames", len(snap.Frames)).
		Int("payload_bytes", len(body)).
		Msg("uploading session")

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		report(onProgress, 0)
		start := time.Now()
		res, err := c.attempt(ctx, attempt, body)
		report(onProgress, 100)
		observability.RecordUploadAttempt(outcomeOf(err), time.Since(start))

		if err == nil {
			observability.RecordUploadedFrames(len(snap.Frames))
			c.log().Info().
				Str("session_id", snap.SessionID).
				Int("attempt", attempt).
				Str("task_id", res.TaskID).
				Str("filename", res.Filename).
				Msg("upload succeeded")
			return res, nil
		}
		lastErr = err
		c.log().Warn().
			Str("session_id", snap.SessionID).
			Int("attempt", attempt).
			Err(err).
			Msg("upload attempt failed")

		if ctx.Err() != nil {
			return Result{}, errors.Join(ctx.Err(), lastErr)
		}
		if attempt >= c.cfg.MaxAttempts {
			break
		}
		delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
		c.log().Info().Int("attempt", attempt).Dur("delay", delay).Msg("retrying upload")
		if err := c.wait(ctx, delay); err != nil {
			return Result{}, errors.Join(err, lastErr)
		}
	}
	return Result{}, lastErr
}

func (c *Client) attempt(ctx context.Context, attempt int, body []byte) (Result, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.endpoint(c.cfg.IngestPath), bytes.NewReader(body))
	if err != nil {
		return Result{}, &TransportError{Attempt: attempt, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	status, data, terr := c.do(ctx, actx, req)
	if terr != nil {
		terr.Attempt = attempt
		return Result{}, terr
	}
	if status < 200 || status > 299 {
		return Result{}, &TransportError{Attempt: attempt, Kind: FailureStatus, StatusCode: status, Detail: errorText(data)}
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, &TransportError{
			Attempt:    attempt,
			Kind:       FailureDecode,
			StatusCode: status,
			Detail:     "decode response",
			Err:        err,
		}
	}
	if !res.Success {
		detail := strings.TrimSpace(res.Detail)
		if detail == "" {
			detail = "upload failed"
		}
		return Result{}, &TransportError{Attempt: attempt, Kind: FailureRejected, StatusCode: status, Detail: detail}
	}
	return res, nil
}

// do sends req and reads the whole body under the attempt deadline.
func (c *Client) do(parent, actx context.Context, req *http.Request) (int, []byte, *TransportError) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Timeout: isTimeout(parent, actx, err), Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{
			StatusCode: resp.StatusCode,
			Timeout:    isTimeout(parent, actx, err),
			Detail:     "read response",
			Err:        err,
		}
	}
	return resp.StatusCode, data, nil
}

func (c *Client) endpoint(path string) string {
	return c.cfg.BaseURL + path
}

func (c *Client) log() *zerolog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return &log.Logger
}

// isTimeout is true when the attempt deadline fired, not the caller's context.
func isTimeout(parent, actx context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeOf(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	var te *TransportError
	if !errors.As(err, &te) {
		return observability.OutcomeTransport
	}
	if te.Timeout {
		return observability.OutcomeTimeout
	}
	switch te.Kind {
	case FailureStatus:
		return observability.OutcomeHTTPError
	case FailureDecode:
		return observability.OutcomeDecode
	case FailureRejected:
		return observability.OutcomeRejected
	default:
		return observability.OutcomeTransport
	}
}

func errorText(data []byte) string {
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	return strings.TrimSpace(string(data))
}

func report(fn ProgressFunc, percent int) {
	if fn != nil {
		fn(percent)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
