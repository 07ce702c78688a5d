package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/testutil/testlog"
)

type recordedWaits struct {
	delays []time.Duration
}

func (r *recordedWaits) wait(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestClient(t *testing.T, baseURL string, cfg Config, opts ...Option) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	c, err := NewClient(cfg, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func twoFrameBuffer(t *testing.T, id string) *capture.Buffer {
	t.Helper()
	buf := capture.NewBuffer()
	buf.Start(id)
	res := capture.DetectorResult{
		Pose:      []capture.Point{{X: 0.5, Y: 0.5, Z: 0, Visibility: capture.Vis(0.9)}},
		LeftHand:  []capture.Point{},
		RightHand: []capture.Point{},
	}
	for i := 0; i < 2; i++ {
		if _, err := buf.AddFrame(res); err != nil {
			t.Fatalf("add frame: %v", err)
		}
	}
	return buf
}

func TestUploadEmptySessionMakesNoRequest(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL, DefaultConfig())

	buf := capture.NewBuffer()
	if _, err := client.Upload(context.Background(), buf, Metadata{User: "alice", Label: "wave"}, nil); !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession without session, got %v", err)
	}
	buf.Start("s-empty")
	if _, err := client.Upload(context.Background(), buf, Metadata{User: "alice", Label: "wave"}, nil); !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession with zero frames, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network attempts, got %d", hits.Load())
	}
	if buf.Stats().SessionID != "s-empty" {
		t.Fatalf("empty upload must not reset the session")
	}
}

func TestUploadSuccessSendsPayloadAndResetsBuffer(t *testing.T) {
	testlog.Start(t)
	var got struct {
		User      string          `json:"user"`
		Label     string          `json:"label"`
		SessionID string          `json:"session_id"`
		Frames    []capture.Frame `json:"frames"`
	}
	var contentType, userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != DefaultIngestPath {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		contentType = r.Header.Get("Content-Type")
		userAgent = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"task_id":"t1","status":"done","total_frames":2,"filename":"s1.json"}`))
	}))
	defer srv.Close()

	buf := twoFrameBuffer(t, "s1")
	before := buf.Snapshot()
	if st := buf.Stats(); st.SessionID != "s1" || st.FrameCount != 2 || st.DurationMS < 0 {
		t.Fatalf("unexpected stats before upload: %+v", st)
	}

	var progress []int
	client := newTestClient(t, srv.URL, DefaultConfig())
	res, err := client.Upload(context.Background(), buf, Metadata{User: "alice", Label: "wave"}, func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := Result{Success: true, TaskID: "t1", Status: "done", TotalFrames: 2, Filename: "s1.json"}
	if res != want {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got.User != "alice" || got.Label != "wave" || got.SessionID != "s1" {
		t.Fatalf("unexpected payload metadata: %+v", got)
	}
	if len(got.Frames) != len(before.Frames) {
		t.Fatalf("frames sent=%d want=%d", len(got.Frames), len(before.Frames))
	}
	for i := range got.Frames {
		if got.Frames[i].TimestampMS != before.Frames[i].TimestampMS {
			t.Fatalf("frame %d out of order: got=%d want=%d", i, got.Frames[i].TimestampMS, before.Frames[i].TimestampMS)
		}
	}
	if got.Frames[0].Landmarks.LeftHand == nil || got.Frames[0].Landmarks.RightHand == nil {
		t.Fatalf("hand lists must be sent as arrays")
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type: %q", contentType)
	}
	if userAgent != DefaultUserAgent {
		t.Fatalf("unexpected user agent: %q", userAgent)
	}
	if len(progress) != 2 || progress[0] != 0 || progress[1] != 100 {
		t.Fatalf("unexpected progress: %v", progress)
	}
	if st := buf.Stats(); st.SessionID != "" || st.FrameCount != 0 {
		t.Fatalf("buffer not reset after success: %+v", st)
	}
}

func TestUploadExhaustsRetriesAndKeepsBuffer(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		http.Error(w, "collector down "+string(rune('0'+n)), http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	waits := &recordedWaits{}
	var progress []int
	client := newTestClient(t, srv.URL, DefaultConfig(), WithWait(waits.wait))
	buf := twoFrameBuffer(t, "s1")

	_, err := client.Upload(context.Background(), buf, Metadata{User: "alice", Label: "wave"}, func(p int) {
		progress = append(progress, p)
	})
	if err == nil {
		t.Fatalf("expected exhausted retries error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
	if te.Attempt != 3 || te.StatusCode != http.StatusServiceUnavailable || te.Detail != "collector down 3" {
		t.Fatalf("expected last attempt error, got %+v", te)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	if len(waits.delays) != 2 || waits.delays[0] != 2*time.Second || waits.delays[1] != 4*time.Second {
		t.Fatalf("unexpected backoff delays: %v", waits.delays)
	}
	if len(progress) != 6 {
		t.Fatalf("expected attempt-scoped progress, got %v", progress)
	}
	if st := buf.Stats(); st.SessionID != "s1" || st.FrameCount != 2 {
		t.Fatalf("buffer must survive terminal failure: %+v", st)
	}
}

func TestUploadRetriesRejectedAndMalformedResponses(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			_, _ = w.Write([]byte(`{"success":false,"detail":"collector busy"}`))
		case 2:
			_, _ = w.Write([]byte(`not json`))
		default:
			_, _ = w.Write([]byte(`{"success":true,"task_id":"t3","status":"done","total_frames":2,"filename":"s1.json"}`))
		}
	}))
	defer srv.Close()

	waits := &recordedWaits{}
	client := newTestClient(t, srv.URL, DefaultConfig(), WithWait(waits.wait))
	buf := twoFrameBuffer(t, "s1")

	res, err := client.Upload(context.Background(), buf, Metadata{User: "bob", Label: "clap"}, nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.TaskID != "t3" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if hits.Load() != 3 || len(waits.delays) != 2 {
		t.Fatalf("unexpected attempts=%d waits=%v", hits.Load(), waits.delays)
	}
	if buf.Active() {
		t.Fatalf("buffer should be reset after eventual success")
	}
}

func TestUploadRejectedWithoutDetail(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxAttempts = 1
	client := newTestClient(t, srv.URL, cfg)
	_, err := client.Upload(context.Background(), twoFrameBuffer(t, "s1"), Metadata{}, nil)
	var te *TransportError
	if !errors.As(err, &te) || te.Detail != "upload failed" {
		t.Fatalf("expected upload failed detail, got %v", err)
	}
	if te.Kind != FailureRejected || te.StatusCode != http.StatusOK {
		t.Fatalf("rejection must keep the response status: %+v", te)
	}
	if err.Error() != "upload: attempt 1: upload failed" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if outcomeOf(err) != "rejected" {
		t.Fatalf("unexpected outcome: %q", outcomeOf(err))
	}
}

func TestUploadAttemptTimeout(t *testing.T) {
	testlog.Start(t)
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.AttemptTimeout = 50 * time.Millisecond
	waits := &recordedWaits{}
	client := newTestClient(t, srv.URL, cfg, WithWait(waits.wait))
	buf := twoFrameBuffer(t, "s1")

	_, err := client.Upload(context.Background(), buf, Metadata{User: "alice", Label: "wave"}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if hits.Load() != 2 || len(waits.delays) != 1 {
		t.Fatalf("unexpected attempts=%d waits=%v", hits.Load(), waits.delays)
	}
	if outcomeOf(err) != "timeout" {
		t.Fatalf("unexpected outcome: %q", outcomeOf(err))
	}
	if buf.Stats().FrameCount != 2 {
		t.Fatalf("buffer must be kept after timeout")
	}
}

func TestUploadCanceledDuringBackoffKeepsBuffer(t *testing.T) {
	testlog.Start(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := newTestClient(t, srv.URL, DefaultConfig(), WithWait(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	buf := twoFrameBuffer(t, "s1")

	_, err := client.Upload(ctx, buf, Metadata{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected last attempt error to be kept, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one attempt before cancel, got %d", hits.Load())
	}
	if buf.Stats().FrameCount != 2 {
		t.Fatalf("buffer must be kept after cancellation")
	}
}

func TestUploadDoesNotResetReplacedSession(t *testing.T) {
	testlog.Start(t)
	buf := twoFrameBuffer(t, "s1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf.Start("s2")
		_, _ = w.Write([]byte(`{"success":true,"task_id":"t1","status":"done","total_frames":2,"filename":"s1.json"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, DefaultConfig())
	if _, err := client.Upload(context.Background(), buf, Metadata{}, nil); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if st := buf.Stats(); st.SessionID != "s2" {
		t.Fatalf("newer session must survive cleanup: %+v", st)
	}
}

func TestHealthAndJobStatus(t *testing.T) {
	testlog.Start(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","uptime":"1s","service":"collector","version":"0.0.1"}`))
	})
	mux.HandleFunc("/jobs/t1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"t1","status":"done","result":{"filename":"s1.json","total_frames":2}}`))
	})
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"job not found"}`, http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newTestClient(t, srv.URL, DefaultConfig())
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Service != "collector" {
		t.Fatalf("unexpected health: %+v", health)
	}

	job, err := client.JobStatus(context.Background(), "t1")
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if job.Status != "done" || job.Result == nil || job.Result.TotalFrames != 2 {
		t.Fatalf("unexpected job: %+v", job)
	}

	if _, err := client.JobStatus(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := client.JobStatus(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty task id")
	}
}

func TestTransportErrorMessages(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		err  *TransportError
		want string
	}{
		{&TransportError{Attempt: 2, Kind: FailureStatus, StatusCode: 500, Detail: "boom"}, "upload: attempt 2: HTTP 500: boom"},
		{&TransportError{Attempt: 1, Kind: FailureStatus, StatusCode: 502}, "upload: attempt 1: HTTP 502"},
		{&TransportError{Attempt: 1, Kind: FailureRejected, StatusCode: 200, Detail: "collector busy"}, "upload: attempt 1: collector busy"},
		{&TransportError{Attempt: 3, Timeout: true, Err: context.DeadlineExceeded}, "upload: attempt 3: timed out: context deadline exceeded"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
	if errors.Is(&TransportError{Attempt: 1}, ErrTimeout) {
		t.Fatalf("non-timeout error must not match ErrTimeout")
	}
}

func TestZeroConfigClientBacksOffWithDefaults(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	waits := &recordedWaits{}
	client, err := NewClient(Config{BaseURL: srv.URL}, WithWait(waits.wait))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Upload(context.Background(), twoFrameBuffer(t, "s1"), Metadata{}, nil); err == nil {
		t.Fatalf("expected exhausted retries error")
	}
	if len(waits.delays) != 2 || waits.delays[0] != 2*time.Second || waits.delays[1] != 4*time.Second {
		t.Fatalf("unexpected backoff delays: %v (backoff=%+v)", waits.delays, client.Config().Backoff)
	}
}

func TestUploadMalformedResponseIsDecodeFailure(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxAttempts = 1
	client := newTestClient(t, srv.URL, cfg)
	_, err := client.Upload(context.Background(), twoFrameBuffer(t, "s1"), Metadata{}, nil)
	var te *TransportError
	if !errors.As(err, &te) || te.Kind != FailureDecode || te.StatusCode != http.StatusOK {
		t.Fatalf("expected decode failure with status 200, got %v", err)
	}
	if outcomeOf(err) != "decode_error" {
		t.Fatalf("unexpected outcome: %q", outcomeOf(err))
	}
}

func TestSleepContext(t *testing.T) {
	testlog.Start(t)
	start := time.Now()
	if err := sleepContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("returned after %v, before the delay elapsed", elapsed)
	}
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Fatalf("zero delay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	if err := sleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancelled sleep took %v", elapsed)
	}
}
