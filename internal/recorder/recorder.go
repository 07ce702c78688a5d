// Package recorder exposes capture and upload state to interactive callers.
//
// A Recorder couples one capture.Buffer with one uploader and publishes a
// State after every change, so a UI can render capture status, upload
// progress, and session stats without polling the buffer directly.
package recorder

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/upload"
	"github.com/rs/zerolog/log"
)

var ErrUploadInProgress = errors.New("recorder: upload already in progress")

// Uploader is satisfied by *upload.Client.
type Uploader interface {
	Upload(ctx context.Context, src upload.Source, meta upload.Metadata, onProgress upload.ProgressFunc) (upload.Result, error)
}

// State is the caller-visible view of a Recorder.
type State struct {
	Capturing bool
	Uploading bool
	Progress  int
	Stats     capture.Stats
}

type Observer func(State)

type Option func(*Recorder)

// WithObserver registers fn to receive every state change. Observers run on
// the goroutine that caused the change and must not block.
func WithObserver(fn Observer) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

type Recorder struct {
	buf      *capture.Buffer
	uploader Uploader

	mu        sync.Mutex
	capturing bool
	uploading bool
	progress  int
	observers []Observer
}

func New(buf *capture.Buffer, uploader Uploader, opts ...Option) *Recorder {
	if buf == nil {
		buf = capture.NewBuffer()
	}
	r := &Recorder{buf: buf, uploader: uploader}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartCapture begins a fresh session and returns its id.
func (r *Recorder) StartCapture(sessionID string) string {
	id := r.buf.Start(sessionID)
	r.update(func() { r.capturing = true })
	return id
}

// StopCapture stops accepting frames; buffered frames are kept for upload.
func (r *Recorder) StopCapture() {
	r.update(func() { r.capturing = false })
}

// AddFrame buffers res while capturing. Frames pushed while stopped are dropped.
func (r *Recorder) AddFrame(res capture.DetectorResult) error {
	r.mu.Lock()
	capturing := r.capturing
	r.mu.Unlock()
	if !capturing {
		return nil
	}
	if _, err := r.buf.AddFrame(res); err != nil {
		return err
	}
	r.notify()
	return nil
}

// Upload delivers the buffered session. Only one upload runs at a time.
func (r *Recorder) Upload(ctx context.Context, meta upload.Metadata) (upload.Result, error) {
	r.mu.Lock()
	if r.uploading {
		r.mu.Unlock()
		return upload.Result{}, ErrUploadInProgress
	}
	r.uploading = true
	r.progress = 0
	r.mu.Unlock()
	r.notify()

	res, err := r.uploader.Upload(ctx, r.buf, meta, func(p int) {
		r.update(func() { r.progress = p })
	})

	r.update(func() {
		r.uploading = false
		r.progress = 0
	})
	if err != nil {
		log.Warn().Err(err).Msg("recorder upload failed")
		return upload.Result{}, err
	}
	return res, nil
}

// ClearSession discards buffered frames and stops capturing.
func (r *Recorder) ClearSession() {
	r.buf.Reset()
	r.update(func() { r.capturing = false })
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Recorder) stateLocked() State {
	return State{
		Capturing: r.capturing,
		Uploading: r.uploading,
		Progress:  r.progress,
		Stats:     r.buf.Stats(),
	}
}

func (r *Recorder) update(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder) notify() {
	r.mu.Lock()
	if len(r.observers) == 0 {
		r.mu.Unlock()
		return
	}
	st := r.stateLocked()
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		fn(st)
	}
}
