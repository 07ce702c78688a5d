package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNoActiveSession = errors.New("capture: no active session")

// progressLogEvery controls how often AddFrame emits a debug progress line.
const progressLogEvery = 30

// Buffer owns one capture session: its id, start time, and frames.
type Buffer struct {
	mu        sync.RWMutex
	sessionID string
	startTime time.Time
	frames    []Frame
	now       func() time.Time
}

type BufferOption func(*Buffer)

// WithClock overrides the time source used for session start and frame offsets.
func WithClock(now func() time.Time) BufferOption {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		frames: []Frame{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start begins a new session and returns its id. Any unsent frames of the
// previous session are discarded.
func (b *Buffer) Start(sessionID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	id := strings.TrimSpace(sessionID)
	if id == "" {
		id = NewSessionID(now)
	}
	b.sessionID = id
	b.startTime = now
	b.frames = []Frame{}
	log.Info().Str("session_id", id).Msg("capture session started")
	return id
}

// AddFrame stamps res with the offset since session start and appends it.
func (b *Buffer) AddFrame(res DetectorResult) (Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionID == "" {
		return Frame{}, ErrNoActiveSession
	}
	offset := b.now().Sub(b.startTime).Milliseconds()
	if offset < 0 {
		offset = 0
	}
	if n := len(b.frames); n > 0 && offset < b.frames[n-1].TimestampMS {
		offset = b.frames[n-1].TimestampMS
	}
	frame := Frame{
		TimestampMS: offset,
		Landmarks:   normalizeLandmarks(res),
	}
	b.frames = append(b.frames, frame)
	if len(b.frames)%progressLogEvery == 0 {
		log.Debug().Str("session_id", b.sessionID).Int("frames", len(b.frames)).Msg("capture progress")
	}
	return frame, nil
}

func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{
		SessionID:          b.sessionID,
		FrameCount:         len(b.frames),
		EstimatedSizeBytes: estimateSize(b.frames),
	}
	if n := len(b.frames); n > 0 {
		st.DurationMS = b.frames[n-1].TimestampMS
	}
	return st
}

// Reset clears the session unconditionally.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// ResetSession clears the buffer only if sessionID is still the active
// session. It reports whether a reset happened.
func (b *Buffer) ResetSession(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sessionID == "" || b.sessionID != sessionID {
		return false
	}
	b.resetLocked()
	return true
}

func (b *Buffer) resetLocked() {
	b.frames = []Frame{}
	b.sessionID = ""
	b.startTime = time.Time{}
}

// Snapshot returns a deep copy of the session id and frames.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		SessionID: b.sessionID,
		Frames:    copyFrames(b.frames),
	}
}

func (b *Buffer) Active() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessionID != ""
}

// NewSessionID builds session_<unix ms>_<9 hex chars>. Unique enough for one
// process lifetime; not a security token.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix[:9])
}
