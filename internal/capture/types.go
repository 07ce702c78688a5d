package capture

import "encoding/json"

// Point is one detected landmark in normalized coordinate space.
type Point struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

// Landmarks holds the three point lists stored per frame. Lists are never nil
// once a frame has been accepted by a Buffer.
type Landmarks struct {
	Pose      []Point `json:"pose"`
	LeftHand  []Point `json:"left_hand"`
	RightHand []Point `json:"right_hand"`
}

// DetectorResult is the raw output of the landmark detector for one tick.
// Any list may be nil when the detector did not report that body part.
type DetectorResult struct {
	Pose      []Point `json:"pose,omitempty"`
	LeftHand  []Point `json:"left_hand,omitempty"`
	RightHand []Point `json:"right_hand,omitempty"`
}

// Frame is one capture sample. TimestampMS is the offset from session start.
type Frame struct {
	TimestampMS int64     `json:"timestamp"`
	Landmarks   Landmarks `json:"landmarks"`
}

// Snapshot is a detached copy of the session handed to the uploader.
type Snapshot struct {
	SessionID string
	Frames    []Frame
}

// Stats summarizes the active session for progress reporting.
type Stats struct {
	SessionID          string `json:"session_id"`
	FrameCount         int    `json:"frame_count"`
	DurationMS         int64  `json:"duration_ms"`
	EstimatedSizeBytes int    `json:"estimated_size_bytes"`
}

// Vis returns a visibility pointer for literal construction.
func Vis(v float64) *float64 {
	return &v
}

func normalizeLandmarks(res DetectorResult) Landmarks {
	return Landmarks{
		Pose:      copyPoints(res.Pose),
		LeftHand:  copyPoints(res.LeftHand),
		RightHand: copyPoints(res.RightHand),
	}
}

func copyPoints(in []Point) []Point {
	out := make([]Point, len(in))
	for i, p := range in {
		out[i] = p
		if p.Visibility != nil {
			out[i].Visibility = Vis(*p.Visibility)
		}
	}
	return out
}

func copyFrames(in []Frame) []Frame {
	out := make([]Frame, len(in))
	for i, f := range in {
		out[i] = Frame{
			TimestampMS: f.TimestampMS,
			Landmarks: Landmarks{
				Pose:      copyPoints(f.Landmarks.Pose),
				LeftHand:  copyPoints(f.Landmarks.LeftHand),
				RightHand: copyPoints(f.Landmarks.RightHand),
			},
		}
	}
	return out
}

func estimateSize(frames []Frame) int {
	if frames == nil {
		frames = []Frame{}
	}
	data, err := json.Marshal(frames)
	if err != nil {
		return 0
	}
	return len(data)
}
