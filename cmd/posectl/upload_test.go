package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/testutil/testlog"
)

func TestPacedClockStampsFramesAtFPS(t *testing.T) {
	testlog.Start(t)
	base := time.Unix(1700000000, 0)
	buf := capture.NewBuffer(capture.WithClock(pacedClock(base, 20)))
	buf.Start("s1")
	for i := 0; i < 4; i++ {
		if _, err := buf.AddFrame(capture.SyntheticResult(i)); err != nil {
			t.Fatalf("add frame: %v", err)
		}
	}
	snap := buf.Snapshot()
	for i, f := range snap.Frames {
		if want := int64(i * 50); f.TimestampMS != want {
			t.Fatalf("frame %d offset=%d want=%d", i, f.TimestampMS, want)
		}
	}
}

func TestLoadDetectorResults(t *testing.T) {
	testlog.Start(t)
	out, err := loadDetectorResults("", 5)
	if err != nil || len(out) != 5 {
		t.Fatalf("synthetic: len=%d err=%v", len(out), err)
	}
	if _, err := loadDetectorResults("", 0); err == nil {
		t.Fatalf("expected error for zero synthetic frames")
	}

	path := filepath.Join(t.TempDir(), "frames.json")
	data, _ := json.Marshal([]capture.DetectorResult{capture.SyntheticResult(0), {}})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err = loadDetectorResults(path, 0)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if len(out) != 2 || len(out[0].Pose) != capture.SyntheticPosePoints || out[1].Pose != nil {
		t.Fatalf("unexpected replay results: %d", len(out))
	}
}
