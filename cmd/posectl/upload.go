package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/recorder"
	"github.com/danmuck/posectl/internal/upload"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	uploadUser        string
	uploadLabel       string
	uploadSessionID   string
	uploadFramesFile  string
	uploadSynthetic   int
	uploadFPS         int
	uploadMaxAttempts int
	uploadSkipHealth  bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Buffer a session and upload it to the collector",
	Long: `Buffer a capture session and upload it.

Frames come from --frames-file (a JSON array of detector results, one per
tick) or are generated with --synthetic. Frames are stamped at --fps.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadUser, "user", "", "user recorded with the session (overrides config)")
	uploadCmd.Flags().StringVar(&uploadLabel, "label", "", "gesture label (overrides config)")
	uploadCmd.Flags().StringVar(&uploadSessionID, "session-id", "", "session id (generated when empty)")
	uploadCmd.Flags().StringVar(&uploadFramesFile, "frames-file", "", "JSON file of detector results to replay")
	uploadCmd.Flags().IntVar(&uploadSynthetic, "synthetic", 60, "number of synthetic frames when no frames file is given")
	uploadCmd.Flags().IntVar(&uploadFPS, "fps", 30, "capture rate used to stamp frame offsets")
	uploadCmd.Flags().IntVar(&uploadMaxAttempts, "max-attempts", 0, "upload attempts (overrides config)")
	uploadCmd.Flags().BoolVar(&uploadSkipHealth, "skip-health", false, "skip the collector health probe")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if uploadMaxAttempts > 0 {
		cfg.Upload.MaxAttempts = uploadMaxAttempts
	}
	meta := upload.Metadata{User: pick(uploadUser, cfg.User), Label: pick(uploadLabel, cfg.Label)}
	if meta.User == "" || meta.Label == "" {
		return fmt.Errorf("user and label are required (flags or config)")
	}

	results, err := loadDetectorResults(uploadFramesFile, uploadSynthetic)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := upload.NewClient(cfg.Upload)
	if err != nil {
		return err
	}
	resolved := client.Config()
	log.Info().
		Str("endpoint", resolved.BaseURL+resolved.IngestPath).
		Int("max_attempts", resolved.MaxAttempts).
		Dur("attempt_timeout", resolved.AttemptTimeout).
		Dur("backoff_base", resolved.Backoff.BaseDelay).
		Float64("backoff_multiplier", resolved.Backoff.Multiplier).
		Bool("backoff_disabled", resolved.Backoff.Disabled).
		Msg("upload client configured")
	if !uploadSkipHealth {
		health, err := client.Health(ctx)
		if err != nil {
			return fmt.Errorf("collector health: %w", err)
		}
		log.Info().Str("service", health.Service).Str("version", health.Version).Msg("collector healthy")
	}

	buf := capture.NewBuffer(capture.WithClock(pacedClock(time.Now(), uploadFPS)))
	rec := recorder.New(buf, client, recorder.WithObserver(func(st recorder.State) {
		if st.Uploading {
			fmt.Fprintf(cmd.ErrOrStderr(), "upload progress: %d%%\n", st.Progress)
		}
	}))

	id := rec.StartCapture(uploadSessionID)
	for _, res := range results {
		if err := rec.AddFrame(res); err != nil {
			return err
		}
	}
	rec.StopCapture()

	st := rec.State().Stats
	fmt.Fprintf(cmd.ErrOrStderr(), "session %s: %d frames, %dms, ~%s\n",
		id, st.FrameCount, st.DurationMS, humanize.Bytes(uint64(st.EstimatedSizeBytes)))

	res, err := rec.Upload(ctx, meta)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

// pacedClock returns a clock that starts at base and advances one frame
// interval per captured frame.
func pacedClock(base time.Time, fps int) func() time.Time {
	if fps <= 0 {
		fps = 30
	}
	interval := time.Second / time.Duration(fps)
	calls := 0
	return func() time.Time {
		n := calls - 1
		calls++
		if n < 0 {
			n = 0
		}
		return base.Add(time.Duration(n) * interval)
	}
}

func loadDetectorResults(path string, synthetic int) ([]capture.DetectorResult, error) {
	if path == "" {
		if synthetic <= 0 {
			return nil, fmt.Errorf("nothing to upload: --synthetic must be > 0 without --frames-file")
		}
		out := make([]capture.DetectorResult, synthetic)
		for i := range out {
			out[i] = capture.SyntheticResult(i)
		}
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frames file: %w", err)
	}
	var out []capture.DetectorResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode frames file %s: %w", path, err)
	}
	return out, nil
}

func pick(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
