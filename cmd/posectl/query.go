package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/collector"
	"github.com/danmuck/posectl/internal/config"
	"github.com/danmuck/posectl/internal/upload"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the collector health endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		health, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, health)
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <task-id>",
	Short: "Show the collector job created by an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		job, err := client.JobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, job)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <stored-session-file>",
	Short: "Summarize a session file written by the reference collector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := collector.LoadSession(args[0])
		if err != nil {
			return err
		}
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		var duration int64
		if n := len(sess.Frames); n > 0 {
			duration = sess.Frames[n-1].TimestampMS
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session:  %s\n", sess.SessionID)
		fmt.Fprintf(out, "user:     %s\n", sess.User)
		fmt.Fprintf(out, "label:    %s\n", sess.Label)
		fmt.Fprintf(out, "received: %s (%s)\n", sess.ReceivedAt.Format("2006-01-02 15:04:05"), humanize.Time(sess.ReceivedAt))
		fmt.Fprintf(out, "frames:   %d over %dms\n", len(sess.Frames), duration)
		fmt.Fprintf(out, "size:     %s\n", humanize.Bytes(uint64(info.Size())))
		return nil
	},
}

var (
	synthFrames int
	synthOut    string
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Write synthetic detector results for replay with upload --frames-file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if synthFrames <= 0 {
			return fmt.Errorf("--frames must be > 0")
		}
		results := make([]capture.DetectorResult, synthFrames)
		for i := range results {
			results[i] = capture.SyntheticResult(i)
		}
		data, err := json.Marshal(results)
		if err != nil {
			return err
		}
		if synthOut == "" || synthOut == "-" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(synthOut, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d frames (%s) to %s\n", synthFrames, humanize.Bytes(uint64(len(data))), synthOut)
		return nil
	},
}

func init() {
	synthCmd.Flags().IntVar(&synthFrames, "frames", 60, "number of frames to generate")
	synthCmd.Flags().StringVar(&synthOut, "out", "-", "output path, - for stdout")
	rootCmd.AddCommand(healthCmd, jobCmd, inspectCmd, synthCmd)
}

func newClient(cmd *cobra.Command) (*upload.Client, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return upload.NewClient(cfg.Upload)
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a client config template to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(configPath, config.KindClient, initForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote client config template to %s\n", configPath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
