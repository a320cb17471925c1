package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"goodzwork-checkin/internal/camera/webcam"
	"goodzwork-checkin/internal/logging"
	"goodzwork-checkin/internal/presence"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Load the face detector and sample webcam frames",
	Long: `Load the configured detector model (downloading it into the cache if
needed) and print what the presence sampler sees on each webcam frame.
Useful for tuning FACE_MIN_SIZE and FACE_CENTER_TOLERANCE.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().Int("frames", 20, "Number of frames to sample")
	detectCmd.Flags().Duration("interval", 200*time.Millisecond, "Delay between frames")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	frames, _ := cmd.Flags().GetInt("frames")
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &agent{cfg: cfg, log: log}
	det, err := a.loadDetector(ctx)
	if err != nil {
		return err
	}
	defer det.Close()

	cam, err := webcam.Open(cfg.Camera, logging.Component(log, "camera"))
	if err != nil {
		return err
	}
	defer cam.Close()

	sampler := presence.NewSampler(det, cfg.Face, logging.Component(log, "sampler"))
	out := cmd.OutOrStdout()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; i <= frames; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := cam.Read()
		if err != nil {
			fmt.Fprintf(out, "%3d  ❌ %v\n", i, err)
			continue
		}
		boxes, err := det.Detect(frame)
		if err != nil {
			fmt.Fprintf(out, "%3d  ❌ %v\n", i, err)
			continue
		}

		verdict := "⬜ not usable"
		if sampler.Sample(frame) {
			verdict = "✅ usable"
		}
		if len(boxes) == 0 {
			fmt.Fprintf(out, "%3d  %s (no face)\n", i, verdict)
			continue
		}
		b := boxes[0]
		fmt.Fprintf(out, "%3d  %s  %d faces, best %dx%d at (%d,%d) conf %.2f\n",
			i, verdict, len(boxes), b.Width, b.Height, b.X, b.Y, b.Confidence)
	}
	return nil
}
