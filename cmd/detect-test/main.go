// Detect Test - Obstacle detector smoke test
//
// Runs the detector on a single image or a live camera loop and prints
// what it sees: label, estimated distance, screen position, and the
// sentence the aid would speak for the nearest object.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-glide/pkg/camera"
	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/situation"
)

var (
	modelPath  = flag.String("model", "models/yolov8n.onnx", "YOLO model path")
	imagePath  = flag.String("image", "", "Detect on a single JPEG instead of the camera")
	outPath    = flag.String("out", "", "Write the annotated JPEG here (single-image mode)")
	device     = flag.Int("device", 0, "Camera device index")
	confidence = flag.Float64("confidence", 0.5, "Minimum detection confidence")
	interval   = flag.Duration("interval", time.Second, "Loop interval (camera mode)")
)

func main() {
	flag.Parse()

	fmt.Println("🔍 Glide Detect Test")
	fmt.Println("====================")
	fmt.Printf("Model: %s\n\n", *modelPath)

	cfg := detect.DefaultYOLOConfig()
	cfg.ModelPath = *modelPath
	cfg.ConfidenceThresh = float32(*confidence)

	det, err := detect.NewYOLO(cfg)
	if err != nil {
		fmt.Printf("❌ Detector: %v\n", err)
		os.Exit(1)
	}
	defer det.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\n👋 Goodbye!")
		cancel()
	}()

	if *imagePath != "" {
		if err := detectImage(ctx, det, *imagePath, *outPath); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := detectLoop(ctx, det); err != nil && ctx.Err() == nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

// detectImage runs one detection pass over a JPEG file.
func detectImage(ctx context.Context, det detect.Detector, path, out string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	start := time.Now()
	dets, err := det.Detect(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("⏱  %d objects in %v\n\n", len(dets), time.Since(start).Round(time.Millisecond))

	printDetections(dets)

	if out != "" && len(dets) > 0 {
		annotated, err := detect.AnnotateJPEG(data, dets)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, annotated, 0o644); err != nil {
			return err
		}
		fmt.Printf("\n💾 Annotated image: %s\n", out)
	}
	return nil
}

// detectLoop reads camera frames and prints detections until cancelled.
func detectLoop(ctx context.Context, det detect.Detector) error {
	fmt.Print("📹 Opening camera... ")
	cfg := camera.DefaultConfig()
	cfg.Device = *device

	mgr, err := camera.NewManager(cfg)
	if err != nil {
		return err
	}
	if err := mgr.Open(); err != nil {
		return err
	}
	defer mgr.Close()
	fmt.Println("✅")

	fmt.Println("🔄 Detection loop (Ctrl+C to stop)")
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, err := mgr.Read(ctx)
			if err != nil {
				fmt.Printf("⚠️  Frame: %v\n", err)
				continue
			}
			dets, err := det.Detect(ctx, frame)
			if err != nil {
				fmt.Printf("⚠️  Detect: %v\n", err)
				continue
			}
			fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
			printDetections(dets)
		}
	}
}

func printDetections(dets []detect.Detection) {
	if len(dets) == 0 {
		fmt.Println("  (nothing detected)")
		return
	}
	for _, d := range dets {
		fmt.Printf("  %-14s %5.2fm  %-7s conf %.2f\n", d.Label, d.Distance, d.Position, d.Confidence)
	}
	if primary := detect.Nearest(dets, situation.DefaultConfig().TieEpsilon); primary != nil {
		fmt.Printf("  🗣  would say: %q\n", situation.Compose(*primary))
	}
}
