// Command speak-test exercises the speech chain end to end.
//
// It synthesizes alert sentences through the configured provider and
// reports per-utterance latency. With -preempt it demonstrates the
// arbiter cutting off a routine alert for an urgent one.
//
// Usage:
//
//	go run ./cmd/speak-test/                               # platform voice
//	OPENAI_API_KEY=sk-... go run ./cmd/speak-test/ -provider openai
//	ELEVENLABS_API_KEY=... go run ./cmd/speak-test/ -provider elevenlabs
//
// Flags:
//
//	-provider   platform, openai, elevenlabs, elevenlabs-streaming
//	-voice      Voice ID for the cloud provider
//	-text       Sentence to speak
//	-preempt    Urgent alert pre-empting a routine one
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	applog "github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/audioio"
	"github.com/teslashibe/go-glide/pkg/feedback"
	"github.com/teslashibe/go-glide/pkg/situation"
	"github.com/teslashibe/go-glide/pkg/speech"
)

var (
	provider = flag.String("provider", "platform", "Speech provider: platform, openai, elevenlabs, elevenlabs-streaming")
	voice    = flag.String("voice", "", "Voice ID for the cloud provider")
	text     = flag.String("text", "person close ahead", "Sentence to speak")
	preempt  = flag.Bool("preempt", false, "Urgent alert pre-empting a routine one")
)

func main() {
	flag.Parse()
	applog.Init("info")

	fmt.Println("🗣  Glide Speak Test")
	fmt.Println("===================")
	fmt.Printf("Provider: %s\n\n", *provider)

	synth, err := buildSynthesizer()
	if err != nil {
		fmt.Printf("❌ Synthesizer: %v\n", err)
		os.Exit(1)
	}
	defer synth.Close()

	sink, err := audioio.NewSink(audioio.PlaybackConfig(), applog.With("component", "audioio"))
	if err != nil {
		fmt.Printf("❌ Playback: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	output := speech.NewOutput(synth, sink)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sink.Start(ctx); err != nil {
		fmt.Printf("❌ Playback start: %v\n", err)
		os.Exit(1)
	}

	if *preempt {
		if err := runPreempt(ctx, output); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := speakOnce(ctx, output, *text); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

func buildSynthesizer() (speech.Synthesizer, error) {
	switch *provider {
	case "platform":
		return speech.NewPlatform()
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable required")
		}
		opts := []speech.Option{speech.WithAPIKey(key)}
		if *voice != "" {
			opts = append(opts, speech.WithVoice(*voice))
		}
		return speech.NewOpenAI(opts...)
	case "elevenlabs", "elevenlabs-streaming":
		key := os.Getenv("ELEVENLABS_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ELEVENLABS_API_KEY environment variable required")
		}
		opts := []speech.Option{speech.WithAPIKey(key)}
		if *voice != "" {
			opts = append(opts, speech.WithVoice(speech.ResolveElevenLabsVoice(*voice)))
		}
		if *provider == "elevenlabs-streaming" {
			return speech.NewElevenLabsWS(opts...)
		}
		return speech.NewElevenLabs(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", *provider)
	}
}

// speakOnce times a single utterance from submission to silence.
func speakOnce(ctx context.Context, output *speech.Output, sentence string) error {
	fmt.Printf("▶  %q\n", sentence)

	start := time.Now()
	utt, err := output.Speak(ctx, sentence)
	if err != nil {
		return err
	}

	<-utt.Done()
	if err := utt.Err(); err != nil {
		return err
	}

	fmt.Printf("⏱  %v total\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// runPreempt submits a routine alert, then an urgent one mid-sentence,
// and prints the arbiter's event trail.
func runPreempt(ctx context.Context, output *speech.Output) error {
	arb := feedback.NewArbiter(output)
	start := time.Now()
	arb.OnEvent = func(ev feedback.Event) {
		fmt.Printf("  [%6s] %-10s %q\n", time.Since(start).Round(time.Millisecond), ev.Type, ev.Message)
	}

	fmt.Println("▶  Routine alert, then an urgent one after 400ms:")

	low := &situation.Decision{Message: "chair at a moderate distance on your left", Urgency: situation.UrgencyLow}
	if err := arb.Submit(ctx, low); err != nil {
		return err
	}

	time.Sleep(400 * time.Millisecond)

	high := &situation.Decision{Message: "person very close ahead", Urgency: situation.UrgencyHigh}
	if err := arb.Submit(ctx, high); err != nil {
		return err
	}

	// Let the urgent utterance finish before tearing down.
	deadline := time.After(20 * time.Second)
	for arb.State() != feedback.StateIdle {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("arbiter never returned to idle")
		case <-time.After(50 * time.Millisecond):
		}
	}

	stats := arb.Stats()
	fmt.Printf("\n📊 spoken=%d preempted=%d dropped=%d\n", stats.Spoken, stats.Preemptions, stats.Dropped)
	return nil
}
