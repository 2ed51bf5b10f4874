package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-glide/pkg/audioio"
	"github.com/teslashibe/go-glide/pkg/feedback"
)

// defaultRetryDelay is the pause before the single synthesis retry.
const defaultRetryDelay = 250 * time.Millisecond

// reconnecter is satisfied by synthesizers that hold a connection worth
// re-establishing before a retry (the websocket backend).
type reconnecter interface {
	Connect(ctx context.Context) error
}

// Utterance is one in-flight spoken alert. Playback runs in its own
// goroutine; Cancel stops it mid-word by cancelling the playback context
// and clearing the sink's buffered audio.
type Utterance struct {
	id     string
	text   string
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	err       error
	completed bool
}

// ID identifies the utterance.
func (u *Utterance) ID() string { return u.id }

// Text returns the text being spoken.
func (u *Utterance) Text() string { return u.text }

// Cancel stops playback immediately. Safe to call more than once.
func (u *Utterance) Cancel() { u.cancel() }

// Done is closed when playback finishes, fails, or is cancelled.
func (u *Utterance) Done() <-chan struct{} { return u.done }

// Err reports how the utterance ended: nil for completed,
// context.Canceled for cancelled, anything else for failure.
func (u *Utterance) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Completed reports whether playback ran to the end.
func (u *Utterance) Completed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.completed
}

// finish records the outcome and releases Done waiters. Called exactly
// once, from the playback goroutine.
func (u *Utterance) finish(err error) {
	u.mu.Lock()
	u.err = err
	u.completed = err == nil
	u.mu.Unlock()
	close(u.done)
}

// Output speaks text through an audio sink as cancellable utterances.
// The sink must be started before the first Speak. Output does not own
// the synthesizer or the sink; the caller closes both.
type Output struct {
	synth  Synthesizer
	sink   audioio.Sink
	logger *slog.Logger

	retryDelay time.Duration

	// playMu serializes access to the shared sink. The arbiter only keeps
	// one utterance in flight, but a cancelled utterance may still be
	// draining when the next one starts.
	playMu sync.Mutex
}

// OutputOption configures an Output.
type OutputOption func(*Output)

// WithOutputLogger sets the structured logger.
func WithOutputLogger(logger *slog.Logger) OutputOption {
	return func(o *Output) {
		o.logger = logger.With("component", "speech.output")
	}
}

// WithRetryDelay sets the pause before the single synthesis retry.
func WithRetryDelay(d time.Duration) OutputOption {
	return func(o *Output) {
		o.retryDelay = d
	}
}

// NewOutput creates a speech output playing through the given sink.
func NewOutput(synth Synthesizer, sink audioio.Sink, opts ...OutputOption) *Output {
	o := &Output{
		synth:      synth,
		sink:       sink,
		logger:     slog.Default().With("component", "speech.output"),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Speak starts speaking text and returns a handle for the in-flight
// utterance. Synthesis and playback run in a background goroutine; errors
// surface on the handle, not here.
func (o *Output) Speak(ctx context.Context, text string) (feedback.Utterance, error) {
	if text == "" {
		return nil, ErrNoText
	}

	uctx, cancel := context.WithCancel(ctx)
	u := &Utterance{
		id:     uuid.NewString(),
		text:   text,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go o.run(uctx, u)
	return u, nil
}

// run synthesizes and plays one utterance, then records its outcome.
func (o *Output) run(ctx context.Context, u *Utterance) {
	defer u.cancel()
	start := time.Now()

	err := o.speak(ctx, u.text)
	if err != nil && ctx.Err() != nil {
		// Cancelled mid-synthesis or mid-playback.
		err = ctx.Err()
	}
	u.finish(err)

	if err == nil {
		o.logger.Debug("utterance complete",
			"id", u.id,
			"chars", len(u.text),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// speak synthesizes the text (with one retry) and plays the result.
func (o *Output) speak(ctx context.Context, text string) error {
	result, err := o.synthesize(ctx, text)
	if err != nil {
		return err
	}
	return o.play(ctx, result)
}

// synthesize converts text to audio, retrying once on failure. If the
// backend holds a connection, it is re-dialed before the retry, matching
// the engine-reinit recovery the aid needs in the field.
func (o *Output) synthesize(ctx context.Context, text string) (*AudioResult, error) {
	result, err := o.synth.Synthesize(ctx, text)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	o.logger.Warn("synthesis failed, retrying once", "error", err)

	if r, ok := o.synth.(reconnecter); ok {
		if cerr := r.Connect(ctx); cerr != nil {
			o.logger.Warn("backend reconnect failed", "error", cerr)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(o.retryDelay):
	}

	return o.synth.Synthesize(ctx, text)
}

// play writes the audio to the sink in buffer-sized chunks, resampling to
// the sink's rate when needed. Cancellation between chunks clears the
// sink so the speaker goes quiet immediately instead of draining.
func (o *Output) play(ctx context.Context, result *AudioResult) error {
	o.playMu.Lock()
	defer o.playMu.Unlock()

	cfg := o.sink.Config()
	samples := audioio.BytesToSamples(result.Audio)
	if result.Format.SampleRate != cfg.SampleRate {
		samples = audioio.Resample(samples, result.Format.SampleRate, cfg.SampleRate)
	}

	chunkSize := cfg.BufferSize() * cfg.Channels
	if chunkSize <= 0 {
		chunkSize = len(samples)
	}

	for off := 0; off < len(samples); off += chunkSize {
		if ctx.Err() != nil {
			o.sink.Clear()
			return ctx.Err()
		}

		end := off + chunkSize
		if end > len(samples) {
			end = len(samples)
		}

		chunk := audioio.AudioChunk{
			Samples:    samples[off:end],
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		}
		if err := o.sink.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				o.sink.Clear()
				return ctx.Err()
			}
			return WrapError("output", err)
		}
	}

	if err := o.sink.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			o.sink.Clear()
			return ctx.Err()
		}
		return WrapError("output", err)
	}

	return nil
}

// Verify Output satisfies the arbiter's speaker contract at compile time.
var _ feedback.Speaker = (*Output)(nil)
