package listen

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-glide/internal/log"
)

// Stats counts listener activity.
type Stats struct {
	Windows  int `json:"windows"`
	Failures int `json:"failures"`
	Triggers int `json:"triggers"`
}

// Listener buffers a PCM16 capture stream into fixed windows, recognizes
// each window, and publishes phrase matches on Events. One recognition
// runs at a time; audio arriving mid-recognition queues in the source
// channel.
type Listener struct {
	rec     Recognizer
	matcher *Matcher
	cfg     Config
	logger  *slog.Logger
	source  <-chan []int16
	events  chan TriggerEvent

	mu    sync.Mutex
	stats Stats
}

// NewListener wires a recognizer to a capture stream. The source channel
// carries mono PCM16 chunks at the configured sample rate; closing it ends
// Run cleanly.
func NewListener(rec Recognizer, source <-chan []int16, opts ...Option) (*Listener, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == slog.Default() {
		logger = log.With("component", "listen")
	}

	return &Listener{
		rec:     rec,
		matcher: NewMatcher(cfg.StartPhrases, cfg.StopPhrases),
		cfg:     cfg,
		logger:  logger,
		source:  source,
		events:  make(chan TriggerEvent, 8),
	}, nil
}

// Events returns the trigger event channel. Events are dropped, with a
// warning, if the consumer falls behind the small buffer.
func (l *Listener) Events() <-chan TriggerEvent {
	return l.events
}

// Run consumes the capture stream until the context ends or the source
// closes. Recognition failures are logged and skipped; they never stop
// the loop or flip activation.
func (l *Listener) Run(ctx context.Context) error {
	windowSamples := int(time.Duration(l.cfg.SampleRate) * l.cfg.Window / time.Second)
	buf := make([]int16, 0, windowSamples*2)
	var quietUntil time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-l.source:
			if !ok {
				l.logger.Info("capture stream closed")
				return nil
			}
			if !quietUntil.IsZero() && time.Now().Before(quietUntil) {
				buf = buf[:0]
				continue
			}

			buf = append(buf, chunk...)
			for len(buf) >= windowSamples {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				window := buf[:windowSamples:windowSamples]
				rest := buf[windowSamples:]
				if l.processWindow(ctx, window) {
					buf = buf[:0]
					if l.cfg.Cooldown > 0 {
						quietUntil = time.Now().Add(l.cfg.Cooldown)
					}
					break
				}
				buf = append(buf[:0], rest...)
			}
		}
	}
}

// processWindow recognizes one window and reports whether it triggered.
func (l *Listener) processWindow(ctx context.Context, window []int16) bool {
	l.mu.Lock()
	l.stats.Windows++
	l.mu.Unlock()

	rctx := ctx
	if l.cfg.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, l.cfg.RecognizeTimeout)
		defer cancel()
	}

	transcript, err := l.rec.Recognize(rctx, window, l.cfg.SampleRate)
	if err != nil {
		l.mu.Lock()
		l.stats.Failures++
		l.mu.Unlock()
		l.logger.Warn("recognition failed", "error", err)
		return false
	}
	if transcript.Text == "" {
		return false
	}
	if l.cfg.MinConfidence > 0 && transcript.Confidence > 0 && transcript.Confidence < l.cfg.MinConfidence {
		l.logger.Debug("transcript below confidence floor",
			"text", transcript.Text,
			"confidence", transcript.Confidence)
		return false
	}

	hit, ok := l.matcher.Match(transcript.Text)
	if !ok {
		l.logger.Debug("no activation phrase", "heard", transcript.Text)
		return false
	}

	ev := TriggerEvent{
		Type:       hit.Type,
		Phrase:     hit.Phrase,
		Heard:      hit.Heard,
		Confidence: hit.Confidence,
		Timestamp:  time.Now(),
	}

	l.mu.Lock()
	l.stats.Triggers++
	l.mu.Unlock()
	l.logger.Info("trigger phrase heard",
		"type", ev.Type,
		"phrase", ev.Phrase,
		"heard", ev.Heard)

	select {
	case l.events <- ev:
	default:
		l.logger.Warn("trigger event dropped, consumer behind")
	}
	return true
}

// Stats returns a copy of the listener counters.
func (l *Listener) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close releases the recognizer.
func (l *Listener) Close() error {
	return l.rec.Close()
}
