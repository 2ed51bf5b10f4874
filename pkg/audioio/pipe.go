package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// pipeSource captures audio from a recorder subprocess that writes raw
// PCM16 to stdout. A reader goroutine slices the stream into
// BufferDuration chunks. The platform files supply the recorder
// command line.
type pipeSource struct {
	cfg     Config
	backend string
	newCmd  func() *exec.Cmd
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	stopCh   chan struct{}
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPipeSource(cfg Config, backend string, newCmd func() *exec.Cmd, logger *slog.Logger) *pipeSource {
	return &pipeSource{
		cfg:      cfg,
		backend:  backend,
		newCmd:   newCmd,
		logger:   logger,
		streamCh: make(chan AudioChunk, 10),
	}
}

// Start launches the recorder and the chunking goroutine.
func (s *pipeSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	cmd := s.newCmd()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audioio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioio: start %s: %w", cmd.Path, err)
	}

	s.cmd = cmd
	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan AudioChunk, 10)

	go s.readLoop(stdout, s.streamCh)
	go func(stop <-chan struct{}) {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stop:
		}
	}(s.stopCh)

	s.logger.Info("audio capture started",
		"backend", s.backend,
		"command", cmd.Path,
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)
	return nil
}

// readLoop turns the raw byte stream into fixed-size chunks until the
// recorder exits. It owns closing the output channel.
func (s *pipeSource) readLoop(r io.Reader, out chan<- AudioChunk) {
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if running {
				s.logger.Warn("capture stream ended", "error", err)
				s.Stop()
			}
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)

		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			s.overruns.Add(1)
			s.logger.Debug("capture backlog, dropping chunk")
		}
	}
}

// Stop kills the recorder. The reader goroutine sees EOF and closes the
// stream channel.
func (s *pipeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *pipeSource) stopLocked() error {
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)

	if s.cmd != nil {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		cmd := s.cmd
		go cmd.Wait()
		s.cmd = nil
	}

	s.logger.Info("audio capture stopped", "backend", s.backend)
	return nil
}

// Read returns the next chunk, or io.EOF once the source is stopped.
func (s *pipeSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the chunk channel for the current capture session.
func (s *pipeSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *pipeSource) Config() Config {
	return s.cfg
}

// Name returns the backend name.
func (s *pipeSource) Name() string {
	return s.backend
}

// Close stops capture permanently.
func (s *pipeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stopLocked()
}

// Stats returns source statistics.
func (s *pipeSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     s.backend,
	}
}

var _ SourceWithStats = (*pipeSource)(nil)

// pipeSink plays audio through a player subprocess that reads raw PCM16
// from stdin. The pipeline starts lazily on the first Write; Flush
// closes stdin and waits for the player to drain and exit; Clear kills
// the player, discarding whatever it had buffered.
type pipeSink struct {
	cfg     Config
	backend string
	newCmd  func() *exec.Cmd
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

func newPipeSink(cfg Config, backend string, newCmd func() *exec.Cmd, logger *slog.Logger) *pipeSink {
	return &pipeSink{
		cfg:     cfg,
		backend: backend,
		newCmd:  newCmd,
		logger:  logger,
	}
}

// Start marks the sink ready for writes. The player process itself
// spawns on the first Write.
func (s *pipeSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.started = true
	return nil
}

// Stop kills any running player and rejects further writes.
func (s *pipeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.killLocked()
	return nil
}

// Write sends one chunk to the player. Chunks at a different sample
// rate are resampled to the sink rate first.
func (s *pipeSink) Write(ctx context.Context, chunk AudioChunk) error {
	if len(chunk.Samples) == 0 {
		return nil
	}
	if chunk.Channels != 0 && chunk.Channels != s.cfg.Channels {
		return fmt.Errorf("audioio: chunk has %d channels, sink expects %d", chunk.Channels, s.cfg.Channels)
	}
	samples := chunk.Samples
	if chunk.SampleRate != 0 && chunk.SampleRate != s.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, s.cfg.SampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if !s.started {
		return fmt.Errorf("sink not running")
	}
	if s.cmd == nil {
		if err := s.spawnLocked(); err != nil {
			return err
		}
	}

	if _, err := s.stdin.Write(SamplesToBytes(samples)); err != nil {
		s.killLocked()
		return fmt.Errorf("audioio: write to player: %w", err)
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

func (s *pipeSink) spawnLocked() error {
	cmd := s.newCmd()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("audioio: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioio: start %s: %w", cmd.Path, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.logger.Debug("playback pipeline started", "backend", s.backend, "command", cmd.Path)
	return nil
}

// Flush closes the player's stdin and waits for it to drain and exit.
// The next Write starts a fresh pipeline. Cancelling ctx kills the
// player instead of waiting.
func (s *pipeSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("audioio: player exit: %w", err)
		}
		return nil
	case <-time.After(30 * time.Second):
		cmd.Process.Kill()
		<-done
		return fmt.Errorf("audioio: player drain timeout")
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

// Clear kills the player immediately, discarding buffered audio.
func (s *pipeSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		s.logger.Debug("playback cleared", "backend", s.backend)
	}
	s.killLocked()
	return nil
}

func (s *pipeSink) killLocked() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		cmd := s.cmd
		go cmd.Wait()
		s.cmd = nil
	}
}

// Config returns the audio configuration.
func (s *pipeSink) Config() Config {
	return s.cfg
}

// Name returns the backend name.
func (s *pipeSink) Name() string {
	return s.backend
}

// Close stops playback permanently.
func (s *pipeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.started = false
	s.killLocked()
	return nil
}

// Stats returns sink statistics.
func (s *pipeSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.started
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Underruns:      s.underruns.Load(),
		Running:        running,
		Backend:        s.backend,
	}
}

var _ SinkWithStats = (*pipeSink)(nil)
