package speech

import (
	"context"
	"fmt"
	"log/slog"
)

// Chain implements Synthesizer by trying multiple backends in order.
// The first successful backend wins; if all fail, returns an aggregate
// error. The aid ships with ElevenLabs primary and OpenAI fallback so a
// single provider outage never silences alerts.
type Chain struct {
	synths []Synthesizer
	logger *slog.Logger
}

// NewChain creates a synthesizer chain that tries backends in order.
// At least one synthesizer is required.
func NewChain(synths ...Synthesizer) (*Chain, error) {
	if len(synths) == 0 {
		return nil, ErrSynthUnavailable
	}

	return &Chain{
		synths: synths,
		logger: slog.Default().With("component", "speech.chain"),
	}, nil
}

// NewChainWithLogger creates a synthesizer chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, synths ...Synthesizer) (*Chain, error) {
	chain, err := NewChain(synths...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "speech.chain")
	return chain, nil
}

// Synthesize tries each backend until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errors []error

	for i, s := range c.synths {
		result, err := s.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback synthesizer succeeded",
					"synth_index", i,
					"chars", len(text),
				)
			}
			return result, nil
		}

		errors = append(errors, err)
		c.logger.Warn("synthesizer failed, trying next",
			"synth_index", i,
			"error", err,
		)

		// Check if context was cancelled
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errors}
}

// Stream tries each backend until one succeeds.
func (c *Chain) Stream(ctx context.Context, text string) (AudioStream, error) {
	var errors []error

	for i, s := range c.synths {
		stream, err := s.Stream(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback synthesizer stream succeeded",
					"synth_index", i,
					"chars", len(text),
				)
			}
			return stream, nil
		}

		errors = append(errors, err)
		c.logger.Warn("synthesizer stream failed, trying next",
			"synth_index", i,
			"error", err,
		)

		// Check if context was cancelled
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errors}
}

// Health checks all backends and returns error if all are unhealthy.
func (c *Chain) Health(ctx context.Context) error {
	var healthy int
	var lastErr error

	for _, s := range c.synths {
		if err := s.Health(ctx); err != nil {
			lastErr = err
		} else {
			healthy++
		}
	}

	if healthy == 0 {
		return fmt.Errorf("all %d synthesizers unhealthy: %w", len(c.synths), lastErr)
	}

	c.logger.Debug("health check complete",
		"healthy", healthy,
		"total", len(c.synths),
	)

	return nil
}

// Close closes all backends.
func (c *Chain) Close() error {
	var lastErr error
	for _, s := range c.synths {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Synthesizers returns the list of backends in the chain.
func (c *Chain) Synthesizers() []Synthesizer {
	return c.synths
}

// ChainError aggregates errors from all backends in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "speech chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("speech chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("speech chain: all %d synthesizers failed, last error: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Verify Chain implements Synthesizer at compile time.
var _ Synthesizer = (*Chain)(nil)
