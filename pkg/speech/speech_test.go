package speech

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockSynthesizer(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "chair ahead")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Format.SampleRate != 22050 {
			t.Errorf("expected 22050 sample rate, got %d", result.Format.SampleRate)
		}
	})

	t.Run("Stream returns audio stream", func(t *testing.T) {
		stream, err := mock.Stream(ctx, "path is clear")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer stream.Close()

		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("read error: %v", err)
		}
		if len(chunk) == 0 {
			t.Error("expected audio chunk")
		}
	})

	t.Run("Health returns nil", func(t *testing.T) {
		if err := mock.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		calls := mock.Calls()
		if len(calls) != 3 {
			t.Errorf("expected 3 calls, got %d", len(calls))
		}
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := WithError(testErr)
	ctx := context.Background()

	t.Run("Synthesize returns error", func(t *testing.T) {
		_, err := mock.Synthesize(ctx, "hello")
		if err == nil {
			t.Error("expected error")
		}
		if !errors.Is(err, testErr) {
			t.Errorf("expected test error, got %v", err)
		}
	})

	t.Run("Stream returns error", func(t *testing.T) {
		_, err := mock.Stream(ctx, "hello")
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("Health returns error", func(t *testing.T) {
		err := mock.Health(ctx)
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestMockWithLatency(t *testing.T) {
	mock := NewMock()
	mock = WithLatency(mock, 50*time.Millisecond)
	ctx := context.Background()

	t.Run("Synthesize has latency", func(t *testing.T) {
		start := time.Now()
		_, err := mock.Synthesize(ctx, "hello")
		elapsed := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed < 50*time.Millisecond {
			t.Errorf("expected at least 50ms latency, got %v", elapsed)
		}
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := mock.Synthesize(ctx, "hello")
		if err == nil {
			t.Error("expected context deadline error")
		}
	})
}

func TestDefaultVoiceSettings(t *testing.T) {
	settings := DefaultVoiceSettings()

	if settings.Stability != 0.7 {
		t.Errorf("expected stability 0.7, got %f", settings.Stability)
	}
	if settings.SimilarityBoost != 0.75 {
		t.Errorf("expected similarity 0.75, got %f", settings.SimilarityBoost)
	}
	if settings.Style != 0.0 {
		t.Errorf("expected style 0.0, got %f", settings.Style)
	}
	if !settings.SpeakerBoost {
		t.Error("expected speaker boost true")
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(
		WithVoice("test-voice"),
		WithModel("test-model"),
		WithTimeout(5*time.Second),
		WithOutputFormat(EncodingMP3),
	)

	if cfg.VoiceID != "test-voice" {
		t.Errorf("expected voice test-voice, got %s", cfg.VoiceID)
	}
	if cfg.ModelID != "test-model" {
		t.Errorf("expected model test-model, got %s", cfg.ModelID)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.OutputFormat != EncodingMP3 {
		t.Errorf("expected MP3 format, got %s", cfg.OutputFormat)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("Validate requires API key", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("Validate passes with API key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.APIKey = "test-key"
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ValidateWithVoice requires voice", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.APIKey = "test-key"
		if err := cfg.ValidateWithVoice(); err != ErrNoVoiceID {
			t.Errorf("expected ErrNoVoiceID, got %v", err)
		}
	})

	t.Run("ValidateWithVoice passes with both", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.APIKey = "test-key"
		cfg.VoiceID = "test-voice"
		if err := cfg.ValidateWithVoice(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestAPIError(t *testing.T) {
	t.Run("IsRateLimited", func(t *testing.T) {
		err := &APIError{StatusCode: 429, Message: "rate limited"}
		if !err.IsRateLimited() {
			t.Error("expected IsRateLimited true")
		}
		if err.IsUnauthorized() {
			t.Error("expected IsUnauthorized false")
		}
	})

	t.Run("IsUnauthorized", func(t *testing.T) {
		err := &APIError{StatusCode: 401, Message: "unauthorized"}
		if !err.IsUnauthorized() {
			t.Error("expected IsUnauthorized true")
		}
	})

	t.Run("IsServerError", func(t *testing.T) {
		for _, code := range []int{500, 502, 503, 504} {
			err := &APIError{StatusCode: code}
			if !err.IsServerError() {
				t.Errorf("expected IsServerError true for %d", code)
			}
			if !err.IsRetryable() {
				t.Errorf("expected IsRetryable true for %d", code)
			}
		}
	})

	t.Run("Error message format", func(t *testing.T) {
		err := &APIError{
			StatusCode: 400,
			Message:    "bad request",
			Code:       "invalid_input",
			Backend:    "elevenlabs",
		}
		msg := err.Error()
		if msg != "speech [elevenlabs]: API error 400 (invalid_input): bad request" {
			t.Errorf("unexpected error message: %s", msg)
		}
	})
}

func TestSampleRateFromEncoding(t *testing.T) {
	tests := []struct {
		encoding   Encoding
		sampleRate int
	}{
		{EncodingPCM16, 16000},
		{EncodingPCM22, 22050},
		{EncodingPCM24, 24000},
		{EncodingPCM44, 44100},
		{EncodingMP3, 44100},
		{EncodingULaw, 8000},
	}

	for _, tt := range tests {
		t.Run(string(tt.encoding), func(t *testing.T) {
			rate := SampleRateFromEncoding(tt.encoding)
			if rate != tt.sampleRate {
				t.Errorf("expected %d, got %d", tt.sampleRate, rate)
			}
		})
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("NewChain requires synthesizers", func(t *testing.T) {
		_, err := NewChain()
		if err != ErrSynthUnavailable {
			t.Errorf("expected ErrSynthUnavailable, got %v", err)
		}
	})

	t.Run("First synthesizer succeeds", func(t *testing.T) {
		mock1 := NewMock()
		mock2 := NewMock()

		chain, err := NewChain(mock1, mock2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer chain.Close()

		_, err = chain.Synthesize(ctx, "hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Only first synthesizer should be called
		if mock1.CallCount("Synthesize") != 1 {
			t.Error("expected first synthesizer to be called")
		}
		if mock2.CallCount("Synthesize") != 0 {
			t.Error("expected second synthesizer not to be called")
		}
	})

	t.Run("Fallback on failure", func(t *testing.T) {
		failMock := WithError(errors.New("primary failed"))
		successMock := NewMock()

		chain, err := NewChain(failMock, successMock)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer chain.Close()

		result, err := chain.Synthesize(ctx, "hello")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil {
			t.Error("expected result from fallback synthesizer")
		}
	})

	t.Run("All synthesizers fail", func(t *testing.T) {
		fail1 := WithError(errors.New("fail 1"))
		fail2 := WithError(errors.New("fail 2"))

		chain, err := NewChain(fail1, fail2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer chain.Close()

		_, err = chain.Synthesize(ctx, "hello")
		if err == nil {
			t.Error("expected error when all synthesizers fail")
		}
	})

	t.Run("Health checks all synthesizers", func(t *testing.T) {
		mock1 := NewMock()
		mock2 := NewMock()

		chain, err := NewChain(mock1, mock2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err = chain.Health(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestBackendError(t *testing.T) {
	inner := errors.New("connection failed")
	err := WrapError("elevenlabs", inner)

	if err == nil {
		t.Fatal("expected error")
	}

	if err.Error() != "speech [elevenlabs]: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	// Unwrap should return inner error
	var be *BackendError
	if !errors.As(err, &be) {
		t.Error("expected BackendError")
	}
	if be.Backend != "elevenlabs" {
		t.Errorf("expected backend elevenlabs, got %s", be.Backend)
	}
}

func TestResolveElevenLabsVoice(t *testing.T) {
	t.Run("Preset name resolves to ID", func(t *testing.T) {
		id := ResolveElevenLabsVoice("rachel")
		if id != "21m00Tcm4TlvDq8ikWAM" {
			t.Errorf("unexpected voice ID: %s", id)
		}
	})

	t.Run("Raw ID passes through", func(t *testing.T) {
		raw := "some-raw-voice-id"
		if got := ResolveElevenLabsVoice(raw); got != raw {
			t.Errorf("expected pass-through, got %s", got)
		}
	})

	t.Run("IsElevenLabsPreset", func(t *testing.T) {
		if !IsElevenLabsPreset(DefaultElevenLabsVoice) {
			t.Error("expected default voice to be a preset")
		}
		if IsElevenLabsPreset("not-a-preset") {
			t.Error("expected unknown name to not be a preset")
		}
	})
}
