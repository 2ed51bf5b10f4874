package guidance

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/situation"
)

func TestDescribe(t *testing.T) {
	dets := []detect.Detection{
		{Label: "person", Confidence: 0.87, Distance: 0.8, Position: detect.PositionCenter},
		{Label: "chair", Confidence: 0.52, Distance: 2.4, Position: detect.PositionLeft},
	}

	got := Describe(dets)
	want := "A person is close away in the center position with 87% confidence " +
		"A chair is moderate away in the left position with 52% confidence"
	if got != want {
		t.Errorf("Describe mismatch:\n got: %s\nwant: %s", got, want)
	}

	if Describe(nil) != "" {
		t.Errorf("Expected empty description for no detections, got %q", Describe(nil))
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name     string
		dets     []detect.Detection
		text     string
		wantSafe bool
	}{
		{
			name:     "far obstacle, benign advice",
			dets:     []detect.Detection{{Label: "chair", Distance: 3.5}},
			text:     "The path ahead is open, proceed forward.",
			wantSafe: true,
		},
		{
			name:     "close obstacle overrides benign advice",
			dets:     []detect.Detection{{Label: "person", Distance: 0.7}},
			text:     "You may continue.",
			wantSafe: false,
		},
		{
			name:     "warning word overrides distance",
			dets:     []detect.Detection{{Label: "person", Distance: 3.0}},
			text:     "Stop. A person is crossing ahead.",
			wantSafe: false,
		},
		{
			name:     "warning word is case-insensitive",
			dets:     []detect.Detection{{Label: "dog", Distance: 4.0}},
			text:     "Please HALT until the dog passes.",
			wantSafe: false,
		},
		{
			name:     "unknown distance does not trip the near band",
			dets:     []detect.Detection{{Label: "tv", Distance: 0}},
			text:     "Clear to proceed.",
			wantSafe: true,
		},
		{
			name:     "boundary distance is not near",
			dets:     []detect.Detection{{Label: "bench", Distance: 1.0}},
			text:     "Proceed slowly.",
			wantSafe: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			safe, priority := assess(tt.dets, tt.text, 1.0)
			if safe != tt.wantSafe {
				t.Errorf("Expected safe=%v, got %v", tt.wantSafe, safe)
			}
			wantPriority := situation.UrgencyLow
			if !tt.wantSafe {
				wantPriority = situation.UrgencyHigh
			}
			if priority != wantPriority {
				t.Errorf("Expected priority %s, got %s", wantPriority, priority)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "gpt-3.5-turbo" {
		t.Errorf("Expected gpt-3.5-turbo, got %s", cfg.Model)
	}
	if cfg.MaxTokens != 150 {
		t.Errorf("Expected 150 max tokens, got %d", cfg.MaxTokens)
	}
	if cfg.NearDistance != 1.0 {
		t.Errorf("Expected 1.0 near distance, got %v", cfg.NearDistance)
	}
	if cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Unexpected base URL: %s", cfg.BaseURL)
	}

	if _, err := NewClient(WithModel("")); err == nil {
		t.Error("Expected error for empty model")
	}
	if _, err := NewClient(WithMaxTokens(0)); err == nil {
		t.Error("Expected error for zero max tokens")
	}
	if _, err := NewClient(WithNearDistance(-1)); err == nil {
		t.Error("Expected error for negative near distance")
	}
}

func TestMockAdvisor(t *testing.T) {
	ctx := context.Background()
	mock := NewMock()

	g, err := mock.Advise(ctx, nil)
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if !g.SafeToProceed || g.Text != ClearPathMessage {
		t.Errorf("Expected clear path verdict, got %+v", g)
	}

	g, err = mock.Advise(ctx, []detect.Detection{{Label: "person", Distance: 0.4}})
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if g.SafeToProceed {
		t.Error("Expected unsafe verdict for close obstacle")
	}
	if g.Priority != situation.UrgencyHigh {
		t.Errorf("Expected high priority, got %s", g.Priority)
	}

	if mock.CallCount() != 2 {
		t.Errorf("Expected 2 calls, got %d", mock.CallCount())
	}
	calls := mock.Calls()
	if len(calls[1].Detections) != 1 || calls[1].Detections[0].Label != "person" {
		t.Errorf("Unexpected recorded detections: %+v", calls[1].Detections)
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Error("Expected 0 calls after reset")
	}
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("backend down")
	mock := WithError(testErr)

	if _, err := mock.Advise(context.Background(), nil); !errors.Is(err, testErr) {
		t.Errorf("Expected test error, got: %v", err)
	}
	if err := mock.Health(context.Background()); !errors.Is(err, testErr) {
		t.Errorf("Expected test error from Health, got: %v", err)
	}
}

func TestMockWithAdvice(t *testing.T) {
	fixed := &Guidance{
		SafeToProceed: false,
		Text:          "Stop. Obstacle directly ahead.",
		Priority:      situation.UrgencyHigh,
		Source:        SourceModel,
	}
	mock := WithAdvice(fixed)

	g, err := mock.Advise(context.Background(), nil)
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if g != fixed {
		t.Error("Expected the fixed verdict back")
	}
}
