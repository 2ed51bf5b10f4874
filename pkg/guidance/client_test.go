package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/situation"
)

func chatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":    "chatcmpl-1",
		"model": "gpt-3.5-turbo",
		"choices": []map[string]interface{}{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
	}
}

func newChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(content))
	}))
}

func TestClientAdvise(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}

		var reqBody struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}

		if reqBody.Model != "gpt-3.5-turbo" {
			t.Errorf("Expected gpt-3.5-turbo, got %s", reqBody.Model)
		}
		if reqBody.MaxTokens != 150 {
			t.Errorf("Expected 150 max tokens, got %d", reqBody.MaxTokens)
		}
		if len(reqBody.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(reqBody.Messages))
		}
		if reqBody.Messages[0].Role != "system" {
			t.Errorf("Expected system message first, got %s", reqBody.Messages[0].Role)
		}
		if !strings.Contains(reqBody.Messages[0].Content, "wheelchair") {
			t.Error("Expected wheelchair context in system prompt")
		}
		wantUser := "Based on these detected objects: " +
			"A person is moderate away in the center position with 91% confidence" +
			", provide navigation guidance."
		if reqBody.Messages[1].Content != wantUser {
			t.Errorf("User message mismatch:\n got: %s\nwant: %s", reqBody.Messages[1].Content, wantUser)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("The path ahead is open, proceed forward."))
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	g, err := client.Advise(context.Background(), []detect.Detection{
		{Label: "person", Confidence: 0.91, Distance: 2.5, Position: detect.PositionCenter},
	})
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}

	if !g.SafeToProceed {
		t.Error("Expected safe verdict for distant obstacle and benign advice")
	}
	if g.Text != "The path ahead is open, proceed forward." {
		t.Errorf("Unexpected advice: %s", g.Text)
	}
	if g.Priority != situation.UrgencyLow {
		t.Errorf("Expected low priority, got %s", g.Priority)
	}
	if g.Source != SourceModel {
		t.Errorf("Expected model source, got %s", g.Source)
	}
}

func TestClientAdviseUnsafe(t *testing.T) {
	tests := []struct {
		name    string
		dets    []detect.Detection
		content string
	}{
		{
			name:    "warning in advice despite distant obstacle",
			dets:    []detect.Detection{{Label: "dog", Confidence: 0.8, Distance: 3.0, Position: detect.PositionLeft}},
			content: "Caution. A dog is moving across your path, wait for it to pass.",
		},
		{
			name:    "close obstacle despite benign advice",
			dets:    []detect.Detection{{Label: "person", Confidence: 0.9, Distance: 0.4, Position: detect.PositionCenter}},
			content: "You can continue forward.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newChatServer(t, tt.content)
			defer server.Close()

			client, err := NewClient(WithBaseURL(server.URL))
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}
			defer client.Close()

			g, err := client.Advise(context.Background(), tt.dets)
			if err != nil {
				t.Fatalf("Advise failed: %v", err)
			}
			if g.SafeToProceed {
				t.Error("Expected unsafe verdict")
			}
			if g.Priority != situation.UrgencyHigh {
				t.Errorf("Expected high priority, got %s", g.Priority)
			}
			if g.Text != tt.content {
				t.Errorf("Unexpected advice: %s", g.Text)
			}
		})
	}
}

func TestClientClearPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Unexpected request for an empty scene")
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	for _, dets := range [][]detect.Detection{nil, {}} {
		g, err := client.Advise(context.Background(), dets)
		if err != nil {
			t.Fatalf("Advise failed: %v", err)
		}
		if !g.SafeToProceed {
			t.Error("Expected safe verdict for empty scene")
		}
		if g.Text != ClearPathMessage {
			t.Errorf("Unexpected advice: %s", g.Text)
		}
		if g.Source != SourceHeuristic {
			t.Errorf("Expected heuristic source, got %s", g.Source)
		}
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL), WithAPIKey("bad-key"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	_, err = client.Advise(context.Background(), []detect.Detection{
		{Label: "chair", Confidence: 0.7, Distance: 2.0, Position: detect.PositionRight},
	})
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 401 || !apiErr.IsUnauthorized() {
		t.Errorf("Expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Code != "invalid_api_key" {
		t.Errorf("Expected invalid_api_key code, got %s", apiErr.Code)
	}
	if !strings.Contains(apiErr.Error(), "Incorrect API key") {
		t.Errorf("Expected API message in error, got: %v", apiErr)
	}
}

func TestClientRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("upstream exploded"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("Proceed forward, the way is open."))
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL),
		WithRetry(2, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	g, err := client.Advise(context.Background(), []detect.Detection{
		{Label: "chair", Confidence: 0.7, Distance: 3.2, Position: detect.PositionLeft},
	})
	if err != nil {
		t.Fatalf("Advise failed after retry: %v", err)
	}
	if !g.SafeToProceed {
		t.Error("Expected safe verdict")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
}

func TestClientEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	_, err = client.Advise(context.Background(), []detect.Detection{
		{Label: "person", Confidence: 0.8, Distance: 1.5, Position: detect.PositionCenter},
	})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got: %v", err)
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}
