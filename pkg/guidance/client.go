package guidance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-glide/internal/httpc"
	"github.com/teslashibe/go-glide/pkg/detect"
	"github.com/teslashibe/go-glide/pkg/situation"
)

// systemPrompt frames every request. The model only ever sees scene
// summaries from Describe, so the prompt keeps it short and directive.
const systemPrompt = "You are a navigation assistant for a wheelchair user. " +
	"Analyze the detected objects and their positions to provide clear, concise guidance. " +
	"Focus on safety and obstacle avoidance. Keep responses brief and actionable. " +
	"If the path is clear or objects are far away, indicate it's safe to proceed."

// Client is an HTTP-based advisor. Works with any OpenAI-compatible API
// (OpenAI, Ollama, vLLM, Together, Groq, etc.).
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new guidance client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "guidance"),
	}, nil
}

// Advise asks the model for navigation advice about the detections and
// assesses the result for safety.
func (c *Client) Advise(ctx context.Context, dets []detect.Detection) (*Guidance, error) {
	if len(dets) == 0 {
		return &Guidance{
			SafeToProceed: true,
			Text:          ClearPathMessage,
			Priority:      situation.UrgencyLow,
			Source:        SourceHeuristic,
		}, nil
	}

	start := time.Now()
	scene := Describe(dets)

	payload := map[string]interface{}{
		"model": c.config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "Based on these detected objects: " + scene + ", provide navigation guidance."},
		},
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
	}

	resp, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("guidance: decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	text := strings.TrimSpace(result.Choices[0].Message.Content)
	safe, priority := assess(dets, text, c.config.NearDistance)

	c.logger.Debug("advice ready",
		"safe", safe,
		"priority", priority,
		"tokens", result.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &Guidance{
		SafeToProceed: safe,
		Text:          text,
		Priority:      priority,
		Source:        SourceModel,
	}, nil
}

// Health checks API connectivity.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/models")
	if err != nil {
		return fmt.Errorf("guidance: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// post makes a POST request with retries.
func (c *Client) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("guidance: marshal payload: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("guidance: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.doWithRetry(ctx, req, body)
}

// get makes a GET request.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("guidance: create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.http.Do(req)
}

// doWithRetry performs the request, retrying rate limits and server errors.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			// Reset body for retry
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("guidance: request: %w", err)
			c.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			lastErr = c.parseError(resp)
			resp.Body.Close()
			c.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	// Try to parse OpenAI-style error
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
	}
}

// API response types
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Verify Client implements Advisor at compile time.
var _ Advisor = (*Client)(nil)
