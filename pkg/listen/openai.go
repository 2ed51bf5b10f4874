package listen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/teslashibe/go-glide/internal/httpc"
	"github.com/teslashibe/go-glide/internal/log"
)

const openAITranscribeURL = "https://api.openai.com/v1/audio/transcriptions"

// OpenAIConfig configures the Whisper API recognizer.
type OpenAIConfig struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string

	// BaseURL overrides the transcription endpoint, for compatible servers.
	BaseURL string

	// Model is the transcription model (default "whisper-1").
	Model string

	// Language is an ISO-639-1 hint (default "en").
	Language string

	// Timeout bounds one transcription request.
	Timeout time.Duration

	// Logger receives recognizer diagnostics.
	Logger *slog.Logger
}

// OpenAIRecognizer transcribes audio windows with the hosted Whisper API.
// Windows are wrapped in a WAV container and posted as multipart form data.
type OpenAIRecognizer struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIRecognizer creates a Whisper API recognizer.
func NewOpenAIRecognizer(cfg OpenAIConfig) (*OpenAIRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAITranscribeURL
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.With("component", "listen.openai")
	}

	return &OpenAIRecognizer{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: httpc.NewClient(cfg.Timeout),
		logger:     cfg.Logger,
	}, nil
}

// Recognize posts one window to the transcription endpoint. Whisper reports
// no per-result confidence, so non-empty transcripts carry 1.0.
func (o *OpenAIRecognizer) Recognize(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	if len(pcm) == 0 {
		return Transcript{}, ErrNoAudio
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "window.wav")
	if err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: build form: %w", err)
	}
	if _, err := part.Write(encodeWAV(pcm, sampleRate)); err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: write audio: %w", err)
	}
	if err := writer.WriteField("model", o.model); err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: write model: %w", err)
	}
	if err := writer.WriteField("language", o.language); err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: write language: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: write format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("listen [openai]: API error %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Transcript{}, fmt.Errorf("listen [openai]: parse response: %w", err)
	}

	if result.Text == "" {
		return Transcript{}, nil
	}
	o.logger.Debug("transcript", "text", result.Text)
	return Transcript{Text: result.Text, Confidence: 1.0}, nil
}

// Close is a no-op.
func (o *OpenAIRecognizer) Close() error {
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Recognizer = (*OpenAIRecognizer)(nil)
