package listen

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	speechapi "google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-glide/internal/log"
	"github.com/teslashibe/go-glide/pkg/audioio"
)

// GoogleConfig configures the Google Cloud Speech recognizer.
type GoogleConfig struct {
	// CredentialsFile is the path to a service-account JSON key.
	CredentialsFile string

	// Language is the BCP-47 recognition language (default "en-US").
	Language string

	// Hints bias recognition toward the activation phrases.
	Hints []string

	// Logger receives recognizer diagnostics.
	Logger *slog.Logger
}

// GoogleRecognizer transcribes audio windows with the Cloud Speech-to-Text
// v1 REST API, authenticated by a service account.
type GoogleRecognizer struct {
	service  *speechapi.Service
	language string
	hints    []string
	logger   *slog.Logger
}

// NewGoogleRecognizer builds the Speech service from the service-account
// key and verifies nothing over the network; the first Recognize call does.
func NewGoogleRecognizer(ctx context.Context, cfg GoogleConfig) (*GoogleRecognizer, error) {
	if cfg.CredentialsFile == "" {
		return nil, ErrNoCredentials
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.With("component", "listen.google")
	}

	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("listen: read credentials: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(key, speechapi.CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("listen: parse service account key: %w", err)
	}

	service, err := speechapi.NewService(ctx, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("listen: create speech service: %w", err)
	}

	return &GoogleRecognizer{
		service:  service,
		language: cfg.Language,
		hints:    cfg.Hints,
		logger:   cfg.Logger,
	}, nil
}

// Recognize sends one LINEAR16 window to the synchronous Recognize endpoint
// and returns the top alternative. No recognizable speech returns an empty
// transcript, not an error.
func (g *GoogleRecognizer) Recognize(ctx context.Context, pcm []int16, sampleRate int) (Transcript, error) {
	if len(pcm) == 0 {
		return Transcript{}, ErrNoAudio
	}

	req := &speechapi.RecognizeRequest{
		Config: &speechapi.RecognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: int64(sampleRate),
			LanguageCode:    g.language,
			MaxAlternatives: 1,
		},
		Audio: &speechapi.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audioio.SamplesToBytes(pcm)),
		},
	}
	if len(g.hints) > 0 {
		req.Config.SpeechContexts = []*speechapi.SpeechContext{{Phrases: g.hints}}
	}

	resp, err := g.service.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return Transcript{}, fmt.Errorf("listen [google]: recognize: %w", err)
	}

	for _, result := range resp.Results {
		for _, alt := range result.Alternatives {
			if alt.Transcript == "" {
				continue
			}
			g.logger.Debug("transcript", "text", alt.Transcript, "confidence", alt.Confidence)
			return Transcript{Text: alt.Transcript, Confidence: alt.Confidence}, nil
		}
	}
	return Transcript{}, nil
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (g *GoogleRecognizer) Close() error {
	return nil
}

var _ Recognizer = (*GoogleRecognizer)(nil)
