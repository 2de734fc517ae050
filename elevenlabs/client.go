// Package elevenlabs talks to the ElevenLabs REST API for narration
// (text-to-speech) and background score (sound generation).
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"stone-promo/upstream"

	"github.com/rs/zerolog/log"
)

// ShowroomScorePrompt is the mood prompt used for every background score.
const ShowroomScorePrompt = "Elegant, sophisticated luxury showroom music with subtle ambient tones, gentle piano, and refined atmosphere for high-end stone and marble presentation"

// Config holds the credential and voice settings. The key is resolved at
// startup and never embedded in source.
type Config struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type soundRequest struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
	PromptInfluence float64 `json:"prompt_influence"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// Client calls ElevenLabs through an upstream.Fetcher.
type Client struct {
	cfg     Config
	fetcher upstream.Fetcher
}

// NewClient returns a client for cfg. A nil fetcher uses http.DefaultClient.
func NewClient(cfg Config, fetcher upstream.Fetcher) *Client {
	if fetcher == nil {
		fetcher = upstream.NewFetcher(nil)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, fetcher: fetcher}
}

// Narrate converts script to speech and returns MP3 bytes.
func (c *Client) Narrate(ctx context.Context, script string) ([]byte, error) {
	if strings.TrimSpace(script) == "" {
		return nil, errors.New("narration script is empty")
	}
	body := speechRequest{
		Text:    script,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.SimilarityBoost,
		},
	}
	log.Info().Int("chars", len(script)).Str("voice", c.cfg.VoiceID).Msg("Generating voice narration")
	return c.post(ctx, "/text-to-speech/"+c.cfg.VoiceID, body)
}

// Compose generates a score of the given length for prompt and returns MP3 bytes.
func (c *Client) Compose(ctx context.Context, prompt string, durationSeconds, promptInfluence float64) ([]byte, error) {
	if durationSeconds <= 0 {
		return nil, errors.New("score duration must be positive")
	}
	body := soundRequest{
		Text:            prompt,
		DurationSeconds: durationSeconds,
		PromptInfluence: promptInfluence,
	}
	log.Info().Float64("duration_seconds", durationSeconds).Msg("Generating background music")
	return c.post(ctx, "/sound-generation", body)
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, &upstream.UpstreamError{Provider: "elevenlabs", Message: "ELEVENLABS_API_KEY is not configured"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	audio, _, err := c.fetcher.Fetch(req)
	if err != nil {
		var fe *upstream.FetchError
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			if msg := detailMessage(fe.Body); msg != "" {
				return nil, &upstream.UpstreamError{Provider: "elevenlabs", Message: msg, Err: err}
			}
		}
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &upstream.UpstreamError{Provider: "elevenlabs", Message: "empty audio response"}
	}
	return audio, nil
}

// detailMessage extracts the message from an ElevenLabs error body, which is
// either {"detail": "..."} or {"detail": {"status": "...", "message": "..."}}.
func detailMessage(body string) string {
	var eb errorBody
	if err := json.Unmarshal([]byte(body), &eb); err != nil || len(eb.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(eb.Detail, &obj); err == nil {
		return obj.Message
	}
	return ""
}
