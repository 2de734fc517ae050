// Package clipgen drives long-running image-to-video generation jobs:
// submit, poll on a fixed interval up to an attempt ceiling, download.
package clipgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stone-promo/models"
	"stone-promo/upstream"

	"github.com/rs/zerolog/log"
)

const (
	DefaultAspectRatio = "16:9"
	DefaultResolution  = "720p"
)

// ErrNoAPIKey is returned when a job is requested without a credential.
var ErrNoAPIKey = errors.New("Google AI API key is required")

// ErrNoPrompt is returned when a job is requested without a prompt.
var ErrNoPrompt = errors.New("video prompt is required")

// State is a step of the job lifecycle.
type State int

const (
	StateSubmitted State = iota
	StatePending
	StateDone
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TimeoutError reports that the attempt ceiling was reached before the job
// finished.
type TimeoutError struct {
	Attempts int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("video generation timed out after %s (%d attempts)", time.Duration(e.Attempts)*e.Interval, e.Attempts)
}

// Request is one generation job.
type Request struct {
	Prompt        string
	Image         []byte
	ImageMIMEType string
	AspectRatio   string
	Resolution    string
}

// Status is what one poll of a job reports.
type Status struct {
	Done       bool
	Error      string // terminal job error, if any
	VideoURI   string
	VideoBytes []byte
}

// Backend is the remote video service.
type Backend interface {
	Submit(ctx context.Context, req Request) (string, error)
	Poll(ctx context.Context, operation string) (Status, error)
	Download(ctx context.Context, status Status) ([]byte, error)
}

// BackendFactory builds a backend bound to the caller's credential.
type BackendFactory func(ctx context.Context, apiKey string) (Backend, error)

// Clock abstracts the wait between polls.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Generator runs jobs against backends made by its factory.
type Generator struct {
	factory     BackendFactory
	fetcher     upstream.Fetcher
	clock       Clock
	interval    time.Duration
	maxAttempts int
}

// Option customizes a Generator.
type Option func(*Generator)

// WithClock replaces the wall clock used between polls.
func WithClock(c Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithFetcher replaces the fetcher used to download the product image.
func WithFetcher(f upstream.Fetcher) Option {
	return func(g *Generator) { g.fetcher = f }
}

// NewGenerator polls every interval, at most maxAttempts times.
func NewGenerator(factory BackendFactory, interval time.Duration, maxAttempts int, opts ...Option) *Generator {
	g := &Generator{
		factory:     factory,
		fetcher:     upstream.NewFetcher(nil),
		clock:       realClock{},
		interval:    interval,
		maxAttempts: maxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateClip animates the product image according to prompt and returns
// the encoded video.
func (g *Generator) GenerateClip(ctx context.Context, apiKey string, p models.Product, prompt, aspectRatio, resolution string) ([]byte, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrNoPrompt
	}
	if aspectRatio == "" {
		aspectRatio = DefaultAspectRatio
	}
	if resolution == "" {
		resolution = DefaultResolution
	}

	image, mimeType, err := g.fetchImage(ctx, p.ImageURL)
	if err != nil {
		return nil, err
	}

	backend, err := g.factory(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	log.Info().Str("product", p.Title).Str("aspect_ratio", aspectRatio).Str("resolution", resolution).Msg("Starting video generation")
	operation, err := backend.Submit(ctx, Request{
		Prompt:        prompt,
		Image:         image,
		ImageMIMEType: mimeType,
		AspectRatio:   aspectRatio,
		Resolution:    resolution,
	})
	if err != nil {
		return nil, err
	}
	return g.await(ctx, backend, operation)
}

// await runs the poll state machine for operation until a terminal state.
func (g *Generator) await(ctx context.Context, backend Backend, operation string) ([]byte, error) {
	state := StateSubmitted
	attempts := 0
	var status Status

	for {
		switch state {
		case StateSubmitted, StatePending:
			if attempts >= g.maxAttempts {
				state = StateTimedOut
				continue
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-g.clock.After(g.interval):
			}

			var err error
			status, err = backend.Poll(ctx, operation)
			attempts++
			if err != nil {
				return nil, err
			}
			log.Debug().Str("operation", operation).Int("attempt", attempts).Int("max", g.maxAttempts).Bool("done", status.Done).Msg("Polled video job")

			switch {
			case !status.Done:
				state = StatePending
			case status.Error != "":
				state = StateFailed
			default:
				state = StateDone
			}

		case StateDone:
			if status.VideoURI == "" && len(status.VideoBytes) == 0 {
				return nil, &upstream.UpstreamError{Provider: "veo", Message: "no video generated in response"}
			}
			video, err := backend.Download(ctx, status)
			if err != nil {
				return nil, err
			}
			log.Info().Str("operation", operation).Int("attempts", attempts).Int("bytes", len(video)).Msg("Video downloaded")
			return video, nil

		case StateFailed:
			return nil, &upstream.UpstreamError{Provider: "veo", Message: status.Error}

		case StateTimedOut:
			log.Warn().Str("operation", operation).Int("attempts", attempts).Msg("Video generation timed out")
			return nil, &TimeoutError{Attempts: attempts, Interval: g.interval}
		}
	}
}

func (g *Generator) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	if imageURL == "" {
		return nil, "", errors.New("product has no image url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", &upstream.FetchError{Method: http.MethodGet, URL: imageURL, Err: err}
	}
	body, header, err := g.fetcher.Fetch(req)
	if err != nil {
		return nil, "", err
	}
	mimeType := "image/jpeg"
	if ct := header.Get("Content-Type"); ct != "" {
		mimeType = strings.TrimSpace(strings.Split(ct, ";")[0])
	}
	return body, mimeType, nil
}
