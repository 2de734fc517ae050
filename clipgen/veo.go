package clipgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"stone-promo/upstream"

	"google.golang.org/genai"
)

// veoBackend talks to Veo through the Gemini API.
type veoBackend struct {
	client  *genai.Client
	fetcher upstream.Fetcher
	apiKey  string
	model   string
}

// NewVeoFactory returns a factory producing Gemini API backends for model.
// Generated videos are downloaded through fetcher.
func NewVeoFactory(model string, fetcher upstream.Fetcher) BackendFactory {
	if fetcher == nil {
		fetcher = upstream.NewFetcher(nil)
	}
	return func(ctx context.Context, apiKey string) (Backend, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, &upstream.UpstreamError{Provider: "veo", Message: "create client", Err: err}
		}
		return &veoBackend{client: client, fetcher: fetcher, apiKey: apiKey, model: model}, nil
	}
}

func (b *veoBackend) Submit(ctx context.Context, req Request) (string, error) {
	op, err := b.client.Models.GenerateVideos(ctx, b.model, req.Prompt,
		&genai.Image{ImageBytes: req.Image, MIMEType: req.ImageMIMEType},
		&genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			AspectRatio:    req.AspectRatio,
			Resolution:     req.Resolution,
		})
	if err != nil {
		return "", &upstream.UpstreamError{Provider: "veo", Message: "submit generation", Err: err}
	}
	if op.Name == "" {
		return "", &upstream.UpstreamError{Provider: "veo", Message: "no operation name in response"}
	}
	return op.Name, nil
}

func (b *veoBackend) Poll(ctx context.Context, operation string) (Status, error) {
	op, err := b.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: operation}, nil)
	if err != nil {
		return Status{}, &upstream.UpstreamError{Provider: "veo", Message: "poll operation", Err: err}
	}
	st := Status{Done: op.Done}
	if len(op.Error) > 0 {
		raw, _ := json.Marshal(op.Error)
		st.Error = fmt.Sprintf("API Error: %s", raw)
		return st, nil
	}
	if op.Response == nil {
		return st, nil
	}
	for _, v := range op.Response.GeneratedVideos {
		if v == nil || v.Video == nil {
			continue
		}
		st.VideoURI = v.Video.URI
		st.VideoBytes = v.Video.VideoBytes
		break
	}
	return st, nil
}

func (b *veoBackend) Download(ctx context.Context, status Status) ([]byte, error) {
	if len(status.VideoBytes) > 0 {
		return status.VideoBytes, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, status.VideoURI, nil)
	if err != nil {
		return nil, &upstream.FetchError{Method: http.MethodGet, URL: status.VideoURI, Err: err}
	}
	req.Header.Set("x-goog-api-key", b.apiKey)
	body, _, err := b.fetcher.Fetch(req)
	return body, err
}
