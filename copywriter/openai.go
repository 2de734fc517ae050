// Package copywriter produces the text side of the pipeline: SEO product
// descriptions from a vision model and the narration script for videos.
package copywriter

import (
	"context"
	"errors"
	"strings"

	"stone-promo/models"
	"stone-promo/upstream"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"
)

// ErrNoAPIKey is returned when a call is made without a credential.
var ErrNoAPIKey = errors.New("OpenAI API key is required")

// Generator calls a vision-capable chat model.
type Generator struct {
	model     string
	maxTokens int64
	opts      []option.RequestOption
}

// NewGenerator returns a generator for model. Extra options are appended to
// every client it builds.
func NewGenerator(model string, maxTokens int, opts ...option.RequestOption) *Generator {
	return &Generator{model: model, maxTokens: int64(maxTokens), opts: opts}
}

// GenerateSeoCopy writes a product description from the product details and
// its image. apiKey is the caller's own credential.
func (g *Generator) GenerateSeoCopy(ctx context.Context, apiKey string, p models.Product) (string, error) {
	if apiKey == "" {
		return "", ErrNoAPIKey
	}
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(SeoPrompt(p)),
	}
	if p.ImageURL != "" {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: p.ImageURL,
		}))
	}

	log.Info().Str("product", p.Title).Str("model", g.model).Msg("Generating SEO copy")
	return g.complete(ctx, apiKey, openai.UserMessage(parts))
}

// GenerateScript asks the model for a short narration script.
func (g *Generator) GenerateScript(ctx context.Context, apiKey string, p models.Product) (string, error) {
	if apiKey == "" {
		return "", ErrNoAPIKey
	}
	if strings.TrimSpace(p.Title) == "" {
		return "", ErrNoTitle
	}
	return g.complete(ctx, apiKey, openai.UserMessage(scriptPrompt(p)))
}

func (g *Generator) complete(ctx context.Context, apiKey string, msg openai.ChatCompletionMessageParamUnion) (string, error) {
	opts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, g.opts...)
	client := openai.NewClient(opts...)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(g.model),
		Messages:            []openai.ChatCompletionMessageParamUnion{msg},
		MaxCompletionTokens: openai.Int(g.maxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "", &upstream.UpstreamError{Provider: "openai", Message: apiErr.Message, Err: err}
		}
		return "", &upstream.UpstreamError{Provider: "openai", Message: err.Error(), Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &upstream.UpstreamError{Provider: "openai", Message: "no choices in response"}
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", &upstream.UpstreamError{
			Provider: "openai",
			Message:  "empty response, finish reason: " + string(completion.Choices[0].FinishReason),
		}
	}
	return content, nil
}
