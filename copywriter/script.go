package copywriter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stone-promo/models"
)

// ErrNoTitle is returned when a product has no title to narrate.
var ErrNoTitle = errors.New("product description has no title")

// TemplateScript expands the fixed narration template for p.
func TemplateScript(p models.Product) (string, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return "", ErrNoTitle
	}
	material := strings.TrimSpace(p.Material)
	if material == "" {
		material = "natural stone"
	}
	color := strings.TrimSpace(p.Color)
	if color == "" {
		color = "rich natural"
	}
	return fmt.Sprintf("Discover the timeless elegance of %s. This stunning %s showcases %s tones with exquisite natural veining. Perfect for luxury countertops, islands, and feature walls. Transform your space with natural beauty that lasts a lifetime.",
		title, material, color), nil
}

// ScriptWriter produces narration for the assembly pipeline. With a model
// key configured it asks the model, otherwise it expands the template.
type ScriptWriter struct {
	gen    *Generator
	apiKey string
}

// NewScriptWriter returns a writer using gen when apiKey is set. gen may be
// nil for template-only narration.
func NewScriptWriter(gen *Generator, apiKey string) *ScriptWriter {
	return &ScriptWriter{gen: gen, apiKey: apiKey}
}

// Script returns the narration text for p.
func (w *ScriptWriter) Script(ctx context.Context, p models.Product) (string, error) {
	if w.gen == nil || w.apiKey == "" {
		return TemplateScript(p)
	}
	return w.gen.GenerateScript(ctx, w.apiKey, p)
}
