package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator implements Generator using the Google Gemini API. It is
// the alternate dialogue backend; construction chooses it when the config
// names a gemini model.
type GeminiGenerator struct {
	Client *genai.Client

	// Model should not start with "models/".
	Model string

	MaxTokens   int
	Temperature float32
}

// NewGeminiClient builds a Gemini client for the given API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("dialog: gemini client: %w", err)
	}
	return client, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, p *Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: p.System()}},
		},
	}
	if g.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.MaxTokens)
	}
	if g.Temperature > 0 {
		cfg.Temperature = genai.Ptr(g.Temperature)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userContent(p), genai.RoleUser),
	}
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("dialog: gemini: no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("dialog: gemini: empty candidate")
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("dialog: gemini: no text parts")
	}
	return sb.String(), nil
}
