package analysis

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiGenerator calls Google Gemini with an inline image and a prompt.
type GeminiGenerator struct {
	apiKey string
	model  string
}

// NewGeminiGenerator returns nil when the API key is empty so the gateway
// reports the service as not configured.
func NewGeminiGenerator(apiKey, model string) *GeminiGenerator {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{apiKey: apiKey, model: model}
}

func (g *GeminiGenerator) Generate(ctx context.Context, image []byte, mimeType, prompt string, onDelta func(string)) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.SetTemperature(0.2)

	parts := []genai.Part{
		genai.ImageData(FormatFromMIME(mimeType), image),
		genai.Text(prompt),
	}

	iter := model.GenerateContentStream(ctx, parts...)
	var full string
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to generate content: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				txt, ok := part.(genai.Text)
				if !ok {
					continue
				}
				full += string(txt)
				if onDelta != nil && len(txt) > 0 {
					onDelta(string(txt))
				}
			}
		}
	}
	if full == "" {
		return "", fmt.Errorf("empty content returned from gemini")
	}
	return full, nil
}
