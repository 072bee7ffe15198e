package modelclient

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// GenAIBackend wraps the Vertex AI Gemini SDK as an alternative reasoning
// backend to ChatBackend, used when a GCP project is configured for
// Stage 2 escalation.
type GenAIBackend struct {
	client *genai.Client
	model  string
}

// NewGenAIBackend creates a GenAIBackend against a regional Vertex AI
// endpoint.
func NewGenAIBackend(ctx context.Context, project, location, model string) (*GenAIBackend, error) {
	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("modelclient.NewGenAIBackend: %w", err)
	}
	return &GenAIBackend{client: client, model: model}, nil
}

// Generate sends one prompt to Gemini and returns the text response.
func (a *GenAIBackend) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := a.client.GenerativeModel(a.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("modelclient.Generate: %w", err)}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("modelclient.Generate: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

// Close releases the underlying Vertex AI client.
func (a *GenAIBackend) Close() error {
	return a.client.Close()
}
