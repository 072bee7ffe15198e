package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"
)

// EmbeddingBackend calls the Vertex AI text embedding REST API.
type EmbeddingBackend struct {
	project  string
	location string
	model    string
	client   *http.Client
}

// NewEmbeddingBackend creates an EmbeddingBackend using application
// default credentials.
func NewEmbeddingBackend(ctx context.Context, project, location, model string) (*EmbeddingBackend, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("modelclient.NewEmbeddingBackend: %w", err)
	}
	return &EmbeddingBackend{project: project, location: location, model: model, client: client}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// EmbedBatch embeds up to maxBatch texts per underlying request, using
// taskType to select the asymmetric retrieval embedding space (documents
// vs queries).
func (a *EmbeddingBackend) EmbedBatch(ctx context.Context, texts []string, taskType string, maxBatch int) ([][]float32, error) {
	if maxBatch <= 0 {
		maxBatch = len(texts)
	}
	var out [][]float32
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := a.doEmbed(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, fmt.Errorf("modelclient.EmbedBatch: batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (a *EmbeddingBackend) doEmbed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	reqBody, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("call: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &retryableError{err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out := make([][]float32, len(parsed.Predictions))
	for i, p := range parsed.Predictions {
		out[i] = p.Embeddings.Values
	}
	return out, nil
}

func (a *EmbeddingBackend) endpointURL() string {
	if a.location == "global" {
		return fmt.Sprintf("https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			a.project, a.model)
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		a.location, a.project, a.location, a.model)
}
