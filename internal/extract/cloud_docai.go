package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DocAIBackend implements CloudBackend against Google Document AI. It is
// constructed only when config.OnlineMode is true; nothing in this file
// opens a socket at package init or on a nil receiver.
type DocAIBackend struct {
	client    *documentai.DocumentProcessorClient
	processor string
	project   string
	location  string
}

// NewDocAIBackend dials Document AI. location is typically "us" or "eu".
// processor is the full resource name projects/{p}/locations/{l}/processors/{id}.
func NewDocAIBackend(ctx context.Context, project, location, processor string) (*DocAIBackend, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("extract.NewDocAIBackend: %w", err)
	}
	return &DocAIBackend{
		client:    client,
		processor: processor,
		project:   project,
		location:  location,
	}, nil
}

// ProcessDocument extracts text from a local file via Document AI's inline
// document processing (no GCS upload required).
func (b *DocAIBackend) ProcessDocument(ctx context.Context, path, doctype string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("extract.DocAIBackend.ProcessDocument: %w", err)
	}

	req := &documentaipb.ProcessRequest{
		Name: b.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeTypeForDoctype(doctype),
			},
		},
	}

	resp, err := b.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("extract.DocAIBackend.ProcessDocument: %w", err)
	}
	if resp.Document == nil {
		return "", fmt.Errorf("extract.DocAIBackend.ProcessDocument: nil document in response")
	}

	slog.Debug("[DEBUG-EXTRACT] document AI extracted", "path", path, "pages", len(resp.Document.Pages), "chars", len(resp.Document.Text))
	return resp.Document.Text, nil
}

// HealthCheck verifies connectivity by listing processors.
func (b *DocAIBackend) HealthCheck(ctx context.Context) error {
	parent := fmt.Sprintf("projects/%s/locations/%s", b.project, b.location)
	iter := b.client.ListProcessors(ctx, &documentaipb.ListProcessorsRequest{Parent: parent})
	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return fmt.Errorf("extract.DocAIBackend.HealthCheck: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (b *DocAIBackend) Close() {
	b.client.Close()
}

func mimeTypeForDoctype(doctype string) string {
	switch doctype {
	case "pdf":
		return "application/pdf"
	case "tiff", "tif":
		return "image/tiff"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
