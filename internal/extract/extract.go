// Package extract implements the Text Extraction Facade (spec §4.4):
// a doctype-dispatched, never-throw text extractor. Every failure mode —
// unreadable file, unsupported format, corrupt archive, a panicking
// third-party parser — degrades to a skip_reason rather than aborting the
// caller's build.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

const (
	backendLocal = "local"
	backendCloud = "cloud_ocr"
)

// Result is the outcome of extracting one document's text. Exactly one of
// Text or SkipReason is meaningful: a non-empty SkipReason means extraction
// did not happen and Text must be ignored.
type Result struct {
	Text       string
	Backend    string
	SkipReason string
}

// CloudBackend is the optional, online-gated OCR/layout-extraction backend
// for formats the local extractors cannot handle. Extract routes only PDFs
// to it; no other doctype reaches the cloud backend.
// Facade callers construct one only when config.OnlineMode is true.
type CloudBackend interface {
	ProcessDocument(ctx context.Context, path, doctype string) (string, error)
}

// Facade dispatches extraction by doctype. cloud is nil in offline mode; the
// Facade falls back to a skip_reason for doctypes only the cloud backend
// can serve rather than ever dialing out itself.
type Facade struct {
	cloud CloudBackend
}

// New returns a Facade. cloud may be nil, disabling cloud-backed doctypes.
func New(cloud CloudBackend) *Facade {
	return &Facade{cloud: cloud}
}

// Extract never returns an error; every failure is reported through
// Result.SkipReason so one bad document cannot abort an index build.
func (f *Facade) Extract(ctx context.Context, path, doctype string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-EXTRACT] extractor panicked", "path", path, "doctype", doctype, "recover", r)
			result = Result{SkipReason: fmt.Sprintf("extractor panic: %v", r)}
		}
	}()

	switch doctype {
	case model.DoctypeTXT, model.DoctypeMD, model.DoctypeCSV:
		return f.extractPlain(path)
	case model.DoctypeDOCX:
		return f.extractDocx(path)
	case model.DoctypePDF:
		return f.extractCloud(ctx, path, doctype)
	default:
		return Result{SkipReason: fmt.Sprintf("unsupported doctype %q", doctype)}
	}
}

func (f *Facade) extractPlain(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{SkipReason: fmt.Sprintf("read: %v", err)}
	}
	return Result{Text: string(data), Backend: backendLocal}
}

func (f *Facade) extractDocx(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{SkipReason: fmt.Sprintf("read: %v", err)}
	}
	text, err := extractDocxText(data)
	if err != nil {
		return Result{SkipReason: fmt.Sprintf("docx parse: %v", err)}
	}
	return Result{Text: text, Backend: backendLocal}
}

func (f *Facade) extractCloud(ctx context.Context, path, doctype string) Result {
	if f.cloud == nil {
		return Result{SkipReason: "no cloud OCR backend configured (offline mode or unset)"}
	}
	text, err := f.cloud.ProcessDocument(ctx, path, doctype)
	if err != nil {
		return Result{SkipReason: fmt.Sprintf("cloud OCR: %v", err)}
	}
	return Result{Text: text, Backend: backendCloud}
}
