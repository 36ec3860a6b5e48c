package export

import (
	"context"
	"fmt"
	"strings"

	"letters/api/internal/docsync"
)

// Source is the slice of a document provider the exporter needs.
type Source interface {
	FetchDocument(ctx context.Context, sess docsync.Session, id string) (docsync.Document, error)
	ExportDocument(ctx context.Context, sess docsync.Session, id, mimeType string) (docsync.Exported, error)
}

// Service provides document export functionality
type Service struct {
	source Source
	sync   *docsync.Synchronizer
}

func NewService(source Source, sync *docsync.Synchronizer) *Service {
	return &Service{source: source, sync: sync}
}

// Export renders plain text locally from a fresh fetch. Every other format is
// converted by the provider.
func (s *Service) Export(ctx context.Context, sess docsync.Session, req Request) (*Result, error) {
	mimeType := req.Format.MimeType()
	if mimeType == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	doc, err := s.source.FetchDocument(ctx, sess, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	result := &Result{
		Filename: sanitizeFilename(doc.Title) + "." + string(req.Format),
		MimeType: mimeType,
	}
	if req.Format == FormatTXT {
		result.Data = []byte(s.sync.ToLocal(doc))
		return result, nil
	}
	exported, err := s.source.ExportDocument(ctx, sess, req.DocumentID, mimeTypeWithoutParams(mimeType))
	if err != nil {
		return nil, fmt.Errorf("export document: %w", err)
	}
	result.Data = exported.Data
	return result, nil
}

func mimeTypeWithoutParams(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(base)
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	result := b.String()

	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "letter"
	}
	return result
}
