package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"folio/api/internal/blob"
	"folio/api/internal/lifecycle"
	"folio/api/internal/store"
)

// ProgressFunc is called after each document of a batch is rendered.
type ProgressFunc func(done, total int)

func (p ProgressFunc) report(done, total int) {
	if p != nil {
		p(done, total)
	}
}

// Uploader stores finished artifacts. *blob.Store satisfies it.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (blob.Object, error)
}

// Request describes one export. Documents are rendered in order.
type Request struct {
	OrgID     string
	Kind      lifecycle.Kind
	Format    Format
	Title     string
	Documents []store.Document
	Progress  ProgressFunc
}

// Service provides document export functionality
type Service struct {
	engine   *lifecycle.Engine
	pdf      PDFRenderer
	uploader Uploader
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithPDFRenderer(r PDFRenderer) Option {
	return func(s *Service) { s.pdf = r }
}

// WithUploader enables artifact upload; nil keeps exports inline.
func WithUploader(u Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(engine *lifecycle.Engine, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		engine: engine,
		pdf:    ChromePDF,
		logger: logger.Named("export"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanUpload reports whether Publish will store artifacts remotely.
func (s *Service) CanUpload() bool {
	return s.uploader != nil
}

// Export renders req.Documents sequentially in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if len(req.Documents) == 0 {
		return nil, ErrEmptyBatch
	}
	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s-%s", req.Kind.Collection(), s.now().UTC().Format("2006-01-02"))
	}

	started := s.now()
	var (
		result *Result
		err    error
	)
	switch req.Format {
	case FormatCSV, "":
		result, err = s.exportCSV(ctx, req, title)
	case FormatPDF:
		result, err = s.exportPDF(ctx, req, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("export rendered",
		zap.String("org_id", req.OrgID),
		zap.String("kind", string(req.Kind)),
		zap.String("format", string(req.Format)),
		zap.Int("documents", result.Count),
		zap.Int("bytes", len(result.Data)),
		zap.Duration("duration", s.now().Sub(started)),
	)
	return result, nil
}

func (s *Service) exportCSV(ctx context.Context, req Request, title string) (*Result, error) {
	data, err := renderCSV(ctx, req.Documents, req.Progress)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".csv",
		MimeType: "text/csv",
		Count:    len(req.Documents),
	}, nil
}

func (s *Service) exportPDF(ctx context.Context, req Request, title string) (*Result, error) {
	data := TemplateData{Title: title, GeneratedAt: s.now().UTC()}
	for i, doc := range req.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress := lifecycle.ComputeProgress(s.engine.Tables(), doc.Document, s.now())
		data.Documents = append(data.Documents, templateDocument(doc, progress))
		req.Progress.report(i+1, len(req.Documents))
	}
	html, err := RenderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	pdf, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
		Count:    len(req.Documents),
	}, nil
}

// Publish uploads result when an uploader is configured. It returns nil
// without error when uploads are disabled.
func (s *Service) Publish(ctx context.Context, orgID string, result *Result) (*blob.Object, error) {
	if s.uploader == nil || result == nil {
		return nil, nil
	}
	key := blob.ExportKey(orgID, result.Filename, s.now())
	obj, err := s.uploader.Put(ctx, key, result.Data, result.MimeType)
	if err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}
	return &obj, nil
}
