// Package importer loads content into the store: phase specification PDFs
// from JobTread and phases and rules from the legacy HTML page.
package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/pdftext"
	"github.com/ruff-uno/simonini-isms/internal/specdoc"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

// DefaultConcurrency is the number of files downloaded and parsed at once.
const DefaultConcurrency = 4

// FileSource lists and downloads the phase spec files of a job.
type FileSource interface {
	PhaseSpecFiles(ctx context.Context, jobID string) ([]jobtread.File, error)
	Download(ctx context.Context, f jobtread.File) ([]byte, error)
}

// SpecStore persists parsed documents.
type SpecStore interface {
	ImportSpecDocument(ctx context.Context, doc store.SpecImport) (int64, int, error)
	ReplaceSpecFigures(ctx context.Context, documentID int64, phaseCode string, figures []store.FigureRef) error
}

// Extractor returns the text of each page of a PDF.
type Extractor func(data []byte) ([]string, error)

// SpecImporter downloads, parses and stores phase spec documents.
type SpecImporter struct {
	source      FileSource
	store       SpecStore
	jobID       string
	concurrency int
	extract     Extractor
	logger      *zap.Logger
}

// SpecOption configures a SpecImporter.
type SpecOption func(*SpecImporter)

// WithConcurrency sets how many files are processed at once.
func WithConcurrency(n int) SpecOption {
	return func(s *SpecImporter) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithExtractor replaces the PDF text extractor.
func WithExtractor(e Extractor) SpecOption {
	return func(s *SpecImporter) { s.extract = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SpecOption {
	return func(s *SpecImporter) { s.logger = l.Named("importer") }
}

// NewSpecImporter creates an importer for the files of jobID.
func NewSpecImporter(source FileSource, st SpecStore, jobID string, opts ...SpecOption) *SpecImporter {
	s := &SpecImporter{
		source:      source,
		store:       st,
		jobID:       jobID,
		concurrency: DefaultConcurrency,
		extract:     pdftext.ExtractBytes,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileError records why a file was not imported.
type FileError struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

// ImportedDocument summarizes one stored document.
type ImportedDocument struct {
	DocumentID int64  `json:"document_id"`
	PhaseCode  string `json:"phase_code"`
	FullTitle  string `json:"full_title"`
	Sections   int    `json:"sections"`
	Items      int    `json:"items"`
	Figures    int    `json:"figures"`
}

// SpecReport is the outcome of a SpecImporter run.
type SpecReport struct {
	Files     int                `json:"files"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Items     int                `json:"items"`
	Documents []ImportedDocument `json:"documents"`
	Errors    []FileError        `json:"errors,omitempty"`
}

type parsedFile struct {
	file jobtread.File
	doc  *specdoc.Document
	err  error
}

// Run imports every phase spec PDF of the job. Files are downloaded and
// parsed concurrently and written one at a time in phase order. A file that
// fails to download or parse, has no phase code or no sections is counted
// as failed; the run itself fails only when listing files fails or ctx is
// cancelled.
func (s *SpecImporter) Run(ctx context.Context) (*SpecReport, error) {
	files, err := s.source.PhaseSpecFiles(ctx, s.jobID)
	if jobtread.IsNotFound(err) {
		return nil, fmt.Errorf("list phase spec files: job %q not found: %w", s.jobID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("list phase spec files: %w", err)
	}
	s.logger.Info("found phase spec files", zap.Int("count", len(files)))

	parsed := make([]parsedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			doc, err := s.parseFile(gctx, f)
			parsed[i] = parsedFile{file: f, doc: doc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &SpecReport{Files: len(files), Documents: []ImportedDocument{}}
	for _, p := range parsed {
		if p.err == nil {
			p.err = s.write(ctx, p, report)
		}
		if p.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("file not imported", zap.String("file", p.file.Name), zap.Error(p.err))
			report.Failed++
			report.Errors = append(report.Errors, FileError{File: p.file.Name, Err: p.err.Error()})
			continue
		}
		report.Succeeded++
	}

	s.logger.Info("spec import complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("items", report.Items))
	return report, nil
}

func (s *SpecImporter) parseFile(ctx context.Context, f jobtread.File) (*specdoc.Document, error) {
	if _, _, ok := specdoc.ParsePhaseInfo(f.Name); !ok {
		return nil, fmt.Errorf("%s: %w", f.Name, specdoc.ErrNoPhaseCode)
	}

	s.logger.Debug("processing file", zap.String("file", f.Name))
	data, err := s.source.Download(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	pages, err := s.extract(data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return specdoc.Parse(f.Name, pages)
}

// write stores one parsed document and its figure references.
func (s *SpecImporter) write(ctx context.Context, p parsedFile, report *SpecReport) error {
	doc := p.doc
	imp := store.SpecImport{
		PhaseCode:      doc.PhaseCode,
		PhaseName:      doc.PhaseName,
		FullTitle:      doc.FullTitle,
		JobTreadFileID: p.file.ID,
		JobTreadURL:    p.file.URL,
		PageCount:      doc.PageCount,
		Summary:        doc.Summary,
	}
	if p.file.Size > 0 {
		size := p.file.Size
		imp.FileSize = &size
	}
	for _, sec := range doc.Sections {
		is := store.SpecImportSection{Name: sec.Name}
		for _, item := range sec.Items {
			is.Items = append(is.Items, store.SpecImportItem{
				Number: item.Number,
				Text:   item.Text,
				HTML:   specdoc.ItemHTML(item.Text),
			})
		}
		imp.Sections = append(imp.Sections, is)
	}

	docID, items, err := s.store.ImportSpecDocument(ctx, imp)
	if err != nil {
		return err
	}

	figures := make([]store.FigureRef, len(doc.Figures))
	for i, f := range doc.Figures {
		figures[i] = store.FigureRef{Code: f.Code, Page: f.Page}
	}
	if err := s.store.ReplaceSpecFigures(ctx, docID, doc.PhaseCode, figures); err != nil {
		return fmt.Errorf("figures: %w", err)
	}

	s.logger.Info("imported document",
		zap.String("title", doc.FullTitle),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("items", items))
	report.Items += items
	report.Documents = append(report.Documents, ImportedDocument{
		DocumentID: docID,
		PhaseCode:  doc.PhaseCode,
		FullTitle:  doc.FullTitle,
		Sections:   len(doc.Sections),
		Items:      items,
		Figures:    len(figures),
	})
	return nil
}
