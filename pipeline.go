package tableseg

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/klippa-app/go-pdfium"
	"github.com/pkg/errors"
)

// Config controls extraction behavior.
type Config struct {
	// FirstPage and LastPage select a 1-based inclusive page range.
	// Zero values select the whole document.
	FirstPage int
	LastPage  int

	// GridPageCap bounds how many pages the grid backend may process
	// per document (default: 300).
	GridPageCap int

	// OCRPageCap bounds how many pages the OCR backend may process
	// per document (default: 200).
	OCRPageCap int

	// GridChunkSize is the grid backend batch size (default: 100).
	GridChunkSize int

	// SampleSize bounds how many classification probes are logged at
	// debug level (default: 100).
	SampleSize int

	// MaxWorkers bounds concurrent text and OCR page extractions
	// (default: 4).
	MaxWorkers int

	// ProgressInterval is the page cadence of progress notifications
	// (default: 50).
	ProgressInterval int

	// SemanticThreshold is the minimum semantic similarity considered a
	// signal during concept linking (default: 0.3).
	SemanticThreshold float64

	// LinkThreshold is the minimum combined confidence for a concept
	// link to be kept (default: 0.4).
	LinkThreshold float64

	// EnableOCR turns on the Tesseract backend. Off by default since it
	// requires a system Tesseract installation.
	EnableOCR bool
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() Config {
	return Config{
		GridPageCap:       DefaultGridPageCap,
		OCRPageCap:        DefaultOCRPageCap,
		GridChunkSize:     DefaultGridChunkSize,
		SampleSize:        DefaultSampleSize,
		MaxWorkers:        DefaultMaxWorkers,
		ProgressInterval:  DefaultProgressInterval,
		SemanticThreshold: DefaultSemanticThreshold,
		LinkThreshold:     DefaultLinkThreshold,
	}
}

// Extractor runs the full extraction pipeline over PDF documents:
// classification, backend dispatch, merging, validation, and concept
// linking.
type Extractor struct {
	instance pdfium.Pdfium
	config   Config
	concepts []ConceptEntry
	provider SimilarityProvider
	sink     ProgressSink
	logger   *slog.Logger
}

// NewExtractor creates an extractor with default configuration.
func NewExtractor(instance pdfium.Pdfium) *Extractor {
	return NewExtractorWithConfig(instance, DefaultConfig())
}

// NewExtractorWithConfig creates an extractor with custom configuration.
func NewExtractorWithConfig(instance pdfium.Pdfium, config Config) *Extractor {
	return &Extractor{
		instance: instance,
		config:   config,
		logger:   slog.Default(),
	}
}

// SetTaxonomy installs the concept taxonomy and similarity provider used
// for linking. Without a taxonomy, tables are extracted but not linked.
func (e *Extractor) SetTaxonomy(concepts []ConceptEntry, provider SimilarityProvider) {
	e.concepts = concepts
	e.provider = provider
}

// SetLogger replaces the default logger.
func (e *Extractor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetProgressSink replaces the default log-based progress sink.
func (e *Extractor) SetProgressSink(sink ProgressSink) {
	e.sink = sink
}

// ExtractFile runs the pipeline over a PDF file.
func (e *Extractor) ExtractFile(ctx context.Context, filePath string) (*ExtractionResult, error) {
	doc, err := OpenDocument(e.instance, filePath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return e.extractDocument(ctx, doc, documentID(filePath))
}

// ExtractBytes runs the pipeline over a PDF held in memory.
func (e *Extractor) ExtractBytes(ctx context.Context, pdfBytes []byte, documentID string) (*ExtractionResult, error) {
	doc, err := OpenDocumentBytes(e.instance, pdfBytes)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return e.extractDocument(ctx, doc, documentID)
}

func (e *Extractor) extractDocument(ctx context.Context, doc *Document, docID string) (*ExtractionResult, error) {
	pageCount, err := doc.PageCount(ctx)
	if err != nil {
		return nil, err
	}
	first, last, err := resolvePageRange(e.config.FirstPage, e.config.LastPage, pageCount)
	if err != nil {
		return nil, err
	}

	e.logger.Info("extraction started",
		"document", docID, "pages", pageCount, "first", first, "last", last)

	pages := ClassifyPages(ctx, doc, first, last, e.config.SampleSize, e.logger)

	textBackend := NewPDFTextBackend(doc)
	dispatcher := &Dispatcher{
		Text:             textBackend,
		Grid:             NewPDFGridBackend(doc),
		GridPageCap:      e.config.GridPageCap,
		OCRPageCap:       e.config.OCRPageCap,
		GridChunkSize:    e.config.GridChunkSize,
		ProgressInterval: e.config.ProgressInterval,
		MaxWorkers:       e.config.MaxWorkers,
		Sink:             e.sink,
		Logger:           e.logger,
	}
	if e.config.EnableOCR {
		ocr := NewOCRTableBackend(doc)
		defer ocr.Close()
		dispatcher.OCR = ocr
	}

	dispatched, err := dispatcher.Run(ctx, pages)
	if err != nil {
		return nil, err
	}

	result := AssembleResult(ctx, AssemblyInput{
		DocumentID: docID,
		TotalPages: pageCount,
		Pages:      pages,
		Dispatch:   dispatched,
		Concepts:   e.concepts,
		Provider:   e.provider,
		Config:     e.config,
		Logger:     e.logger,
	})

	// Cross-reference scanning only pays off when some table carries a
	// parsed number.
	if hasNumberedTable(result.Tables) {
		text, err := collectDocumentText(ctx, doc, first, last)
		if err != nil {
			e.logger.Warn("document text unavailable, skipping cross-references", "error", err)
		} else {
			for i := range result.Tables {
				FindCrossReferences(&result.Tables[i], text)
			}
		}
	}

	e.logger.Info("extraction finished",
		"document", docID, "tables", len(result.Tables),
		"failed_pages", len(result.Summary.FailedPages))

	return result, nil
}

// AssemblyInput carries everything result assembly needs. Assembly itself
// is pure apart from similarity provider calls, so tests can drive it with
// synthetic dispatch results.
type AssemblyInput struct {
	DocumentID string
	TotalPages int
	Pages      []Page
	Dispatch   *DispatchResult
	Concepts   []ConceptEntry
	Provider   SimilarityProvider
	Config     Config
	Logger     *slog.Logger
}

// AssembleResult turns raw dispatch candidates into the final linked
// tables: merge, validate, identify, link, order.
func AssembleResult(ctx context.Context, in AssemblyInput) *ExtractionResult {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}

	merged := MergeCandidates(in.Dispatch.Candidates)

	var kept []MergedTable
	for _, t := range merged {
		ok, reason := ValidateTable(t)
		if !ok {
			logger.Debug("table rejected", "page", t.SourcePage, "reason", reason)
			continue
		}
		kept = append(kept, t)
	}

	var linker *Linker
	if len(in.Concepts) > 0 {
		linker = NewLinker(in.Concepts, in.Provider)
		if in.Config.SemanticThreshold > 0 {
			linker.SemanticThreshold = in.Config.SemanticThreshold
		}
		if in.Config.LinkThreshold > 0 {
			linker.LinkThreshold = in.Config.LinkThreshold
		}
		linker.Logger = logger
	}

	// Stable order: page, then intra-page discovery order. Merge output is
	// already page-ordered, so a stable sort preserves intra-page order.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].SourcePage < kept[j].SourcePage
	})

	tables := make([]LinkedTable, 0, len(kept))
	pageIndex := make(map[int]int)
	for _, t := range kept {
		idx := pageIndex[t.SourcePage]
		pageIndex[t.SourcePage]++

		number := ParseTableNumber(t.Caption)
		lt := LinkedTable{
			SegmentID:              SegmentID(number, t.SourcePage, idx),
			TableNumber:            number,
			Caption:                t.Caption,
			ColHeaders:             t.ColHeaders,
			Cells:                  t.Cells,
			Anchor:                 t.Anchor,
			ContributingExtractors: t.ContributingExtractors,
		}
		linker.Link(ctx, &lt)
		tables = append(tables, lt)
	}

	summary := DocumentSummary{
		DocumentID:  in.DocumentID,
		TotalPages:  in.TotalPages,
		TotalTables: len(tables),
		Usage:       in.Dispatch.Usage,
		FailedPages: in.Dispatch.FailedPages,
		SkippedGrid: in.Dispatch.SkippedGrid,
		SkippedOCR:  in.Dispatch.SkippedOCR,
		ClassCounts: classCounts(in.Pages),
	}
	if len(in.Pages) > 0 {
		summary.FirstPage = in.Pages[0].Number
		summary.LastPage = in.Pages[len(in.Pages)-1].Number
	}

	return &ExtractionResult{Tables: tables, Summary: summary}
}

// resolvePageRange normalizes a 1-based inclusive page selection against
// the document length.
func resolvePageRange(first, last, pageCount int) (int, int, error) {
	if pageCount == 0 {
		return 0, 0, errors.New("document has no pages")
	}
	if first <= 0 {
		first = 1
	}
	if last <= 0 || last > pageCount {
		last = pageCount
	}
	if first > last {
		return 0, 0, errors.Errorf("invalid page range: %d-%d", first, last)
	}
	return first, last, nil
}

func hasNumberedTable(tables []LinkedTable) bool {
	for _, t := range tables {
		if t.TableNumber != "" {
			return true
		}
	}
	return false
}

func collectDocumentText(ctx context.Context, doc *Document, first, last int) (string, error) {
	var sb strings.Builder
	for p := first; p <= last; p++ {
		text, err := doc.PageText(ctx, p)
		if err != nil {
			return "", errors.Wrapf(err, "page %d", p)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func documentID(filePath string) string {
	trimmed := strings.TrimSuffix(filePath, ".pdf")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "document"
	}
	return trimmed
}
