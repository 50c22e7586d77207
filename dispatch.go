package tableseg

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatch defaults.
const (
	DefaultGridPageCap      = 300
	DefaultOCRPageCap       = 200
	DefaultGridChunkSize    = 100
	DefaultSampleSize       = 100
	DefaultProgressInterval = 50
	DefaultMaxWorkers       = 4
)

// TextBackend is the fast per-page extraction method, run unconditionally.
type TextBackend interface {
	ID() string
	ExtractPage(ctx context.Context, pageNumber int) ([]TableCandidate, error)
}

// GridBackend is the ruling-line extraction method. It is orders of
// magnitude slower than the text backend and therefore operates on bounded
// page chunks under a global cap.
type GridBackend interface {
	ID() string
	ExtractChunk(ctx context.Context, pageNumbers []int) ([]TableCandidate, error)
}

// OCRBackend extracts tables from rendered page images. Its confidence
// scale is native to the OCR engine (0-100 for Tesseract).
type OCRBackend interface {
	ID() string
	ExtractPage(ctx context.Context, pageNumber int) ([]TableCandidate, error)
}

// ProgressSink receives coarse page-counter notifications. Advisory only:
// implementations must not block, and failures are ignored.
type ProgressSink interface {
	Progress(stage string, done, total int)
}

// slogProgress is the default sink, logging at the configured cadence.
type slogProgress struct {
	logger *slog.Logger
}

func (s slogProgress) Progress(stage string, done, total int) {
	s.logger.Info("progress", "stage", stage, "pages", done, "total", total)
}

// budget tracks pages submitted to the costly backends. Counters are
// threaded explicitly so cap enforcement stays testable in isolation.
type budget struct {
	gridCap  int
	ocrCap   int
	gridUsed int
	ocrUsed  int
	skipGrid int
	skipOCR  int
}

// takeGrid admits at most n pages against the grid cap and returns how many
// were admitted. Excess work is dropped, never queued.
func (b *budget) takeGrid(n int) int {
	remaining := b.gridCap - b.gridUsed
	if remaining <= 0 {
		b.skipGrid += n
		return 0
	}
	if n > remaining {
		b.skipGrid += n - remaining
		n = remaining
	}
	b.gridUsed += n
	return n
}

// takeOCR admits at most n pages against the OCR cap.
func (b *budget) takeOCR(n int) int {
	remaining := b.ocrCap - b.ocrUsed
	if remaining <= 0 {
		b.skipOCR += n
		return 0
	}
	if n > remaining {
		b.skipOCR += n - remaining
		n = remaining
	}
	b.ocrUsed += n
	return n
}

// Dispatcher orchestrates backend invocation over classified pages.
// Backends left nil are skipped entirely, degrading the run rather than
// failing it.
type Dispatcher struct {
	Text TextBackend
	Grid GridBackend
	OCR  OCRBackend

	GridPageCap      int
	OCRPageCap       int
	GridChunkSize    int
	ProgressInterval int
	MaxWorkers       int

	Sink   ProgressSink
	Logger *slog.Logger
}

// DispatchResult is the raw outcome of running the backend chain.
type DispatchResult struct {
	Candidates  []TableCandidate
	Usage       BackendUsage
	FailedPages []int
	SkippedGrid int
	SkippedOCR  int
}

// Run executes the fixed policy chain over the classified pages:
//
//  1. text backend on every page;
//  2. grid backend on grid-classified pages and on text pages that yielded
//     nothing, chunked and capped;
//  3. OCR on image-classified pages and pages still without candidates,
//     capped;
//  4. unknown pages still empty after text fall back to the grid backend,
//     counted against the same grid cap.
//
// A backend failing on one page contributes zero candidates for that page
// and never aborts the document. The returned candidates are ordered by
// page, then by chain step, then by discovery order within a step.
func (d *Dispatcher) Run(ctx context.Context, pages []Page) (*DispatchResult, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := d.Sink
	if sink == nil {
		sink = slogProgress{logger: logger}
	}

	b := &budget{
		gridCap: orDefault(d.GridPageCap, DefaultGridPageCap),
		ocrCap:  orDefault(d.OCRPageCap, DefaultOCRPageCap),
	}
	chunkSize := orDefault(d.GridChunkSize, DefaultGridChunkSize)
	interval := orDefault(d.ProgressInterval, DefaultProgressInterval)
	workers := orDefault(d.MaxWorkers, DefaultMaxWorkers)

	result := &DispatchResult{}
	byPage := make(map[int][]TableCandidate, len(pages))
	failed := make(map[int]bool)

	// Step 1: text backend everywhere. Pages are independent, so this phase
	// runs with a bounded worker pool; results land in a per-page map to
	// keep final ordering deterministic.
	if d.Text != nil {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)

		done := 0
		for _, page := range pages {
			g.Go(func() error {
				cands, err := d.Text.ExtractPage(gctx, page.Number)
				mu.Lock()
				defer mu.Unlock()
				done++
				if done%interval == 0 || done == len(pages) {
					notify(sink, "text", done, len(pages))
				}
				if err != nil {
					logger.Warn("text backend failed", "page", page.Number, "error", err)
					failed[page.Number] = true
					return nil
				}
				byPage[page.Number] = append(byPage[page.Number], cands...)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		result.Usage.TextPages = len(pages)
	}

	// Step 2: grid backend on grid pages, plus text pages that came up
	// empty. Image and unknown pages are handled by the later steps.
	if d.Grid != nil {
		var gridPages []int
		for _, page := range pages {
			switch page.Class {
			case ClassGrid:
				gridPages = append(gridPages, page.Number)
			case ClassText:
				if len(byPage[page.Number]) == 0 {
					gridPages = append(gridPages, page.Number)
				}
			}
		}
		d.runGridChunks(ctx, gridPages, chunkSize, b, byPage, failed, result, sink, logger)
	}

	// Step 3: OCR on image pages and anything still empty.
	if d.OCR != nil {
		var ocrPages []int
		for _, page := range pages {
			if page.Class == ClassImage || len(byPage[page.Number]) == 0 {
				ocrPages = append(ocrPages, page.Number)
			}
		}
		admitted := b.takeOCR(len(ocrPages))
		ocrPages = ocrPages[:admitted]

		if len(ocrPages) > 0 {
			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(workers)

			done := 0
			for _, pageNumber := range ocrPages {
				g.Go(func() error {
					cands, err := d.OCR.ExtractPage(gctx, pageNumber)
					mu.Lock()
					defer mu.Unlock()
					done++
					if done%interval == 0 || done == len(ocrPages) {
						notify(sink, "ocr", done, len(ocrPages))
					}
					if err != nil {
						logger.Warn("ocr backend failed", "page", pageNumber, "error", err)
						failed[pageNumber] = true
						return nil
					}
					byPage[pageNumber] = append(byPage[pageNumber], cands...)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			result.Usage.OCRPages = admitted
		}
	}

	// Step 4: unknown pages already had the text backend; those still empty
	// fall back to the grid backend under the same cap accounting.
	if d.Grid != nil {
		var fallback []int
		for _, page := range pages {
			if page.Class == ClassUnknown && len(byPage[page.Number]) == 0 {
				fallback = append(fallback, page.Number)
			}
		}
		d.runGridChunks(ctx, fallback, chunkSize, b, byPage, failed, result, sink, logger)
	}

	// Assemble in page order. Within a page, candidates are already in
	// chain-step order because each step appends.
	pageNumbers := make([]int, 0, len(byPage))
	for n := range byPage {
		pageNumbers = append(pageNumbers, n)
	}
	sort.Ints(pageNumbers)
	for _, n := range pageNumbers {
		result.Candidates = append(result.Candidates, byPage[n]...)
	}

	for n := range failed {
		result.FailedPages = append(result.FailedPages, n)
	}
	sort.Ints(result.FailedPages)
	result.SkippedGrid = b.skipGrid
	result.SkippedOCR = b.skipOCR

	return result, nil
}

// runGridChunks submits pages to the grid backend in fixed-size chunks,
// respecting the shared cap. Chunks run sequentially so the amount of
// in-flight grid work stays bounded; each finished chunk emits a progress
// signal so grid-heavy documents stay visible between the other phases.
func (d *Dispatcher) runGridChunks(ctx context.Context, pageNumbers []int, chunkSize int, b *budget, byPage map[int][]TableCandidate, failed map[int]bool, result *DispatchResult, sink ProgressSink, logger *slog.Logger) {
	admitted := b.takeGrid(len(pageNumbers))
	pageNumbers = pageNumbers[:admitted]
	if len(pageNumbers) == 0 {
		return
	}
	result.Usage.GridPages += admitted

	for start := 0; start < len(pageNumbers); start += chunkSize {
		end := min(start+chunkSize, len(pageNumbers))
		chunk := pageNumbers[start:end]

		cands, err := d.Grid.ExtractChunk(ctx, chunk)
		if err != nil {
			logger.Warn("grid backend chunk failed",
				"first_page", chunk[0], "last_page", chunk[len(chunk)-1], "error", err)
			for _, n := range chunk {
				failed[n] = true
			}
			notify(sink, "grid", end, len(pageNumbers))
			continue
		}
		for _, c := range cands {
			byPage[c.SourcePage] = append(byPage[c.SourcePage], c)
		}
		notify(sink, "grid", end, len(pageNumbers))
	}
}

// notify delivers a progress signal, swallowing sink panics: progress is
// advisory and must never affect pipeline correctness.
func notify(sink ProgressSink, stage string, done, total int) {
	defer func() {
		_ = recover()
	}()
	sink.Progress(stage, done, total)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
