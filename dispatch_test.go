package tableseg_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	tableseg "github.com/synapta/tableseg"
)

// fakeTextBackend yields one candidate per page listed in tables, fails on
// pages listed in failing.
type fakeTextBackend struct {
	mu      sync.Mutex
	tables  map[int]bool
	failing map[int]bool
	calls   []int
}

func (f *fakeTextBackend) ID() string { return tableseg.ExtractorText }

func (f *fakeTextBackend) ExtractPage(ctx context.Context, pageNumber int) ([]tableseg.TableCandidate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageNumber)
	f.mu.Unlock()
	if f.failing[pageNumber] {
		return nil, errors.New("text extraction failed")
	}
	if !f.tables[pageNumber] {
		return nil, nil
	}
	return []tableseg.TableCandidate{{
		SourcePage:    pageNumber,
		Extractor:     tableseg.ExtractorText,
		Cells:         [][]string{{"h1", "h2"}, {"a", "b"}},
		RawConfidence: 0.9,
	}}, nil
}

type fakeGridBackend struct {
	mu     sync.Mutex
	chunks [][]int
	tables map[int]bool
}

func (f *fakeGridBackend) ID() string { return tableseg.ExtractorGrid }

func (f *fakeGridBackend) ExtractChunk(ctx context.Context, pageNumbers []int) ([]tableseg.TableCandidate, error) {
	f.mu.Lock()
	chunk := append([]int(nil), pageNumbers...)
	f.chunks = append(f.chunks, chunk)
	f.mu.Unlock()

	var out []tableseg.TableCandidate
	for _, n := range pageNumbers {
		if f.tables[n] {
			out = append(out, tableseg.TableCandidate{
				SourcePage:    n,
				Extractor:     tableseg.ExtractorGrid,
				Cells:         [][]string{{"g1", "g2"}, {"x", "y"}},
				RawConfidence: 0.85,
			})
		}
	}
	return out, nil
}

type fakeOCRBackend struct {
	mu    sync.Mutex
	pages []int
}

func (f *fakeOCRBackend) ID() string { return tableseg.ExtractorOCR }

func (f *fakeOCRBackend) ExtractPage(ctx context.Context, pageNumber int) ([]tableseg.TableCandidate, error) {
	f.mu.Lock()
	f.pages = append(f.pages, pageNumber)
	f.mu.Unlock()
	return []tableseg.TableCandidate{{
		SourcePage:    pageNumber,
		Extractor:     tableseg.ExtractorOCR,
		Cells:         [][]string{{"o1", "o2"}, {"1", "2"}},
		RawConfidence: 60,
	}}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Progress(stage string, done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stage)
}

func makePages(class tableseg.PageClass, from, to int) []tableseg.Page {
	var pages []tableseg.Page
	for n := from; n <= to; n++ {
		pages = append(pages, tableseg.Page{Number: n, Class: class})
	}
	return pages
}

func TestDispatcher_TextRunsEverywhere(t *testing.T) {
	text := &fakeTextBackend{tables: map[int]bool{1: true, 2: true, 3: true}}
	d := &tableseg.Dispatcher{Text: text}

	result, err := d.Run(context.Background(), makePages(tableseg.ClassText, 1, 3))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	require.Equal(t, 3, result.Usage.TextPages)
	require.Len(t, text.calls, 3)

	// Page order regardless of worker completion order.
	for i, c := range result.Candidates {
		require.Equal(t, i+1, c.SourcePage)
	}
}

func TestDispatcher_GridOnGridAndEmptyTextPages(t *testing.T) {
	text := &fakeTextBackend{tables: map[int]bool{1: true}}
	grid := &fakeGridBackend{tables: map[int]bool{2: true, 3: true}}
	d := &tableseg.Dispatcher{Text: text, Grid: grid}

	pages := []tableseg.Page{
		{Number: 1, Class: tableseg.ClassText}, // text finds a table, grid skips it
		{Number: 2, Class: tableseg.ClassText}, // text comes up empty, grid fallback
		{Number: 3, Class: tableseg.ClassGrid}, // grid-classified
	}
	result, err := d.Run(context.Background(), pages)
	require.NoError(t, err)

	require.Len(t, grid.chunks, 1)
	require.ElementsMatch(t, []int{2, 3}, grid.chunks[0])
	require.Equal(t, 2, result.Usage.GridPages)
	require.Len(t, result.Candidates, 3)
}

func TestDispatcher_GridCapEnforced(t *testing.T) {
	text := &fakeTextBackend{tables: map[int]bool{}}
	grid := &fakeGridBackend{tables: map[int]bool{}}
	d := &tableseg.Dispatcher{
		Text:          text,
		Grid:          grid,
		GridPageCap:   300,
		GridChunkSize: 100,
	}

	// 1000 grid pages: only the first 300 run, in chunks of 100.
	result, err := d.Run(context.Background(), makePages(tableseg.ClassGrid, 1, 1000))
	require.NoError(t, err)
	require.Equal(t, 300, result.Usage.GridPages)
	require.Equal(t, 700, result.SkippedGrid)
	require.Len(t, grid.chunks, 3)
	for _, chunk := range grid.chunks {
		require.Len(t, chunk, 100)
	}
}

func TestDispatcher_OCRCapEnforced(t *testing.T) {
	text := &fakeTextBackend{}
	ocr := &fakeOCRBackend{}
	d := &tableseg.Dispatcher{Text: text, OCR: ocr, OCRPageCap: 200}

	result, err := d.Run(context.Background(), makePages(tableseg.ClassImage, 1, 500))
	require.NoError(t, err)
	require.Equal(t, 200, result.Usage.OCRPages)
	require.Equal(t, 300, result.SkippedOCR)
	require.Len(t, ocr.pages, 200)
}

func TestDispatcher_UnknownPagesFallBackToGrid(t *testing.T) {
	text := &fakeTextBackend{}
	grid := &fakeGridBackend{tables: map[int]bool{5: true}}
	d := &tableseg.Dispatcher{Text: text, Grid: grid}

	result, err := d.Run(context.Background(), makePages(tableseg.ClassUnknown, 5, 5))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.Equal(t, tableseg.ExtractorGrid, result.Candidates[0].Extractor)
}

func TestDispatcher_UnknownFallbackSharesGridCap(t *testing.T) {
	text := &fakeTextBackend{}
	grid := &fakeGridBackend{}
	d := &tableseg.Dispatcher{Text: text, Grid: grid, GridPageCap: 10, GridChunkSize: 10}

	// 10 grid pages exhaust the cap; 5 unknown pages get nothing.
	pages := append(makePages(tableseg.ClassGrid, 1, 10), makePages(tableseg.ClassUnknown, 11, 15)...)
	result, err := d.Run(context.Background(), pages)
	require.NoError(t, err)
	require.Equal(t, 10, result.Usage.GridPages)
	require.Equal(t, 5, result.SkippedGrid)
}

func TestDispatcher_PageFailureDoesNotAbort(t *testing.T) {
	text := &fakeTextBackend{
		tables:  map[int]bool{1: true, 3: true},
		failing: map[int]bool{2: true},
	}
	d := &tableseg.Dispatcher{Text: text}

	result, err := d.Run(context.Background(), makePages(tableseg.ClassText, 1, 3))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	require.Equal(t, []int{2}, result.FailedPages)
}

func TestDispatcher_NilBackendsSkipped(t *testing.T) {
	d := &tableseg.Dispatcher{}
	result, err := d.Run(context.Background(), makePages(tableseg.ClassText, 1, 5))
	require.NoError(t, err)
	require.Empty(t, result.Candidates)
	require.Zero(t, result.Usage.TextPages)
}

func TestDispatcher_ProgressCadence(t *testing.T) {
	text := &fakeTextBackend{}
	sink := &recordingSink{}
	d := &tableseg.Dispatcher{Text: text, Sink: sink, ProgressInterval: 50}

	_, err := d.Run(context.Background(), makePages(tableseg.ClassText, 1, 120))
	require.NoError(t, err)
	// 50, 100, and the final 120.
	require.Len(t, sink.events, 3)
}

func TestDispatcher_GridProgressPerChunk(t *testing.T) {
	grid := &fakeGridBackend{}
	sink := &recordingSink{}
	d := &tableseg.Dispatcher{Grid: grid, Sink: sink, GridChunkSize: 100}

	_, err := d.Run(context.Background(), makePages(tableseg.ClassGrid, 1, 250))
	require.NoError(t, err)

	gridEvents := 0
	for _, stage := range sink.events {
		if stage == "grid" {
			gridEvents++
		}
	}
	// One signal per finished chunk: 100, 200, 250.
	require.Equal(t, 3, gridEvents)
}

// panicSink proves sink failures never affect the pipeline.
type panicSink struct{}

func (panicSink) Progress(stage string, done, total int) { panic("sink exploded") }

func TestDispatcher_SinkPanicIgnored(t *testing.T) {
	text := &fakeTextBackend{tables: map[int]bool{1: true}}
	d := &tableseg.Dispatcher{Text: text, Sink: panicSink{}, ProgressInterval: 1}

	result, err := d.Run(context.Background(), makePages(tableseg.ClassText, 1, 1))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
}
