package tableseg

import (
	"context"
	"image"
	"math"
	"sync"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/pkg/errors"
)

const (
	textBackendConfidence = 0.9
	gridBackendConfidence = 0.85
)

// Document wraps an open pdfium document. A pdfium instance is not safe
// for concurrent use, so all page access is serialized behind a mutex;
// the dispatcher's worker pool contends on it but stays correct.
type Document struct {
	mu       sync.Mutex
	instance pdfium.Pdfium
	ref      references.FPDF_DOCUMENT
}

// OpenDocument opens a PDF file.
func OpenDocument(instance pdfium.Pdfium, filePath string) (*Document, error) {
	doc, err := instance.OpenDocument(&requests.OpenDocument{
		FilePath: &filePath,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PDF document")
	}
	return &Document{instance: instance, ref: doc.Document}, nil
}

// OpenDocumentBytes opens a PDF held in memory.
func OpenDocumentBytes(instance pdfium.Pdfium, pdfBytes []byte) (*Document, error) {
	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &pdfBytes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PDF document")
	}
	return &Document{instance: instance, ref: doc.Document}, nil
}

// Close releases the underlying pdfium document.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.ref,
	})
	return errors.Wrap(err, "failed to close PDF document")
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	count, err := d.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: d.ref,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to get page count")
	}
	return count.PageCount, nil
}

// Signals probes a page for the cheap structural signals classification
// runs on: character count, ruling-line counts per axis, and image presence.
func (d *Document) Signals(ctx context.Context, pageNumber int) (PageSignals, error) {
	var signals PageSignals
	err := d.withPage(pageNumber, func(page references.FPDF_PAGE, width, height float64) error {
		textPage, err := d.instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
			Page: requests.Page{ByReference: &page},
		})
		if err != nil {
			return errors.Wrap(err, "failed to load text page")
		}
		defer d.instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
			TextPage: textPage.TextPage,
		})

		charCount, err := d.instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
			TextPage: textPage.TextPage,
		})
		if err != nil {
			return errors.Wrap(err, "failed to count characters")
		}
		signals.CharCount = charCount.Count

		edges, hasImages, err := d.scanPageObjects(page, width, height)
		if err != nil {
			return err
		}
		signals.HasImages = hasImages
		for _, e := range edges {
			signals.LineCount++
			if e.Orientation == "h" {
				signals.HorizontalLines++
			} else {
				signals.VerticalLines++
			}
		}
		return nil
	})
	return signals, err
}

// PDFTextBackend extracts tables from a page's word layout, aligning words
// into cells without requiring ruling lines. This is the fast path that
// runs on every page.
type PDFTextBackend struct {
	doc *Document
}

// NewPDFTextBackend wraps a document as the text extraction backend.
func NewPDFTextBackend(doc *Document) *PDFTextBackend {
	return &PDFTextBackend{doc: doc}
}

func (b *PDFTextBackend) ID() string { return ExtractorText }

// ExtractPage detects word-alignment tables on one page.
func (b *PDFTextBackend) ExtractPage(ctx context.Context, pageNumber int) ([]TableCandidate, error) {
	words, ruling, err := b.doc.pageLayout(pageNumber)
	if err != nil {
		return nil, err
	}
	tables := DetectLayoutTables(words, ruling, TextTableSettings())
	return candidatesFromLayout(tables, words, pageNumber, ExtractorText, textBackendConfidence), nil
}

// PDFGridBackend extracts tables strictly from ruling lines. Slower and
// chunk-oriented, so the dispatcher reserves it for grid-classified pages.
type PDFGridBackend struct {
	doc *Document
}

// NewPDFGridBackend wraps a document as the ruling-line extraction backend.
func NewPDFGridBackend(doc *Document) *PDFGridBackend {
	return &PDFGridBackend{doc: doc}
}

func (b *PDFGridBackend) ID() string { return ExtractorGrid }

// ExtractChunk runs ruling-line detection over a batch of pages. A page
// failure skips that page rather than failing the chunk.
func (b *PDFGridBackend) ExtractChunk(ctx context.Context, pageNumbers []int) ([]TableCandidate, error) {
	var out []TableCandidate
	for _, pageNumber := range pageNumbers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		words, ruling, err := b.doc.pageLayout(pageNumber)
		if err != nil {
			continue
		}
		if len(ruling) == 0 {
			continue
		}
		tables := DetectLayoutTables(words, ruling, GridTableSettings())
		out = append(out, candidatesFromLayout(tables, words, pageNumber, ExtractorGrid, gridBackendConfidence)...)
	}
	return out, nil
}

// candidatesFromLayout converts detected layout tables into candidates,
// attaching any nearby caption line.
func candidatesFromLayout(tables []LayoutTable, words []Word, pageNumber int, extractor string, confidence float64) []TableCandidate {
	var out []TableCandidate
	for _, t := range tables {
		cells := t.CellTexts()
		if len(cells) == 0 {
			continue
		}
		cand := TableCandidate{
			SourcePage:    pageNumber,
			Extractor:     extractor,
			Cells:         cells,
			Caption:       FindCaption(words, t.Box),
			RawConfidence: confidence,
			BBox:          t.Box,
		}
		if len(cells) > 0 {
			cand.ColHeaders = cells[0]
		}
		out = append(out, cand)
	}
	return out
}

// PageText returns the plain text of a page, used for cross-reference
// scanning.
func (d *Document) PageText(ctx context.Context, pageNumber int) (string, error) {
	var text string
	err := d.withPage(pageNumber, func(page references.FPDF_PAGE, width, height float64) error {
		textPage, err := d.instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
			Page: requests.Page{ByReference: &page},
		})
		if err != nil {
			return errors.Wrap(err, "failed to load text page")
		}
		defer d.instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
			TextPage: textPage.TextPage,
		})

		charCount, err := d.instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
			TextPage: textPage.TextPage,
		})
		if err != nil {
			return errors.Wrap(err, "failed to count characters")
		}
		if charCount.Count == 0 {
			return nil
		}

		textResp, err := d.instance.FPDFText_GetText(&requests.FPDFText_GetText{
			TextPage:   textPage.TextPage,
			StartIndex: 0,
			Count:      charCount.Count,
		})
		if err != nil {
			return errors.Wrap(err, "failed to get page text")
		}
		text = textResp.Text
		return nil
	})
	return text, err
}

// RenderPage rasterizes a page at the given DPI, for the OCR backend.
func (d *Document) RenderPage(ctx context.Context, pageNumber, dpi int) (image.Image, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	render, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpi,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.ref,
				Index:    pageNumber - 1,
			},
		},
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to render page %d", pageNumber)
	}
	return render.Result.Image, render.Result.PointToPixelRatio, nil
}

// withPage loads a page, hands it to fn with its dimensions, and closes it.
func (d *Document) withPage(pageNumber int, fn func(page references.FPDF_PAGE, width, height float64) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pageResp, err := d.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: d.ref,
		Index:    pageNumber - 1,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to load page %d", pageNumber)
	}
	defer d.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: pageResp.Page,
	})

	width, err := d.instance.FPDF_GetPageWidthF(&requests.FPDF_GetPageWidthF{
		Page: requests.Page{ByReference: &pageResp.Page},
	})
	if err != nil {
		return errors.Wrap(err, "failed to get page width")
	}
	height, err := d.instance.FPDF_GetPageHeightF(&requests.FPDF_GetPageHeightF{
		Page: requests.Page{ByReference: &pageResp.Page},
	})
	if err != nil {
		return errors.Wrap(err, "failed to get page height")
	}

	return fn(pageResp.Page, float64(width.PageWidth), float64(height.PageHeight))
}

// pageLayout extracts the word boxes and ruling edges of a page.
func (d *Document) pageLayout(pageNumber int) ([]Word, []Edge, error) {
	var words []Word
	var ruling []Edge
	err := d.withPage(pageNumber, func(page references.FPDF_PAGE, width, height float64) error {
		textPage, err := d.instance.FPDFText_LoadPage(&requests.FPDFText_LoadPage{
			Page: requests.Page{ByReference: &page},
		})
		if err != nil {
			return errors.Wrap(err, "failed to load text page")
		}
		defer d.instance.FPDFText_ClosePage(&requests.FPDFText_ClosePage{
			TextPage: textPage.TextPage,
		})

		charCount, err := d.instance.FPDFText_CountChars(&requests.FPDFText_CountChars{
			TextPage: textPage.TextPage,
		})
		if err != nil {
			return errors.Wrap(err, "failed to count characters")
		}

		chars, err := d.extractChars(textPage.TextPage, charCount.Count, height)
		if err != nil {
			return errors.Wrap(err, "failed to extract characters")
		}
		words = wordsFromChars(chars)

		edges, _, err := d.scanPageObjects(page, width, height)
		if err != nil {
			return err
		}
		ruling = edges
		return nil
	})
	return words, ruling, err
}

type pageChar struct {
	Text rune
	Box  Rect
}

// extractChars reads every character with its box, flipping PDF bottom-left
// coordinates to top-left.
func (d *Document) extractChars(textPage references.FPDF_TEXTPAGE, count int, pageHeight float64) ([]pageChar, error) {
	chars := make([]pageChar, 0, count)
	for i := range count {
		unicodeRes, err := d.instance.FPDFText_GetUnicode(&requests.FPDFText_GetUnicode{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil || unicodeRes.Unicode == 0 {
			continue
		}
		charBox, err := d.instance.FPDFText_GetCharBox(&requests.FPDFText_GetCharBox{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil {
			continue
		}
		chars = append(chars, pageChar{
			Text: rune(unicodeRes.Unicode),
			Box: Rect{
				X0: charBox.Left,
				Y0: pageHeight - charBox.Top,
				X1: charBox.Right,
				Y1: pageHeight - charBox.Bottom,
			},
		})
	}
	return chars, nil
}

// ligatureMap maps ligature codepoints to their expanded forms.
var ligatureMap = map[rune]string{
	0xFB00: "ff",
	0xFB01: "fi",
	0xFB02: "fl",
	0xFB03: "ffi",
	0xFB04: "ffl",
	0xFB05: "ft",
	0xFB06: "st",
}

// wordsFromChars groups characters into words, breaking on whitespace and
// on horizontal gaps wider than a third of the average character width.
func wordsFromChars(chars []pageChar) []Word {
	if len(chars) == 0 {
		return nil
	}

	var avgWidth float64
	for _, c := range chars {
		avgWidth += c.Box.Width()
	}
	avgWidth /= float64(len(chars))

	var words []Word
	var current []pageChar
	var box Rect

	flush := func() {
		if len(current) == 0 {
			return
		}
		var text string
		for _, c := range current {
			if expansion, ok := ligatureMap[c.Text]; ok {
				text += expansion
			} else {
				text += string(c.Text)
			}
		}
		words = append(words, Word{Text: text, Box: box})
		current = nil
	}

	for _, c := range chars {
		if c.Text == ' ' || c.Text == '\t' || c.Text == '\n' || c.Text == '\r' {
			flush()
			continue
		}
		if len(current) > 0 {
			prev := current[len(current)-1]
			sameLine := math.Abs(c.Box.CenterY()-prev.Box.CenterY()) < prev.Box.Height()
			gap := c.Box.X0 - prev.Box.X1
			if !sameLine || (avgWidth > 0 && gap > avgWidth/3) {
				flush()
			}
		}
		if len(current) == 0 {
			box = c.Box
		} else {
			box.X0 = math.Min(box.X0, c.Box.X0)
			box.Y0 = math.Min(box.Y0, c.Box.Y0)
			box.X1 = math.Max(box.X1, c.Box.X1)
			box.Y1 = math.Max(box.Y1, c.Box.Y1)
		}
		current = append(current, c)
	}
	flush()

	return words
}

// scanPageObjects walks the page objects once, collecting ruling edges from
// path objects and noting whether any image objects exist. Page borders are
// filtered out so a framed page does not read as one giant table.
func (d *Document) scanPageObjects(page references.FPDF_PAGE, pageWidth, pageHeight float64) ([]Edge, bool, error) {
	countResp, err := d.instance.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{
		Page: requests.Page{ByReference: &page},
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to count page objects")
	}

	var edges []Edge
	hasImages := false

	for i := 0; i < countResp.Count; i++ {
		objResp, err := d.instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
			Page:  requests.Page{ByReference: &page},
			Index: i,
		})
		if err != nil {
			continue
		}
		typeResp, err := d.instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
			PageObject: objResp.PageObject,
		})
		if err != nil {
			continue
		}
		if typeResp.Type == enums.FPDF_PAGEOBJ_IMAGE {
			hasImages = true
			continue
		}
		if typeResp.Type != enums.FPDF_PAGEOBJ_PATH {
			continue
		}

		boundsResp, err := d.instance.FPDFPageObj_GetBounds(&requests.FPDFPageObj_GetBounds{
			PageObject: objResp.PageObject,
		})
		if err != nil {
			continue
		}
		x0 := float64(boundsResp.Left)
		y0 := pageHeight - float64(boundsResp.Top)
		x1 := float64(boundsResp.Right)
		y1 := pageHeight - float64(boundsResp.Bottom)

		segCountResp, err := d.instance.FPDFPath_CountSegments(&requests.FPDFPath_CountSegments{
			PageObject: objResp.PageObject,
		})
		if err != nil || segCountResp.Count < 2 {
			continue
		}

		if segCountResp.Count == 2 {
			if edge := pathToEdge(x0, y0, x1, y1); edge != nil && !isPageBorder(*edge, pageWidth, pageHeight) {
				edges = append(edges, *edge)
			}
		} else if segCountResp.Count >= 4 {
			for _, edge := range boundsToEdges(x0, y0, x1, y1) {
				if !isPageBorder(edge, pageWidth, pageHeight) {
					edges = append(edges, edge)
				}
			}
		}
	}

	return edges, hasImages, nil
}

// isPageBorder reports whether an edge hugs the page boundary or spans
// nearly the full page, either of which marks it as a border.
func isPageBorder(edge Edge, pageWidth, pageHeight float64) bool {
	const borderTolerance = 20.0
	const fullSpanThreshold = 0.90

	if edge.Orientation == "h" {
		if edge.Top < borderTolerance || edge.Top > pageHeight-borderTolerance {
			return true
		}
		if edge.Width > pageWidth*fullSpanThreshold {
			return true
		}
	}
	if edge.Orientation == "v" {
		if edge.X0 < borderTolerance || edge.X0 > pageWidth-borderTolerance {
			return true
		}
		if edge.Height > pageHeight*fullSpanThreshold {
			return true
		}
	}
	return false
}

// pathToEdge converts a two-segment path to an edge when it is close to
// horizontal or vertical.
func pathToEdge(x0, y0, x1, y1 float64) *Edge {
	width := x1 - x0
	height := y1 - y0

	if height < 2.0 && width > 1.0 {
		return &Edge{
			X0:          x0,
			X1:          x1,
			Top:         y0,
			Bottom:      y1,
			Width:       width,
			Height:      height,
			Orientation: "h",
		}
	}
	if width < 2.0 && height > 1.0 {
		return &Edge{
			X0:          x0,
			X1:          x1,
			Top:         y0,
			Bottom:      y1,
			Width:       width,
			Height:      height,
			Orientation: "v",
		}
	}
	return nil
}

// boundsToEdges decomposes a rectangle's bounds into its four edges.
func boundsToEdges(x0, y0, x1, y1 float64) []Edge {
	return []Edge{
		{X0: x0, X1: x1, Top: y0, Bottom: y0, Width: x1 - x0, Orientation: "h"},
		{X0: x0, X1: x1, Top: y1, Bottom: y1, Width: x1 - x0, Orientation: "h"},
		{X0: x0, X1: x0, Top: y0, Bottom: y1, Height: y1 - y0, Orientation: "v"},
		{X0: x1, X1: x1, Top: y0, Bottom: y1, Height: y1 - y0, Orientation: "v"},
	}
}
