package tableseg

import (
	"bytes"
	"context"
	"image/png"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
)

const (
	ocrRenderDPI         = 200
	ocrMinWordConfidence = 40.0
	ocrMinWords          = 5
	ocrMinRows           = 2
	ocrMinFillPerRow     = 1.5
)

// OCRTableBackend recognizes tables on rendered page images with Tesseract.
// It is the slowest backend and reports confidence on Tesseract's native
// 0-100 scale. A gosseract client is not safe for concurrent use, so calls
// are serialized.
type OCRTableBackend struct {
	doc *Document

	mu     sync.Mutex
	client *gosseract.Client
}

// NewOCRTableBackend creates the OCR backend. Requires a system Tesseract
// installation. Close releases the Tesseract client.
func NewOCRTableBackend(doc *Document) *OCRTableBackend {
	return &OCRTableBackend{
		doc:    doc,
		client: gosseract.NewClient(),
	}
}

func (b *OCRTableBackend) ID() string { return ExtractorOCR }

// Close releases OCR resources.
func (b *OCRTableBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

// ExtractPage renders one page, recognizes word boxes, and reconstructs
// a table from their spatial clustering. Pages whose recognized words do
// not cluster into table shape yield no candidates.
func (b *OCRTableBackend) ExtractPage(ctx context.Context, pageNumber int) ([]TableCandidate, error) {
	img, ratio, err := b.doc.RenderPage(ctx, pageNumber, ocrRenderDPI)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "failed to encode rendered page")
	}

	boxes, err := b.recognize(buf.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "OCR failed on page %d", pageNumber)
	}

	words, confSum := ocrWordsToLayout(boxes, ratio)
	if len(words) < ocrMinWords {
		return nil, nil
	}

	rows := clusterOCRRows(words)
	if len(rows) < ocrMinRows {
		return nil, nil
	}
	cells, box := ocrRowsToCells(rows)
	if cells == nil {
		return nil, nil
	}

	cand := TableCandidate{
		SourcePage:    pageNumber,
		Extractor:     ExtractorOCR,
		Cells:         cells,
		ColHeaders:    cells[0],
		Caption:       FindCaption(words, box),
		RawConfidence: confSum / float64(len(words)),
		BBox:          box,
	}
	return []TableCandidate{cand}, nil
}

func (b *OCRTableBackend) recognize(imageData []byte) ([]gosseract.BoundingBox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, errors.New("OCR client is closed")
	}
	if err := b.client.SetImageFromBytes(imageData); err != nil {
		return nil, errors.Wrap(err, "failed to set image")
	}
	return b.client.GetBoundingBoxes(gosseract.RIL_WORD)
}

// ocrWordsToLayout converts recognized boxes from pixels back to page
// points and drops low-confidence noise. Returns the kept words and the
// sum of their confidences.
func ocrWordsToLayout(boxes []gosseract.BoundingBox, pointToPixelRatio float64) ([]Word, float64) {
	if pointToPixelRatio == 0 {
		pointToPixelRatio = 1
	}
	var words []Word
	var confSum float64
	for _, bb := range boxes {
		text := strings.TrimSpace(bb.Word)
		if text == "" || bb.Confidence < ocrMinWordConfidence {
			continue
		}
		words = append(words, Word{
			Text: text,
			Box: Rect{
				X0: float64(bb.Box.Min.X) / pointToPixelRatio,
				Y0: float64(bb.Box.Min.Y) / pointToPixelRatio,
				X1: float64(bb.Box.Max.X) / pointToPixelRatio,
				Y1: float64(bb.Box.Max.Y) / pointToPixelRatio,
			},
		})
		confSum += bb.Confidence
	}
	return words, confSum
}

// clusterOCRRows groups words into rows by vertical center, with a
// threshold adapted to the median word height.
func clusterOCRRows(words []Word) [][]Word {
	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.CenterY() != sorted[j].Box.CenterY() {
			return sorted[i].Box.CenterY() < sorted[j].Box.CenterY()
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	heights := make([]float64, len(sorted))
	for i, w := range sorted {
		heights[i] = w.Box.Height()
	}
	rowThreshold := math.Max(4.0, calculateMedian(heights)*0.6)

	var rows [][]Word
	var rowCenter float64
	for _, w := range sorted {
		if len(rows) > 0 && math.Abs(w.Box.CenterY()-rowCenter) <= rowThreshold {
			row := rows[len(rows)-1]
			rows[len(rows)-1] = append(row, w)
			continue
		}
		rows = append(rows, []Word{w})
		rowCenter = w.Box.CenterY()
	}
	for i := range rows {
		sort.SliceStable(rows[i], func(a, b int) bool {
			return rows[i][a].Box.X0 < rows[i][b].Box.X0
		})
	}
	return rows
}

// ocrRowsToCells aligns rows against shared column positions. Returns nil
// when the words do not form a plausible table: too few columns, or rows
// too sparsely filled.
func ocrRowsToCells(rows [][]Word) ([][]string, Rect) {
	var widths []float64
	var all []Word
	for _, row := range rows {
		for _, w := range row {
			widths = append(widths, w.Box.Width())
			all = append(all, w)
		}
	}
	colThreshold := math.Max(8.0, calculateMedian(widths)*1.2)

	// Column anchors from the distinct left edges across all rows.
	var anchors []float64
	xs := make([]float64, len(all))
	for i, w := range all {
		xs[i] = w.Box.X0
	}
	sort.Float64s(xs)
	for _, x := range xs {
		if len(anchors) == 0 || x-anchors[len(anchors)-1] > colThreshold {
			anchors = append(anchors, x)
		}
	}
	if len(anchors) < 2 {
		return nil, Rect{}
	}

	cells := make([][]string, len(rows))
	filled := 0
	var box Rect
	for i, row := range rows {
		cells[i] = make([]string, len(anchors))
		for _, w := range row {
			col := nearestAnchor(anchors, w.Box.X0)
			if cells[i][col] != "" {
				cells[i][col] += " "
			}
			cells[i][col] += w.Text
			box = unionRect(box, w.Box)
		}
		for _, c := range cells[i] {
			if c != "" {
				filled++
			}
		}
	}

	if float64(filled)/float64(len(rows)) < ocrMinFillPerRow {
		return nil, Rect{}
	}
	return cells, box
}

func nearestAnchor(anchors []float64, x float64) int {
	best := 0
	bestDist := math.Abs(x - anchors[0])
	for i := 1; i < len(anchors); i++ {
		if d := math.Abs(x - anchors[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}
