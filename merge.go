package tableseg

import (
	"math"
	"sort"
	"strings"
)

// Merge thresholds.
const (
	// bboxOverlapThreshold is the overlap ratio (intersection over the
	// smaller box) above which two candidates are the same physical table.
	bboxOverlapThreshold = 0.5
	// cellMatchThreshold is the sampled cell-text similarity required to
	// group candidates that lack bounding boxes.
	cellMatchThreshold = 0.7
	// cellSampleSize bounds how many cells get compared per candidate pair.
	cellSampleSize = 8
)

// Backend ids.
const (
	ExtractorText = "text"
	ExtractorGrid = "grid"
	ExtractorOCR  = "ocr"
)

// confidenceScales maps each backend's native confidence range onto [0,1].
// Tesseract reports word confidence 0-100; the layout backends already
// report in [0,1]. Unknown extractors are distrusted at half weight.
var confidenceScales = map[string]float64{
	ExtractorText: 1.0,
	ExtractorGrid: 1.0,
	ExtractorOCR:  100.0,
}

// extractorPriority breaks normalized-confidence ties deterministically,
// following the dispatch chain order.
var extractorPriority = map[string]int{
	ExtractorText: 0,
	ExtractorGrid: 1,
	ExtractorOCR:  2,
}

// NormalizeConfidence maps a backend-native confidence onto the shared
// [0,1] scale used for cross-backend comparison.
func NormalizeConfidence(extractor string, raw float64) float64 {
	scale, ok := confidenceScales[extractor]
	if !ok || scale <= 0 {
		return clamp01(raw) * 0.5
	}
	return clamp01(raw / scale)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MergeCandidates reduces raw backend candidates to at most one MergedTable
// per physical table per page. The result is deterministic for a given
// candidate set regardless of input order: tables are sorted by page, then
// vertical position, then winning extractor.
func MergeCandidates(candidates []TableCandidate) []MergedTable {
	byPage := make(map[int][]TableCandidate)
	var pageNumbers []int
	for _, c := range candidates {
		if len(c.Cells) == 0 {
			// MalformedCandidate with zero rows is unrecoverable.
			continue
		}
		if _, seen := byPage[c.SourcePage]; !seen {
			pageNumbers = append(pageNumbers, c.SourcePage)
		}
		byPage[c.SourcePage] = append(byPage[c.SourcePage], c)
	}
	sort.Ints(pageNumbers)

	var merged []MergedTable
	for _, page := range pageNumbers {
		merged = append(merged, mergePage(byPage[page])...)
	}
	return merged
}

// mergePage groups one page's candidates into physical tables and reduces
// each group to its best candidate.
func mergePage(candidates []TableCandidate) []MergedTable {
	// Sort first so grouping does not depend on backend invocation order.
	sorted := make([]TableCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BBox.Y0 != b.BBox.Y0 {
			return a.BBox.Y0 < b.BBox.Y0
		}
		if a.BBox.X0 != b.BBox.X0 {
			return a.BBox.X0 < b.BBox.X0
		}
		return extractorPriority[a.Extractor] < extractorPriority[b.Extractor]
	})

	var groups [][]TableCandidate
	for _, c := range sorted {
		placed := false
		for i := range groups {
			if sameTable(groups[i][0], c) {
				groups[i] = append(groups[i], c)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []TableCandidate{c})
		}
	}

	merged := make([]MergedTable, 0, len(groups))
	for _, group := range groups {
		if table, ok := reduceGroup(group); ok {
			merged = append(merged, table)
		}
	}
	return merged
}

// sameTable reports whether two same-page candidates describe the same
// physical table. With bounding boxes present the overlap ratio decides;
// without them the grid shape plus a sample of cell text decides.
func sameTable(a, b TableCandidate) bool {
	if a.SourcePage != b.SourcePage {
		return false
	}
	if !a.BBox.IsZero() && !b.BBox.IsZero() {
		return overlapRatio(a.BBox, b.BBox) >= bboxOverlapThreshold
	}
	if len(a.Cells) != len(b.Cells) {
		return false
	}
	if len(a.Cells) > 0 && len(a.Cells[0]) != len(b.Cells[0]) {
		return false
	}
	return cellSimilarity(a.Cells, b.Cells) >= cellMatchThreshold
}

// overlapRatio computes intersection area over the smaller box's area.
func overlapRatio(a, b Rect) float64 {
	x0 := math.Max(a.X0, b.X0)
	y0 := math.Max(a.Y0, b.Y0)
	x1 := math.Min(a.X1, b.X1)
	y1 := math.Min(a.Y1, b.Y1)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	smaller := math.Min(a.Area(), b.Area())
	if smaller <= 0 {
		return 0
	}
	return (x1 - x0) * (y1 - y0) / smaller
}

// cellSimilarity compares a diagonal sample of cells between two equally
// shaped grids and returns the fraction of matching values.
func cellSimilarity(a, b [][]string) float64 {
	rows := len(a)
	if rows == 0 {
		return 0
	}
	cols := len(a[0])
	if cols == 0 {
		return 0
	}

	samples := rows * cols
	if samples > cellSampleSize {
		samples = cellSampleSize
	}

	matched := 0
	for i := 0; i < samples; i++ {
		r := (i * rows) / samples
		c := (i * cols) / samples
		if r >= len(a) || r >= len(b) || c >= len(a[r]) || c >= len(b[r]) {
			continue
		}
		if normalizeCellText(a[r][c]) == normalizeCellText(b[r][c]) {
			matched++
		}
	}
	return float64(matched) / float64(samples)
}

func normalizeCellText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// reduceGroup keeps the group's highest-confidence candidate (normalized
// per extractor) and records every member's extractor id.
func reduceGroup(group []TableCandidate) (MergedTable, bool) {
	if len(group) == 0 {
		return MergedTable{}, false
	}

	best := 0
	bestConf := NormalizeConfidence(group[0].Extractor, group[0].RawConfidence)
	for i := 1; i < len(group); i++ {
		conf := NormalizeConfidence(group[i].Extractor, group[i].RawConfidence)
		if conf > bestConf ||
			(conf == bestConf && extractorPriority[group[i].Extractor] < extractorPriority[group[best].Extractor]) {
			best = i
			bestConf = conf
		}
	}
	winner := group[best]

	cells, ok := rectangularize(winner.Cells)
	if !ok {
		return MergedTable{}, false
	}

	seen := make(map[string]bool, len(group))
	var extractors []string
	for _, c := range group {
		if !seen[c.Extractor] {
			seen[c.Extractor] = true
			extractors = append(extractors, c.Extractor)
		}
	}
	sort.Strings(extractors)

	headers := winner.ColHeaders
	if len(headers) == 0 && len(cells) > 0 {
		headers = append([]string(nil), cells[0]...)
	}

	return MergedTable{
		SourcePage: winner.SourcePage,
		Cells:      cells,
		ColHeaders: headers,
		Caption:    winner.Caption,
		BBox:       winner.BBox,
		Anchor: SourceAnchor{
			Extractor:  winner.Extractor,
			PageNumber: winner.SourcePage,
			Confidence: bestConf,
		},
		ContributingExtractors: extractors,
	}, true
}

// rectangularize pads short rows with empty cells and truncates rows longer
// than the modal column count. Returns false for grids with no usable cells.
func rectangularize(cells [][]string) ([][]string, bool) {
	if len(cells) == 0 {
		return nil, false
	}

	widths := make(map[int]int)
	for _, row := range cells {
		widths[len(row)]++
	}
	modal, modalCount := 0, 0
	for width, count := range widths {
		if count > modalCount || (count == modalCount && width > modal) {
			modal = width
			modalCount = count
		}
	}
	if modal == 0 {
		return nil, false
	}

	out := make([][]string, len(cells))
	for i, row := range cells {
		fixed := make([]string, modal)
		copy(fixed, row)
		out[i] = fixed
	}
	return out, true
}
