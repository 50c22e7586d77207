package tableseg

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	captionSearchAbove = 50.0
	captionSearchBelow = 30.0
	// A caption line must be horizontally centered within this fraction of
	// the table width of the table center.
	captionCenterTolerance = 0.4
)

var (
	tableNumberRe   = regexp.MustCompile(`(?i)\b(?:table|exhibit)\s+(\d+(?:\.\d+)?)`)
	captionLabelRe  = regexp.MustCompile(`(?i)^\s*(?:table|exhibit)\b`)
	figureLabelRe   = regexp.MustCompile(`(?i)^\s*(?:figure|chart|graph|diagram)\b`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
	nonWordRunRe    = regexp.MustCompile(`\W+`)
)

// FindCaption looks for a caption line near a table's bounding box. Lines
// starting with "Table" or "Exhibit" win; otherwise the nearest short line
// directly above the table is used. Figure labels are never captions.
func FindCaption(words []Word, tableBox Rect) string {
	if tableBox.IsZero() || len(words) == 0 {
		return ""
	}
	lines := groupCaptionLines(words)

	var labeled, nearest string
	var labeledDist float64 = -1
	var nearestDist float64 = -1
	for _, ln := range lines {
		if !captionAligned(ln, tableBox) {
			continue
		}
		dist, ok := captionDistance(ln, tableBox)
		if !ok {
			continue
		}
		text := ln.text()
		if figureLabelRe.MatchString(text) {
			continue
		}
		if captionLabelRe.MatchString(text) {
			if labeledDist < 0 || dist < labeledDist {
				labeled = text
				labeledDist = dist
			}
		}
		if ln.box.Y1 <= tableBox.Y0 && (nearestDist < 0 || dist < nearestDist) {
			nearest = text
			nearestDist = dist
		}
	}
	if labeled != "" {
		return labeled
	}
	if nearest != "" && len(nearest) < 120 {
		return nearest
	}
	return ""
}

// ParseTableNumber extracts the document table number ("2.1" in
// "Table 2.1: Risk factors") from a caption. Empty when absent.
func ParseTableNumber(caption string) string {
	m := tableNumberRe.FindStringSubmatch(caption)
	if m == nil {
		return ""
	}
	return m[1]
}

// SegmentID builds the stable identifier for a table. Tables with a parsed
// number are addressed by it; unnumbered tables fall back to their page and
// intra-page index. Non-word characters in the number are flattened to "_"
// so segment ids stay filesystem-safe ("2.1" becomes "2_1").
func SegmentID(tableNumber string, page, pageIndex int) string {
	if tableNumber != "" {
		return fmt.Sprintf("table_%s_p%d", nonWordRunRe.ReplaceAllString(tableNumber, "_"), page)
	}
	return fmt.Sprintf("table_p%d_idx%d", page, pageIndex)
}

type captionLine struct {
	words []Word
	box   Rect
}

func (c captionLine) text() string {
	parts := make([]string, len(c.words))
	for i, w := range c.words {
		parts[i] = w.Text
	}
	return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(strings.Join(parts, " "), " "))
}

func groupCaptionLines(words []Word) []captionLine {
	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y0 != sorted[j].Box.Y0 {
			return sorted[i].Box.Y0 < sorted[j].Box.Y0
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	var lines []captionLine
	for _, w := range sorted {
		if len(lines) > 0 {
			last := &lines[len(lines)-1]
			if w.Box.CenterY()-last.box.CenterY() < 3.0 {
				last.words = append(last.words, w)
				last.box = unionRect(last.box, w.Box)
				continue
			}
		}
		lines = append(lines, captionLine{words: []Word{w}, box: w.Box})
	}
	for i := range lines {
		sort.SliceStable(lines[i].words, func(a, b int) bool {
			return lines[i].words[a].Box.X0 < lines[i].words[b].Box.X0
		})
	}
	return lines
}

func captionAligned(ln captionLine, tableBox Rect) bool {
	tol := tableBox.Width() * captionCenterTolerance
	return math.Abs(ln.box.CenterX()-tableBox.CenterX()) <= tol
}

func captionDistance(ln captionLine, tableBox Rect) (float64, bool) {
	switch {
	case ln.box.Y1 <= tableBox.Y0:
		d := tableBox.Y0 - ln.box.Y1
		return d, d <= captionSearchAbove
	case ln.box.Y0 >= tableBox.Y1:
		d := ln.box.Y0 - tableBox.Y1
		return d, d <= captionSearchBelow
	default:
		return 0, false
	}
}

func unionRect(a, b Rect) Rect {
	if a.IsZero() {
		return b
	}
	if b.X0 < a.X0 {
		a.X0 = b.X0
	}
	if b.Y0 < a.Y0 {
		a.Y0 = b.Y0
	}
	if b.X1 > a.X1 {
		a.X1 = b.X1
	}
	if b.Y1 > a.Y1 {
		a.Y1 = b.Y1
	}
	return a
}
