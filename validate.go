package tableseg

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation thresholds.
const (
	// proseCellLength marks a single-column cell as reading text rather
	// than a label or value.
	proseCellLength = 35
	// longCellLength marks any cell as paragraph-like.
	longCellLength = 500
	// structuredCellLength is the upper bound for a cell that still looks
	// like tabular data rather than prose.
	structuredCellLength = 150
	// minStructureCols/minStructureRows is the floor below which a grid
	// needs an explicit caption keyword to pass.
	minStructureCols = 2
	minStructureRows = 2
	// strongStructureRows is the row count at which structure alone,
	// without a caption keyword, is enough evidence.
	strongStructureRows = 3
)

var (
	figureKeywordRe = regexp.MustCompile(`(?i)\b(figure|chart|graph|diagram)\b`)
	tableKeywordRe  = regexp.MustCompile(`(?i)\b(table|exhibit)\b`)
)

// ValidateTable decides whether a merged table is genuinely a table.
// It is a pure predicate: it never mutates its input, and a false result
// carries a short reason for logging. Rejection is silent downstream; the
// table is dropped, not retried.
func ValidateTable(t MergedTable) (bool, string) {
	labelText := t.Caption + " " + strings.Join(t.ColHeaders, " ")
	hasFigureKeyword := figureKeywordRe.MatchString(labelText)
	hasTableKeyword := tableKeywordRe.MatchString(labelText)

	// Figures, charts and diagrams masquerade as tables when their legend
	// boxes align. A figure label without a table label rejects outright.
	if hasFigureKeyword && !hasTableKeyword {
		return false, "labeled as figure/chart/graph/diagram"
	}

	rows := len(t.Cells)
	cols := 0
	if rows > 0 {
		cols = len(t.Cells[0])
	}
	if rows == 0 || cols == 0 {
		return false, "empty cell grid"
	}

	// Single column where every cell runs past sentence length is reading
	// text, not tabular data.
	if cols == 1 {
		hasContent := false
		allProse := true
		for _, row := range t.Cells {
			n := len(strings.TrimSpace(row[0]))
			if n == 0 {
				continue
			}
			hasContent = true
			if n <= proseCellLength {
				allProse = false
			}
		}
		if hasContent && allProse {
			return false, "single column of prose cells"
		}
	}

	// Mostly paragraph-length cells means a text block got gridded.
	longCells, nonEmpty := 0, 0
	for _, row := range t.Cells {
		for _, cell := range row {
			trimmed := strings.TrimSpace(cell)
			if trimmed == "" {
				continue
			}
			nonEmpty++
			if len(trimmed) > longCellLength {
				longCells++
			}
		}
	}
	if nonEmpty == 0 {
		return false, "no cell content"
	}
	if float64(longCells)/float64(nonEmpty) > 0.5 {
		return false, "mostly paragraph-length cells"
	}

	// Shallow structures (answer-choice boxes, two-cell stubs) need an
	// explicit caption keyword to survive.
	if (cols < minStructureCols || rows < minStructureRows) && !hasTableKeyword {
		return false, fmt.Sprintf("insufficient structure (%dx%d) without table keyword", rows, cols)
	}

	if hasTableKeyword {
		return true, ""
	}

	// No keyword: require structure strong enough to stand on its own.
	if cols >= minStructureCols && rows >= strongStructureRows && hasStructuredCells(t.Cells) {
		return true, ""
	}

	return false, "no table keyword and weak structural evidence"
}

// hasStructuredCells reports whether the grid contains short, data-like
// cell values (numbers, currency, short labels) rather than prose.
func hasStructuredCells(cells [][]string) bool {
	for _, row := range cells {
		for _, cell := range row {
			trimmed := strings.TrimSpace(cell)
			if trimmed != "" && len(trimmed) < structuredCellLength {
				return true
			}
		}
	}
	return false
}
