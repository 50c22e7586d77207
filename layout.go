package tableseg

// Word is a positioned word on a page. Words are the only text unit the
// detectors need; character-level metadata stays inside the pdfium layer.
type Word struct {
	Text string
	Box  Rect
}

// Edge represents a horizontal or vertical line segment used for table
// detection. Based on pdfplumber's edge structure.
type Edge struct {
	X0          float64 // Left x coordinate
	X1          float64 // Right x coordinate
	Top         float64 // Top y coordinate
	Bottom      float64 // Bottom y coordinate
	Width       float64 // Width (for horizontal edges)
	Height      float64 // Height (for vertical edges)
	Orientation string  // "h" for horizontal, "v" for vertical
}

// Point represents an (x, y) coordinate where edges intersect.
type Point struct {
	X float64
	Y float64
}

// LayoutCell is a detected table cell with its content.
type LayoutCell struct {
	Box     Rect
	Content string
}

// LayoutRow is a row of cells in a detected layout table.
type LayoutRow struct {
	Cells []LayoutCell
	Box   Rect
}

// LayoutTable is a table detected from page geometry, before it becomes a
// TableCandidate.
type LayoutTable struct {
	Box     Rect
	Rows    []LayoutRow
	NumRows int
	NumCols int
}

// CellTexts returns the row-major cell text matrix.
func (t LayoutTable) CellTexts() [][]string {
	cells := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		texts := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			texts = append(texts, cell.Content)
		}
		cells = append(cells, texts)
	}
	return cells
}

// TableSettings configures geometric table detection.
// Based on pdfplumber's TableSettings.
type TableSettings struct {
	// Strategy for finding edges: "lines" uses explicit line objects,
	// "text" infers edges from word alignment, "lines_text" tries both.
	VerticalStrategy   string
	HorizontalStrategy string

	// Tolerances for snapping close edges together
	SnapXTolerance float64
	SnapYTolerance float64

	// Tolerances for joining edges on the same line
	JoinXTolerance float64
	JoinYTolerance float64

	// Minimum edge length to consider
	EdgeMinLength float64

	// Minimum number of words required to infer edges from text alignment
	MinWordsVertical   int
	MinWordsHorizontal int

	// Tolerances for finding edge intersections
	IntersectionXTolerance float64
	IntersectionYTolerance float64
}

// TextTableSettings returns settings for the fast text backend: edges are
// inferred from word alignment, falling back to explicit lines when present.
func TextTableSettings() TableSettings {
	s := defaultSettings()
	s.VerticalStrategy = "lines_text"
	s.HorizontalStrategy = "lines_text"
	return s
}

// GridTableSettings returns settings for the grid backend: only explicit
// ruling lines are used, which keeps it precise on bordered tables.
func GridTableSettings() TableSettings {
	s := defaultSettings()
	s.VerticalStrategy = "lines"
	s.HorizontalStrategy = "lines"
	return s
}

func defaultSettings() TableSettings {
	return TableSettings{
		SnapXTolerance:         3.0,
		SnapYTolerance:         3.0,
		JoinXTolerance:         3.0,
		JoinYTolerance:         3.0,
		EdgeMinLength:          3.0,
		MinWordsVertical:       3,
		MinWordsHorizontal:     1,
		IntersectionXTolerance: 3.0,
		IntersectionYTolerance: 3.0,
	}
}
