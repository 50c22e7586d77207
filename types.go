package tableseg

// PageClass is the extraction-routing classification of a single page.
type PageClass int

const (
	// ClassUnknown means no signal was strong enough to pick a backend.
	ClassUnknown PageClass = iota
	// ClassText means the page has enough extractable text for the text backend.
	ClassText
	// ClassGrid means the page carries ruling lines forming a grid.
	ClassGrid
	// ClassImage means the page is mostly image content and needs OCR.
	ClassImage
)

// String returns the lowercase name of the class.
func (c PageClass) String() string {
	switch c {
	case ClassText:
		return "text"
	case ClassGrid:
		return "grid"
	case ClassImage:
		return "image"
	default:
		return "unknown"
	}
}

// PageSignals holds the raw per-page measurements used for classification.
type PageSignals struct {
	CharCount       int
	LineCount       int // total ruling-line edges detected
	HorizontalLines int
	VerticalLines   int
	HasImages       bool
}

// Page is a classified page. Pages are built once during the classification
// pass and are read-only afterwards.
type Page struct {
	Number  int // 1-based
	Class   PageClass
	Signals PageSignals
}

// Rect represents a bounding box in page coordinates (origin top-left).
type Rect struct {
	X0 float64 // Left
	Y0 float64 // Top
	X1 float64 // Right
	Y1 float64 // Bottom
}

// Width returns the width of the rectangle.
func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

// Height returns the height of the rectangle.
func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

// Area returns the area of the rectangle.
func (r Rect) Area() float64 {
	return r.Width() * r.Height()
}

// CenterX returns the horizontal center of the rectangle.
func (r Rect) CenterX() float64 {
	return (r.X0 + r.X1) / 2
}

// CenterY returns the vertical center of the rectangle.
func (r Rect) CenterY() float64 {
	return (r.Y0 + r.Y1) / 2
}

// IsZero reports whether the rectangle is unset.
func (r Rect) IsZero() bool {
	return r == Rect{}
}

// TableCandidate is one raw table emitted by a single backend invocation.
// Several candidates may describe the same physical table on a page.
type TableCandidate struct {
	SourcePage    int
	Extractor     string // backend id: "text", "grid", "ocr"
	Cells         [][]string
	ColHeaders    []string
	Caption       string
	RawConfidence float64 // backend-native scale, see NormalizeConfidence
	BBox          Rect    // zero when the backend cannot report one
}

// SourceAnchor records where a merged table came from.
type SourceAnchor struct {
	Extractor  string  `json:"extractor"`
	PageNumber int     `json:"page_number"`
	Confidence float64 `json:"confidence"` // normalized to [0,1]
}

// MergedTable is one physical table after cross-backend deduplication.
// Cells is guaranteed non-empty and rectangular.
type MergedTable struct {
	SourcePage             int
	Cells                  [][]string
	ColHeaders             []string
	Caption                string
	BBox                   Rect
	Anchor                 SourceAnchor
	ContributingExtractors []string // sorted, every group member's id
}

// Link types attached to tables.
const (
	LinkTypeTableOf    = "TABLE_OF"
	LinkTypeReferences = "REFERENCES"
)

// Link is a scored association from a table to a taxonomy concept.
type Link struct {
	Type       string  `json:"link_type"`
	TargetID   string  `json:"target_id"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// LinkedTable is a validated merged table with its concept links.
type LinkedTable struct {
	SegmentID        string       `json:"segment_id"`
	TableNumber      string       `json:"table_number,omitempty"`
	Caption          string       `json:"caption"`
	ColHeaders       []string     `json:"col_headers"`
	Cells            [][]string   `json:"cells"`
	LinkedConceptIDs []string     `json:"linked_concept_ids"`
	Links            []Link       `json:"links"`
	Anchor           SourceAnchor `json:"source_anchor"`

	ContributingExtractors []string `json:"contributing_extractors,omitempty"`
}

// ConceptEntry is one taxonomy concept used as a linking target.
// The taxonomy is loaded once and read-only for the lifetime of a run.
type ConceptEntry struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	Description string    `json:"description" yaml:"description"`
	Embedding   []float64 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
}

// BackendUsage counts pages submitted to each backend during dispatch.
type BackendUsage struct {
	TextPages int `json:"text_pages"`
	GridPages int `json:"grid_pages"`
	OCRPages  int `json:"ocr_pages"`
}

// DocumentSummary is the document-level account of a run. It is emitted even
// when backends were skipped or pages failed, so consumers can tell a degraded
// run from a truncated one.
type DocumentSummary struct {
	DocumentID  string         `json:"document_id"`
	TotalPages  int            `json:"total_pages"`
	FirstPage   int            `json:"first_page"`
	LastPage    int            `json:"last_page"`
	TotalTables int            `json:"total_tables"`
	Usage       BackendUsage   `json:"backend_usage"`
	FailedPages []int          `json:"failed_pages,omitempty"`
	SkippedGrid int            `json:"skipped_grid_pages"` // pages dropped by the grid cap
	SkippedOCR  int            `json:"skipped_ocr_pages"`  // pages dropped by the OCR cap
	ClassCounts map[string]int `json:"class_counts,omitempty"`
}

// ExtractionResult is the complete output for one document.
type ExtractionResult struct {
	Tables  []LinkedTable   `json:"tables"`
	Summary DocumentSummary `json:"summary"`
}
