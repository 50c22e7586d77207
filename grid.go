package tableseg

import (
	"math"
	"sort"
	"strings"
)

// DetectLayoutTables finds tables on a page from word positions and explicit
// ruling-line edges. Based on pdfplumber's TableFinder: edges are snapped,
// joined and intersected, intersections become cells, and contiguous cells
// become tables.
func DetectLayoutTables(words []Word, ruling []Edge, settings TableSettings) []LayoutTable {
	var edges []Edge

	vLines := 0
	if settings.VerticalStrategy == "lines" || settings.VerticalStrategy == "lines_text" {
		for _, e := range ruling {
			if e.Orientation == "v" {
				edges = append(edges, e)
				vLines++
			}
		}
	}
	if (vLines == 0 && settings.VerticalStrategy == "lines_text") || settings.VerticalStrategy == "text" {
		edges = append(edges, wordsToEdgesVertical(words, settings.MinWordsVertical)...)
	}

	hLines := 0
	if settings.HorizontalStrategy == "lines" || settings.HorizontalStrategy == "lines_text" {
		for _, e := range ruling {
			if e.Orientation == "h" {
				edges = append(edges, e)
				hLines++
			}
		}
	}
	if (hLines == 0 && settings.HorizontalStrategy == "lines_text") || settings.HorizontalStrategy == "text" {
		edges = append(edges, wordsToEdgesHorizontal(words, settings.MinWordsHorizontal)...)
	}

	if len(edges) == 0 || len(words) == 0 {
		return nil
	}

	edges = mergeEdges(edges, settings)
	edges = filterEdgesByLength(edges, settings.EdgeMinLength)

	intersections := findIntersections(edges, settings)
	cells := intersectionsToCells(intersections)
	groups := cellsToTables(cells)

	tables := make([]LayoutTable, 0, len(groups))
	for _, group := range groups {
		tables = append(tables, buildLayoutTable(group, words))
	}
	return tables
}

// wordsToEdgesHorizontal finds imaginary horizontal lines connecting word
// tops and bottoms. Based on pdfplumber's words_to_edges_h.
func wordsToEdgesHorizontal(words []Word, minWords int) []Edge {
	if len(words) == 0 {
		return nil
	}

	type cluster struct {
		top   float64
		words []Word
	}

	var clusters []cluster
	for _, word := range words {
		found := false
		for i := range clusters {
			if math.Abs(clusters[i].top-word.Box.Y0) < 1.0 {
				clusters[i].words = append(clusters[i].words, word)
				found = true
				break
			}
		}
		if !found {
			clusters = append(clusters, cluster{top: word.Box.Y0, words: []Word{word}})
		}
	}

	var large []cluster
	for _, c := range clusters {
		if len(c.words) >= minWords {
			large = append(large, c)
		}
	}
	if len(large) == 0 {
		return nil
	}

	minX0 := math.MaxFloat64
	maxX1 := -math.MaxFloat64
	for _, c := range large {
		for _, w := range c.words {
			minX0 = math.Min(minX0, w.Box.X0)
			maxX1 = math.Max(maxX1, w.Box.X1)
		}
	}

	var edges []Edge
	for _, c := range large {
		bottom := c.top
		for _, w := range c.words {
			bottom = math.Max(bottom, w.Box.Y1)
		}
		edges = append(edges,
			Edge{X0: minX0, X1: maxX1, Top: c.top, Bottom: c.top, Width: maxX1 - minX0, Orientation: "h"},
			Edge{X0: minX0, X1: maxX1, Top: bottom, Bottom: bottom, Width: maxX1 - minX0, Orientation: "h"},
		)
	}
	return edges
}

// wordsToEdgesVertical finds imaginary vertical lines from word alignment.
// Words sharing a left edge form a column boundary; a final edge closes the
// rightmost column. Based on pdfplumber's words_to_edges_v.
func wordsToEdgesVertical(words []Word, minWords int) []Edge {
	if len(words) == 0 {
		return nil
	}

	type cluster struct {
		x     float64
		words []Word
	}

	byPosition := func(getX func(Word) float64) []cluster {
		var clusters []cluster
		for _, word := range words {
			x := getX(word)
			found := false
			for i := range clusters {
				if math.Abs(clusters[i].x-x) < 1.0 {
					clusters[i].words = append(clusters[i].words, word)
					found = true
					break
				}
			}
			if !found {
				clusters = append(clusters, cluster{x: x, words: []Word{word}})
			}
		}
		return clusters
	}

	// Cluster by left edge, right edge and center; keep whichever alignment
	// captures the most words per cluster.
	candidates := [][]cluster{
		byPosition(func(w Word) float64 { return w.Box.X0 }),
		byPosition(func(w Word) float64 { return w.Box.X1 }),
		byPosition(func(w Word) float64 { return (w.Box.X0 + w.Box.X1) / 2 }),
	}

	var best []cluster
	bestCount := 0
	for _, clusters := range candidates {
		count := 0
		for _, c := range clusters {
			if len(c.words) >= minWords {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = clusters
		}
	}
	if bestCount < 2 {
		return nil
	}

	var large []cluster
	for _, c := range best {
		if len(c.words) >= minWords {
			large = append(large, c)
		}
	}

	// Bounding boxes per cluster, dropping overlaps.
	type box struct{ x0, y0, x1, y1 float64 }
	var boxes []box
	for _, c := range large {
		b := box{x0: math.MaxFloat64, y0: math.MaxFloat64, x1: -math.MaxFloat64, y1: -math.MaxFloat64}
		for _, w := range c.words {
			b.x0 = math.Min(b.x0, w.Box.X0)
			b.y0 = math.Min(b.y0, w.Box.Y0)
			b.x1 = math.Max(b.x1, w.Box.X1)
			b.y1 = math.Max(b.y1, w.Box.Y1)
		}
		boxes = append(boxes, b)
	}

	var condensed []box
	for _, b := range boxes {
		overlaps := false
		for _, existing := range condensed {
			if !(b.x1 < existing.x0 || b.x0 > existing.x1 || b.y1 < existing.y0 || b.y0 > existing.y1) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			condensed = append(condensed, b)
		}
	}
	if len(condensed) == 0 {
		return nil
	}

	sort.Slice(condensed, func(i, j int) bool { return condensed[i].x0 < condensed[j].x0 })

	minTop := math.MaxFloat64
	maxBottom := -math.MaxFloat64
	maxX1 := -math.MaxFloat64
	for _, b := range condensed {
		minTop = math.Min(minTop, b.y0)
		maxBottom = math.Max(maxBottom, b.y1)
		maxX1 = math.Max(maxX1, b.x1)
	}

	var edges []Edge
	for _, b := range condensed {
		edges = append(edges, Edge{
			X0: b.x0, X1: b.x0, Top: minTop, Bottom: maxBottom,
			Height: maxBottom - minTop, Orientation: "v",
		})
	}
	edges = append(edges, Edge{
		X0: maxX1, X1: maxX1, Top: minTop, Bottom: maxBottom,
		Height: maxBottom - minTop, Orientation: "v",
	})
	return edges
}

// mergeEdges snaps and joins edges that are close together.
func mergeEdges(edges []Edge, settings TableSettings) []Edge {
	if settings.SnapXTolerance > 0 || settings.SnapYTolerance > 0 {
		edges = snapEdges(edges, settings.SnapXTolerance, settings.SnapYTolerance)
	}

	type groupKey struct {
		orientation string
		position    float64
	}
	grouped := make(map[groupKey][]Edge)
	for _, edge := range edges {
		key := groupKey{orientation: edge.Orientation}
		if edge.Orientation == "h" {
			key.position = edge.Top
		} else {
			key.position = edge.X0
		}
		grouped[key] = append(grouped[key], edge)
	}

	var result []Edge
	for key, group := range grouped {
		result = append(result, joinEdgeGroup(group, key.orientation, settings)...)
	}
	return result
}

// snapEdges snaps edges that are within tolerance to their average position.
func snapEdges(edges []Edge, xTol, yTol float64) []Edge {
	var vEdges, hEdges []Edge
	for _, e := range edges {
		if e.Orientation == "v" {
			vEdges = append(vEdges, e)
		} else {
			hEdges = append(hEdges, e)
		}
	}
	snappedV := snapEdgeCluster(vEdges, false, xTol)
	snappedH := snapEdgeCluster(hEdges, true, yTol)
	return append(snappedV, snappedH...)
}

// snapEdgeCluster snaps edges along one dimension within tolerance.
// horizontal selects the Top dimension; otherwise X0 is used.
func snapEdgeCluster(edges []Edge, horizontal bool, tolerance float64) []Edge {
	if len(edges) == 0 {
		return edges
	}

	value := func(e Edge) float64 {
		if horizontal {
			return e.Top
		}
		return e.X0
	}

	type cluster struct {
		value float64
		idx   []int
	}
	var clusters []cluster
	for i, edge := range edges {
		val := value(edge)
		found := false
		for j := range clusters {
			if math.Abs(clusters[j].value-val) <= tolerance {
				clusters[j].idx = append(clusters[j].idx, i)
				sum := clusters[j].value * float64(len(clusters[j].idx)-1)
				clusters[j].value = (sum + val) / float64(len(clusters[j].idx))
				found = true
				break
			}
		}
		if !found {
			clusters = append(clusters, cluster{value: val, idx: []int{i}})
		}
	}

	result := make([]Edge, len(edges))
	copy(result, edges)
	for _, c := range clusters {
		for _, i := range c.idx {
			if horizontal {
				diff := c.value - result[i].Top
				result[i].Top = c.value
				result[i].Bottom += diff
			} else {
				diff := c.value - result[i].X0
				result[i].X0 = c.value
				result[i].X1 += diff
			}
		}
	}
	return result
}

// joinEdgeGroup joins collinear edges that are within tolerance of touching.
func joinEdgeGroup(edges []Edge, orientation string, settings TableSettings) []Edge {
	if len(edges) == 0 {
		return edges
	}

	horizontal := orientation == "h"
	tolerance := settings.JoinXTolerance
	if !horizontal {
		tolerance = settings.JoinYTolerance
	}

	getMin := func(e Edge) float64 {
		if horizontal {
			return e.X0
		}
		return e.Top
	}
	getMax := func(e Edge) float64 {
		if horizontal {
			return e.X1
		}
		return e.Bottom
	}

	sort.Slice(edges, func(i, j int) bool { return getMin(edges[i]) < getMin(edges[j]) })

	joined := []Edge{edges[0]}
	for i := 1; i < len(edges); i++ {
		last := &joined[len(joined)-1]
		current := edges[i]

		if getMin(current) <= getMax(*last)+tolerance {
			if getMax(current) > getMax(*last) {
				if horizontal {
					last.X1 = current.X1
					last.Width = last.X1 - last.X0
				} else {
					last.Bottom = current.Bottom
					last.Height = last.Bottom - last.Top
				}
			}
		} else {
			joined = append(joined, current)
		}
	}
	return joined
}

// filterEdgesByLength filters edges by minimum length.
func filterEdgesByLength(edges []Edge, minLength float64) []Edge {
	if minLength <= 0 {
		return edges
	}
	result := make([]Edge, 0, len(edges))
	for _, edge := range edges {
		length := edge.Width
		if edge.Orientation == "v" {
			length = edge.Height
		}
		if length >= minLength {
			result = append(result, edge)
		}
	}
	return result
}

// findIntersections finds where vertical and horizontal edges cross.
func findIntersections(edges []Edge, settings TableSettings) map[Point]map[string][]Edge {
	intersections := make(map[Point]map[string][]Edge)

	var vEdges, hEdges []Edge
	for _, e := range edges {
		if e.Orientation == "v" {
			vEdges = append(vEdges, e)
		} else {
			hEdges = append(hEdges, e)
		}
	}

	xTol := settings.IntersectionXTolerance
	yTol := settings.IntersectionYTolerance

	for _, v := range vEdges {
		for _, h := range hEdges {
			if (v.Top <= h.Top+yTol) &&
				(v.Bottom >= h.Top-yTol) &&
				(v.X0 >= h.X0-xTol) &&
				(v.X0 <= h.X1+xTol) {

				point := Point{X: v.X0, Y: h.Top}
				if _, ok := intersections[point]; !ok {
					intersections[point] = map[string][]Edge{"v": {}, "h": {}}
				}
				intersections[point]["v"] = append(intersections[point]["v"], v)
				intersections[point]["h"] = append(intersections[point]["h"], h)
			}
		}
	}
	return intersections
}

// intersectionsToCells creates minimal rectangular cells from intersections.
func intersectionsToCells(intersections map[Point]map[string][]Edge) []Rect {
	if len(intersections) == 0 {
		return nil
	}

	points := make([]Point, 0, len(intersections))
	for p := range intersections {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Y == points[j].Y {
			return points[i].X < points[j].X
		}
		return points[i].Y < points[j].Y
	})

	edgeConnects := func(p1, p2 Point) bool {
		if p1.X == p2.X {
			for _, e1 := range intersections[p1]["v"] {
				for _, e2 := range intersections[p2]["v"] {
					if e1.X0 == e2.X0 && e1.Top == e2.Top && e1.Bottom == e2.Bottom {
						return true
					}
				}
			}
		}
		if p1.Y == p2.Y {
			for _, e1 := range intersections[p1]["h"] {
				for _, e2 := range intersections[p2]["h"] {
					if e1.Top == e2.Top && e1.X0 == e2.X0 && e1.X1 == e2.X1 {
						return true
					}
				}
			}
		}
		return false
	}

	var cells []Rect
	for i, pt := range points {
		var nearestRight, nearestBelow *Point
		for j := i + 1; j < len(points); j++ {
			if points[j].X == pt.X && points[j].Y > pt.Y {
				if nearestBelow == nil || points[j].Y < nearestBelow.Y {
					nearestBelow = &points[j]
				}
			}
			if points[j].Y == pt.Y && points[j].X > pt.X {
				if nearestRight == nil || points[j].X < nearestRight.X {
					nearestRight = &points[j]
				}
			}
		}

		if nearestBelow != nil && nearestRight != nil &&
			edgeConnects(pt, *nearestBelow) && edgeConnects(pt, *nearestRight) {

			bottomRight := Point{X: nearestRight.X, Y: nearestBelow.Y}
			if _, exists := intersections[bottomRight]; exists {
				if edgeConnects(bottomRight, *nearestRight) && edgeConnects(bottomRight, *nearestBelow) {
					cells = append(cells, Rect{X0: pt.X, Y0: pt.Y, X1: bottomRight.X, Y1: bottomRight.Y})
				}
			}
		}
	}
	return cells
}

// cellsToTables groups cells that share corners into contiguous tables.
func cellsToTables(cells []Rect) [][]Rect {
	if len(cells) == 0 {
		return nil
	}

	remaining := make([]Rect, len(cells))
	copy(remaining, cells)

	var tables [][]Rect
	var current []Rect
	corners := make(map[Point]bool)

	for len(remaining) > 0 {
		initialSize := len(current)

		for i := 0; i < len(remaining); i++ {
			cell := remaining[i]
			cellCorners := []Point{
				{cell.X0, cell.Y0},
				{cell.X0, cell.Y1},
				{cell.X1, cell.Y0},
				{cell.X1, cell.Y1},
			}

			if len(current) == 0 {
				current = append(current, cell)
				for _, c := range cellCorners {
					corners[c] = true
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				i--
				continue
			}

			shared := 0
			for _, c := range cellCorners {
				if corners[c] {
					shared++
				}
			}
			if shared > 0 {
				current = append(current, cell)
				for _, c := range cellCorners {
					corners[c] = true
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				i--
			}
		}

		if len(current) == initialSize {
			if len(current) > 1 {
				tables = append(tables, current)
			}
			current = nil
			corners = make(map[Point]bool)
		}
	}

	if len(current) > 1 {
		tables = append(tables, current)
	}
	return tables
}

// buildLayoutTable organizes a group of cells into rows and fills in the
// words falling inside each cell.
func buildLayoutTable(cells []Rect, words []Word) LayoutTable {
	if len(cells) == 0 {
		return LayoutTable{}
	}

	box := Rect{X0: math.MaxFloat64, Y0: math.MaxFloat64, X1: -math.MaxFloat64, Y1: -math.MaxFloat64}
	for _, cell := range cells {
		box.X0 = math.Min(box.X0, cell.X0)
		box.Y0 = math.Min(box.Y0, cell.Y0)
		box.X1 = math.Max(box.X1, cell.X1)
		box.Y1 = math.Max(box.Y1, cell.Y1)
	}

	type rowGroup struct {
		top   float64
		cells []Rect
	}
	var rows []rowGroup
	for _, cell := range cells {
		found := false
		for i := range rows {
			if math.Abs(rows[i].top-cell.Y0) < 1.0 {
				rows[i].cells = append(rows[i].cells, cell)
				found = true
				break
			}
		}
		if !found {
			rows = append(rows, rowGroup{top: cell.Y0, cells: []Rect{cell}})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].top < rows[j].top })
	for i := range rows {
		sort.Slice(rows[i].cells, func(j, k int) bool { return rows[i].cells[j].X0 < rows[i].cells[k].X0 })
	}

	tableRows := make([]LayoutRow, 0, len(rows))
	maxCols := 0
	for _, row := range rows {
		layoutCells := make([]LayoutCell, 0, len(row.cells))
		for _, cellBox := range row.cells {
			layoutCells = append(layoutCells, LayoutCell{
				Box:     cellBox,
				Content: cellContent(cellBox, words),
			})
		}
		if len(layoutCells) > maxCols {
			maxCols = len(layoutCells)
		}

		tableRows = append(tableRows, LayoutRow{
			Cells: layoutCells,
			Box: Rect{
				X0: row.cells[0].X0,
				Y0: row.top,
				X1: row.cells[len(row.cells)-1].X1,
				Y1: row.cells[0].Y1,
			},
		})
	}

	// Drop rows with no content at all.
	nonEmpty := make([]LayoutRow, 0, len(tableRows))
	for _, row := range tableRows {
		for _, cell := range row.Cells {
			if cell.Content != "" {
				nonEmpty = append(nonEmpty, row)
				break
			}
		}
	}

	return LayoutTable{
		Box:     box,
		Rows:    nonEmpty,
		NumRows: len(nonEmpty),
		NumCols: maxCols,
	}
}

// cellContent joins the words whose centers fall inside the cell box,
// reading order top to bottom, left to right.
func cellContent(box Rect, words []Word) string {
	const tolerance = 1.0

	var inside []Word
	for _, word := range words {
		cx := word.Box.CenterX()
		cy := word.Box.CenterY()
		if cx >= box.X0-tolerance && cx <= box.X1+tolerance &&
			cy >= box.Y0-tolerance && cy <= box.Y1+tolerance {
			inside = append(inside, word)
		}
	}

	sort.Slice(inside, func(i, j int) bool {
		if math.Abs(inside[i].Box.Y0-inside[j].Box.Y0) < 2.0 {
			return inside[i].Box.X0 < inside[j].Box.X0
		}
		return inside[i].Box.Y0 < inside[j].Box.Y0
	})

	var sb strings.Builder
	for i, word := range inside {
		if i > 0 {
			if word.Box.Y0-inside[i-1].Box.Y1 > 2.0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(word.Text)
	}
	return sb.String()
}
