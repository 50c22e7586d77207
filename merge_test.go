package tableseg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	tableseg "github.com/synapta/tableseg"
)

func TestNormalizeConfidence(t *testing.T) {
	require.InDelta(t, 0.9, tableseg.NormalizeConfidence(tableseg.ExtractorText, 0.9), 1e-9)
	require.InDelta(t, 0.85, tableseg.NormalizeConfidence(tableseg.ExtractorGrid, 0.85), 1e-9)
	require.InDelta(t, 0.6, tableseg.NormalizeConfidence(tableseg.ExtractorOCR, 60), 1e-9)

	// Unknown extractors are clamped and halved.
	require.InDelta(t, 0.45, tableseg.NormalizeConfidence("camelot", 0.9), 1e-9)
	require.InDelta(t, 0.5, tableseg.NormalizeConfidence("camelot", 7), 1e-9)

	// Out-of-range values clamp rather than escape the scale.
	require.InDelta(t, 1.0, tableseg.NormalizeConfidence(tableseg.ExtractorOCR, 250), 1e-9)
	require.InDelta(t, 0.0, tableseg.NormalizeConfidence(tableseg.ExtractorText, -3), 1e-9)
}

func TestMergeCandidates_OverlappingBoxesCollapse(t *testing.T) {
	box := tableseg.Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	shifted := tableseg.Rect{X0: 110, Y0: 105, X1: 410, Y1: 310}
	cells := [][]string{{"Asset", "Value"}, {"Cash", "100"}, {"Bonds", "250"}}

	merged := tableseg.MergeCandidates([]tableseg.TableCandidate{
		{SourcePage: 3, Extractor: tableseg.ExtractorGrid, Cells: cells, RawConfidence: 0.85, BBox: shifted},
		{SourcePage: 3, Extractor: tableseg.ExtractorText, Cells: cells, RawConfidence: 0.9, BBox: box},
	})

	require.Len(t, merged, 1)
	require.Equal(t, 3, merged[0].SourcePage)
	require.Equal(t, tableseg.ExtractorText, merged[0].Anchor.Extractor)
	require.InDelta(t, 0.9, merged[0].Anchor.Confidence, 1e-9)
	require.Equal(t, []string{tableseg.ExtractorGrid, tableseg.ExtractorText}, merged[0].ContributingExtractors)
}

func TestMergeCandidates_OCRLosesToTextOnSameTable(t *testing.T) {
	cells := [][]string{{"Risk", "Weight"}, {"Credit", "0.4"}}

	merged := tableseg.MergeCandidates([]tableseg.TableCandidate{
		{SourcePage: 1, Extractor: tableseg.ExtractorOCR, Cells: cells, RawConfidence: 88},
		{SourcePage: 1, Extractor: tableseg.ExtractorText, Cells: cells, RawConfidence: 0.9},
	})

	require.Len(t, merged, 1)
	require.Equal(t, tableseg.ExtractorText, merged[0].Anchor.Extractor)
}

func TestMergeCandidates_DistinctTablesStaySeparate(t *testing.T) {
	top := tableseg.Rect{X0: 50, Y0: 50, X1: 300, Y1: 150}
	bottom := tableseg.Rect{X0: 50, Y0: 400, X1: 300, Y1: 500}
	cells := [][]string{{"a", "b"}, {"c", "d"}}

	merged := tableseg.MergeCandidates([]tableseg.TableCandidate{
		{SourcePage: 1, Extractor: tableseg.ExtractorText, Cells: cells, RawConfidence: 0.9, BBox: bottom},
		{SourcePage: 1, Extractor: tableseg.ExtractorText, Cells: cells, RawConfidence: 0.9, BBox: top},
	})

	require.Len(t, merged, 2)
	// Page-internal order follows vertical position.
	require.Equal(t, top, merged[0].BBox)
	require.Equal(t, bottom, merged[1].BBox)
}

func TestMergeCandidates_OrderIndependent(t *testing.T) {
	box := tableseg.Rect{X0: 100, Y0: 100, X1: 400, Y1: 300}
	a := tableseg.TableCandidate{SourcePage: 2, Extractor: tableseg.ExtractorText, Cells: [][]string{{"x"}, {"y"}}, RawConfidence: 0.9, BBox: box}
	b := tableseg.TableCandidate{SourcePage: 2, Extractor: tableseg.ExtractorGrid, Cells: [][]string{{"x"}, {"y"}}, RawConfidence: 0.85, BBox: box}
	c := tableseg.TableCandidate{SourcePage: 1, Extractor: tableseg.ExtractorText, Cells: [][]string{{"q"}, {"r"}}, RawConfidence: 0.9}

	first := tableseg.MergeCandidates([]tableseg.TableCandidate{a, b, c})
	second := tableseg.MergeCandidates([]tableseg.TableCandidate{c, b, a})
	require.Equal(t, first, second)
	require.Len(t, first, 2)
	require.Equal(t, 1, first[0].SourcePage)
	require.Equal(t, 2, first[1].SourcePage)
}

func TestMergeCandidates_RectangularOutput(t *testing.T) {
	merged := tableseg.MergeCandidates([]tableseg.TableCandidate{
		{
			SourcePage:    1,
			Extractor:     tableseg.ExtractorText,
			RawConfidence: 0.9,
			Cells: [][]string{
				{"Name", "Q1", "Q2"},
				{"Revenue", "10"},
				{"Costs", "4", "5", "stray"},
				{"Margin", "6", "7"},
			},
		},
	})

	require.Len(t, merged, 1)
	for _, row := range merged[0].Cells {
		require.Len(t, row, 3)
	}
	require.Equal(t, []string{"Revenue", "10", ""}, merged[0].Cells[1])
	require.Equal(t, []string{"Costs", "4", "5"}, merged[0].Cells[2])
}

func TestMergeCandidates_DropsEmptyCandidates(t *testing.T) {
	merged := tableseg.MergeCandidates([]tableseg.TableCandidate{
		{SourcePage: 1, Extractor: tableseg.ExtractorText, RawConfidence: 0.9},
		{SourcePage: 2, Extractor: tableseg.ExtractorText, RawConfidence: 0.9, Cells: [][]string{{"a"}, {"b"}}},
	})
	require.Len(t, merged, 1)
	require.Equal(t, 2, merged[0].SourcePage)
}

func TestMergeCandidates_HeadersDefaultToFirstRow(t *testing.T) {
	merged := tableseg.MergeCandidates([]tableseg.TableCandidate{
		{
			SourcePage:    1,
			Extractor:     tableseg.ExtractorText,
			RawConfidence: 0.9,
			Cells:         [][]string{{"Metric", "Value"}, {"VaR", "1.2"}},
		},
	})
	require.Len(t, merged, 1)
	require.Equal(t, []string{"Metric", "Value"}, merged[0].ColHeaders)
}
