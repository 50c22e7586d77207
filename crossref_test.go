package tableseg_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	tableseg "github.com/synapta/tableseg"
)

func TestFindCrossReferences(t *testing.T) {
	table := &tableseg.LinkedTable{
		SegmentID:   "table_2_1_p5",
		TableNumber: "2.1",
	}
	text := "As shown earlier, see Table 2.1 for the breakdown. " +
		"Table 2.1 shows the exposure per desk. Refer to Table 2.1 when rebalancing. " +
		"Table 2.15 shows something else entirely."

	links := tableseg.FindCrossReferences(table, text)
	require.Len(t, links, 3)
	for _, link := range links {
		require.Equal(t, tableseg.LinkTypeReferences, link.Type)
		require.Equal(t, "table_2_1_p5", link.TargetID)
		require.InDelta(t, 0.9, link.Confidence, 1e-9)
	}
	require.Equal(t, "see Table 2.1", links[0].Evidence)
	require.Len(t, table.Links, 3)
}

func TestFindCrossReferences_KeepsLinksSortedByConfidence(t *testing.T) {
	table := &tableseg.LinkedTable{
		SegmentID:   "table_2_1_p5",
		TableNumber: "2.1",
		Links: []tableseg.Link{
			{Type: tableseg.LinkTypeTableOf, TargetID: "risk_management", Confidence: 0.8, Evidence: "keyword match"},
		},
	}

	tableseg.FindCrossReferences(table, "see Table 2.1 for the breakdown")

	require.Len(t, table.Links, 2)
	require.True(t, sort.SliceIsSorted(table.Links, func(i, j int) bool {
		return table.Links[i].Confidence > table.Links[j].Confidence
	}))
	require.Equal(t, tableseg.LinkTypeReferences, table.Links[0].Type)
	require.Equal(t, tableseg.LinkTypeTableOf, table.Links[1].Type)
}

func TestFindCrossReferences_UnnumberedTable(t *testing.T) {
	table := &tableseg.LinkedTable{SegmentID: "table_p3_idx0"}
	links := tableseg.FindCrossReferences(table, "see Table 4 for details")
	require.Empty(t, links)
	require.Empty(t, table.Links)
}
