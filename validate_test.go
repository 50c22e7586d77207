package tableseg_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	tableseg "github.com/synapta/tableseg"
)

func TestValidateTable_AcceptsCaptionedTable(t *testing.T) {
	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Caption:    "Table 2.1: Risk factors by asset class",
		ColHeaders: []string{"Asset class", "Risk weight"},
		Cells: [][]string{
			{"Asset class", "Risk weight"},
			{"Sovereign", "0%"},
		},
	})
	require.True(t, ok, reason)
}

func TestValidateTable_RejectsFigure(t *testing.T) {
	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Caption: "Figure 3: Portfolio growth over time",
		Cells: [][]string{
			{"2019", "2020", "2021"},
			{"100", "112", "125"},
			{"4", "5", "6"},
		},
	})
	require.False(t, ok)
	require.Contains(t, reason, "figure")
}

func TestValidateTable_FigureWordInsideTableCaptionSurvives(t *testing.T) {
	ok, _ := tableseg.ValidateTable(tableseg.MergedTable{
		Caption: "Table 4: Figures reported per quarter",
		Cells: [][]string{
			{"Quarter", "Figure"},
			{"Q1", "10"},
		},
	})
	require.True(t, ok)
}

func TestValidateTable_RejectsSingleColumnProse(t *testing.T) {
	prose := func(s string) string { return s + strings.Repeat(" and so on", 4) }
	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Cells: [][]string{
			{prose("The portfolio allocation changed materially")},
			{prose("Management considered several alternatives")},
			{prose("The committee approved the revised limits")},
			{prose("Further review is scheduled for next quarter")},
			{prose("No additional action was deemed necessary")},
		},
	})
	require.False(t, ok)
	require.Contains(t, reason, "prose")
}

func TestValidateTable_SingleColumnShortLabelsStillNeedsKeyword(t *testing.T) {
	ok, _ := tableseg.ValidateTable(tableseg.MergedTable{
		Cells: [][]string{{"Cash"}, {"Bonds"}, {"Equity"}},
	})
	require.False(t, ok)

	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Caption: "Table 7",
		Cells:   [][]string{{"Cash"}, {"Bonds"}, {"Equity"}},
	})
	require.True(t, ok, reason)
}

func TestValidateTable_RejectsParagraphGrid(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 30)
	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Cells: [][]string{
			{long, long},
			{long, "short"},
			{long, long},
		},
	})
	require.False(t, ok)
	require.Contains(t, reason, "paragraph")
}

func TestValidateTable_RejectsEmptyGrid(t *testing.T) {
	ok, _ := tableseg.ValidateTable(tableseg.MergedTable{})
	require.False(t, ok)

	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Cells: [][]string{{"", ""}, {" ", ""}},
	})
	require.False(t, ok)
	require.Contains(t, reason, "no cell content")
}

func TestValidateTable_UncaptionedNeedsStrongStructure(t *testing.T) {
	// Two rows only: not enough without a keyword.
	ok, _ := tableseg.ValidateTable(tableseg.MergedTable{
		Cells: [][]string{{"a", "b"}, {"1", "2"}},
	})
	require.False(t, ok)

	// Three data-like rows across two columns stand on their own.
	ok, reason := tableseg.ValidateTable(tableseg.MergedTable{
		Cells: [][]string{
			{"Metric", "Value"},
			{"VaR", "1.2"},
			{"CVaR", "1.9"},
		},
	})
	require.True(t, ok, reason)
}
