package tableseg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	tableseg "github.com/synapta/tableseg"
)

func captionWords(text string, y float64) []tableseg.Word {
	var words []tableseg.Word
	x := 100.0
	for _, part := range splitWords(text) {
		w := float64(len(part)) * 6
		words = append(words, word(part, x, y, x+w, y+12))
		x += w + 4
	}
	return words
}

func splitWords(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func TestFindCaption_LabeledLineAboveTable(t *testing.T) {
	tableBox := tableseg.Rect{X0: 90, Y0: 200, X1: 320, Y1: 400}
	words := captionWords("Table 2.1: Risk factors", 180)

	caption := tableseg.FindCaption(words, tableBox)
	require.Equal(t, "Table 2.1: Risk factors", caption)
}

func TestFindCaption_IgnoresFigureLabels(t *testing.T) {
	tableBox := tableseg.Rect{X0: 90, Y0: 200, X1: 320, Y1: 400}
	words := captionWords("Figure 7: Growth chart", 180)

	require.Empty(t, tableseg.FindCaption(words, tableBox))
}

func TestFindCaption_TooFarAbove(t *testing.T) {
	tableBox := tableseg.Rect{X0: 90, Y0: 200, X1: 320, Y1: 400}
	words := captionWords("Table 9: Far away", 80)

	require.Empty(t, tableseg.FindCaption(words, tableBox))
}

func TestFindCaption_LabeledLineBelowTable(t *testing.T) {
	tableBox := tableseg.Rect{X0: 90, Y0: 100, X1: 320, Y1: 200}
	words := captionWords("Exhibit 3: Fee schedule", 215)

	caption := tableseg.FindCaption(words, tableBox)
	require.Equal(t, "Exhibit 3: Fee schedule", caption)
}

func TestFindCaption_NearestLabeledLineWins(t *testing.T) {
	tableBox := tableseg.Rect{X0: 90, Y0: 200, X1: 320, Y1: 300}
	var words []tableseg.Word
	words = append(words, captionWords("Table 7: Old summary", 168)...)
	words = append(words, captionWords("continued from previous", 183)...)
	words = append(words, captionWords("Table 7: Totals by region", 308)...)

	caption := tableseg.FindCaption(words, tableBox)
	require.Equal(t, "Table 7: Totals by region", caption)
}

func TestParseTableNumber(t *testing.T) {
	require.Equal(t, "2.1", tableseg.ParseTableNumber("Table 2.1: Risk factors"))
	require.Equal(t, "3", tableseg.ParseTableNumber("Exhibit 3: Fee schedule"))
	require.Equal(t, "12", tableseg.ParseTableNumber("see table 12 below"))
	require.Empty(t, tableseg.ParseTableNumber("Quarterly results"))
	require.Empty(t, tableseg.ParseTableNumber(""))
}

func TestSegmentID(t *testing.T) {
	require.Equal(t, "table_2_1_p5", tableseg.SegmentID("2.1", 5, 0))
	require.Equal(t, "table_3_p2", tableseg.SegmentID("3", 2, 0))
	require.Equal(t, "table_p5_idx2", tableseg.SegmentID("", 5, 2))
}
