package tableseg

import (
	"fmt"
	"regexp"
	"sort"
)

const crossRefConfidence = 0.9

// FindCrossReferences scans the document text for prose that mentions a
// numbered table ("see Table 2.1", "Table 2.1 shows", "refer to Table 2.1")
// and appends a REFERENCES link per mention. Unnumbered tables get none.
// Links stay sorted by confidence descending after the append.
func FindCrossReferences(table *LinkedTable, documentText string) []Link {
	if table.TableNumber == "" || documentText == "" {
		return nil
	}

	num := regexp.QuoteMeta(table.TableNumber)
	patterns := []string{
		fmt.Sprintf(`(?i)see\s+Table\s+%s\b`, num),
		fmt.Sprintf(`(?i)Table\s+%s\s+shows`, num),
		fmt.Sprintf(`(?i)refer\s+to\s+Table\s+%s\b`, num),
	}

	var links []Link
	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		for _, match := range re.FindAllString(documentText, -1) {
			links = append(links, Link{
				Type:       LinkTypeReferences,
				TargetID:   table.SegmentID,
				Confidence: crossRefConfidence,
				Evidence:   match,
			})
		}
	}

	table.Links = append(table.Links, links...)
	sort.SliceStable(table.Links, func(i, j int) bool {
		a, b := table.Links[i], table.Links[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.TargetID < b.TargetID
	})
	return links
}
