package tableseg

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivanvanderbyl/markdown"
	"github.com/pkg/errors"
)

// TableToMarkdown renders one table as a Markdown pipe table with its
// caption bolded above it. The header row is taken from ColHeaders; a
// duplicate first data row is skipped.
func TableToMarkdown(t LinkedTable) string {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	if t.Caption != "" {
		md.PlainText(markdown.Bold(t.Caption))
		md.LF()
	}
	if len(t.Cells) == 0 {
		if err := md.Build(); err != nil {
			return ""
		}
		return buf.String()
	}

	header := t.ColHeaders
	rows := t.Cells
	if len(header) > 0 && rowsEqual(rows[0], header) {
		rows = rows[1:]
	}
	if len(header) == 0 {
		header = rows[0]
		rows = rows[1:]
	}
	if len(rows) == 0 {
		rows = [][]string{make([]string, len(header))}
	}

	cleaned := make([][]string, len(rows))
	for i, row := range rows {
		cleaned[i] = make([]string, len(row))
		for j, cell := range row {
			cleaned[i][j] = strings.ReplaceAll(cell, "\n", " ")
		}
	}

	md.Table(markdown.TableSet{
		Header: header,
		Rows:   cleaned,
	})
	if err := md.Build(); err != nil {
		return ""
	}
	return buf.String()
}

func rowsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TableToJSON marshals one table to indented JSON.
func TableToJSON(t LinkedTable) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal table %s", t.SegmentID)
	}
	return data, nil
}

// WriteOutputs saves every table as <segment_id>.md and <segment_id>.json in
// the output directory, with the document summary in summary.json.
func WriteOutputs(outputDir string, result ExtractionResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	for _, t := range result.Tables {
		mdPath := filepath.Join(outputDir, t.SegmentID+".md")
		if err := os.WriteFile(mdPath, []byte(TableToMarkdown(t)), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", mdPath)
		}

		data, err := TableToJSON(t)
		if err != nil {
			return err
		}
		jsonPath := filepath.Join(outputDir, t.SegmentID+".json")
		if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", jsonPath)
		}
	}

	summary, err := json.MarshalIndent(result.Summary, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal document summary")
	}
	summaryPath := filepath.Join(outputDir, "summary.json")
	return errors.Wrapf(os.WriteFile(summaryPath, summary, 0o644), "failed to write %s", summaryPath)
}
