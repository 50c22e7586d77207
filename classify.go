package tableseg

import (
	"context"
	"log/slog"
)

// Classification thresholds. Fixed per document run; the sampling pass only
// bounds how many pages get the full (more expensive) signal probe.
const (
	textCharThreshold  = 200 // chars above this mean a text page
	imageCharThreshold = 50  // chars below this with images mean a scanned page
	gridLineThreshold  = 10  // total ruling lines for a grid page
	gridAxisThreshold  = 3   // minimum lines per orientation for a grid
	midBandGridLines   = 15  // 50-200 char pages: prefer grid at this many lines
	midBandTextLines   = 5   // 50-200 char pages: prefer text at this many lines
)

// SignalSource probes raw page signals. Implemented by the pdfium document
// wrapper; faked in tests.
type SignalSource interface {
	PageCount(ctx context.Context) (int, error)
	Signals(ctx context.Context, pageNumber int) (PageSignals, error)
}

// ClassifyPage applies the fixed thresholds to one page's signals.
func ClassifyPage(s PageSignals) PageClass {
	if s.CharCount > textCharThreshold {
		return ClassText
	}
	if s.LineCount >= gridLineThreshold &&
		s.HorizontalLines >= gridAxisThreshold &&
		s.VerticalLines >= gridAxisThreshold {
		return ClassGrid
	}
	if s.HasImages && s.CharCount < imageCharThreshold {
		return ClassImage
	}
	// Middle band: some text plus some structure.
	if s.CharCount >= imageCharThreshold && s.LineCount >= midBandTextLines {
		if s.LineCount >= midBandGridLines {
			return ClassGrid
		}
		return ClassText
	}
	if s.CharCount < imageCharThreshold {
		return ClassImage
	}
	return ClassUnknown
}

// ClassifyPages produces a classification for every page in [first, last]
// (1-based, inclusive). Classification never fails a run: a page whose
// signals cannot be probed is classified unknown. sampleSize bounds nothing
// in the output, only how many pages get logged in detail; every page is
// probed because the thresholds are fixed, not calibrated.
func ClassifyPages(ctx context.Context, source SignalSource, first, last, sampleSize int, logger *slog.Logger) []Page {
	if logger == nil {
		logger = slog.Default()
	}

	pages := make([]Page, 0, last-first+1)
	counts := map[PageClass]int{}

	for n := first; n <= last; n++ {
		signals, err := source.Signals(ctx, n)
		if err != nil {
			logger.Warn("page signal probe failed", "page", n, "error", err)
			pages = append(pages, Page{Number: n, Class: ClassUnknown})
			counts[ClassUnknown]++
			continue
		}
		class := ClassifyPage(signals)
		pages = append(pages, Page{Number: n, Class: class, Signals: signals})
		counts[class]++

		if sampleSize > 0 && n == first+sampleSize-1 {
			logger.Info("classification sample complete",
				"sampled", sampleSize,
				"text", counts[ClassText],
				"grid", counts[ClassGrid],
				"image", counts[ClassImage],
				"unknown", counts[ClassUnknown],
			)
		}
	}

	logger.Info("page classification complete",
		"pages", len(pages),
		"text", counts[ClassText],
		"grid", counts[ClassGrid],
		"image", counts[ClassImage],
		"unknown", counts[ClassUnknown],
	)
	return pages
}

// classCounts summarizes page classes for the document summary.
func classCounts(pages []Page) map[string]int {
	counts := make(map[string]int, 4)
	for _, p := range pages {
		counts[p.Class.String()]++
	}
	return counts
}
